package pipeline

import "fmt"

// State is a run's position in the verification state machine
type State string

const (
	StateReceived           State = ""
	StateInputValidated     State = "INPUT_VALIDATED"
	StateCacheHit           State = "CACHE_HIT"
	StateQueryRefined       State = "QUERY_REFINED"
	StateEvidenceRetrieved  State = "EVIDENCE_RETRIEVED"
	StateReportGenerated    State = "REPORT_GENERATED"
	StateReportParsed       State = "REPORT_PARSED"
	StateSubclaimsExtracted State = "SUBCLAIMS_EXTRACTED"
	StateEvidenceAttached   State = "EVIDENCE_ATTACHED"
	StateMetadataEnriched   State = "METADATA_ENRICHED"
	StateLogged             State = "LOGGED"

	StateFailedInvalidInput         State = "FAILED_INVALID_INPUT"
	StateFailedUnresolvableClaim    State = "FAILED_UNRESOLVABLE_CLAIM"
	StateFailedRetrieval            State = "FAILED_RETRIEVAL"
	StateFailedInsufficientEvidence State = "FAILED_INSUFFICIENT_EVIDENCE"
	StateFailedGeneration           State = "FAILED_GENERATION"
	StateFailedMalformedReport      State = "FAILED_MALFORMED_REPORT"
	StateFailedLogging              State = "FAILED_LOGGING"
)

var transitions = map[State][]State{
	StateReceived:           {StateInputValidated, StateFailedInvalidInput},
	StateInputValidated:     {StateCacheHit, StateQueryRefined, StateFailedUnresolvableClaim, StateFailedGeneration, StateFailedLogging},
	StateQueryRefined:       {StateEvidenceRetrieved, StateFailedRetrieval},
	StateEvidenceRetrieved:  {StateReportGenerated, StateFailedInsufficientEvidence, StateFailedGeneration},
	StateReportGenerated:    {StateReportParsed, StateFailedMalformedReport},
	StateReportParsed:       {StateSubclaimsExtracted},
	StateSubclaimsExtracted: {StateEvidenceAttached},
	StateEvidenceAttached:   {StateMetadataEnriched},
	StateMetadataEnriched:   {StateLogged, StateFailedLogging},
}

// IsTerminal reports whether no further transition is possible
func (s State) IsTerminal() bool {
	_, ok := transitions[s]
	return !ok
}

// IsFailure reports whether the state is a terminal failure
func (s State) IsFailure() bool {
	switch s {
	case StateFailedInvalidInput, StateFailedUnresolvableClaim, StateFailedRetrieval,
		StateFailedInsufficientEvidence, StateFailedGeneration, StateFailedMalformedReport,
		StateFailedLogging:
		return true
	default:
		return false
	}
}

func isAllowedTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// tracker records the trail of a single run
type tracker struct {
	current State
	trail   []State
}

// advance moves to the next state. A disallowed transition is a bug in the
// orchestrator, not a runtime condition.
func (t *tracker) advance(to State) {
	if !isAllowedTransition(t.current, to) {
		panic(fmt.Sprintf("pipeline: disallowed transition %q -> %q", t.current, to))
	}
	t.current = to
	t.trail = append(t.trail, to)
}
