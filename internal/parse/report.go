package parse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ppiankov/scitrue/internal/model"
)

var validate = validator.New()

// ParseReport recovers the report object from raw generator text and checks
// its required fields. Any failure is a *MalformedOutputError.
func ParseReport(raw string) (*model.Report, error) {
	payload, err := recoverValue(raw, '{')
	if err != nil {
		return nil, &MalformedOutputError{Stage: StageReport, Raw: raw, Err: err}
	}

	var report model.Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, &MalformedOutputError{Stage: StageReport, Raw: raw, Err: fmt.Errorf("decode report: %w", err)}
	}

	report.ExecutiveSummary = strings.TrimSpace(report.ExecutiveSummary)
	if err := validate.Struct(report); err != nil {
		return nil, &MalformedOutputError{Stage: StageReport, Raw: raw, Err: fmt.Errorf("invalid report: %w", err)}
	}

	return &report, nil
}

// ParseSubclaims recovers the subclaim list. A single object or an object
// wrapping a "subclaims" list is accepted. Entries without claim text are
// dropped; the rest keep generator order.
func ParseSubclaims(raw string) ([]model.SubClaim, error) {
	payload, err := RecoverJSON(raw)
	if err != nil {
		return nil, &MalformedOutputError{Stage: StageSubclaims, Raw: raw, Err: err}
	}

	var items []model.SubClaim
	switch payload[0] {
	case '[':
		err = json.Unmarshal([]byte(payload), &items)
	default:
		var wrapper struct {
			Subclaims []model.SubClaim `json:"subclaims"`
		}
		if err = json.Unmarshal([]byte(payload), &wrapper); err == nil && wrapper.Subclaims != nil {
			items = wrapper.Subclaims
			break
		}
		var single model.SubClaim
		if err = json.Unmarshal([]byte(payload), &single); err == nil {
			items = []model.SubClaim{single}
		}
	}
	if err != nil {
		return nil, &MalformedOutputError{Stage: StageSubclaims, Raw: raw, Err: fmt.Errorf("decode subclaims: %w", err)}
	}

	out := make([]model.SubClaim, 0, len(items))
	for _, item := range items {
		item.Claim = strings.TrimSpace(item.Claim)
		if validate.Struct(item) != nil {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// Refinement is the refiner's JSON answer
type Refinement struct {
	OriginalQuery string `json:"original_query"`
	RevisedQuery  string `json:"revised_query"`
}

// ParseRefinement recovers the refiner's answer. "None" (any case) comes back
// as an empty revised query.
func ParseRefinement(raw string) (*Refinement, error) {
	payload, err := recoverValue(raw, '{')
	if err != nil {
		return nil, &MalformedOutputError{Stage: StageRefine, Raw: raw, Err: err}
	}

	var r Refinement
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, &MalformedOutputError{Stage: StageRefine, Raw: raw, Err: fmt.Errorf("decode refinement: %w", err)}
	}

	r.RevisedQuery = strings.TrimSpace(r.RevisedQuery)
	if strings.EqualFold(r.RevisedQuery, "none") {
		r.RevisedQuery = ""
	}
	return &r, nil
}
