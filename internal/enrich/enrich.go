package enrich

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/scitrue/internal/journal"
	"github.com/ppiankov/scitrue/internal/model"
)

// Enricher attaches journal metrics to subclaims
type Enricher struct {
	lookup journal.Lookup
	logger *zap.Logger
}

// NewEnricher creates an enricher backed by lookup
func NewEnricher(lookup journal.Lookup, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{lookup: lookup, logger: logger}
}

// VenueNames returns the journal and venue names used for lookup: "&" becomes
// "and", and a blank name falls back to the other
func VenueNames(sc model.SubClaim) (journalName, venueName string) {
	journalName = strings.TrimSpace(strings.ReplaceAll(sc.JournalTitle, "&", "and"))
	venueName = strings.TrimSpace(strings.ReplaceAll(sc.Venue, "&", "and"))
	switch {
	case journalName == "":
		journalName = venueName
	case venueName == "":
		venueName = journalName
	}
	return journalName, venueName
}

// Enrich returns a copy of subclaims with metrics attached where a non-empty
// journal or venue name resolves. Lookups run one at a time; misses and
// lookup failures leave the subclaim without metrics and never fail the call.
func (e *Enricher) Enrich(ctx context.Context, subclaims []model.SubClaim) []model.SubClaim {
	out := make([]model.SubClaim, len(subclaims))
	copy(out, subclaims)

	for i := range out {
		if out[i].Metrics != nil {
			continue
		}
		name, _ := VenueNames(out[i])
		if name == "" {
			continue
		}
		if e.lookup == nil {
			continue
		}

		metrics, err := e.lookup.Lookup(ctx, name)
		switch {
		case errors.Is(err, journal.ErrNotFound):
			e.logger.Warn("no journal metrics found", zap.String("journal", name))
			continue
		case err != nil:
			e.logger.Warn("journal metrics lookup failed", zap.String("journal", name), zap.Error(err))
			continue
		case metrics == nil:
			continue
		}

		m := *metrics
		if m.Definitions == "" {
			m.Definitions = model.MetricsDefinitionsURL
		}
		out[i].Metrics = &m
	}
	return out
}
