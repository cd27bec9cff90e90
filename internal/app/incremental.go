package app

import (
	"fmt"
	"strings"

	"github.com/shpitdev/appointment-contact-resolver/internal/contact"
	"github.com/shpitdev/appointment-contact-resolver/internal/pipeline"
)

type incrementalPlan struct {
	rows       []pipeline.Row
	pending    []contact.AppointmentRecord
	pendingIdx []int
	cachedRows int
}

// buildIncrementalPlan reuses a previous row only when it came from the identity
// store for the same contact reference. Heuristic rows are always resolved again
// so a contact that appears in the store later is picked up.
func buildIncrementalPlan(records []contact.AppointmentRecord, previous map[string]pipeline.Row) incrementalPlan {
	plan := incrementalPlan{rows: make([]pipeline.Row, len(records))}
	for i, rec := range records {
		id := strings.TrimSpace(rec.ID)
		if prev, ok := previous[id]; ok && id != "" &&
			prev.Source == string(contact.SourceAPI) &&
			strings.TrimSpace(prev.ContactReferenceID) == strings.TrimSpace(rec.ContactReferenceID) {
			cached := pipeline.RowFor(rec, contact.ResolvedContact{})
			cached.DisplayName = prev.DisplayName
			cached.Email = prev.Email
			cached.Phone = prev.Phone
			cached.Source = prev.Source
			plan.rows[i] = cached
			plan.cachedRows++
			continue
		}
		plan.pending = append(plan.pending, rec)
		plan.pendingIdx = append(plan.pendingIdx, i)
	}
	return plan
}

func (p *incrementalPlan) applyResolvedRows(rows []pipeline.Row) error {
	if len(rows) != len(p.pending) {
		return fmt.Errorf("incremental resolution mismatch: got %d rows for %d pending appointments", len(rows), len(p.pending))
	}
	for i, row := range rows {
		p.rows[p.pendingIdx[i]] = row
	}
	return nil
}
