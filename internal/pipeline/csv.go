package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shpitdev/appointment-contact-resolver/internal/contact"
	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/io/local"
)

// Input columns for appointment CSVs. Only title is required.
const (
	ColID        = "id"
	ColTitle     = "title"
	ColContactID = "contact_id"
	ColStartTime = "start_time"
	ColEmail     = "email"
	ColPhone     = "phone"
)

// ReadAppointmentsCSV reads appointment records from a headered CSV.
// start_time must be RFC3339 or empty.
func ReadAppointmentsCSV(r io.Reader) ([]contact.AppointmentRecord, error) {
	recs, err := local.ReadRecordsCSV(r, ColTitle)
	if err != nil {
		return nil, err
	}
	out := make([]contact.AppointmentRecord, 0, len(recs))
	for i, rec := range recs {
		appt := contact.AppointmentRecord{
			ID:                 strings.TrimSpace(rec.Get(ColID)),
			Title:              rec.Get(ColTitle),
			ContactReferenceID: strings.TrimSpace(rec.Get(ColContactID)),
			Email:              strings.TrimSpace(rec.Get(ColEmail)),
			Phone:              strings.TrimSpace(rec.Get(ColPhone)),
		}
		if raw := strings.TrimSpace(rec.Get(ColStartTime)); raw != "" {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				// Row numbers are 1-based and count the header.
				return nil, fmt.Errorf("row %d: invalid %s %q: %w", i+2, ColStartTime, raw, err)
			}
			appt.StartTime = ts
		}
		out = append(out, appt)
	}
	return out, nil
}

// WriteCSV writes rows as a CSV with the stable Header() ordering.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.fields()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (r Row) fields() []string {
	return []string{
		r.AppointmentID,
		r.Title,
		r.ContactReferenceID,
		r.StartTime,
		r.DisplayName,
		r.Email,
		r.Phone,
		r.Source,
		r.ReviewVerdict,
		r.ReviewConfidence,
	}
}

// ReadCSV reads rows from a CSV using the stable Header() contract.
//
// Extra columns are ignored. Required columns from Header() must exist.
func ReadCSV(r io.Reader) ([]Row, error) {
	recs, err := local.ReadRecordsCSV(r, Header()...)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, Row{
			AppointmentID:      rec.Get("appointment_id"),
			Title:              rec.Get("title"),
			ContactReferenceID: rec.Get("contact_reference_id"),
			StartTime:          rec.Get("start_time"),
			DisplayName:        rec.Get("display_name"),
			Email:              rec.Get("email"),
			Phone:              rec.Get("phone"),
			Source:             rec.Get("source"),
			ReviewVerdict:      rec.Get("review_verdict"),
			ReviewConfidence:   rec.Get("review_confidence"),
		})
	}
	return rows, nil
}
