package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/shpitdev/appointment-contact-resolver/internal/contact"
	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/worker"
)

// Row is the stable output schema contract.
type Row struct {
	AppointmentID      string
	Title              string
	ContactReferenceID string
	StartTime          string
	DisplayName        string
	Email              string
	Phone              string
	Source             string

	ReviewVerdict    string
	ReviewConfidence string
}

// Resolver resolves one appointment. *contact.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, rec contact.AppointmentRecord) contact.ResolvedContact
}

type Options struct {
	Workers int

	// ItemTimeout bounds one resolution, lookup included.
	ItemTimeout time.Duration

	// FailFast makes ReviewRows return the first review error instead of logging it.
	FailFast bool
}

func (o Options) worker() worker.Options {
	return worker.Options{
		Workers:       o.Workers,
		ItemTimeout:   o.ItemTimeout,
		FailurePolicy: worker.FailurePolicyFailFast,
	}
}

// Header returns the stable CSV header for Row.
func Header() []string {
	return []string{
		"appointment_id",
		"title",
		"contact_reference_id",
		"start_time",
		"display_name",
		"email",
		"phone",
		"source",
		"review_verdict",
		"review_confidence",
	}
}

// RowFor builds the output row for one resolved appointment.
func RowFor(rec contact.AppointmentRecord, rc contact.ResolvedContact) Row {
	row := Row{
		AppointmentID:      strings.TrimSpace(rec.ID),
		Title:              rec.Title,
		ContactReferenceID: strings.TrimSpace(rec.ContactReferenceID),
		DisplayName:        rc.DisplayName(),
		Source:             string(rc.Source()),
	}
	if !rec.StartTime.IsZero() {
		row.StartTime = rec.StartTime.UTC().Format(time.RFC3339)
	}
	if v, ok := rc.Email(); ok {
		row.Email = v
	}
	if v, ok := rc.Phone(); ok {
		row.Phone = v
	}
	return row
}

// ResolveAppointments resolves every record concurrently. Rows keep input order.
//
// Resolution itself cannot fail; an error means ctx ended before all rows were produced.
func ResolveAppointments(ctx context.Context, records []contact.AppointmentRecord, r Resolver, opts Options) ([]Row, error) {
	out, err := worker.ProcessAll(ctx, records, resolveFunc(r), opts.worker())
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(out))
	for _, item := range out {
		rows = append(rows, item.Output)
	}
	return rows, nil
}

// ResolveAppointmentsStream resolves every record concurrently and hands rows to
// onRow in completion order. An onRow error stops the run and is returned.
func ResolveAppointmentsStream(ctx context.Context, records []contact.AppointmentRecord, r Resolver, opts Options, onRow func(Row) error) error {
	_, err := worker.ProcessAllWithCallback(ctx, records, resolveFunc(r), func(res worker.Result[contact.AppointmentRecord, Row]) error {
		if onRow == nil {
			return nil
		}
		return onRow(res.Output)
	}, opts.worker())
	return err
}

func resolveFunc(r Resolver) func(context.Context, contact.AppointmentRecord) (Row, error) {
	return func(ctx context.Context, rec contact.AppointmentRecord) (Row, error) {
		var rc contact.ResolvedContact
		if r != nil {
			rc = r.Resolve(ctx, rec)
		} else {
			rc = contact.FromTitle(rec.Title)
		}
		return RowFor(rec, rc), nil
	}
}
