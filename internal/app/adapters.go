package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shpitdev/appointment-contact-resolver/internal/contact"
	"github.com/shpitdev/appointment-contact-resolver/internal/pipeline"
	"github.com/shpitdev/appointment-contact-resolver/internal/store"
	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/core"
)

var (
	_ core.InputAdapter[contact.AppointmentRecord] = CSVInput{}
	_ core.OutputAdapter[pipeline.Row]             = CSVOutput{}
	_ core.OutputAdapter[pipeline.Row]             = StoreOutput{}
)

// CSVInput loads appointments from a local CSV file.
type CSVInput struct {
	Path string
}

func (in CSVInput) Load(_ context.Context) ([]contact.AppointmentRecord, error) {
	f, err := os.Open(in.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return pipeline.ReadAppointmentsCSV(f)
}

// CSVOutput writes rows to a local CSV file. The file is replaced atomically.
type CSVOutput struct {
	Path string
}

func (out CSVOutput) Store(_ context.Context, rows []pipeline.Row) error {
	dir := filepath.Dir(out.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(out.Path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if err := pipeline.WriteCSV(tmp, rows); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), out.Path)
}

// StoreOutput saves rows to the SQLite store for later incremental runs.
type StoreOutput struct {
	DB *store.Store
}

func (out StoreOutput) Store(ctx context.Context, rows []pipeline.Row) error {
	if out.DB == nil {
		return fmt.Errorf("store output: nil store")
	}
	_, err := out.DB.SaveRows(ctx, rows)
	return err
}
