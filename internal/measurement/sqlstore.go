package measurement

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
)

//go:embed sql/select-last-measurement.sql
var selectLastMeasurementSQL string

//go:embed sql/upsert-last-measurement.sql
var upsertLastMeasurementSQL string

// SQLStore keeps the record in a single-row table created by the
// migrations in internal/db/migrate. The image column is authoritative; the
// other columns are there for humans poking at the database.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Load(ctx context.Context) (Record, error) {
	var image []byte
	err := s.db.QueryRowContext(ctx, selectLastMeasurementSQL).Scan(&image)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		slog.Warn("no stored measurement row, writing default")
		return Record{}, s.Save(ctx, Record{})
	case err != nil:
		return Record{}, fmt.Errorf("select last_measurement: %w", err)
	}

	var r Record
	if err := r.UnmarshalBinary(image); err != nil {
		slog.Warn("stored measurement row unreadable, writing default", "error", err)
		return Record{}, s.Save(ctx, Record{})
	}
	return r, nil
}

func (s *SQLStore) Save(ctx context.Context, r Record) error {
	image, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, upsertLastMeasurementSQL, image, r.Weight, r.BodyFat, r.Impedance, r.Timestamp)
	if err != nil {
		return fmt.Errorf("upsert last_measurement: %w", err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	var ok int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		return err
	}
	if ok != 1 {
		return errors.New("database connection failed")
	}
	return nil
}
