// Package history reads recorded loan predictions back out of Postgres and
// the search index.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "loan-eligibility/internal/common/errors"
	"loan-eligibility/internal/models"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

const selectRecords = `
	SELECT id, applicant, probability, interpretation,
	       model_variant, schema_version, advice, created_at
	FROM loan_predictions`

// Filter narrows a List. Zero values match everything.
type Filter struct {
	ModelVariant   string
	Interpretation string
	Limit          int
	Offset         int
}

// normalized clamps Limit to [1, MaxLimit] and Offset to >= 0.
func (f Filter) normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Store reads the loan_predictions table written by the record worker.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns one record. Ids that are not UUIDs cannot exist and are
// reported as not found without a round trip.
func (s *Store) Get(ctx context.Context, id string) (*models.PredictionRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NewRecordNotFoundError(id)
	}

	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectRecords+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewRecordNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	return &rec, nil
}

// List returns the newest records first.
func (s *Store) List(ctx context.Context, filter Filter) ([]models.PredictionRecord, error) {
	f := filter.normalized()

	var (
		where []string
		args  []interface{}
	)
	if f.ModelVariant != "" {
		args = append(args, f.ModelVariant)
		where = append(where, fmt.Sprintf("model_variant = $%d", len(args)))
	}
	if f.Interpretation != "" {
		args = append(args, f.Interpretation)
		where = append(where, fmt.Sprintf("interpretation = $%d", len(args)))
	}

	query := selectRecords
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	defer rows.Close()

	records := []models.PredictionRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseQueryFailedError(err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError(err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (models.PredictionRecord, error) {
	var (
		rec       models.PredictionRecord
		applicant []byte
		advice    []byte
		createdAt time.Time
	)
	if err := row.Scan(
		&rec.ID, &applicant, &rec.Probability, &rec.Interpretation,
		&rec.ModelVariant, &rec.SchemaVersion, &advice, &createdAt,
	); err != nil {
		return rec, err
	}
	if err := json.Unmarshal(applicant, &rec.Applicant); err != nil {
		return rec, fmt.Errorf("decode applicant of %s: %w", rec.ID, err)
	}
	if len(advice) > 0 {
		if err := json.Unmarshal(advice, &rec.Advice); err != nil {
			return rec, fmt.Errorf("decode advice of %s: %w", rec.ID, err)
		}
	}
	rec.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	return rec, nil
}
