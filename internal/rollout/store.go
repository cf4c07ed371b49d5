package rollout

// #region imports
import (
	"database/sql"
	"fmt"
	"time"
)

// #endregion

// #region schema
const variantOutcomesSchema = `
CREATE TABLE IF NOT EXISTS variant_outcomes (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    variant         TEXT NOT NULL,
    elapsed_seconds REAL NOT NULL,
    success         INTEGER NOT NULL,
    confidence      REAL,
    recorded_at     TEXT NOT NULL
);
`

const variantOutcomesIndex = `
CREATE INDEX IF NOT EXISTS idx_variant_outcomes_recorded
ON variant_outcomes(recorded_at);
`

// recordedLayout is fixed-width so recorded_at sorts lexically.
const recordedLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #endregion

// #region store-struct
// OutcomeStore persists variant outcome samples in SQLite. Writers from
// in-flight requests and window reads may run concurrently.
type OutcomeStore struct {
	db *sql.DB
}

// NewOutcomeStore initializes the variant_outcomes table.
func NewOutcomeStore(db *sql.DB) (*OutcomeStore, error) {
	if _, err := db.Exec(variantOutcomesSchema); err != nil {
		return nil, fmt.Errorf("create variant_outcomes: %w", err)
	}
	if _, err := db.Exec(variantOutcomesIndex); err != nil {
		return nil, fmt.Errorf("index variant_outcomes: %w", err)
	}
	return &OutcomeStore{db: db}, nil
}

// #endregion

// #region record-outcome
// RecordOutcome persists one sample. A zero RecordedAt is stamped now.
func (s *OutcomeStore) RecordOutcome(sample Sample) error {
	if sample.Variant != VariantBaseline && sample.Variant != VariantCandidate {
		return fmt.Errorf("record outcome: unknown variant %q", sample.Variant)
	}
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now()
	}
	success := 0
	if sample.Success {
		success = 1
	}
	var confidence interface{}
	if sample.Confidence != nil {
		confidence = *sample.Confidence
	}

	_, err := s.db.Exec(`
		INSERT INTO variant_outcomes (variant, elapsed_seconds, success, confidence, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(sample.Variant),
		sample.ElapsedSeconds,
		success,
		confidence,
		sample.RecordedAt.UTC().Format(recordedLayout),
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// #endregion

// #region window
// Since returns every sample recorded at or after since, oldest first.
func (s *OutcomeStore) Since(since time.Time) ([]Sample, error) {
	rows, err := s.db.Query(`
		SELECT variant, elapsed_seconds, success, confidence, recorded_at
		FROM variant_outcomes
		WHERE recorded_at >= ?
		ORDER BY recorded_at, id`,
		since.UTC().Format(recordedLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			variant     string
			elapsed     float64
			success     int
			confidence  sql.NullFloat64
			recordedStr string
		)
		if err := rows.Scan(&variant, &elapsed, &success, &confidence, &recordedStr); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		recordedAt, err := time.Parse(recordedLayout, recordedStr)
		if err != nil {
			continue
		}
		smp := Sample{
			Variant:        Variant(variant),
			ElapsedSeconds: elapsed,
			Success:        success == 1,
			RecordedAt:     recordedAt,
		}
		if confidence.Valid {
			c := confidence.Float64
			smp.Confidence = &c
		}
		out = append(out, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return out, nil
}

// #endregion
