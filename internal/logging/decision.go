package logging

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// #region log-decision
// createdLayout is fixed-width so created_at sorts lexically.
const createdLayout = "2006-01-02T15:04:05.000000000Z07:00"

// LogDecision writes an entry to the decision_log table.
func LogDecision(db *sql.DB, entry DecisionEntry) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO decision_log (entry_id, kind, subject, action, detail_json, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.EntryID,
		string(entry.Kind),
		entry.Subject,
		entry.Action,
		nullIfEmpty(entry.DetailJSON),
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.UTC().Format(createdLayout),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region recent
// RecentDecisions returns up to limit entries, newest first.
func RecentDecisions(db *sql.DB, limit int) ([]DecisionEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT entry_id, kind, subject, action, detail_json, reason, created_at
		 FROM decision_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionEntry
	for rows.Next() {
		var (
			e              DecisionEntry
			kind           string
			detail, reason sql.NullString
			createdStr     string
		)
		if err := rows.Scan(&e.EntryID, &kind, &e.Subject, &e.Action, &detail, &reason, &createdStr); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.Kind = Kind(kind)
		e.DetailJSON = detail.String
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(createdLayout, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion recent

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
