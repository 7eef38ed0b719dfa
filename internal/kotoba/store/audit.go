package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bdobrica/Kotoba/internal/kotoba/ops"
)

var _ ops.Recorder = (*Store)(nil)

// RecordCall appends one executed operation to the audit trail.
func (s *Store) RecordCall(ctx context.Context, rec ops.CallRecord) error {
	var argsJSON sql.NullString
	if len(rec.Args) > 0 {
		b, err := json.Marshal(rec.Args)
		if err != nil {
			return fmt.Errorf("failed to marshal audit args: %w", err)
		}
		argsJSON = sql.NullString{String: string(b), Valid: true}
	}
	var msg sql.NullString
	if rec.Message != "" {
		msg = sql.NullString{String: rec.Message, Valid: true}
	}
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operation_audit (ts, trace_id, operation, user_id, args_json, outcome, message, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, at.UTC(), rec.TraceID, rec.Operation, rec.UserID, argsJSON, rec.Outcome, msg, rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// RecentCalls returns up to limit audit records, newest first.
func (s *Store) RecentCalls(ctx context.Context, limit int) ([]ops.CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, trace_id, operation, user_id, args_json, outcome, message, duration_ms
		FROM operation_audit
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []ops.CallRecord
	for rows.Next() {
		var (
			rec      ops.CallRecord
			argsJSON sql.NullString
			msg      sql.NullString
			ms       int64
		)
		if err := rows.Scan(&rec.At, &rec.TraceID, &rec.Operation, &rec.UserID, &argsJSON, &rec.Outcome, &msg, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		if argsJSON.Valid {
			if err := json.Unmarshal([]byte(argsJSON.String), &rec.Args); err != nil {
				return nil, fmt.Errorf("failed to decode audit args: %w", err)
			}
		}
		rec.Message = msg.String
		rec.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountCalls returns the number of audit records with the given outcome, or
// all records when outcome is empty.
func (s *Store) CountCalls(ctx context.Context, outcome string) (int, error) {
	var n int
	var err error
	if outcome == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM operation_audit").Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM operation_audit WHERE outcome = ?", outcome).Scan(&n)
	}
	return n, err
}
