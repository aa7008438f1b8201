package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridian/cutover/internal/event"
)

// AppendConflictError reports a duplicate event submission: the supplied
// sequence id has already been used. Callers must not retry with the same
// id.
type AppendConflictError struct {
	Seq int64
}

// Error implements the error interface.
func (e *AppendConflictError) Error() string {
	return fmt.Sprintf("append conflict: sequence id %d already used", e.Seq)
}

// IsConflict reports whether err is an AppendConflictError.
// Uses errors.As to handle wrapped errors.
func IsConflict(err error) bool {
	var ce *AppendConflictError
	return errors.As(err, &ce)
}

// Append writes one event record and returns its sequence id.
//
// When rec.Seq is zero the store assigns the next id from its clock.
// Reservation and insertion happen under one lock, so published sequence
// ids are contiguous: a record is never visible to readers while a lower
// reserved id is still unwritten, and a tail resuming from the highest
// seq it has seen never skips an event.
//
// When rec.Seq is non-zero the caller is re-submitting a record with a
// known id - typically an importer or recovery path. If that id is already
// published, Append returns AppendConflictError.
//
// The record's timestamp is stamped at append time if unset.
func (s *Store) Append(ctx context.Context, rec event.Record) (int64, error) {
	if !rec.Kind.Valid() {
		return 0, fmt.Errorf("append: unknown event kind %q", rec.Kind)
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	seq := rec.Seq
	if seq == 0 {
		seq = s.clock.next()
	} else {
		s.clock.advancePast(seq)
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	// ON CONFLICT DO NOTHING distinguishes a duplicate seq (rows affected
	// 0) from real write failures, without parsing driver error strings.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (seq, ts, kind, feature, transaction_id, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		seq,
		ts.Format(time.RFC3339Nano),
		string(rec.Kind),
		rec.Feature,
		rec.TransactionID,
		rec.Payload,
	)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("append event: rows affected: %w", err)
	}
	if affected == 0 {
		return 0, &AppendConflictError{Seq: seq}
	}

	return seq, nil
}
