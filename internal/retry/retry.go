// Package retry classifies write contention and reruns transactional work
// that lost a race.
package retry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	baseBackoff = 5 * time.Millisecond
	maxBackoff  = 200 * time.Millisecond
	maxElapsed  = 5 * time.Second
)

// IsConflict reports whether err is transient write contention: a Postgres
// serialization failure, deadlock or lock timeout, or a busy SQLite database.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "sqlite_busy"),
		strings.Contains(msg, "database table is locked"),
		strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "could not serialize"):
		return true
	default:
		return false
	}
}

// Do runs fn up to attempts times, retrying only while IsConflict holds. Waits
// between attempts grow exponentially from baseBackoff and stop early when ctx
// is done. The last error is returned.
func Do(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = baseBackoff
	policy.MaxInterval = maxBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn()
		if err != nil && !IsConflict(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(maxElapsed),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	return err
}
