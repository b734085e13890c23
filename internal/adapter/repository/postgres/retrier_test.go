package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func fastPolicy(maxRetries uint64) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		FirstDelay: time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
		Deadline:   time.Second,
	}
}

func newRetryCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "tx_retries_total"}, []string{"reason"})
}

func TestRetrier_RerunsLockConflicts(t *testing.T) {
	retries := newRetryCounter()
	r := NewRetrierWithPolicy(fastPolicy(3), retries, zerolog.Nop())

	conflicts := []error{
		&pgconn.PgError{Code: codeDeadlockDetected},
		fmt.Errorf("lock stock M1: %w", &pgconn.PgError{Code: codeSerializationFailure}),
	}
	attempts := 0
	err := r.Retry(context.Background(), func() error {
		attempts++
		if attempts <= len(conflicts) {
			return conflicts[attempts-1]
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected the third attempt to succeed, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if got := testutil.ToFloat64(retries.WithLabelValues("deadlock")); got != 1 {
		t.Fatalf("expected one deadlock retry, got %v", got)
	}
	if got := testutil.ToFloat64(retries.WithLabelValues("serialization_failure")); got != 1 {
		t.Fatalf("expected one serialization retry, got %v", got)
	}
}

func TestRetrier_ReturnsOtherErrorsImmediately(t *testing.T) {
	r := NewRetrier(nil, zerolog.Nop())

	tests := []struct {
		name string
		err  error
	}{
		{"plain error", errors.New("insufficient stock")},
		{"duplicate key", &pgconn.PgError{Code: codeUniqueViolation}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := r.Retry(context.Background(), func() error {
				attempts++
				return tt.err
			})

			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			if attempts != 1 {
				t.Fatalf("expected 1 attempt, got %d", attempts)
			}
		})
	}
}

func TestRetrier_GivesUpAfterMaxRetries(t *testing.T) {
	r := NewRetrierWithPolicy(fastPolicy(2), nil, zerolog.Nop())

	attempts := 0
	err := r.Retry(context.Background(), func() error {
		attempts++
		return &pgconn.PgError{Code: codeSerializationFailure}
	})

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeSerializationFailure {
		t.Fatalf("expected the last serialization failure, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetrier_StopsWhenContextIsCancelled(t *testing.T) {
	r := NewRetrierWithPolicy(fastPolicy(10), nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := r.Retry(ctx, func() error {
		attempts++
		cancel()
		return &pgconn.PgError{Code: codeDeadlockDetected}
	})

	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if attempts != 1 {
		t.Fatalf("expected no attempt after cancellation, got %d", attempts)
	}
}

func TestConflictReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&pgconn.PgError{Code: codeDeadlockDetected}, "deadlock"},
		{fmt.Errorf("post: %w", &pgconn.PgError{Code: codeSerializationFailure}), "serialization_failure"},
		{&pgconn.PgError{Code: codeUniqueViolation}, ""},
		{errors.New("other"), ""},
		{nil, ""},
	}

	for _, tt := range tests {
		if got := conflictReason(tt.err); got != tt.want {
			t.Fatalf("conflictReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"any constraint", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "journal_entries_journal_no_key"}, "", true},
		{"matching constraint", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "open_items_kind_source_id_key"}, "open_items_kind_source_id_key", true},
		{"other constraint", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "journal_entries_event_id_key"}, "open_items_kind_source_id_key", false},
		{"other code", &pgconn.PgError{Code: codeDeadlockDetected}, "", false},
		{"nil", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err, tt.constraint); got != tt.want {
				t.Fatalf("isUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}
