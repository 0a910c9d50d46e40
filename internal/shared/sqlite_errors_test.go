package shared

import (
	"context"
	"errors"
	"testing"
)

func TestIsSQLiteConflictError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("SQLITE_BUSY: database busy"), true},
		{errors.New("database is locked (5)"), true},
		{errors.New("no such table"), false},
	}
	for _, tc := range cases {
		if got := IsSQLiteConflictError(tc.err); got != tc.want {
			t.Errorf("IsSQLiteConflictError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestRetryOnConflict(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), "test", func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestRetryOnConflictGivesUp(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), "test", func() error {
		calls++
		return errors.New("SQLITE_BUSY")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != conflictRetries {
		t.Fatalf("calls = %d, want %d", calls, conflictRetries)
	}
}

func TestRetryOnConflictOtherError(t *testing.T) {
	calls := 0
	want := errors.New("constraint failed")
	err := RetryOnConflict(context.Background(), "test", func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) || calls != 1 {
		t.Fatalf("err = %v calls = %d", err, calls)
	}
}
