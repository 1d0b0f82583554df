package resilience

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func newGroup(maxFailures int) *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: maxFailures, ResetTimeout: time.Hour},
	})
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestFallbackGroup_Execute(t *testing.T) {
	tests := []struct {
		name    string
		failing []string
		want    string
		wantErr error
	}{
		{name: "primary succeeds", want: "primary"},
		{name: "fails over", failing: []string{"primary"}, want: "secondary"},
		{name: "all fail", failing: []string{"primary", "secondary"}, wantErr: ErrAllFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fg := newGroup(3)
			var called string
			err := fg.Execute(func(v string) error {
				if slices.Contains(tt.failing, v) {
					return errTest
				}
				called = v
				return nil
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want %v wrapping errTest", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if called != tt.want {
				t.Errorf("called = %q, want %q", called, tt.want)
			}
		})
	}
}

func TestFallbackGroup_SkipsOpenProvider(t *testing.T) {
	fg := newGroup(2)
	for range 2 {
		_ = fg.Execute(func(v string) error {
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}

	var calls []string
	if err := fg.Execute(func(v string) error {
		calls = append(calls, v)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(calls, []string{"secondary"}) {
		t.Errorf("calls = %v, want only secondary", calls)
	}
	if st := fg.States(); st["primary"] != StateOpen || st["secondary"] != StateClosed {
		t.Errorf("States() = %v", st)
	}
}

func TestFallbackGroup_Available(t *testing.T) {
	fg := newGroup(1)
	if err := fg.Available(); err != nil {
		t.Fatalf("fresh group: %v", err)
	}
	_ = fg.Execute(func(string) error { return errTest })
	err := fg.Available()
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("Available() = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	if got := newGroup(1).Names(); !slices.Equal(got, []string{"primary", "secondary"}) {
		t.Errorf("Names() = %v", got)
	}
}

func TestExecuteWithResult(t *testing.T) {
	fg := NewFallbackGroup(1, "one", FallbackConfig{})
	fg.AddFallback("two", 2)

	got, err := ExecuteWithResult(fg, func(v int) (int, error) {
		if v == 1 {
			return 0, errTest
		}
		return v * 10, nil
	})
	if err != nil || got != 20 {
		t.Errorf("got %d, %v; want 20, nil", got, err)
	}

	got, err = ExecuteWithResult(fg, func(int) (int, error) { return 7, errTest })
	if !errors.Is(err, ErrAllFailed) || got != 0 {
		t.Errorf("got %d, %v; want zero value and ErrAllFailed", got, err)
	}
}
