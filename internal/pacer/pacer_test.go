package pacer

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestInterval_FirstCallImmediate(t *testing.T) {
	p := NewInterval(time.Hour)
	start := time.Now()
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first Wait took %v, want immediate", elapsed)
	}
}

func TestInterval_SpacesStarts(t *testing.T) {
	const interval = 80 * time.Millisecond
	p := NewInterval(interval)
	ctx := context.Background()

	var starts []time.Time
	for range 3 {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		starts = append(starts, time.Now())
		p.Done()
	}
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		// Allow a little scheduler slack below the nominal interval.
		if gap < interval-10*time.Millisecond {
			t.Errorf("gap %d = %v, want >= %v", i, gap, interval)
		}
	}
}

// A call that outlasts the interval still gets the full quiet period after
// it ends.
func TestInterval_QuietPeriodAfterSlowCall(t *testing.T) {
	const interval = 60 * time.Millisecond
	p := NewInterval(interval)
	ctx := context.Background()

	var lastEnd time.Time
	for i := range 3 {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if i > 0 {
			if gap := time.Since(lastEnd); gap < interval-10*time.Millisecond {
				t.Errorf("gap before call %d = %v, want >= %v", i+1, gap, interval)
			}
		}
		time.Sleep(2 * interval)
		lastEnd = time.Now()
		p.Done()
	}
}

func TestInterval_DoneWithoutWait(t *testing.T) {
	p := NewInterval(time.Hour)
	p.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx); err == nil {
		t.Fatal("Wait right after Done should not fit in the deadline")
	}
}

func TestInterval_CancelledWhileWaiting(t *testing.T) {
	p := NewInterval(time.Hour)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx); err == nil {
		t.Fatal("expected error when the next slot is beyond the deadline")
	}
}

func TestInterval_ZeroDisables(t *testing.T) {
	p := NewInterval(0)
	start := time.Now()
	for range 5 {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("unpaced waits took %v", elapsed)
	}
	p.Done()
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error after Done: %v", err)
	}
	if p.Spacing() != 0 {
		t.Errorf("Spacing = %v, want 0", p.Spacing())
	}
}

func TestNone(t *testing.T) {
	None.Done()
	if err := None.Wait(context.Background()); err != nil {
		t.Errorf("None.Wait = %v, want nil", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := None.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("None.Wait on cancelled ctx = %v, want Canceled", err)
	}
}

func TestIntervalFactory_IndependentSchedules(t *testing.T) {
	f := IntervalFactory(time.Hour)
	a, b := f(), f()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := a.Wait(ctx); err != nil {
		t.Fatalf("a: %v", err)
	}
	if err := b.Wait(ctx); err != nil {
		t.Errorf("b should not share a's schedule: %v", err)
	}
}
