package llm

import (
	"context"
	"sync"
	"time"
)

type fakeResponse struct {
	text string
	err  error
}

// fakeBackend replays canned responses in order and records every request.
type fakeBackend struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     []Request
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Generate(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if len(f.responses) == 0 {
		return "", context.DeadlineExceeded
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	return r.text, r.err
}

// recordSleep returns a sleep func that records waits without blocking.
func recordSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}
