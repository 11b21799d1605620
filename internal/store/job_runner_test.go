package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestJobRunner_RunOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewInMemoryStore()
	r := NewJobRunner(s, time.Second)
	r.now = func() time.Time { return base }

	var scored atomic.Int32
	r.RegisterHandler("score_session", func(ctx context.Context, payload string) error {
		scored.Add(1)
		return nil
	})
	r.RegisterHandler("send_closing_sms", func(ctx context.Context, payload string) error {
		return errors.New("twilio down")
	})

	okID, _ := s.EnqueueJob("score_session", base, `{}`, "")
	failID, _ := s.EnqueueJob("send_closing_sms", base, `{}`, "")
	orphanID, _ := s.EnqueueJob("unknown_kind", base, `{}`, "")

	if n := r.RunOnce(context.Background()); n != 3 {
		t.Fatalf("expected 3 claimed jobs, got %d", n)
	}
	if scored.Load() != 1 {
		t.Errorf("expected handler to run once, got %d", scored.Load())
	}
	if j, _ := s.GetJob(okID); j.Status != JobStatusDone {
		t.Errorf("expected done, got %s", j.Status)
	}
	j, _ := s.GetJob(failID)
	if j.Status != JobStatusQueued || j.Attempt != 1 {
		t.Errorf("expected retry scheduled, got %+v", j)
	}
	if !j.RunAt.Equal(base.Add(Backoff(0))) {
		t.Errorf("expected run at %v, got %v", base.Add(Backoff(0)), j.RunAt)
	}
	if j, _ := s.GetJob(orphanID); j.LastError == "" {
		t.Error("expected an error recorded for a job without handler")
	}
}

func TestJobRunner_GivesUpAfterMaxAttempts(t *testing.T) {
	s := NewInMemoryStore()
	r := NewJobRunner(s, time.Second)
	clock := base
	r.now = func() time.Time { return clock }
	r.RegisterHandler("send_closing_sms", func(ctx context.Context, payload string) error {
		return errors.New("invalid number")
	})
	id, _ := s.EnqueueJob("send_closing_sms", base, `{}`, "")

	for i := 0; i < DefaultMaxAttempts; i++ {
		r.RunOnce(context.Background())
		clock = clock.Add(time.Hour)
	}
	j, _ := s.GetJob(id)
	if j.Status != JobStatusFailed || j.Attempt != DefaultMaxAttempts {
		t.Errorf("expected permanently failed job, got %+v", j)
	}
}

func TestJobRunner_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewJobRunner(NewInMemoryStore(), 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after cancel")
	}
}

func TestBackoff(t *testing.T) {
	if Backoff(0) != 30*time.Second || Backoff(2) != 120*time.Second {
		t.Errorf("unexpected backoff %v, %v", Backoff(0), Backoff(2))
	}
}

func TestSetConcurrency(t *testing.T) {
	r := NewJobRunner(NewInMemoryStore(), 0)
	if r.pollInterval != DefaultPollInterval {
		t.Errorf("expected default poll interval, got %v", r.pollInterval)
	}
	r.SetConcurrency(0)
	if r.concurrency != DefaultConcurrency {
		t.Errorf("expected non-positive concurrency to be ignored, got %d", r.concurrency)
	}
	r.SetConcurrency(9)
	if r.concurrency != 9 {
		t.Errorf("expected concurrency 9, got %d", r.concurrency)
	}
}
