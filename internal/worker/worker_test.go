package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

type fakeEventWriter struct {
	batchErr error
	rowErr   map[int]error // by sequence
	inserted []int
}

func (f *fakeEventWriter) InsertBatch(_ context.Context, events []model.SecurityEvent) (int64, error) {
	if f.batchErr != nil {
		return 0, f.batchErr
	}
	for _, e := range events {
		f.inserted = append(f.inserted, e.Sequence)
	}
	return int64(len(events)), nil
}

func (f *fakeEventWriter) Insert(_ context.Context, e *model.SecurityEvent) error {
	if err := f.rowErr[e.Sequence]; err != nil {
		return err
	}
	f.inserted = append(f.inserted, e.Sequence)
	return nil
}

func events(seqs ...int) []model.SecurityEvent {
	id := uuid.New()
	out := make([]model.SecurityEvent, len(seqs))
	for i, s := range seqs {
		out[i] = model.SecurityEvent{ID: uuid.New(), AttemptID: id, Sequence: s, Type: model.EventTabSwitch}
	}
	return out
}

func TestSecurityEventWorkerPersist(t *testing.T) {
	t.Run("bulk insert succeeds", func(t *testing.T) {
		repo := &fakeEventWriter{}
		w := NewSecurityEventWorker(repo, nil, zerolog.Nop())

		retry := w.persist(context.Background(), events(1, 2, 3))
		if len(retry) != 0 {
			t.Fatalf("expected no retries, got %d", len(retry))
		}
		if len(repo.inserted) != 3 {
			t.Fatalf("expected 3 inserted, got %v", repo.inserted)
		}
	})

	t.Run("fallback drops data errors and retries the rest", func(t *testing.T) {
		repo := &fakeEventWriter{
			batchErr: errors.New("copy failed"),
			rowErr: map[int]error{
				2: &pgconn.PgError{Code: "23503"},
				3: errors.New("connection reset"),
			},
		}
		w := NewSecurityEventWorker(repo, nil, zerolog.Nop())

		retry := w.persist(context.Background(), events(1, 2, 3))
		if len(retry) != 1 || retry[0].Sequence != 3 {
			t.Fatalf("expected only sequence 3 to be retried, got %+v", retry)
		}
		if len(repo.inserted) != 1 || repo.inserted[0] != 1 {
			t.Fatalf("expected only sequence 1 inserted, got %v", repo.inserted)
		}
	})
}

type fakeHeartbeatWriter struct {
	err   error
	calls int
}

func (f *fakeHeartbeatWriter) TouchBatch(_ context.Context, beats []repository.Heartbeat) (int64, error) {
	f.calls++
	return int64(len(beats)), f.err
}

func TestHeartbeatWorkerPersist(t *testing.T) {
	beats := []repository.Heartbeat{{AttemptID: uuid.New(), SeenAt: time.Now()}}

	ok := &fakeHeartbeatWriter{}
	if retry := NewHeartbeatWorker(ok, nil, zerolog.Nop()).persist(context.Background(), beats); retry != nil {
		t.Fatalf("expected no retry, got %v", retry)
	}

	failing := &fakeHeartbeatWriter{err: errors.New("db down")}
	if retry := NewHeartbeatWorker(failing, nil, zerolog.Nop()).persist(context.Background(), beats); len(retry) != 1 {
		t.Fatalf("expected whole batch retried, got %v", retry)
	}
}

type fakeSweeper struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSweeper) SweepExpiredAttempts(context.Context, time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 2, nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held bool
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, false
	}
	l.held = true
	return func() {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
	}, true
}

func TestSweepWorkerRunOnce(t *testing.T) {
	sweeper := &fakeSweeper{}
	locker := &fakeLocker{}
	w := NewSweepWorker(sweeper, locker, time.Second, zerolog.Nop())

	if n := w.RunOnce(context.Background()); n != 2 {
		t.Fatalf("expected 2 finalized, got %d", n)
	}
	if locker.held {
		t.Fatal("lock was not released")
	}

	locker.held = true
	if n := w.RunOnce(context.Background()); n != 0 {
		t.Fatalf("expected skip while locked, got %d", n)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected 1 sweep call, got %d", sweeper.calls)
	}
}
