package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownTransfer is returned by Abort for an id that is not running.
var ErrUnknownTransfer = errors.New("session: unknown transfer")

// Transfer describes an upload in progress.
type Transfer struct {
	ID        string
	Path      string
	StartedAt time.Time
}

type transferEntry struct {
	Transfer
	cancel context.CancelFunc
}

type transfers struct {
	mu      sync.Mutex
	running map[string]*transferEntry
}

func newTransfers() *transfers {
	return &transfers{running: make(map[string]*transferEntry)}
}

// start registers an upload of path and returns the context it must run
// under. done must be called once the upload settles.
func (t *transfers) start(ctx context.Context, path string) (context.Context, Transfer, func()) {
	tctx, cancel := context.WithCancel(ctx)
	entry := &transferEntry{
		Transfer: Transfer{
			ID:        uuid.NewString(),
			Path:      path,
			StartedAt: time.Now(),
		},
		cancel: cancel,
	}
	t.mu.Lock()
	t.running[entry.ID] = entry
	t.mu.Unlock()

	done := func() {
		t.mu.Lock()
		delete(t.running, entry.ID)
		t.mu.Unlock()
		cancel()
	}
	return tctx, entry.Transfer, done
}

func (t *transfers) abort(id string) error {
	t.mu.Lock()
	entry, ok := t.running[id]
	t.mu.Unlock()
	if !ok {
		return ErrUnknownTransfer
	}
	entry.cancel()
	return nil
}

func (t *transfers) list() []Transfer {
	t.mu.Lock()
	out := make([]Transfer, 0, len(t.running))
	for _, e := range t.running {
		out = append(out, e.Transfer)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
