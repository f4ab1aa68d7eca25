// Package ablation implements the ablation execution engine: scoped
// collection ablation with guaranteed restore, the metrics truth table,
// the per-unit orchestration state machine, and round/combination planning.
package ablation

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/searchlab/ablate/internal/docstore"
	"github.com/searchlab/ablate/internal/model"
)

// ErrRestoreFailed means original collection contents could not be written
// back after ablation. Fatal at the batch level: the store is in a
// known-ablated state and every later measurement would be silently invalid.
var ErrRestoreFailed = eris.New("ablation: restore failed")

// Controller tracks which collections are currently ablated and owns the
// per-collection mutual exclusion that keeps overlapping combinations from
// running concurrently. Never a process-wide singleton: construct one per
// experiment and inject it.
type Controller struct {
	store docstore.Store

	mu      sync.Mutex
	cond    *sync.Cond
	held    map[string]bool
	ablated map[string]bool
}

// NewController creates a Controller over the given store with nothing
// ablated.
func NewController(store docstore.Store) *Controller {
	c := &Controller{
		store:   store,
		held:    make(map[string]bool),
		ablated: make(map[string]bool),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// IsAblated reports whether the named collection is currently ablated.
func (c *Controller) IsAblated(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ablated[name]
}

// State returns a snapshot of the ablation state map.
func (c *Controller) State() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]bool, len(c.ablated))
	for k, v := range c.ablated {
		out[k] = v
	}
	return out
}

// acquire blocks until no in-flight scope overlaps the combination, then
// takes ownership of every collection in it.
func (c *Controller) acquire(ctx context.Context, combination model.Combination) error {
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for c.anyHeldLocked(combination) {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "ablation: canceled while waiting for collection locks")
		}
		c.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "ablation: canceled while waiting for collection locks")
	}
	for _, col := range combination {
		c.held[col] = true
	}
	return nil
}

func (c *Controller) anyHeldLocked(combination model.Combination) bool {
	for _, col := range combination {
		if c.held[col] {
			return true
		}
	}
	return false
}

func (c *Controller) release(combination model.Combination) {
	c.mu.Lock()
	for _, col := range combination {
		delete(c.held, col)
	}
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Scope is a handle over an acquired ablation. Restore must run on every
// exit path; it is idempotent, so defensive double-cleanup is safe.
type Scope struct {
	ctrl        *Controller
	combination model.Combination
	backups     map[string][]docstore.Record

	mu       sync.Mutex
	restored bool
}

// Ablate snapshots the live contents of each collection in the combination,
// empties them, and flips their ablation state. It blocks until no other
// in-flight scope overlaps the combination. The returned Scope guarantees
// restoration.
//
// A collection that does not exist is fatal: ablating a phantom collection
// would measure nothing while reporting success.
func (c *Controller) Ablate(ctx context.Context, combination model.Combination) (*Scope, error) {
	if len(combination) == 0 {
		return nil, eris.New("ablation: empty combination")
	}
	if err := c.acquire(ctx, combination); err != nil {
		return nil, err
	}

	scope := &Scope{
		ctrl:        c,
		combination: combination,
		backups:     make(map[string][]docstore.Record, len(combination)),
	}

	for i, col := range combination {
		ok, err := c.store.HasCollection(ctx, col)
		if err == nil && !ok {
			err = eris.Errorf("ablation: collection %s does not exist", col)
		}
		var backup []docstore.Record
		if err == nil {
			backup, err = c.store.Contents(ctx, col)
		}
		if err == nil {
			err = c.store.RemoveAll(ctx, col)
		}
		if err != nil {
			// Roll back the collections already emptied, then surface the
			// original error. A rollback failure is the fatal restore case.
			scope.combination = combination[:i]
			if rerr := scope.Restore(ctx); rerr != nil {
				return nil, rerr
			}
			c.release(combination[i:])
			return nil, eris.Wrapf(err, "ablation: ablate %s", col)
		}
		scope.backups[col] = backup
		c.mu.Lock()
		c.ablated[col] = true
		c.mu.Unlock()
		zap.L().Info("ablation: collection ablated",
			zap.String("collection", col),
			zap.Int("backed_up", len(backup)),
		)
	}
	return scope, nil
}

// Restore writes the snapshot back, flips ablation state, and releases the
// collection locks. Calling it on an already-restored scope is a no-op.
// A restore failure is ErrRestoreFailed and must abort the whole run.
func (s *Scope) Restore(ctx context.Context) error {
	s.mu.Lock()
	if s.restored {
		s.mu.Unlock()
		return nil
	}
	s.restored = true
	s.mu.Unlock()

	defer s.ctrl.release(s.combination)

	for _, col := range s.combination {
		backup, ok := s.backups[col]
		if !ok {
			// Never emptied (partial ablate rollback); nothing to restore.
			continue
		}
		if err := s.ctrl.store.RemoveAll(ctx, col); err != nil {
			return eris.Wrapf(ErrRestoreFailed, "clear %s: %v", col, err)
		}
		if err := s.ctrl.store.InsertMany(ctx, col, backup); err != nil {
			return eris.Wrapf(ErrRestoreFailed, "repopulate %s: %v", col, err)
		}
		s.ctrl.mu.Lock()
		s.ctrl.ablated[col] = false
		s.ctrl.mu.Unlock()
		zap.L().Info("ablation: collection restored",
			zap.String("collection", col),
			zap.Int("records", len(backup)),
		)
	}
	return nil
}
