// Package memory provides an in-process store with the same referential
// rules as the SQL schema. It backs tests and single-process development.
package memory

import (
	"context"
	"sync"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

type state struct {
	workflows map[string]*models.Workflow
	triggers  map[string]*models.Trigger // keyed by workflow id
	actions   map[string]*models.Action
	runs      map[string]*models.Run
	outbox    map[string]*models.OutboxEntry
	seq       map[string]uint64 // outbox insertion order
	nextSeq   uint64
}

func newState() *state {
	return &state{
		workflows: make(map[string]*models.Workflow),
		triggers:  make(map[string]*models.Trigger),
		actions:   make(map[string]*models.Action),
		runs:      make(map[string]*models.Run),
		outbox:    make(map[string]*models.OutboxEntry),
		seq:       make(map[string]uint64),
	}
}

// clone copies the maps. Stored records are never mutated in place, so the
// pointers can be shared between the copies.
func (s *state) clone() *state {
	c := newState()

	for k, v := range s.workflows {
		c.workflows[k] = v
	}

	for k, v := range s.triggers {
		c.triggers[k] = v
	}

	for k, v := range s.actions {
		c.actions[k] = v
	}

	for k, v := range s.runs {
		c.runs[k] = v
	}

	for k, v := range s.outbox {
		c.outbox[k] = v
	}

	for k, v := range s.seq {
		c.seq[k] = v
	}

	c.nextSeq = s.nextSeq

	return c
}

// Persistence is a goroutine-safe in-memory store.
type Persistence struct {
	mu    sync.Mutex
	state *state
}

var _ persistence.Persistence = (*Persistence)(nil)

func NewPersistence() *Persistence {
	return &Persistence{state: newState()}
}

type repositories struct {
	p  *Persistence
	tx *state
}

// with runs fn against the transaction state or, outside a transaction,
// against the shared state under the lock.
func (r repositories) with(fn func(s *state) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}

	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return fn(r.p.state)
}

func (r repositories) Workflows() persistence.WorkflowRepository {
	return &workflowRepository{r}
}

func (r repositories) Runs() persistence.RunRepository {
	return &runRepository{r}
}

func (r repositories) Outbox() persistence.OutboxRepository {
	return &outboxRepository{r}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return repositories{p: p}.Workflows()
}

func (p *Persistence) Runs() persistence.RunRepository {
	return repositories{p: p}.Runs()
}

func (p *Persistence) Outbox() persistence.OutboxRepository {
	return repositories{p: p}.Outbox()
}

// Transaction runs fn on a private copy of the state and publishes the copy
// only if fn succeeds. The store stays locked while fn runs, so fn must only
// use the repositories it is given.
func (p *Persistence) Transaction(ctx context.Context, fn func(tx persistence.Repositories) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := p.state.clone()

	if err := fn(repositories{p: p, tx: tx}); err != nil {
		return err
	}

	p.state = tx

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneConfig(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return v
	}
}

func cloneConfig(config map[string]any) map[string]any {
	if config == nil {
		return nil
	}

	out := make(map[string]any, len(config))
	for k, v := range config {
		out[k] = cloneValue(v)
	}

	return out
}
