package excuse

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
)

// Checker is implemented by persisters that can report readiness.
type Checker interface {
	Check() error
}

// Store holds the ordered excuse list and the persistence handle.
//
// A mutation only takes effect in memory once the file write succeeded, so the
// list always matches the last successful write.
type Store struct {
	log     *slog.Logger
	persist Persister
	intn    func(n int) int

	mu     sync.Mutex
	items  []Excuse
	seeded bool
	hooks  []func(Change)
}

// Mutation kinds carried by Change.
const (
	OpAdd    = "add"
	OpDelete = "delete"
)

// Change describes one committed mutation and the record count after it.
type Change struct {
	Op     string
	Excuse Excuse
	Count  int
}

// Option configures optional Store behavior.
type Option func(*Store)

// WithRandom overrides the index source used by Random. intn must return a value in [0, n).
func WithRandom(intn func(n int) int) Option {
	return func(s *Store) {
		if intn != nil {
			s.intn = intn
		}
	}
}

// Open loads the list from p. When the data cannot be loaded (missing or
// unreadable), the store is seeded with Defaults and written out immediately.
func Open(p Persister, log *slog.Logger, opts ...Option) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("excuse: nil persister")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Store{log: log, persist: p, intn: rand.IntN}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	items, err := p.Load()
	if err != nil {
		log.Warn("excuse.load.fail.seeding_defaults", "err", err)
		items = Defaults()
		if err := p.Save(items); err != nil {
			return nil, fmt.Errorf("%w: seed defaults: %w", ErrPersist, err)
		}
		s.seeded = true
	}
	s.items = items

	log.Info("excuse.store.ready", "count", len(items), "seeded", s.seeded)
	return s, nil
}

// OnChange registers fn to run after every committed Add or Delete. Hooks run
// with the store lock held, in commit order, and must not call back into the
// store.
func (s *Store) OnChange(fn func(Change)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// notify runs the change hooks. Caller holds mu.
func (s *Store) notify(op string, e Excuse) {
	c := Change{Op: op, Excuse: e, Count: len(s.items)}
	for _, fn := range s.hooks {
		fn(c)
	}
}

// Seeded reports whether Open wrote the default records.
func (s *Store) Seeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeded
}

// List returns a copy of the full ordered sequence.
func (s *Store) List() []Excuse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Random returns one record chosen uniformly, or ErrEmpty.
func (s *Store) Random() (Excuse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return Excuse{}, ErrEmpty
	}
	return s.items[s.intn(len(s.items))], nil
}

// Add appends a record with the next id and persists the list.
func (s *Store) Add(text string) (Excuse, error) {
	t, err := NormalizeText(text)
	if err != nil {
		return Excuse{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := Excuse{ID: NextID(s.items), Text: t}
	next := append(slices.Clone(s.items), e)

	if err := s.persist.Save(next); err != nil {
		s.log.Error("excuse.add.persist.fail", "id", e.ID, "err", err)
		return Excuse{}, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.items = next
	s.notify(OpAdd, e)
	return e, nil
}

// Delete removes the record with id and persists the list.
func (s *Store) Delete(id int) (Excuse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.items, id)
	if i < 0 {
		return Excuse{}, ErrNotFound
	}

	removed := s.items[i]
	next := slices.Delete(slices.Clone(s.items), i, i+1)

	if err := s.persist.Save(next); err != nil {
		s.log.Error("excuse.delete.persist.fail", "id", id, "err", err)
		return Excuse{}, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.items = next
	s.notify(OpDelete, removed)
	return removed, nil
}

// Ready reports whether the backing storage is reachable.
func (s *Store) Ready() error {
	if c, ok := s.persist.(Checker); ok {
		return c.Check()
	}
	return nil
}
