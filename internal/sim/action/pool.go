package action

import (
	"errors"
	"fmt"
)

var (
	ErrRegistryNotReady = errors.New("action registry not initialized")
	ErrUnknownAction    = errors.New("unknown action id")
	ErrNilBehavior      = errors.New("behavior factory returned nil")
)

// Prototype is what the registry resolves an id to.
type Prototype struct {
	Definition *Definition
	// New builds a fresh behavior for the definition. Called once per pooled instance.
	New func(def *Definition) Behavior
}

// Resolver resolves action ids to prototypes. Unknown ids are a configuration error.
type Resolver interface {
	Resolve(id ID) (Prototype, error)
}

type PoolOptions struct {
	// MaxIdlePerAction caps each free list; surplus released instances are dropped.
	// Zero means unbounded.
	MaxIdlePerAction int
}

type PoolStats struct {
	Created  uint64 `json:"created"`
	Reused   uint64 `json:"reused"`
	Released uint64 `json:"released"`
	Dropped  uint64 `json:"dropped"`
	Idle     int    `json:"idle"`
}

// Pool recycles instances per action id. An instance always goes back to the free list of
// the id it was built for.
//
// A Pool is not safe for concurrent use; it belongs to the tick goroutine of its schedulers.
type Pool struct {
	resolver Resolver
	clock    Clock
	opts     PoolOptions

	lists  map[ID]*freeList
	stats  PoolStats
	closed bool
}

type freeList struct {
	proto Prototype
	free  []*Instance
}

func NewPool(resolver Resolver, clock Clock, opts PoolOptions) *Pool {
	return &Pool{
		resolver: resolver,
		clock:    clock,
		opts:     opts,
		lists:    map[ID]*freeList{},
	}
}

func (p *Pool) list(id ID) (*freeList, error) {
	if l, ok := p.lists[id]; ok {
		return l, nil
	}
	if p.resolver == nil {
		return nil, ErrRegistryNotReady
	}
	proto, err := p.resolver.Resolve(id)
	if err != nil {
		return nil, err
	}
	if proto.Definition == nil || proto.New == nil {
		return nil, fmt.Errorf("%w: %v has no prototype", ErrUnknownAction, id)
	}
	l := &freeList{proto: proto}
	p.lists[id] = l
	return l, nil
}

// Acquire returns an instance bound to req, revived from the free list when possible.
func (p *Pool) Acquire(req ActionRequest) (*Instance, error) {
	if p == nil || p.closed {
		return nil, ErrRegistryNotReady
	}
	l, err := p.list(req.ID)
	if err != nil {
		return nil, err
	}

	var inst *Instance
	if n := len(l.free); n > 0 {
		inst = l.free[n-1]
		l.free[n-1] = nil
		l.free = l.free[:n-1]
		p.stats.Reused++
	} else {
		b := l.proto.New(l.proto.Definition)
		if b == nil {
			return nil, fmt.Errorf("%w: %s", ErrNilBehavior, l.proto.Definition.Name)
		}
		inst = &Instance{
			kind:     req.ID,
			def:      l.proto.Definition,
			behavior: b,
			clock:    p.clock,
			pool:     p,
		}
		p.stats.Created++
	}
	inst.Initialize(req)
	return inst, nil
}

// Release resets inst and returns it to its own free list. Releasing nil, an
// already-pooled instance or an instance from another pool is a no-op.
// Callers must make sure no scheduler collection still holds inst.
func (p *Pool) Release(inst *Instance) {
	if p == nil || inst == nil || inst.pool != p || inst.pooled {
		return
	}
	inst.Reset()
	inst.pooled = true
	p.stats.Released++

	l := p.lists[inst.kind]
	if l == nil || p.closed {
		p.stats.Dropped++
		return
	}
	if p.opts.MaxIdlePerAction > 0 && len(l.free) >= p.opts.MaxIdlePerAction {
		p.stats.Dropped++
		return
	}
	l.free = append(l.free, inst)
}

// Idle reports how many instances of id are waiting in the free list.
func (p *Pool) Idle(id ID) int {
	if l := p.lists[id]; l != nil {
		return len(l.free)
	}
	return 0
}

func (p *Pool) Stats() PoolStats {
	s := p.stats
	for _, l := range p.lists {
		s.Idle += len(l.free)
	}
	return s
}

// Close drops every free list. Instances released afterwards are discarded.
func (p *Pool) Close() {
	if p == nil {
		return
	}
	for id, l := range p.lists {
		for i := range l.free {
			l.free[i] = nil
		}
		delete(p.lists, id)
	}
	p.closed = true
}
