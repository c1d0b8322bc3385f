package bus

import "sync"

// entityLocks hands out one mutex per entity so that fusion for an entity
// is serialized while different entities recompute in parallel. Locks are
// held only around a single entity's recompute, never across a cascade
// hop, so lock ordering cannot deadlock.
type entityLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: make(map[string]*sync.Mutex)}
}

func (e *entityLocks) forEntity(entityID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[entityID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[entityID] = l
	}
	return l
}
