package state

import (
	"sync"

	"ecmstaking/core/types"
	"ecmstaking/storage"
)

// Manager coordinates typed access to the key-value store. Every mutating
// operation runs inside a transaction: a write overlay that commits atomically
// on success and is discarded on failure, so no partial effects are ever
// visible. All mutating transactions serialize behind a single write lock:
// every pool settles against the shared module vault account, so writes are
// never independent even when they target different pools.
type Manager struct {
	db storage.Database

	writeMu sync.Mutex

	pauseMu sync.RWMutex
	paused  map[string]bool

	sinkMu sync.RWMutex
	sink   func(*types.Event)
}

// NewManager wraps the database in a transaction-aware typed store.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:     db,
		paused: make(map[string]bool),
	}
}

// Update runs fn inside a transaction under the write lock. The transaction
// observes all previously committed writes and no concurrent ones.
func (m *Manager) Update(fn func(*Tx) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.run(fn)
}

// View runs fn against a throwaway transaction whose writes are never
// committed. Reads observe committed state only.
func (m *Manager) View(fn func(*Tx) error) error {
	tx := newTx(m)
	return fn(tx)
}

func (m *Manager) run(fn func(*Tx) error) error {
	tx := newTx(m)
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.commit(); err != nil {
		return err
	}
	m.dispatch(tx.events)
	return nil
}

func (m *Manager) dispatch(evts []*types.Event) {
	m.sinkMu.RLock()
	sink := m.sink
	m.sinkMu.RUnlock()
	if sink == nil {
		return
	}
	for _, evt := range evts {
		sink(evt)
	}
}

// SetEventSink registers a callback receiving every event emitted by a
// committed transaction.
func (m *Manager) SetEventSink(sink func(*types.Event)) {
	m.sinkMu.Lock()
	m.sink = sink
	m.sinkMu.Unlock()
}

// SetPaused toggles the pause flag consulted by engine guards.
func (m *Manager) SetPaused(module string, paused bool) {
	m.pauseMu.Lock()
	m.paused[module] = paused
	m.pauseMu.Unlock()
}

// IsPaused implements the native/common PauseView contract.
func (m *Manager) IsPaused(module string) bool {
	m.pauseMu.RLock()
	defer m.pauseMu.RUnlock()
	return m.paused[module]
}
