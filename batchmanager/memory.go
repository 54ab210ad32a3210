package batchmanager

import (
	"context"
	"sync"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/semaphore"

	"github.com/rudderlabs/rudder-eventcore/kvstore"
)

type openBatch struct {
	id     BatchID
	buf    []byte
	opened bool // true once the "{"batch":[" prefix has been written
}

// MemoryManager is the in-memory Manager backend (spec §4.1 "In-memory
// backend"): closed batches live in a map keyed by BatchID, the index
// counter lives in an in-memory kvstore.Store. Mutating operations are
// serialised by a weighted semaphore of size 1 rather than a bare
// sync.Mutex, taking the spec's "serialised by a single semaphore/mutex"
// wording literally (SPEC_FULL.md §4.1).
type MemoryManager struct {
	sem          *semaphore.Weighted
	counterStore kvstore.Store
	counterKey   string
	platform     PlatformType
	maxBatch     int

	mu      sync.RWMutex // guards closed + order; separate from sem, which only serialises mutations
	closed  map[BatchID][]byte
	order   []BatchID // creation order, used directly for Mobile enumeration
	current *openBatch
}

// NewMemoryManager returns an empty MemoryManager. counterStore persists the
// batch index counter under counterKey (conventionally
// "rudderstack.event.batch.index.<writeKey>").
func NewMemoryManager(counterStore kvstore.Store, counterKey string, platform PlatformType, maxBatchSize int) *MemoryManager {
	return &MemoryManager{
		sem:          semaphore.NewWeighted(1),
		counterStore: counterStore,
		counterKey:   counterKey,
		platform:     platform,
		maxBatch:     maxBatchSize,
		closed:       make(map[BatchID][]byte),
	}
}

func (m *MemoryManager) lock() {
	_ = m.sem.Acquire(context.Background(), 1)
}

func (m *MemoryManager) unlock() {
	m.sem.Release(1)
}

func (m *MemoryManager) nextID() BatchID {
	id := m.counterStore.ReadLong(m.counterKey, 0)
	return BatchID(id)
}

func (m *MemoryManager) advanceCounter(from BatchID) {
	_ = m.counterStore.WriteLong(m.counterKey, int64(from)+1)
}

// StoreEvent matches spec.md §4.1 store_event step-for-step: obtain (or
// create) the open batch, roll over first if it is already oversize, then
// append the prefix-or-comma-joined payload.
func (m *MemoryManager) StoreEvent(payload string) error {
	m.lock()
	defer m.unlock()

	if m.current == nil {
		m.current = &openBatch{id: m.nextID()}
	} else if len(m.current.buf) > m.maxBatch {
		if err := m.rolloverLocked(); err != nil {
			return err
		}
		m.current = &openBatch{id: m.nextID()}
	}

	if !m.current.opened {
		m.current.buf = append(m.current.buf, OpenPrefix...)
		m.current.opened = true
	} else {
		m.current.buf = append(m.current.buf, ',')
	}
	m.current.buf = append(m.current.buf, payload...)
	return nil
}

func (m *MemoryManager) Rollover() error {
	m.lock()
	defer m.unlock()
	return m.rolloverLocked()
}

func (m *MemoryManager) rolloverLocked() error {
	if m.current == nil {
		return nil
	}
	body := closeFrame(m.current.buf)
	id := m.current.id

	m.mu.Lock()
	m.closed[id] = body
	m.order = append(m.order, id)
	m.mu.Unlock()

	m.advanceCounter(id)
	m.current = nil
	return nil
}

func (m *MemoryManager) CloseAndReset() error {
	m.lock()
	defer m.unlock()
	m.current = nil
	return nil
}

func (m *MemoryManager) Read() ([]BatchID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]BatchID, len(m.order))
	copy(ids, m.order)
	if m.platform == Server {
		slices.SortFunc(ids, func(a, b BatchID) bool { return a < b })
	}
	return ids, nil
}

func (m *MemoryManager) ReadContent(id BatchID) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.closed[id]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, true, nil
}

func (m *MemoryManager) Remove(id BatchID) (bool, error) {
	m.lock()
	defer m.unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.closed[id]; !ok {
		return false, nil
	}
	delete(m.closed, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (m *MemoryManager) Delete() error {
	m.lock()
	defer m.unlock()
	m.current = nil
	m.mu.Lock()
	m.closed = make(map[BatchID][]byte)
	m.order = nil
	m.mu.Unlock()
	return nil
}
