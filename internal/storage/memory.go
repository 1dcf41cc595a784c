package storage

import (
	"strings"
	"sync"
)

// MemoryDB implements DB using an in-memory map. It is safe for concurrent
// use and intended for tests.
type MemoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates a new in-memory database.
func NewMemory() *MemoryDB {
	return &MemoryDB{
		data: make(map[string][]byte),
	}
}

// Get retrieves a value by key.
func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put stores a key-value pair.
func (m *MemoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete removes a key.
func (m *MemoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

// Has checks if a key exists.
func (m *MemoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

// ForEach iterates over all keys with the given prefix.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.RLock()
	snapshot := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		snapshot[k] = v
	}
	m.mu.RUnlock()

	p := string(prefix)
	for k, v := range snapshot {
		if strings.HasPrefix(k, p) {
			if err := fn([]byte(k), v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Update runs fn with the write lock held. Writes are staged in an overlay
// and applied only when fn returns nil, matching badger's transaction
// semantics.
func (m *MemoryDB) Update(fn func(txn Txn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn := &memoryTxn{
		base:    m.data,
		staged:  make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
	if err := fn(txn); err != nil {
		return err
	}

	for k := range txn.deleted {
		delete(m.data, k)
	}
	for k, v := range txn.staged {
		m.data[k] = v
	}
	return nil
}

// View runs fn with the read lock held. Writes through the Txn fail silently
// into the overlay and are discarded.
func (m *MemoryDB) View(fn func(txn Txn) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txn := &memoryTxn{
		base:    m.data,
		staged:  make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
	return fn(txn)
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	return nil
}

// memoryTxn overlays staged writes on the base map.
type memoryTxn struct {
	base    map[string][]byte
	staged  map[string][]byte
	deleted map[string]struct{}
}

func (t *memoryTxn) Get(key []byte) ([]byte, error) {
	k := string(key)
	if _, gone := t.deleted[k]; gone {
		return nil, ErrNotFound
	}
	if v, ok := t.staged[k]; ok {
		return append([]byte(nil), v...), nil
	}
	if v, ok := t.base[k]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, ErrNotFound
}

func (t *memoryTxn) Put(key, value []byte) error {
	k := string(key)
	delete(t.deleted, k)
	t.staged[k] = append([]byte(nil), value...)
	return nil
}

func (t *memoryTxn) Delete(key []byte) error {
	k := string(key)
	delete(t.staged, k)
	t.deleted[k] = struct{}{}
	return nil
}

func (t *memoryTxn) Has(key []byte) (bool, error) {
	_, err := t.Get(key)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
