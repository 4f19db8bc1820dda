// Package store provides in-memory ledger.Store implementations.
package store

import (
	"context"
	"slices"
	"sync"

	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	doc   *ledger.Document
	saves int

	// FailSaves, when set, is returned by every Save.
	FailSaves error
	// LoadErr, when set, is returned by Load.
	LoadErr error
}

func NewMemory() *Memory {
	return &Memory{}
}

// NewMemoryWith returns a store already holding doc.
func NewMemoryWith(doc ledger.Document) *Memory {
	m := NewMemory()
	c := copyDoc(doc)
	m.doc = &c
	return m
}

func (m *Memory) Load(_ context.Context) (ledger.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.LoadErr != nil {
		return ledger.Document{}, m.LoadErr
	}
	if m.doc == nil {
		return ledger.Document{}, ledger.ErrNotFound
	}
	return copyDoc(*m.doc), nil
}

// Save replaces the held document.
func (m *Memory) Save(_ context.Context, doc ledger.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSaves != nil {
		return m.FailSaves
	}
	c := copyDoc(doc)
	m.doc = &c
	m.saves++
	return nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = nil
	return nil
}

// Saves returns how many successful saves happened.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Document returns a copy of the held document and whether one exists.
func (m *Memory) Document() (ledger.Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.doc == nil {
		return ledger.Document{}, false
	}
	return copyDoc(*m.doc), true
}

// Entries are immutable values, so a shallow slice copy is enough.
func copyDoc(doc ledger.Document) ledger.Document {
	return ledger.Document{
		State:          doc.State.Clone(),
		History:        slices.Clone(doc.History),
		EmployeesUnset: doc.EmployeesUnset,
	}
}
