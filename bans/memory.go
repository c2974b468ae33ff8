package bans

import (
	"context"
	"sync"
)

// Memory is an in-process Lookup and Accounts pair. Accounts must be created
// with AddAccount before they can be banned, mirroring the primary store where
// unknown identities are not found.
type Memory struct {
	mu       sync.Mutex
	accounts map[string]bool
	banned   map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{accounts: make(map[string]bool), banned: make(map[string]struct{})}
}

func (m *Memory) AddAccount(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[identity]; !ok {
		m.accounts[identity] = false
	}
}

func (m *Memory) SetBanned(ctx context.Context, identity string, banned bool) (AccountUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.accounts[identity]
	if !ok {
		return AccountUpdate{}, nil
	}
	if cur == banned {
		return AccountUpdate{Matched: 1}, nil
	}
	m.accounts[identity] = banned
	return AccountUpdate{Matched: 1, Modified: 1}, nil
}

func (m *Memory) Find(ctx context.Context, identity string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.banned[identity]
	return ok, nil
}

func (m *Memory) Put(ctx context.Context, identity string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.banned[identity]; ok {
		return false, nil
	}
	m.banned[identity] = struct{}{}
	return true, nil
}

func (m *Memory) Delete(ctx context.Context, identity string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.banned[identity]; !ok {
		return false, nil
	}
	delete(m.banned, identity)
	return true, nil
}
