package memory

import (
	"context"
	"sync"
)

// UsageStore tracks current usage per (tenant, limit) in memory. It backs
// the admission service's usage lookups in deployments where the business
// stores do not expose their own usage counters.
// Thread-safe for concurrent access.
type UsageStore struct {
	mu    sync.RWMutex
	usage map[string]int64
}

// NewUsageStore creates an empty usage store.
func NewUsageStore() *UsageStore {
	return &UsageStore{usage: make(map[string]int64)}
}

func usageKey(tenantID, limitName string) string {
	return tenantID + "\x00" + limitName
}

// CurrentUsage returns the recorded usage for a (tenant, limit) pair.
// Unknown pairs read as zero.
func (s *UsageStore) CurrentUsage(_ context.Context, tenantID, limitName string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage[usageKey(tenantID, limitName)], nil
}

// Record adds delta to the usage for a (tenant, limit) pair.
// Usage never goes below zero.
func (s *UsageStore) Record(_ context.Context, tenantID, limitName string, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey(tenantID, limitName)
	v := s.usage[key] + delta
	if v < 0 {
		v = 0
	}
	s.usage[key] = v
}

// Set overwrites the usage for a (tenant, limit) pair.
// Useful for tests and backfills.
func (s *UsageStore) Set(tenantID, limitName string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[usageKey(tenantID, limitName)] = value
}
