package history

import (
	"context"
	"sync"
)

// MemorySource 是内存实现的 Source，用于测试和演示。
type MemorySource struct {
	mu     sync.RWMutex
	events map[string][]string // group -> 按时间倒序的物品 ID（可重复）
}

func NewMemorySource() *MemorySource {
	return &MemorySource{events: make(map[string][]string)}
}

// Append 记录一次观看，新记录排在最前。
func (m *MemorySource) Append(groupID, itemID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[groupID] = append([]string{itemID}, m.events[groupID]...)
}

func (m *MemorySource) Recent(ctx context.Context, groupID string, k int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Window(m.events[groupID], k), nil
}

var _ Source = (*MemorySource)(nil)
