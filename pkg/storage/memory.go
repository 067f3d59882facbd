package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore 是 ObjectStore 的进程内实现，用于测试和单机部署。
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory 创建一个空的内存对象存储。
func NewMemory() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Store 保存字节并以对象名作为句柄。
func (s *MemoryStore) Store(_ context.Context, data []byte, objectName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[objectName] = buf
	return objectName, nil
}

// Fetch 根据句柄取回内容，句柄不存在时返回错误。
func (s *MemoryStore) Fetch(_ context.Context, handle string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[handle]
	if !ok {
		return nil, fmt.Errorf("对象不存在: %s", handle)
	}
	return data, nil
}
