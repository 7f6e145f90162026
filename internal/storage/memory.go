package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryClient is an in-process object store for development and tests.
type MemoryClient struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{objects: make(map[string]memoryObject)}
}

func (c *MemoryClient) ReadObject(_ context.Context, objectKey string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[objectKey]
	if !ok {
		return nil, fmt.Errorf("read object %s: %w", objectKey, ErrObjectNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

func (c *MemoryClient) WriteObject(_ context.Context, objectKey string, data []byte, contentType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[objectKey] = memoryObject{
		data:        append([]byte(nil), data...),
		contentType: contentType,
	}
	return nil
}

func (c *MemoryClient) RemoveObject(_ context.Context, objectKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, objectKey)
	return nil
}

func (c *MemoryClient) ObjectExists(_ context.Context, objectKey string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.objects[objectKey]
	return ok, nil
}

// ContentType returns the type an object was written with.
func (c *MemoryClient) ContentType(objectKey string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.objects[objectKey].contentType
}

func (c *MemoryClient) Ping(context.Context) error {
	return nil
}
