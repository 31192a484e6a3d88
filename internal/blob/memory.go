package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store used in tests and as the default for
// ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	info    Info
	payload []byte
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Driver reports DriverMemory.
func (s *MemoryStore) Driver() Driver { return DriverMemory }

// Put stores a new immutable object; duplicate keys fail.
func (s *MemoryStore) Put(_ context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	if key == "" {
		return Info{}, fmt.Errorf("blob: empty key")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return Info{}, fmt.Errorf("read payload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[key]; exists {
		return Info{}, fmt.Errorf("blob %s already exists", key)
	}
	info := Info{
		Key:          key,
		Size:         int64(buf.Len()),
		ContentType:  opts.ContentType,
		Metadata:     copyMeta(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	s.objects[key] = memoryObject{info: info, payload: buf.Bytes()}
	return info, nil
}

// Get returns the artifact metadata and payload.
func (s *MemoryStore) Get(_ context.Context, key string) (Info, io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return Info{}, nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return obj.info, io.NopCloser(bytes.NewReader(obj.payload)), nil
}

// Head returns the artifact metadata.
func (s *MemoryStore) Head(_ context.Context, key string) (Info, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return obj.info, nil
}

// Delete removes the object; returns whether it existed.
func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return false, nil
	}
	delete(s.objects, key)
	return true, nil
}

// List returns metadata for keys with the prefix, sorted by key.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var infos []Info
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, obj.info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL is not supported by the in-memory backend.
func (s *MemoryStore) PresignURL(context.Context, string, SignedURLOptions) (string, error) {
	return "", ErrUnsupported
}

func copyMeta(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
