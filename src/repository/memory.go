package repository

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7/pkg/s3utils"
	log "github.com/sirupsen/logrus"

	app "gallery/src/app"
)

type (
	// MemoryStore is an app.Backend keeping buckets in process memory.
	// It is meant for local runs and tests.
	MemoryStore struct {
		mu    sync.RWMutex
		base  string
		table map[string]map[string]memoryObject
	}

	memoryObject struct {
		data     []byte
		metadata map[string]string
	}
)

func NewMemoryStore(base string) *MemoryStore {
	return &MemoryStore{
		base:  strings.TrimRight(base, "/"),
		table: make(map[string]map[string]memoryObject),
	}
}

func (m *MemoryStore) CreateBucket(_ context.Context, name string) error {
	if err := s3utils.CheckValidBucketName(name); err != nil {
		return fmt.Errorf("%w: %v", app.ErrInvalidName, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.table[name]; ok {
		return app.ErrAlbumExists
	}
	m.table[name] = make(map[string]memoryObject)
	return nil
}

func (m *MemoryStore) BucketExists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.table[name]
	return ok, nil
}

func (m *MemoryStore) ListBuckets(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]string, 0, len(m.table))
	for name := range m.table {
		result = append(result, name)
	}
	sort.Strings(result)
	return result, nil
}

// UploadFile reads the staged file fully into memory.
func (m *MemoryStore) UploadFile(_ context.Context, bucket, key, path string, metadata map[string]string) (app.ObjectInfo, error) {
	if err := s3utils.CheckValidObjectName(key); err != nil {
		return app.ObjectInfo{}, fmt.Errorf("%w: %v", app.ErrInvalidName, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return app.ObjectInfo{}, fmt.Errorf("read staged file: %w", err)
	}
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	objects, ok := m.table[bucket]
	if !ok {
		return app.ObjectInfo{}, app.ErrAlbumNotFound
	}
	objects[key] = memoryObject{data: data, metadata: meta}
	log.Debugf("memory store: %s/%s (%d bytes)", bucket, key, len(data))
	return m.info(bucket, key, objects[key]), nil
}

func (m *MemoryStore) ListObjects(_ context.Context, bucket string) ([]app.ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	objects, ok := m.table[bucket]
	if !ok {
		return nil, app.ErrAlbumNotFound
	}
	keys := make([]string, 0, len(objects))
	for key := range objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]app.ObjectInfo, 0, len(keys))
	for _, key := range keys {
		result = append(result, m.info(bucket, key, objects[key]))
	}
	return result, nil
}

func (m *MemoryStore) CopyObject(_ context.Context, srcBucket, dstBucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.table[srcBucket]
	if !ok {
		return app.ErrAlbumNotFound
	}
	dst, ok := m.table[dstBucket]
	if !ok {
		return app.ErrAlbumNotFound
	}
	object, ok := src[key]
	if !ok {
		return app.ErrImageNotFound
	}
	dst[key] = object
	return nil
}

func (m *MemoryStore) DeleteObject(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	objects, ok := m.table[bucket]
	if !ok {
		return app.ErrAlbumNotFound
	}
	if _, ok := objects[key]; !ok {
		return app.ErrImageNotFound
	}
	delete(objects, key)
	return nil
}

// Object returns a copy of the stored bytes and metadata.
func (m *MemoryStore) Object(bucket, key string) ([]byte, map[string]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	object, ok := m.table[bucket][key]
	if !ok {
		return nil, nil, false
	}
	return append([]byte(nil), object.data...), maps.Clone(object.metadata), true
}

func (m *MemoryStore) info(bucket, key string, object memoryObject) app.ObjectInfo {
	return app.ObjectInfo{
		Name:      key,
		Size:      int64(len(object.data)),
		MediaLink: fmt.Sprintf("%s/%s/%s", m.base, bucket, url.PathEscape(key)),
	}
}
