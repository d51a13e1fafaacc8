/*
 Copyright 2023 NanaFS Authors.

 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package storage

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
)

const (
	MemoryStorage = config.MemoryStorage
)

type memoryStorage struct {
	storageID string
	storage   map[string][]byte
	mux       sync.Mutex
}

var _ Storage = &memoryStorage{}

func (m *memoryStorage) ID() string {
	return m.storageID
}

func (m *memoryStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	defer utils.TraceRegion(ctx, "memory.get")()
	m.mux.Lock()
	data, ok := m.storage[key]
	m.mux.Unlock()
	if !ok {
		return nil, types.ErrNotFound
	}
	return memoryReader{Reader: bytes.NewReader(data)}, nil
}

func (m *memoryStorage) Put(ctx context.Context, key string, in io.Reader) error {
	defer utils.TraceRegion(ctx, "memory.put")()
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	m.mux.Lock()
	m.storage[key] = data
	m.mux.Unlock()
	return nil
}

func (m *memoryStorage) Delete(ctx context.Context, key string) error {
	defer utils.TraceRegion(ctx, "memory.delete")()
	m.mux.Lock()
	delete(m.storage, key)
	m.mux.Unlock()
	return nil
}

func (m *memoryStorage) Head(ctx context.Context, key string) (Info, error) {
	defer utils.TraceRegion(ctx, "memory.head")()
	m.mux.Lock()
	data, ok := m.storage[key]
	m.mux.Unlock()
	if !ok {
		return Info{}, types.ErrNotFound
	}
	return Info{Key: key, Size: int64(len(data))}, nil
}

func newMemoryStorage(storageID string) Storage {
	return &memoryStorage{
		storageID: storageID,
		storage:   map[string][]byte{},
	}
}

// memoryReader keeps ReadAt and Seek of the underlying reader visible.
type memoryReader struct {
	*bytes.Reader
}

func (r memoryReader) Close() error { return nil }
