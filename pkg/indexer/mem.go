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

package indexer

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils/logger"
)

// MemIndexer keeps the pending reindex set in memory.
type MemIndexer struct {
	pending map[int64]string
	deleted map[int64]struct{}
	mux     sync.Mutex
	logger  *zap.SugaredLogger
}

var _ Indexer = &MemIndexer{}

func (m *MemIndexer) MarkForReindex(ctx context.Context, item *types.Item) error {
	m.mux.Lock()
	m.pending[item.ID] = item.Name
	delete(m.deleted, item.ID)
	m.mux.Unlock()
	m.logger.Debugw("item marked for reindex", "item", item.ID, "name", item.Name)
	return nil
}

func (m *MemIndexer) Delete(ctx context.Context, id int64) error {
	m.mux.Lock()
	delete(m.pending, id)
	m.deleted[id] = struct{}{}
	m.mux.Unlock()
	m.logger.Debugw("item removed from index", "item", id)
	return nil
}

func (m *MemIndexer) Pending() map[int64]string {
	m.mux.Lock()
	defer m.mux.Unlock()
	result := make(map[int64]string, len(m.pending))
	for k, v := range m.pending {
		result[k] = v
	}
	return result
}

func (m *MemIndexer) IsDeleted(id int64) bool {
	m.mux.Lock()
	defer m.mux.Unlock()
	_, ok := m.deleted[id]
	return ok
}

func NewMem() *MemIndexer {
	return &MemIndexer{
		pending: map[int64]string{},
		deleted: map[int64]struct{}{},
		logger:  logger.NewLogger("memIndexer"),
	}
}
