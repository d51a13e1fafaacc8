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

package tree

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/access"
	"github.com/basenana/nanatree/pkg/dispatch"
	"github.com/basenana/nanatree/pkg/identity"
	"github.com/basenana/nanatree/pkg/indexer"
	"github.com/basenana/nanatree/pkg/lock"
	"github.com/basenana/nanatree/pkg/metastore"
	"github.com/basenana/nanatree/pkg/naming"
	"github.com/basenana/nanatree/pkg/object"
	"github.com/basenana/nanatree/pkg/sizes"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
	"github.com/basenana/nanatree/utils/logger"
)

// Manager runs every tree mutation. Each call names its actor explicitly,
// there is no ambient current user.
type Manager struct {
	store   metastore.Meta
	locks   *lock.Manager
	names   *naming.Resolver
	access  *access.Model
	sizes   *sizes.Engine
	queue   *dispatch.Queue
	objects object.Store
	ident   identity.Provider
	indexer indexer.Indexer
	logger  *zap.SugaredLogger
}

func New(store metastore.Meta, objects object.Store, ident identity.Provider, idx indexer.Indexer, cfg config.Config) *Manager {
	queue := dispatch.NewQueue(store, cfg.Queue)
	locks := lock.NewManager(store, cfg.Lock)
	m := &Manager{
		store:   store,
		locks:   locks,
		names:   naming.NewResolver(cfg.Tree),
		access:  access.NewModel(store, ident),
		sizes:   sizes.NewEngine(store, locks, queue),
		queue:   queue,
		objects: objects,
		ident:   ident,
		indexer: idx,
		logger:  logger.NewLogger("treeManager"),
	}
	queue.Register(types.TaskCopy, dispatch.ExecutorFunc(m.executeCopy))
	queue.Register(types.TaskMove, dispatch.ExecutorFunc(m.executeMove))
	queue.Register(types.TaskChangeOwner, dispatch.ExecutorFunc(m.executeChangeOwner))
	queue.Register(types.TaskRebuildUsage, dispatch.ExecutorFunc(m.executeRebuildUsage))
	go m.itemActionEventHandler()
	return m
}

func (m *Manager) Queue() *dispatch.Queue {
	return m.queue
}

func (m *Manager) Locks() *lock.Manager {
	return m.locks
}

func (m *Manager) Access() *access.Model {
	return m.access
}

func (m *Manager) Sizes() *sizes.Engine {
	return m.sizes
}

func (m *Manager) GetItem(ctx context.Context, actor, id int64) (*types.Item, error) {
	defer utils.TraceRegion(ctx, "tree.getitem")()
	item, err := m.loadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if err = m.access.CheckAccess(ctx, item, actor, types.GrantView); err != nil {
		return nil, err
	}
	return item, nil
}

func (m *Manager) ListChildren(ctx context.Context, actor, id int64) ([]*types.Item, error) {
	defer utils.TraceRegion(ctx, "tree.listchildren")()
	parent, err := m.GetItem(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !parent.IsFolder() {
		return nil, types.NewValidationError(types.ErrNotFolder, "item %d", id)
	}
	children, err := m.store.ListChildren(ctx, parent.ID, types.ChildFilter{})
	if err != nil {
		return nil, err
	}
	result := make([]*types.Item, 0, len(children))
	for _, child := range children {
		if child.Disabled {
			continue
		}
		result = append(result, child)
	}
	return result, nil
}

// GetAncestors returns the parent chain of an item, nearest first.
func (m *Manager) GetAncestors(ctx context.Context, actor, id int64) ([]*types.Item, error) {
	defer utils.TraceRegion(ctx, "tree.getancestors")()
	item, err := m.GetItem(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return metastore.ListAncestors(ctx, m.store, item)
}

func (m *Manager) GetSharingStatus(ctx context.Context, actor, id int64) (types.SharingStatus, error) {
	item, err := m.GetItem(ctx, actor, id)
	if err != nil {
		return "", err
	}
	return m.access.GetSharingStatus(ctx, item, actor)
}

// ListRoots lists the roots visible to actor, owned or shared.
func (m *Manager) ListRoots(ctx context.Context, actor int64) ([]*types.Item, error) {
	defer utils.TraceRegion(ctx, "tree.listroots")()
	return m.access.AccessibleRoots(ctx, actor, "")
}

func (m *Manager) GetUsage(ctx context.Context, owner int64) (*types.Usage, error) {
	usage, err := m.store.GetUsage(ctx, owner)
	if err != nil {
		if types.IsNotFound(err) {
			return &types.Usage{Owner: owner}, nil
		}
		return nil, err
	}
	return usage, nil
}

func (m *Manager) loadItem(ctx context.Context, id int64) (*types.Item, error) {
	item, err := m.store.GetItem(ctx, id)
	if err != nil {
		if types.IsNotFound(err) {
			return nil, types.NewNotFoundError("item %d", id)
		}
		return nil, err
	}
	return item, nil
}

// loadDestination resolves a target parent. A nil id is the root list.
func (m *Manager) loadDestination(ctx context.Context, actor int64, destID *int64) (*types.Item, error) {
	if destID == nil {
		if !m.ident.HasPermission(ctx, actor, types.PermAuthor) {
			return nil, types.ErrNoPerm
		}
		return nil, nil
	}
	dest, err := m.loadItem(ctx, *destID)
	if err != nil {
		return nil, err
	}
	if !dest.IsFolder() {
		return nil, types.NewValidationError(types.ErrNotFolder, "destination %d", dest.ID)
	}
	if err = m.access.CheckAccess(ctx, dest, actor, types.GrantAuthor); err != nil {
		return nil, err
	}
	return dest, nil
}

// resolveName checks name against scope and uniquifies it when allowed.
// Only valid while the scope lock is held.
func (m *Manager) resolveName(ctx context.Context, scope types.SiblingScope, name string, excludeID int64, autoRename bool, suffix string) (string, error) {
	unique, err := m.names.IsNameUnique(ctx, m.store, scope, name, excludeID)
	if err != nil {
		return "", err
	}
	if unique {
		return name, nil
	}
	if !autoRename {
		return "", types.NewValidationError(types.ErrNameConflict, "%s", name)
	}
	return m.names.UniqueNameInScope(ctx, m.store, scope, name, suffix)
}

func newItem(name string, kind types.Kind, owner int64, parent *types.Item) *types.Item {
	now := time.Now()
	item := &types.Item{
		ID:         utils.GenerateNewID(),
		UUID:       utils.NewUUID(),
		Name:       name,
		Kind:       kind,
		Owner:      owner,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if parent != nil {
		item.ParentID = types.Int64Ptr(parent.ID)
		item.RootID = types.Int64Ptr(parent.RootOrSelf())
	}
	return item
}

func scopeFor(parent *types.Item, owner int64) types.SiblingScope {
	if parent == nil {
		return types.SiblingScope{Owner: owner}
	}
	return types.SiblingScope{ParentID: types.Int64Ptr(parent.ID)}
}

// refreshSizes invalidates folders and their ancestors, then recomputes
// them. A busy folder is left to the queue, so busy errors are only logged.
func (m *Manager) refreshSizes(ctx context.Context, folderIDs ...int64) {
	ids := lo.Filter(folderIDs, func(id int64, _ int) bool { return id != 0 })
	if err := m.sizes.RefreshSizes(ctx, ids); err != nil {
		if types.IsBusy(err) {
			m.logger.Infow("size update deferred", "items", ids, "err", err)
			return
		}
		m.logger.Errorw("size update failed", "items", ids, "err", err)
	}
}

func (m *Manager) markIndex(ctx context.Context, item *types.Item) {
	if m.indexer == nil {
		return
	}
	if err := m.indexer.MarkForReindex(ctx, item); err != nil {
		m.logger.Warnw("mark item for reindex failed", "item", item.ID, "err", err)
	}
}

func (m *Manager) dropIndex(ctx context.Context, id int64) {
	if m.indexer == nil {
		return
	}
	if err := m.indexer.Delete(ctx, id); err != nil {
		m.logger.Warnw("drop item from index failed", "item", id, "err", err)
	}
}

func parentOf(item *types.Item) int64 {
	if item.ParentID == nil {
		return 0
	}
	return *item.ParentID
}
