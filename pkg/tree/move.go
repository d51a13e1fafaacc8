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
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/basenana/nanatree/pkg/access"
	"github.com/basenana/nanatree/pkg/dispatch"
	"github.com/basenana/nanatree/pkg/lock"
	"github.com/basenana/nanatree/pkg/metastore"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
	"github.com/basenana/nanatree/utils/logger"
)

const continuationChunk = 100

type MoveOption struct {
	AutoRename bool
}

// Move re-parents an item under destID, or turns it into a root when destID is nil.
func (m *Manager) Move(ctx context.Context, actor, id int64, destID *int64, opt MoveOption) (item *types.Item, err error) {
	defer utils.TraceRegion(ctx, "tree.move")()
	defer logOperationLatency("move", time.Now())
	defer func() { _ = logOperationError("move", err) }()

	if destID != nil && *destID == id {
		return nil, types.NewValidationError(types.ErrCyclicTarget, "item %d", id)
	}
	item, err = m.loadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if err = m.access.CheckAccess(ctx, item, actor, types.GrantAuthor); err != nil {
		return nil, err
	}
	dest, err := m.loadDestination(ctx, actor, destID)
	if err != nil {
		return nil, err
	}
	if sameParent(item, destID) {
		return item, nil
	}

	holder := m.locks.NewHolder()
	defer holder.ReleaseAll(ctx)
	newScope := scopeFor(dest, item.Owner)
	oldScope := types.ScopeOf(item)
	if err = holder.AcquireAll(ctx, []string{lock.ItemLock(item.ID), lock.ScopeLock(newScope), lock.ScopeLock(oldScope)}); err != nil {
		return nil, err
	}

	item, err = m.loadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sameScope(oldScope, types.ScopeOf(item)) {
		return nil, types.NewLockError(lock.ItemLock(item.ID))
	}
	if dest != nil {
		if dest, err = m.loadItem(ctx, dest.ID); err != nil {
			return nil, err
		}
		cyclic, err := metastore.IsAncestorOf(ctx, m.store, item.ID, dest)
		if err != nil {
			return nil, err
		}
		if cyclic {
			return nil, types.NewValidationError(types.ErrCyclicTarget, "item %d into %d", item.ID, dest.ID)
		}
	}
	name, err := m.resolveName(ctx, newScope, item.Name, item.ID, opt.AutoRename, "")
	if err != nil {
		return nil, err
	}

	var (
		wasRoot = item.IsRoot()
		oldRoot = item.RootOrSelf()
		oldPID  = parentOf(item)
	)
	item.Name = name
	item.ModifiedAt = time.Now()
	if dest == nil {
		item.ParentID, item.RootID = nil, nil
	} else {
		item.ParentID = types.Int64Ptr(dest.ID)
		item.RootID = types.Int64Ptr(dest.RootOrSelf())
	}
	if err = m.store.UpdateItem(ctx, item); err != nil {
		m.logger.Errorw("update item parent failed", "item", item.ID, "err", err)
		return nil, err
	}

	switch {
	case wasRoot && !item.IsRoot():
		if err = m.store.DeleteGrants(ctx, item.ID); err != nil {
			m.logger.Errorw("drop grants of former root failed", "item", item.ID, "err", err)
			return nil, err
		}
	case !wasRoot && item.IsRoot():
		if err = m.access.SetAccessGrants(ctx, item, access.DefaultGrants(item.Owner)); err != nil {
			m.logger.Errorw("init grants of new root failed", "item", item.ID, "err", err)
			return nil, err
		}
	}
	holder.ReleaseAll(ctx)

	m.refreshSizes(ctx, oldPID, parentOf(item))

	if newRoot := item.RootOrSelf(); newRoot != oldRoot && item.IsFolder() {
		if err = m.moveDescendants(ctx, item, wasRoot, newRoot); err != nil {
			return item, err
		}
	}

	m.markIndex(ctx, item)
	m.publicItemActionEvent(types.ActionTypeMove, actor, item)
	return item, nil
}

// moveDescendants points every descendant at the new root. What does not
// fit the sync budget stays queued.
func (m *Manager) moveDescendants(ctx context.Context, item *types.Item, wasRoot bool, newRoot int64) error {
	var (
		ids []int64
		err error
	)
	if wasRoot {
		ids, err = m.store.ListIDsByRoot(ctx, item.ID)
	} else {
		ids, err = metastore.ListDescendantIDs(ctx, m.store, item)
	}
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	task := dispatch.NewTask(types.TaskMove, ids, types.TaskParams{RootID: types.Int64Ptr(newRoot)})
	if err = m.queue.RunNow(ctx, task); err != nil && !types.IsBusy(err) {
		return err
	}
	return nil
}

func (m *Manager) executeMove(ctx context.Context, task *types.QueuedTask, budget dispatch.Budget) ([]int64, error) {
	defer utils.TraceRegion(ctx, "tree.continuation.move")()
	defer logger.CostLog(m.logger.With(zap.Int64("task", task.ID)), "move continuation")()
	if task.Params.RootID == nil {
		return nil, fmt.Errorf("move task %d has no root", task.ID)
	}
	rootID := types.Int64Ptr(*task.Params.RootID)
	return m.forEachLocked(ctx, task.ItemIDs, budget, func(ids []int64) error {
		return m.store.UpdateItemRoot(ctx, ids, rootID)
	})
}

// forEachLocked locks ids chunk by chunk and applies fn to those acquired.
// Busy ids and everything past the budget are returned as remaining.
func (m *Manager) forEachLocked(ctx context.Context, ids []int64, budget dispatch.Budget, fn func(ids []int64) error) ([]int64, error) {
	holder := m.locks.NewHolder()
	defer holder.ReleaseAll(ctx)

	var (
		remaining []int64
		busy      []error
	)
	chunks := lo.Chunk(ids, continuationChunk)
	for i, chunk := range chunks {
		if budget.Exhausted() {
			remaining = append(remaining, lo.Flatten(chunks[i:])...)
			break
		}
		var acquired []int64
		for _, id := range chunk {
			if err := holder.Acquire(ctx, lock.ItemLock(id)); err != nil {
				if types.IsBusy(err) {
					remaining = append(remaining, id)
					busy = append(busy, err)
					continue
				}
				return append(remaining, lo.Flatten(chunks[i:])...), err
			}
			acquired = append(acquired, id)
		}
		if len(acquired) > 0 {
			if err := fn(acquired); err != nil {
				return append(remaining, lo.Flatten(chunks[i:])...), err
			}
		}
		holder.ReleaseAll(ctx)
	}
	return remaining, types.MergeLockErrors(busy...)
}

func sameParent(item *types.Item, destID *int64) bool {
	if destID == nil {
		return item.IsRoot()
	}
	return item.ParentID != nil && *item.ParentID == *destID
}
