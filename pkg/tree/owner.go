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
	"strconv"
	"time"

	"github.com/basenana/nanatree/pkg/dispatch"
	"github.com/basenana/nanatree/pkg/lock"
	"github.com/basenana/nanatree/pkg/metastore"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
)

// ChangeOwner hands an item to newOwner. A root keeps its shares but the
// previous owner loses the implicit access. With recursive set the whole
// subtree follows, what does not fit the sync budget stays queued.
func (m *Manager) ChangeOwner(ctx context.Context, actor, id, newOwner int64, recursive bool) (item *types.Item, err error) {
	defer utils.TraceRegion(ctx, "tree.changeowner")()
	defer logOperationLatency("change_owner", time.Now())
	defer func() { _ = logOperationError("change_owner", err) }()

	item, err = m.loadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor != item.Owner && !m.ident.HasPermission(ctx, actor, types.PermAdminister) {
		return nil, types.ErrNoPerm
	}
	if newOwner != m.access.PublicUser() {
		if _, err = m.ident.LookupAccount(ctx, strconv.FormatInt(newOwner, 10)); err != nil {
			return nil, err
		}
	}
	if item.Owner == newOwner && !recursive {
		return item, nil
	}

	holder := m.locks.NewHolder()
	defer holder.ReleaseAll(ctx)
	names := []string{lock.ItemLock(item.ID)}
	if item.IsRoot() {
		names = append(names, lock.RootList)
	}
	if err = holder.AcquireAll(ctx, names); err != nil {
		return nil, err
	}
	if item, err = m.loadItem(ctx, id); err != nil {
		return nil, err
	}

	if item.Owner != newOwner {
		var grants types.Grants
		if item.IsRoot() {
			unique, err := m.names.IsNameUnique(ctx, m.store, types.SiblingScope{Owner: newOwner}, item.Name, item.ID)
			if err != nil {
				return nil, err
			}
			if !unique {
				return nil, types.NewValidationError(types.ErrNameConflict, "%s in root list of %d", item.Name, newOwner)
			}
			if grants, err = m.access.GetAccessGrants(ctx, item); err != nil {
				return nil, err
			}
			delete(grants, item.Owner)
		}

		item.Owner = newOwner
		item.ModifiedAt = time.Now()
		if err = m.store.UpdateItem(ctx, item); err != nil {
			m.logger.Errorw("update item owner failed", "item", item.ID, "err", err)
			return nil, err
		}
		if item.IsRoot() {
			if err = m.access.SetAccessGrants(ctx, item, grants); err != nil {
				m.logger.Errorw("reset root grants failed", "item", item.ID, "err", err)
				return nil, err
			}
		}
	}
	holder.ReleaseAll(ctx)
	m.publicItemActionEvent(types.ActionTypeChangeOwner, actor, item)

	if recursive && item.IsFolder() {
		ids, err := metastore.ListDescendantIDs(ctx, m.store, item)
		if err != nil {
			return item, err
		}
		if len(ids) > 0 {
			task := dispatch.NewTask(types.TaskChangeOwner, ids, types.TaskParams{NewOwner: types.Int64Ptr(newOwner), Actor: actor})
			if err = m.queue.RunNow(ctx, task); err != nil && !types.IsBusy(err) {
				return item, err
			}
		}
	}

	if err = m.queue.Enqueue(ctx, dispatch.NewTask(types.TaskRebuildUsage, nil, types.TaskParams{Actor: actor})); err != nil {
		m.logger.Warnw("enqueue usage rebuild failed", "err", err)
	}
	return item, nil
}

func (m *Manager) executeChangeOwner(ctx context.Context, task *types.QueuedTask, budget dispatch.Budget) ([]int64, error) {
	defer utils.TraceRegion(ctx, "tree.continuation.changeowner")()
	if task.Params.NewOwner == nil {
		return nil, fmt.Errorf("change owner task %d has no owner", task.ID)
	}
	newOwner := *task.Params.NewOwner
	return m.forEachLocked(ctx, task.ItemIDs, budget, func(ids []int64) error {
		return m.store.UpdateItemOwner(ctx, ids, newOwner)
	})
}

// RebuildUsage recomputes the per owner usage totals from the item table.
func (m *Manager) RebuildUsage(ctx context.Context) (err error) {
	defer utils.TraceRegion(ctx, "tree.rebuildusage")()
	defer logOperationLatency("rebuild_usage", time.Now())
	defer func() { _ = logOperationError("rebuild_usage", err) }()

	usages, err := m.store.CountUsage(ctx)
	if err != nil {
		m.logger.Errorw("count usage failed", "err", err)
		return err
	}
	if err = m.store.ReplaceUsage(ctx, usages); err != nil {
		m.logger.Errorw("replace usage failed", "err", err)
		return err
	}
	m.logger.Infow("usage rebuilt", "owners", len(usages))
	return nil
}

func (m *Manager) executeRebuildUsage(ctx context.Context, task *types.QueuedTask, budget dispatch.Budget) ([]int64, error) {
	return nil, m.RebuildUsage(ctx)
}
