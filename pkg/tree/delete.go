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

	"github.com/basenana/nanatree/pkg/lock"
	"github.com/basenana/nanatree/pkg/metastore"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
)

// Delete removes an item and its whole subtree. Items are removed leaves
// first, a folder that still has children is kept for a later pass. Busy
// items survive together with their ancestors and are reported in a single
// lock error, a retry picks up where this call stopped.
func (m *Manager) Delete(ctx context.Context, actor, id int64) (err error) {
	defer utils.TraceRegion(ctx, "tree.delete")()
	defer logOperationLatency("delete", time.Now())
	defer func() { _ = logOperationError("delete", err) }()

	item, err := m.loadItem(ctx, id)
	if err != nil {
		return err
	}
	if err = m.access.CheckAccess(ctx, item, actor, types.GrantAuthor); err != nil {
		return err
	}
	if err = m.removeTree(ctx, item); err != nil {
		return err
	}
	m.publicItemActionEvent(types.ActionTypeDelete, actor, item)
	return nil
}

// removeTree deletes item and its subtree without access checks.
func (m *Manager) removeTree(ctx context.Context, item *types.Item) error {
	descendants, err := metastore.ListDescendantIDs(ctx, m.store, item)
	if err != nil {
		return err
	}

	pending := make([]int64, 0, len(descendants)+1)
	for i := len(descendants) - 1; i >= 0; i-- {
		pending = append(pending, descendants[i])
	}
	pending = append(pending, item.ID)

	var busy []error
	for len(pending) > 0 {
		var (
			next     []int64
			progress bool
		)
		for _, cid := range pending {
			removed, err := m.deleteOne(ctx, cid)
			if err != nil {
				if types.IsBusy(err) {
					busy = append(busy, err)
					continue
				}
				return err
			}
			if !removed {
				next = append(next, cid)
				continue
			}
			progress = true
		}
		if !progress {
			break
		}
		pending = next
	}

	m.refreshSizes(ctx, parentOf(item))
	if err = types.MergeLockErrors(busy...); err != nil {
		return err
	}
	if _, err = m.store.GetItem(ctx, item.ID); err == nil {
		return types.NewValidationError(types.ErrConflict, "item %d got new children while deleting", item.ID)
	}
	return nil
}

// deleteOne removes a single item under its lock. It reports false when the
// item is a folder that still has children. A missing item counts as removed.
func (m *Manager) deleteOne(ctx context.Context, id int64) (bool, error) {
	holder := m.locks.NewHolder()
	defer holder.ReleaseAll(ctx)
	if err := holder.Acquire(ctx, lock.ItemLock(id)); err != nil {
		return false, err
	}

	item, err := m.store.GetItem(ctx, id)
	if err != nil {
		if types.IsNotFound(err) {
			return true, nil
		}
		return false, err
	}
	if item.IsFolder() {
		children, err := m.store.ListChildIDs(ctx, item.ID, types.ChildFilter{IncludeHidden: true})
		if err != nil {
			return false, err
		}
		if len(children) > 0 {
			return false, nil
		}
	}
	if item.HasObject() {
		if err = m.objects.Delete(ctx, item.ObjectID); err != nil {
			m.logger.Errorw("delete object failed", "item", item.ID, "object", item.ObjectID, "err", err)
			return false, types.NewSystemError("delete object", err)
		}
	}
	if item.IsRoot() {
		if err = m.store.DeleteGrants(ctx, item.ID); err != nil {
			return false, err
		}
	}
	if err = m.store.DeleteItem(ctx, item.ID); err != nil {
		if types.IsNotFound(err) {
			return true, nil
		}
		m.logger.Errorw("delete item failed", "item", item.ID, "err", err)
		return false, err
	}
	m.dropIndex(ctx, item.ID)
	return true, nil
}
