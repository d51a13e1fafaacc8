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

	"go.uber.org/zap"

	"github.com/basenana/nanatree/pkg/dispatch"
	"github.com/basenana/nanatree/pkg/lock"
	"github.com/basenana/nanatree/pkg/metastore"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
	"github.com/basenana/nanatree/utils/logger"
)

type CopyOption struct {
	NewName    string
	AutoRename bool
}

// Copy duplicates an item and its subtree under destID, or into the root
// list of actor when destID is nil. A folder copy stays disabled until all
// of its children are copied, the queued continuation resumes into it.
func (m *Manager) Copy(ctx context.Context, actor, id int64, destID *int64, opt CopyOption) (item *types.Item, err error) {
	defer utils.TraceRegion(ctx, "tree.copy")()
	defer logOperationLatency("copy", time.Now())
	defer func() { _ = logOperationError("copy", err) }()

	src, err := m.loadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if err = m.access.CheckAccess(ctx, src, actor, types.GrantView); err != nil {
		return nil, err
	}
	name := src.Name
	if opt.NewName != "" {
		name = opt.NewName
	}
	if err = m.names.CheckName(name, src.Kind); err != nil {
		return nil, err
	}
	dest, err := m.loadDestination(ctx, actor, destID)
	if err != nil {
		return nil, err
	}
	if dest != nil {
		cyclic, err := metastore.IsAncestorOf(ctx, m.store, src.ID, dest)
		if err != nil {
			return nil, err
		}
		if cyclic {
			return nil, types.NewValidationError(types.ErrCyclicTarget, "item %d into %d", src.ID, dest.ID)
		}
	}
	return m.copyItem(ctx, actor, src, dest, name, opt.AutoRename, "")
}

// Duplicate copies an item next to itself with a generated name like "a copy.txt".
func (m *Manager) Duplicate(ctx context.Context, actor, id int64) (item *types.Item, err error) {
	defer utils.TraceRegion(ctx, "tree.duplicate")()
	defer logOperationLatency("duplicate", time.Now())
	defer func() { _ = logOperationError("duplicate", err) }()

	src, err := m.loadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if err = m.access.CheckAccess(ctx, src, actor, types.GrantView); err != nil {
		return nil, err
	}
	dest, err := m.loadDestination(ctx, actor, src.ParentID)
	if err != nil {
		return nil, err
	}
	return m.copyItem(ctx, actor, src, dest, src.Name, true, m.names.CopySuffix())
}

func (m *Manager) copyItem(ctx context.Context, actor int64, src, dest *types.Item, name string, autoRename bool, suffix string) (*types.Item, error) {
	cp, err := m.cloneItem(ctx, actor, src, dest, name)
	if err != nil {
		return nil, err
	}
	if err = m.insertItem(ctx, actor, dest, cp, autoRename, suffix); err != nil {
		if cp.ObjectID != "" {
			if dErr := m.objects.Delete(ctx, cp.ObjectID); dErr != nil {
				m.logger.Warnw("clean up orphan object failed", "object", cp.ObjectID, "err", dErr)
			}
		}
		return nil, err
	}
	m.publicItemActionEvent(types.ActionTypeCopy, actor, cp)

	if !cp.IsFolder() {
		m.markIndex(ctx, cp)
		if dest != nil {
			m.refreshSizes(ctx, dest.ID)
		}
		return cp, nil
	}

	children, err := m.store.ListChildIDs(ctx, src.ID, types.ChildFilter{})
	if err != nil {
		return cp, err
	}
	if len(children) == 0 {
		m.finishCopy(ctx, cp, true)
		return m.loadItem(ctx, cp.ID)
	}
	task := dispatch.NewTask(types.TaskCopy, children, types.TaskParams{DestinationID: types.Int64Ptr(cp.ID), Actor: actor})
	if err = m.queue.RunNow(ctx, task); err != nil && !types.IsBusy(err) {
		return cp, err
	}
	return m.loadItem(ctx, cp.ID)
}

// cloneItem builds the copy of src, content is duplicated so both trees stay independent.
func (m *Manager) cloneItem(ctx context.Context, actor int64, src, dest *types.Item, name string) (*types.Item, error) {
	cp := newItem(name, src.Kind, actor, dest)
	cp.Description = src.Description
	cp.MimeType = src.MimeType
	switch {
	case src.IsFolder():
		cp.Disabled = true
	case src.HasObject():
		info, err := m.objects.Duplicate(ctx, src.ObjectID, name)
		if err != nil {
			m.logger.Errorw("duplicate object failed", "item", src.ID, "object", src.ObjectID, "err", err)
			return nil, types.NewSystemError("duplicate object", err)
		}
		cp.ObjectID = info.ID
		cp.Size = types.Int64Ptr(info.Size)
	default:
		cp.Size = types.Int64Ptr(src.SizeOrZero())
	}
	return cp, nil
}

type copyWalk struct {
	actor int64
	busy  []error
}

func (m *Manager) executeCopy(ctx context.Context, task *types.QueuedTask, budget dispatch.Budget) ([]int64, error) {
	defer utils.TraceRegion(ctx, "tree.continuation.copy")()
	defer logger.CostLog(m.logger.With(zap.Int64("task", task.ID)), "copy continuation")()
	if task.Params.DestinationID == nil {
		return nil, fmt.Errorf("copy task %d has no destination", task.ID)
	}
	dst, err := m.store.GetItem(ctx, *task.Params.DestinationID)
	if err != nil {
		if types.IsNotFound(err) {
			m.logger.Warnw("copy destination is gone, drop task", "task", task.ID, "destination", *task.Params.DestinationID)
			return nil, nil
		}
		return task.ItemIDs, err
	}

	w := &copyWalk{actor: task.Params.Actor}
	remaining, err := m.copyInto(ctx, w, task.ItemIDs, dst, budget)
	if err != nil {
		return remaining, err
	}
	if len(remaining) == 0 {
		m.finishCopy(ctx, dst, true)
	}
	return remaining, types.MergeLockErrors(w.busy...)
}

func (m *Manager) copyInto(ctx context.Context, w *copyWalk, srcIDs []int64, dst *types.Item, budget dispatch.Budget) ([]int64, error) {
	var remaining []int64
	for i, id := range srcIDs {
		if budget.Exhausted() {
			return append(remaining, srcIDs[i:]...), nil
		}
		src, err := m.store.GetItem(ctx, id)
		if err != nil {
			if types.IsNotFound(err) {
				continue
			}
			return append(remaining, srcIDs[i:]...), err
		}
		if src.Hidden || src.Disabled {
			continue
		}
		done, err := m.copyChild(ctx, w, src, dst, budget)
		if err != nil {
			if types.IsBusy(err) {
				w.busy = append(w.busy, err)
				remaining = append(remaining, id)
				continue
			}
			return append(remaining, srcIDs[i:]...), err
		}
		if !done {
			remaining = append(remaining, id)
		}
	}
	return remaining, nil
}

// copyChild copies src into dst. An enabled item of the same name means it
// was copied already, a disabled folder is resumed.
func (m *Manager) copyChild(ctx context.Context, w *copyWalk, src, dst *types.Item, budget dispatch.Budget) (bool, error) {
	holder := m.locks.NewHolder()
	defer holder.ReleaseAll(ctx)
	if err := holder.Acquire(ctx, lock.ItemLock(dst.ID)); err != nil {
		return false, err
	}

	var target *types.Item
	existing, err := m.store.FindChild(ctx, types.SiblingScope{ParentID: types.Int64Ptr(dst.ID)}, src.Name)
	switch {
	case err == nil && !existing.Disabled:
		return true, nil
	case err == nil && existing.IsFolder():
		target = existing
	case err != nil && !types.IsNotFound(err):
		return false, err
	default:
		cp, err := m.cloneItem(ctx, w.actor, src, dst, src.Name)
		if err != nil {
			return false, err
		}
		if err = m.store.CreateItem(ctx, cp); err != nil {
			m.logger.Errorw("create copied item failed", "source", src.ID, "destination", dst.ID, "err", err)
			return false, err
		}
		m.markIndex(ctx, cp)
		if !cp.IsFolder() {
			return true, nil
		}
		target = cp
	}
	holder.ReleaseAll(ctx)

	children, err := m.store.ListChildIDs(ctx, src.ID, types.ChildFilter{})
	if err != nil {
		return false, err
	}
	rest, err := m.copyInto(ctx, w, children, target, budget)
	if err != nil {
		return false, err
	}
	if len(rest) > 0 {
		return false, nil
	}
	m.finishCopy(ctx, target, false)
	return true, nil
}

// finishCopy enables a completed folder copy and computes its size. The
// top level copy also refreshes its ancestors.
func (m *Manager) finishCopy(ctx context.Context, folder *types.Item, top bool) {
	holder := m.locks.NewHolder()
	if err := holder.Acquire(ctx, lock.ItemLock(folder.ID)); err != nil {
		m.logger.Warnw("enable copied folder deferred", "item", folder.ID, "err", err)
		return
	}
	fresh, err := m.store.GetItem(ctx, folder.ID)
	if err != nil {
		holder.ReleaseAll(ctx)
		m.logger.Warnw("reload copied folder failed", "item", folder.ID, "err", err)
		return
	}
	fresh.Disabled = false
	fresh.Size = nil
	fresh.ModifiedAt = time.Now()
	err = m.store.UpdateItem(ctx, fresh)
	holder.ReleaseAll(ctx)
	if err != nil {
		m.logger.Errorw("enable copied folder failed", "item", folder.ID, "err", err)
		return
	}
	m.markIndex(ctx, fresh)

	if top {
		m.refreshSizes(ctx, fresh.ID)
		return
	}
	if _, err = m.sizes.UpdateSizeDownward(ctx, fresh, false); err != nil {
		m.logger.Infow("size of copied folder deferred", "item", fresh.ID, "err", err)
	}
}
