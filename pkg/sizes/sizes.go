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

package sizes

import (
	"context"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/basenana/nanatree/pkg/dispatch"
	"github.com/basenana/nanatree/pkg/lock"
	"github.com/basenana/nanatree/pkg/metastore"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
	"github.com/basenana/nanatree/utils/logger"
)

// Engine maintains folder sizes. Each folder write happens under that
// folder's lock, a busy folder is skipped and retried through the queue.
type Engine struct {
	store  metastore.ItemStore
	locks  *lock.Manager
	queue  *dispatch.Queue
	logger *zap.SugaredLogger
}

func NewEngine(store metastore.ItemStore, locks *lock.Manager, queue *dispatch.Queue) *Engine {
	e := &Engine{
		store:  store,
		locks:  locks,
		queue:  queue,
		logger: logger.NewLogger("sizeEngine"),
	}
	queue.Register(types.TaskUpdateSizes, e)
	return e
}

type walk struct {
	holder  *lock.Holder
	busy    []string
	busyIDs []int64
}

func (w *walk) markBusy(id int64) {
	w.busy = append(w.busy, lock.ItemLock(id))
	w.busyIDs = append(w.busyIDs, id)
}

func (w *walk) err() error {
	if len(w.busy) == 0 {
		return nil
	}
	return types.NewLockError(w.busy...)
}

// UpdateSizeDownward recomputes the size of item from its subtree. A folder
// with a known size is returned as is unless overwrite is set. A nil size
// means some folder below was busy and the sum is incomplete.
func (e *Engine) UpdateSizeDownward(ctx context.Context, item *types.Item, overwrite bool) (*int64, error) {
	w := &walk{holder: e.locks.NewHolder()}
	defer w.holder.ReleaseAll(ctx)
	size, err := e.downward(ctx, w, item, overwrite)
	if err != nil {
		return nil, err
	}
	return size, w.err()
}

// UpdateSizeUpward fills stale folders from item to its root using the
// known sizes of direct children only. A stale grandchild is counted as zero
// until the next downward pass.
func (e *Engine) UpdateSizeUpward(ctx context.Context, item *types.Item) error {
	w := &walk{holder: e.locks.NewHolder()}
	defer w.holder.ReleaseAll(ctx)
	if err := e.upward(ctx, w, item); err != nil {
		return err
	}
	return w.err()
}

// UpdateSizes queues an updatesizes task for ids and runs it at once.
func (e *Engine) UpdateSizes(ctx context.Context, ids []int64, overwrite bool) error {
	if len(ids) == 0 {
		return nil
	}
	task := dispatch.NewTask(types.TaskUpdateSizes, ids, types.TaskParams{Overwrite: overwrite})
	return e.queue.RunNow(ctx, task)
}

// RefreshSizes invalidates ids and every folder above them, then recomputes
// them like UpdateSizes. Writers call it after changing a folder's children.
func (e *Engine) RefreshSizes(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	task := dispatch.NewTask(types.TaskUpdateSizes, ids, types.TaskParams{Invalidate: true})
	return e.queue.RunNow(ctx, task)
}

// Execute runs downward then upward per id. Busy folders become the
// remaining ids so the retry resumes right where the walk stopped.
func (e *Engine) Execute(ctx context.Context, task *types.QueuedTask, budget dispatch.Budget) ([]int64, error) {
	defer utils.TraceRegion(ctx, "sizes.execute")()
	w := &walk{holder: e.locks.NewHolder()}
	defer w.holder.ReleaseAll(ctx)

	var remaining []int64
	for i, id := range task.ItemIDs {
		if budget.Exhausted() {
			remaining = append(remaining, task.ItemIDs[i:]...)
			break
		}
		item, err := e.store.GetItem(ctx, id)
		if err != nil {
			if types.IsNotFound(err) {
				continue
			}
			return append(remaining, task.ItemIDs[i:]...), err
		}

		if task.Params.Invalidate {
			ok, err := e.invalidate(ctx, w, item)
			if err != nil {
				return append(remaining, task.ItemIDs[i:]...), err
			}
			if !ok {
				continue
			}
		}

		busyBefore := len(w.busy)
		if _, err = e.downward(ctx, w, item, task.Params.Overwrite); err != nil {
			return append(remaining, task.ItemIDs[i:]...), err
		}
		if len(w.busy) > busyBefore {
			continue
		}
		if err = e.upward(ctx, w, item); err != nil {
			return append(remaining, task.ItemIDs[i:]...), err
		}
	}
	remaining = append(remaining, w.busyIDs...)
	if len(w.busy) > 0 {
		e.logger.Infow("size update left busy items", "task", task.ID, "busy", len(w.busy))
	}
	return remaining, w.err()
}

func (e *Engine) downward(ctx context.Context, w *walk, item *types.Item, overwrite bool) (*int64, error) {
	if !item.IsFolder() {
		return types.Int64Ptr(item.SizeOrZero()), nil
	}
	if item.Size != nil && !overwrite {
		return item.Size, nil
	}

	folders, err := e.store.ListChildren(ctx, item.ID, types.ChildFilter{Kinds: []types.Kind{types.FolderKind}})
	if err != nil {
		return nil, err
	}
	var (
		sum      int64
		complete = true
	)
	for _, folder := range folders {
		if folder.Disabled {
			continue
		}
		size, err := e.downward(ctx, w, folder, overwrite)
		if err != nil {
			return nil, err
		}
		if size == nil {
			complete = false
			continue
		}
		sum += *size
	}
	if !complete {
		return nil, nil
	}

	name := lock.ItemLock(item.ID)
	if err = w.holder.Acquire(ctx, name); err != nil {
		if types.IsBusy(err) {
			w.markBusy(item.ID)
			return nil, nil
		}
		return nil, err
	}
	defer w.holder.Release(ctx, name)

	// subfolders may have been invalidated since they were summed
	folders, err = e.store.ListChildren(ctx, item.ID, types.ChildFilter{Kinds: []types.Kind{types.FolderKind}})
	if err != nil {
		return nil, err
	}
	sum = 0
	for _, folder := range folders {
		if folder.Disabled {
			continue
		}
		if folder.Size == nil {
			return nil, nil
		}
		sum += *folder.Size
	}

	files, err := e.store.SumChildrenSize(ctx, item.ID, types.ContentKinds)
	if err != nil {
		return nil, err
	}
	sum += files
	if err = e.store.SetItemSize(ctx, item.ID, &sum); err != nil {
		if types.IsNotFound(err) {
			return types.Int64Ptr(0), nil
		}
		return nil, err
	}
	item.Size = types.Int64Ptr(sum)
	return item.Size, nil
}

func (e *Engine) upward(ctx context.Context, w *walk, item *types.Item) error {
	current := item
	for depth := 0; depth < maxDepth; depth++ {
		if current.IsFolder() && current.Size == nil {
			if err := e.refreshFromChildren(ctx, w, current); err != nil {
				return err
			}
		}
		if current.ParentID == nil {
			return nil
		}
		parent, err := e.store.GetItem(ctx, *current.ParentID)
		if err != nil {
			if types.IsNotFound(err) {
				return nil
			}
			return err
		}
		current = parent
	}
	e.logger.Warnw("upward size update stopped at max depth", "item", item.ID)
	return nil
}

// invalidate clears the size of item and of every folder above it. All of
// them are locked together first, a busy chain leaves nothing cleared.
func (e *Engine) invalidate(ctx context.Context, w *walk, item *types.Item) (bool, error) {
	chain, err := metastore.ListAncestors(ctx, e.store, item)
	if err != nil && !types.IsNotFound(err) {
		return false, err
	}
	folders := lo.Filter(append([]*types.Item{item}, chain...), func(f *types.Item, _ int) bool {
		return f.IsFolder()
	})
	names := lo.Map(folders, func(f *types.Item, _ int) string {
		return lock.ItemLock(f.ID)
	})
	if err = w.holder.AcquireAll(ctx, names); err != nil {
		if types.IsBusy(err) {
			w.markBusy(item.ID)
			return false, nil
		}
		return false, err
	}
	defer func() {
		for _, name := range names {
			w.holder.Release(ctx, name)
		}
	}()

	for _, folder := range folders {
		if err = e.store.SetItemSize(ctx, folder.ID, nil); err != nil && !types.IsNotFound(err) {
			return false, err
		}
		folder.Size = nil
	}
	return true, nil
}

func (e *Engine) refreshFromChildren(ctx context.Context, w *walk, folder *types.Item) error {
	name := lock.ItemLock(folder.ID)
	if err := w.holder.Acquire(ctx, name); err != nil {
		if types.IsBusy(err) {
			w.markBusy(folder.ID)
			return nil
		}
		return err
	}
	defer w.holder.Release(ctx, name)

	sum, err := e.store.SumChildrenSize(ctx, folder.ID, nil)
	if err != nil {
		return err
	}
	if err = e.store.SetItemSize(ctx, folder.ID, &sum); err != nil {
		if types.IsNotFound(err) {
			return nil
		}
		return err
	}
	folder.Size = types.Int64Ptr(sum)
	return nil
}

const maxDepth = 1024
