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

package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/metastore"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
	"github.com/basenana/nanatree/utils/logger"
)

// Queue is the durable continuation queue. Every continuation is written
// down before it runs so an interrupted call is finished by the dispatcher.
type Queue struct {
	store      metastore.TaskStore
	executors  map[types.TaskKind]Executor
	syncBudget time.Duration
	lease      time.Duration
	mux        sync.RWMutex
	logger     *zap.SugaredLogger
}

func NewQueue(store metastore.TaskStore, cfg config.Queue) *Queue {
	return &Queue{
		store:      store,
		executors:  make(map[types.TaskKind]Executor),
		syncBudget: cfg.SyncBudget(),
		lease:      cfg.Lease(),
		logger:     logger.NewLogger("taskQueue"),
	}
}

func (q *Queue) Register(kind types.TaskKind, exec Executor) {
	q.mux.Lock()
	q.executors[kind] = exec
	q.mux.Unlock()
}

func (q *Queue) executor(kind types.TaskKind) Executor {
	q.mux.RLock()
	defer q.mux.RUnlock()
	return q.executors[kind]
}

func NewTask(kind types.TaskKind, ids []int64, params types.TaskParams) *types.QueuedTask {
	return &types.QueuedTask{
		Kind:      kind,
		ItemIDs:   lo.Uniq(ids),
		Params:    params,
		CreatedAt: time.Now(),
	}
}

// Enqueue stores a task for the dispatcher only.
func (q *Queue) Enqueue(ctx context.Context, task *types.QueuedTask) error {
	task.ItemIDs = lo.Uniq(task.ItemIDs)
	task.ClaimedUntil = time.Time{}
	if err := q.store.CreateTask(ctx, task); err != nil {
		q.logger.Errorw("enqueue task failed", "kind", task.Kind, "err", err)
		return err
	}
	q.logger.Debugw("task enqueued", "task", task.ID, "kind", task.Kind, "items", len(task.ItemIDs))
	return nil
}

// RunNow stores the task already claimed by this call, then runs it under
// the sync budget. Whatever is left is released to the dispatcher.
func (q *Queue) RunNow(ctx context.Context, task *types.QueuedTask) error {
	task.ItemIDs = lo.Uniq(task.ItemIDs)
	task.ClaimedUntil = time.Now().Add(q.lease)
	task.Attempts = 1
	if err := q.store.CreateTask(ctx, task); err != nil {
		q.logger.Errorw("create task failed", "kind", task.Kind, "err", err)
		return err
	}
	return q.execute(ctx, task, NewBudget(q.syncBudget), 0)
}

// execute runs one claimed task. A task requeued on busy items is not
// claimable again before retryAfter elapses.
func (q *Queue) execute(ctx context.Context, task *types.QueuedTask, budget Budget, retryAfter time.Duration) (err error) {
	defer utils.TraceRegion(ctx, "dispatch.execute")()
	exec := q.executor(task.Kind)
	if exec == nil {
		return fmt.Errorf("task kind %s has no executor registered", task.Kind)
	}

	startAt := time.Now()
	remaining, err := q.safeExecute(ctx, exec, task, budget)
	logTaskExecutionLatency(task.Kind, startAt)

	if err != nil && !types.IsBusy(err) {
		taskExecutionErrorCounter.WithLabelValues(string(task.Kind)).Inc()
		taskFinishStatusCounter.WithLabelValues(string(task.Kind), taskStatusFailed).Inc()
		q.logger.Errorw("task aborted on fatal error", "task", task.ID, "kind", task.Kind,
			"remaining", len(remaining), "attempts", task.Attempts, "err", err)
		if dErr := q.store.DeleteTask(ctx, task.ID); dErr != nil {
			q.logger.Errorw("delete failed task error", "task", task.ID, "err", dErr)
		}
		return err
	}

	if len(remaining) == 0 {
		taskFinishStatusCounter.WithLabelValues(string(task.Kind), taskStatusSucceed).Inc()
		if dErr := q.store.DeleteTask(ctx, task.ID); dErr != nil {
			q.logger.Errorw("delete finished task error", "task", task.ID, "err", dErr)
			return dErr
		}
		q.logger.Debugw("task finished", "task", task.ID, "kind", task.Kind)
		return err
	}

	taskFinishStatusCounter.WithLabelValues(string(task.Kind), taskStatusRequeued).Inc()
	task.ItemIDs = lo.Uniq(remaining)
	task.ClaimedUntil = time.Time{}
	if types.IsBusy(err) && retryAfter > 0 {
		task.ClaimedUntil = time.Now().Add(retryAfter)
	}
	if uErr := q.store.UpdateTask(ctx, task); uErr != nil {
		q.logger.Errorw("requeue task failed", "task", task.ID, "err", uErr)
		return uErr
	}
	q.logger.Infow("task requeued", "task", task.ID, "kind", task.Kind, "remaining", len(task.ItemIDs), "err", err)
	return err
}

func (q *Queue) safeExecute(ctx context.Context, exec Executor, task *types.QueuedTask, budget Budget) (remaining []int64, err error) {
	defer func() {
		if rErr := utils.Recover(recover()); rErr != nil {
			remaining, err = task.ItemIDs, rErr
		}
	}()
	return exec.Execute(ctx, task, budget)
}

func (q *Queue) Pending(ctx context.Context) ([]*types.QueuedTask, error) {
	return q.store.ListTasks(ctx)
}
