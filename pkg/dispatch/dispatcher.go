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
	"time"

	"go.uber.org/zap"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/metastore"
	"github.com/basenana/nanatree/utils/logger"
)

const maxRoundsPerTick = 16

// Dispatcher drains the queue periodically and runs maintenance jobs.
type Dispatcher struct {
	queue       *Queue
	store       metastore.TaskStore
	interval    time.Duration
	batch       int
	lease       time.Duration
	maintenance []maintainJob
	logger      *zap.SugaredLogger
}

type maintainJob struct {
	name string
	fn   func(ctx context.Context) error
}

func NewDispatcher(queue *Queue, cfg config.Queue) *Dispatcher {
	return &Dispatcher{
		queue:    queue,
		store:    queue.store,
		interval: cfg.Interval(),
		batch:    cfg.Batch(),
		lease:    cfg.Lease(),
		logger:   logger.NewLogger("dispatcher"),
	}
}

func (d *Dispatcher) AddMaintenance(name string, fn func(ctx context.Context) error) {
	d.maintenance = append(d.maintenance, maintainJob{name: name, fn: fn})
}

func (d *Dispatcher) Run(stopCh chan struct{}) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			d.logger.Infow("stopped")
			return
		case <-ticker.C:
			d.logger.Debugw("find next runnable tasks")
		}

		func() {
			ctx, canF := context.WithTimeout(context.Background(), d.lease)
			defer canF()
			for _, job := range d.maintenance {
				if err := job.fn(ctx); err != nil {
					d.logger.Warnw("maintenance job failed", "job", job.name, "err", err)
				}
			}
			for round := 0; round < maxRoundsPerTick; round++ {
				n, err := d.RunPending(ctx)
				if err != nil {
					d.logger.Errorw("run pending tasks failed", "err", err)
					return
				}
				if n < d.batch || ctx.Err() != nil {
					return
				}
			}
		}()
	}
}

// RunPending claims up to one batch of tasks whose lease expired and runs
// them. It returns the number of claimed tasks.
func (d *Dispatcher) RunPending(ctx context.Context) (int, error) {
	now := time.Now()
	tasks, err := d.store.ClaimTasks(ctx, d.batch, now, now.Add(d.lease))
	if err != nil {
		return 0, err
	}
	for i := range tasks {
		task := tasks[i]
		budget := NewBudget(d.lease * 8 / 10)
		if err = d.queue.execute(ctx, task, budget, d.interval); err != nil {
			d.logger.Warnw("execute task error", "task", task.ID, "kind", task.Kind, "err", err)
			continue
		}
		d.logger.Infow("execute task finish", "task", task.ID, "kind", task.Kind)
	}
	return len(tasks), nil
}
