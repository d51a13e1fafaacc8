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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/basenana/nanatree/pkg/types"
)

var (
	taskExecutionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_task_execution_latency_seconds",
			Help:    "The latency of dispatch task execution.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		},
		[]string{"kind"},
	)
	taskExecutionErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_task_execution_errors",
			Help: "This count of dispatch task encountering errors",
		},
		[]string{"kind"},
	)
	taskFinishStatusCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_task_finished",
			Help: "This count of dispatch task finished by status",
		},
		[]string{"kind", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		taskExecutionLatency,
		taskExecutionErrorCounter,
		taskFinishStatusCounter,
	)
}

const (
	taskStatusSucceed  = "succeed"
	taskStatusRequeued = "requeued"
	taskStatusFailed   = "failed"
)

// Executor runs the continuation of one task kind. It must tolerate being
// invoked again with ids it already handled, and returns the ids left to do.
// A busy error with remaining ids requeues them, any other error is fatal.
type Executor interface {
	Execute(ctx context.Context, task *types.QueuedTask, budget Budget) (remaining []int64, err error)
}

type ExecutorFunc func(ctx context.Context, task *types.QueuedTask, budget Budget) ([]int64, error)

func (f ExecutorFunc) Execute(ctx context.Context, task *types.QueuedTask, budget Budget) ([]int64, error) {
	return f(ctx, task, budget)
}

// Budget bounds the synchronous work of a continuation.
type Budget struct {
	deadline  time.Time
	unlimited bool
}

func NewBudget(d time.Duration) Budget {
	return Budget{deadline: time.Now().Add(d)}
}

func Unlimited() Budget {
	return Budget{unlimited: true}
}

func (b Budget) Exhausted() bool {
	if b.unlimited {
		return false
	}
	return !time.Now().Before(b.deadline)
}

func logTaskExecutionLatency(kind types.TaskKind, startAt time.Time) {
	taskExecutionLatency.WithLabelValues(string(kind)).Observe(time.Since(startAt).Seconds())
}
