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

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/types"
)

// countingExecutor handles one id per call unless unlimited, busy ids are kept.
type countingExecutor struct {
	done  map[int64]int
	busy  map[int64]bool
	fatal map[int64]bool
	mux   sync.Mutex
}

func newCountingExecutor() *countingExecutor {
	return &countingExecutor{done: map[int64]int{}, busy: map[int64]bool{}, fatal: map[int64]bool{}}
}

func (c *countingExecutor) Execute(ctx context.Context, task *types.QueuedTask, budget Budget) ([]int64, error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	var (
		remaining []int64
		busy      []string
	)
	for i, id := range task.ItemIDs {
		if budget.Exhausted() {
			remaining = append(remaining, task.ItemIDs[i:]...)
			break
		}
		if c.fatal[id] {
			return task.ItemIDs[i:], fmt.Errorf("item %d broken", id)
		}
		if c.busy[id] {
			remaining = append(remaining, id)
			busy = append(busy, fmt.Sprintf("item:%d", id))
			continue
		}
		c.done[id] += 1
	}
	if len(busy) > 0 {
		return remaining, types.NewLockError(busy...)
	}
	return remaining, nil
}

func zeroBudget() *int {
	v := 0
	return &v
}

var _ = Describe("TestQueueRunNow", func() {
	var (
		ctx  = context.TODO()
		exec *countingExecutor
	)
	BeforeEach(func() {
		exec = newCountingExecutor()
	})

	Context("a task within budget", func() {
		It("should finish and leave nothing queued", func() {
			q := NewQueue(testMeta, config.Queue{})
			q.Register(types.TaskUpdateSizes, exec)
			Expect(q.RunNow(ctx, NewTask(types.TaskUpdateSizes, []int64{1, 2, 2, 3}, types.TaskParams{}))).Should(BeNil())
			Expect(exec.done).Should(Equal(map[int64]int{1: 1, 2: 1, 3: 1}))

			pending, err := q.Pending(ctx)
			Expect(err).Should(BeNil())
			Expect(pending).Should(BeEmpty())
		})
	})

	Context("a task with busy items", func() {
		It("should requeue only the busy ids", func() {
			q := NewQueue(testMeta, config.Queue{})
			q.Register(types.TaskUpdateSizes, exec)
			exec.busy[2] = true

			err := q.RunNow(ctx, NewTask(types.TaskUpdateSizes, []int64{1, 2, 3}, types.TaskParams{}))
			Expect(types.IsBusy(err)).Should(BeTrue())

			pending, err := q.Pending(ctx)
			Expect(err).Should(BeNil())
			Expect(pending).Should(HaveLen(1))
			Expect(pending[0].ItemIDs).Should(Equal([]int64{2}))

			exec.busy[2] = false
			d := NewDispatcher(q, config.Queue{})
			n, err := d.RunPending(ctx)
			Expect(err).Should(BeNil())
			Expect(n).Should(Equal(1))
			Expect(exec.done[2]).Should(Equal(1))

			pending, err = q.Pending(ctx)
			Expect(err).Should(BeNil())
			Expect(pending).Should(BeEmpty())
		})
	})

	Context("a dispatched task still busy", func() {
		It("should wait one interval before the next claim", func() {
			q := NewQueue(testMeta, config.Queue{})
			q.Register(types.TaskUpdateSizes, exec)
			exec.busy[9] = true
			Expect(q.Enqueue(ctx, NewTask(types.TaskUpdateSizes, []int64{9}, types.TaskParams{}))).Should(BeNil())

			d := NewDispatcher(q, config.Queue{IntervalSeconds: 60})
			n, err := d.RunPending(ctx)
			Expect(err).Should(BeNil())
			Expect(n).Should(Equal(1))

			n, err = d.RunPending(ctx)
			Expect(err).Should(BeNil())
			Expect(n).Should(Equal(0))

			pending, err := q.Pending(ctx)
			Expect(err).Should(BeNil())
			Expect(pending).Should(HaveLen(1))
			Expect(pending[0].ItemIDs).Should(Equal([]int64{9}))
			Expect(pending[0].ClaimedUntil.After(time.Now().Add(30 * time.Second))).Should(BeTrue())
		})
	})

	Context("a task out of budget", func() {
		It("should leave the whole task to the dispatcher", func() {
			q := NewQueue(testMeta, config.Queue{SyncBudgetMs: zeroBudget()})
			q.Register(types.TaskCopy, exec)
			Expect(q.RunNow(ctx, NewTask(types.TaskCopy, []int64{7, 8}, types.TaskParams{DestinationID: types.Int64Ptr(1)}))).Should(BeNil())
			Expect(exec.done).Should(BeEmpty())

			d := NewDispatcher(q, config.Queue{})
			_, err := d.RunPending(ctx)
			Expect(err).Should(BeNil())
			Expect(exec.done).Should(Equal(map[int64]int{7: 1, 8: 1}))
		})
	})

	Context("a task hitting a fatal error", func() {
		It("should be dropped", func() {
			q := NewQueue(testMeta, config.Queue{})
			q.Register(types.TaskMove, exec)
			exec.fatal[5] = true
			err := q.RunNow(ctx, NewTask(types.TaskMove, []int64{4, 5, 6}, types.TaskParams{}))
			Expect(err).ShouldNot(BeNil())
			Expect(types.IsBusy(err)).Should(BeFalse())
			Expect(exec.done).Should(Equal(map[int64]int{4: 1}))

			pending, err := q.Pending(ctx)
			Expect(err).Should(BeNil())
			Expect(pending).Should(BeEmpty())
		})
	})

	Context("a panicking executor", func() {
		It("should be treated as fatal", func() {
			q := NewQueue(testMeta, config.Queue{})
			q.Register(types.TaskRebuildUsage, ExecutorFunc(func(ctx context.Context, task *types.QueuedTask, budget Budget) ([]int64, error) {
				panic("boom")
			}))
			err := q.RunNow(ctx, NewTask(types.TaskRebuildUsage, nil, types.TaskParams{}))
			Expect(err).ShouldNot(BeNil())
		})
	})

	Context("a claimed task", func() {
		It("should not be picked by the dispatcher before its lease expires", func() {
			q := NewQueue(testMeta, config.Queue{})
			Expect(testMeta.CreateTask(ctx, &types.QueuedTask{Kind: types.TaskCopy, ItemIDs: []int64{1},
				ClaimedUntil: time.Now().Add(time.Hour)})).Should(BeNil())
			d := NewDispatcher(q, config.Queue{})
			n, err := d.RunPending(ctx)
			Expect(err).Should(BeNil())
			Expect(n).Should(Equal(0))
		})
	})
})

var _ = Describe("TestBudget", func() {
	It("should expire", func() {
		Expect(Unlimited().Exhausted()).Should(BeFalse())
		Expect(NewBudget(0).Exhausted()).Should(BeTrue())
		Expect(NewBudget(time.Hour).Exhausted()).Should(BeFalse())
	})
})
