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

package lock

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/types"
)

var _ = Describe("TestLockHolder", func() {
	var (
		ctx = context.TODO()
		mgr *Manager
	)
	BeforeEach(func() {
		mgr = NewManager(memMeta, config.Lock{})
	})

	Context("two holders on the same item", func() {
		It("should let only one win", func() {
			h1, h2 := mgr.NewHolder(), mgr.NewHolder()
			Expect(h1.Acquire(ctx, ItemLock(1))).Should(BeNil())

			err := h2.Acquire(ctx, ItemLock(1))
			Expect(types.IsBusy(err)).Should(BeTrue())

			Expect(h1.Acquire(ctx, ItemLock(1))).Should(BeNil())
			h1.ReleaseAll(ctx)
			Expect(h1.Held()).Should(BeEmpty())

			Expect(h2.Acquire(ctx, ItemLock(1))).Should(BeNil())
			h2.ReleaseAll(ctx)
		})
	})

	Context("acquire all", func() {
		It("should roll back on contention", func() {
			h1, h2 := mgr.NewHolder(), mgr.NewHolder()
			Expect(h2.Acquire(ctx, ItemLock(13))).Should(BeNil())

			err := h1.AcquireAll(ctx, ItemLocks(11, 12, 11, 13))
			Expect(types.IsBusy(err)).Should(BeTrue())
			Expect(h1.Held()).Should(BeEmpty())

			h3 := mgr.NewHolder()
			Expect(h3.AcquireAll(ctx, ItemLocks(11, 12))).Should(BeNil())
			Expect(h3.Held()).Should(Equal([]string{"item:11", "item:12"}))
			h3.ReleaseAll(ctx)
			h2.ReleaseAll(ctx)
		})
	})

	Context("locking disabled", func() {
		It("should always succeed", func() {
			disabled := NewManager(memMeta, config.Lock{Disabled: true})
			h1, h2 := disabled.NewHolder(), disabled.NewHolder()
			Expect(h1.Acquire(ctx, RootList)).Should(BeNil())
			Expect(h2.Acquire(ctx, RootList)).Should(BeNil())
		})
	})

	Context("scope lock", func() {
		It("should map scopes to names", func() {
			Expect(ScopeLock(types.SiblingScope{Owner: 1})).Should(Equal(RootList))
			Expect(ScopeLock(types.SiblingScope{ParentID: types.Int64Ptr(5)})).Should(Equal("item:5"))
		})
	})
})
