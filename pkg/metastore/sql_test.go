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

package metastore

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basenana/nanatree/pkg/types"
)

var _ = Describe("TestSqliteItemOperation", func() {
	var (
		ctx   = context.TODO()
		meta  Meta
		root  *types.Item
		owner int64 = 1001
	)

	BeforeEach(func() {
		meta = buildNewMemoryMetaStore()
		root = newTestItem("docs", types.FolderKind, owner, nil, nil)
		Expect(meta.CreateItem(ctx, root)).Should(BeNil())
	})

	Context("create and fetch item", func() {
		It("should keep nullable fields", func() {
			got, err := meta.GetItem(ctx, root.ID)
			Expect(err).Should(BeNil())
			Expect(got.Name).Should(Equal("docs"))
			Expect(got.ParentID).Should(BeNil())
			Expect(got.Size).Should(BeNil())
			Expect(got.IsRoot()).Should(BeTrue())

			file := newTestItem("a.txt", types.FileKind, owner, root, types.Int64Ptr(12))
			Expect(meta.CreateItem(ctx, file)).Should(BeNil())
			got, err = meta.GetItem(ctx, file.ID)
			Expect(err).Should(BeNil())
			Expect(*got.ParentID).Should(Equal(root.ID))
			Expect(*got.RootID).Should(Equal(root.ID))
			Expect(*got.Size).Should(Equal(int64(12)))
		})
		It("should return not found for missing item", func() {
			_, err := meta.GetItem(ctx, 42)
			Expect(err).Should(Equal(types.ErrNotFound))
		})
	})

	Context("update and delete item", func() {
		It("should clear size to null", func() {
			root.Size = types.Int64Ptr(100)
			Expect(meta.UpdateItem(ctx, root)).Should(BeNil())
			Expect(meta.SetItemSize(ctx, root.ID, nil)).Should(BeNil())
			got, err := meta.GetItem(ctx, root.ID)
			Expect(err).Should(BeNil())
			Expect(got.Size).Should(BeNil())
		})
		It("should fail to update a deleted item", func() {
			Expect(meta.DeleteItem(ctx, root.ID)).Should(BeNil())
			Expect(meta.UpdateItem(ctx, root)).Should(Equal(types.ErrNotFound))
			Expect(meta.DeleteItem(ctx, root.ID)).Should(Equal(types.ErrNotFound))
		})
	})

	Context("query children", func() {
		var folder, file, hidden *types.Item
		BeforeEach(func() {
			folder = newTestItem("sub", types.FolderKind, owner, root, nil)
			file = newTestItem("b.png", types.ImageKind, owner, root, types.Int64Ptr(7))
			hidden = newTestItem(".trash", types.FileKind, owner, root, types.Int64Ptr(100))
			hidden.Hidden = true
			for _, it := range []*types.Item{folder, file, hidden} {
				Expect(meta.CreateItem(ctx, it)).Should(BeNil())
			}
		})
		It("should exclude hidden items unless asked", func() {
			children, err := meta.ListChildren(ctx, root.ID, types.ChildFilter{})
			Expect(err).Should(BeNil())
			Expect(children).Should(HaveLen(2))

			ids, err := meta.ListChildIDs(ctx, root.ID, types.ChildFilter{IncludeHidden: true})
			Expect(err).Should(BeNil())
			Expect(ids).Should(HaveLen(3))

			ids, err = meta.ListChildIDs(ctx, root.ID, types.ChildFilter{Kinds: []types.Kind{types.FolderKind}})
			Expect(err).Should(BeNil())
			Expect(ids).Should(Equal([]int64{folder.ID}))
		})
		It("should map child names and find by name", func() {
			names, err := meta.ChildNames(ctx, types.SiblingScope{ParentID: types.Int64Ptr(root.ID)}, false)
			Expect(err).Should(BeNil())
			Expect(names).Should(HaveLen(2))
			Expect(names[file.ID]).Should(Equal("b.png"))

			got, err := meta.FindChild(ctx, types.SiblingScope{ParentID: types.Int64Ptr(root.ID)}, "sub")
			Expect(err).Should(BeNil())
			Expect(got.ID).Should(Equal(folder.ID))
		})
		It("should sum visible content sizes", func() {
			total, err := meta.SumChildrenSize(ctx, root.ID, types.ContentKinds)
			Expect(err).Should(BeNil())
			Expect(total).Should(Equal(int64(7)))
		})
		It("should list descendants by root", func() {
			deep := newTestItem("c.txt", types.FileKind, owner, folder, types.Int64Ptr(1))
			Expect(meta.CreateItem(ctx, deep)).Should(BeNil())

			ids, err := ListDescendantIDs(ctx, meta, root)
			Expect(err).Should(BeNil())
			Expect(ids).Should(ConsistOf(folder.ID, file.ID, hidden.ID, deep.ID))

			ids, err = ListDescendantIDs(ctx, meta, folder)
			Expect(err).Should(BeNil())
			Expect(ids).Should(Equal([]int64{deep.ID}))

			ancestors, err := ListAncestors(ctx, meta, deep)
			Expect(err).Should(BeNil())
			Expect(ancestors).Should(HaveLen(2))
			Expect(ancestors[1].ID).Should(Equal(root.ID))
		})
	})

	Context("root items", func() {
		It("should filter the root list by owner and name", func() {
			other := newTestItem("docs", types.FolderKind, 2002, nil, nil)
			Expect(meta.CreateItem(ctx, other)).Should(BeNil())

			roots, err := meta.ListRootItems(ctx, types.RootFilter{Name: "docs"})
			Expect(err).Should(BeNil())
			Expect(roots).Should(HaveLen(2))

			roots, err = meta.ListRootItems(ctx, types.RootFilter{Name: "docs", Owner: types.Int64Ptr(2002)})
			Expect(err).Should(BeNil())
			Expect(roots).Should(HaveLen(1))
			Expect(roots[0].ID).Should(Equal(other.ID))

			names, err := meta.ChildNames(ctx, types.SiblingScope{Owner: owner}, false)
			Expect(err).Should(BeNil())
			Expect(names).Should(HaveLen(1))
		})
	})
})

var _ = Describe("TestSqliteGrantOperation", func() {
	var (
		ctx  = context.TODO()
		meta Meta
	)
	BeforeEach(func() {
		meta = buildNewMemoryMetaStore()
	})

	It("should replace and delete grants", func() {
		Expect(meta.ReplaceGrants(ctx, 10, types.Grants{
			1: {View: true, Author: true},
			2: {View: true},
			3: {},
		})).Should(BeNil())

		grants, err := meta.ListGrants(ctx, 10)
		Expect(err).Should(BeNil())
		Expect(grants).Should(HaveLen(2))
		Expect(grants[2].View).Should(BeTrue())
		Expect(grants[2].Author).Should(BeFalse())

		roots, err := meta.ListGrantedRoots(ctx, 2)
		Expect(err).Should(BeNil())
		Expect(roots).Should(Equal([]int64{10}))

		Expect(meta.DeleteUserGrants(ctx, 2, nil)).Should(BeNil())
		grants, err = meta.ListGrants(ctx, 10)
		Expect(err).Should(BeNil())
		Expect(grants).Should(HaveLen(1))

		Expect(meta.DeleteGrants(ctx, 10)).Should(BeNil())
		grants, err = meta.ListGrants(ctx, 10)
		Expect(err).Should(BeNil())
		Expect(grants).Should(BeEmpty())
	})
})

var _ = Describe("TestSqliteLockOperation", func() {
	var (
		ctx  = context.TODO()
		meta Meta
	)
	BeforeEach(func() {
		meta = buildNewMemoryMetaStore()
	})

	It("should grant a lock to one holder only", func() {
		expire := time.Now().Add(time.Minute)
		ok, err := meta.TryLock(ctx, "item:1", "h1", expire)
		Expect(err).Should(BeNil())
		Expect(ok).Should(BeTrue())

		ok, err = meta.TryLock(ctx, "item:1", "h2", expire)
		Expect(err).Should(BeNil())
		Expect(ok).Should(BeFalse())

		ok, err = meta.TryLock(ctx, "item:1", "h1", expire.Add(time.Minute))
		Expect(err).Should(BeNil())
		Expect(ok).Should(BeTrue())

		Expect(meta.Unlock(ctx, "item:1", "h2")).Should(BeNil())
		ok, err = meta.TryLock(ctx, "item:1", "h2", expire)
		Expect(err).Should(BeNil())
		Expect(ok).Should(BeFalse())

		Expect(meta.Unlock(ctx, "item:1", "h1")).Should(BeNil())
		ok, err = meta.TryLock(ctx, "item:1", "h2", expire)
		Expect(err).Should(BeNil())
		Expect(ok).Should(BeTrue())
	})

	It("should take over an expired lock", func() {
		ok, err := meta.TryLock(ctx, "root-list", "h1", time.Now().Add(-time.Second))
		Expect(err).Should(BeNil())
		Expect(ok).Should(BeTrue())

		ok, err = meta.TryLock(ctx, "root-list", "h2", time.Now().Add(time.Minute))
		Expect(err).Should(BeNil())
		Expect(ok).Should(BeTrue())

		n, err := meta.PurgeExpiredLocks(ctx, time.Now())
		Expect(err).Should(BeNil())
		Expect(n).Should(Equal(int64(0)))
	})
})

var _ = Describe("TestSqliteTaskOperation", func() {
	var (
		ctx  = context.TODO()
		meta Meta
	)
	BeforeEach(func() {
		meta = buildNewMemoryMetaStore()
	})

	It("should claim unclaimed tasks once", func() {
		now := time.Now()
		t1 := &types.QueuedTask{Kind: types.TaskCopy, ItemIDs: []int64{1, 2, 3},
			Params: types.TaskParams{DestinationID: types.Int64Ptr(9)}, CreatedAt: now}
		t2 := &types.QueuedTask{Kind: types.TaskUpdateSizes, ItemIDs: []int64{4}, CreatedAt: now,
			ClaimedUntil: now.Add(time.Hour)}
		Expect(meta.CreateTask(ctx, t1)).Should(BeNil())
		Expect(meta.CreateTask(ctx, t2)).Should(BeNil())
		Expect(t1.ID).ShouldNot(Equal(int64(0)))

		claimed, err := meta.ClaimTasks(ctx, 10, now, now.Add(time.Minute))
		Expect(err).Should(BeNil())
		Expect(claimed).Should(HaveLen(1))
		Expect(claimed[0].ID).Should(Equal(t1.ID))
		Expect(claimed[0].Attempts).Should(Equal(1))
		Expect(claimed[0].ItemIDs).Should(Equal([]int64{1, 2, 3}))
		Expect(*claimed[0].Params.DestinationID).Should(Equal(int64(9)))

		claimed, err = meta.ClaimTasks(ctx, 10, now, now.Add(time.Minute))
		Expect(err).Should(BeNil())
		Expect(claimed).Should(BeEmpty())

		t1.ItemIDs = []int64{3}
		Expect(meta.UpdateTask(ctx, t1)).Should(BeNil())
		got, err := meta.GetTask(ctx, t1.ID)
		Expect(err).Should(BeNil())
		Expect(got.ItemIDs).Should(Equal([]int64{3}))

		Expect(meta.DeleteTask(ctx, t1.ID)).Should(BeNil())
		all, err := meta.ListTasks(ctx)
		Expect(err).Should(BeNil())
		Expect(all).Should(HaveLen(1))
	})
})

var _ = Describe("TestSqliteUsageOperation", func() {
	var (
		ctx  = context.TODO()
		meta Meta
	)
	BeforeEach(func() {
		meta = buildNewMemoryMetaStore()
	})

	It("should count and replace usage", func() {
		root := newTestItem("r", types.FolderKind, 1, nil, nil)
		Expect(meta.CreateItem(ctx, root)).Should(BeNil())
		Expect(meta.CreateItem(ctx, newTestItem("a", types.FileKind, 1, root, types.Int64Ptr(5)))).Should(BeNil())
		Expect(meta.CreateItem(ctx, newTestItem("b", types.MediaKind, 1, root, types.Int64Ptr(6)))).Should(BeNil())
		Expect(meta.CreateItem(ctx, newTestItem("c", types.FileKind, 2, nil, types.Int64Ptr(1)))).Should(BeNil())

		usages, err := meta.CountUsage(ctx)
		Expect(err).Should(BeNil())
		Expect(usages).Should(Equal([]types.Usage{
			{Owner: 1, FolderCount: 1, FileCount: 2, TotalBytes: 11},
			{Owner: 2, FolderCount: 0, FileCount: 1, TotalBytes: 1},
		}))

		Expect(meta.ReplaceUsage(ctx, usages)).Should(BeNil())
		u, err := meta.GetUsage(ctx, 1)
		Expect(err).Should(BeNil())
		Expect(u.TotalBytes).Should(Equal(int64(11)))

		Expect(meta.ReplaceUsage(ctx, usages[:1])).Should(BeNil())
		all, err := meta.ListUsage(ctx)
		Expect(err).Should(BeNil())
		Expect(all).Should(HaveLen(1))
	})
})
