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
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/dispatch"
	"github.com/basenana/nanatree/pkg/types"
)

var _ = Describe("TestChangeOwner", func() {
	var (
		docs, folder, a, b *types.Item
	)
	BeforeEach(func() {
		docs = mustFolder(userA, nil, "docs")
		folder = mustFolder(userA, docs, "folder")
		a = mustFile(userA, folder, "a.txt", "aaa")
		b = mustFile(userA, docs, "b.txt", "bb")
	})

	It("recursive change should move the whole subtree", func() {
		Expect(mgr.Share(ctx, userA, docs.ID, types.Grants{userC: {View: true}})).Should(BeNil())

		item, err := mgr.ChangeOwner(ctx, userA, docs.ID, userB, true)
		Expect(err).Should(BeNil())
		Expect(item.Owner).Should(Equal(userB))
		for _, id := range []int64{docs.ID, folder.ID, a.ID, b.ID} {
			Expect(reload(id).Owner).Should(Equal(userB))
		}

		grants, err := testMeta.ListGrants(ctx, docs.ID)
		Expect(err).Should(BeNil())
		Expect(grants).Should(HaveKey(userB))
		Expect(grants).Should(HaveKey(userC))
		Expect(grants).ShouldNot(HaveKey(userA))
		_, err = mgr.GetItem(ctx, userA, a.ID)
		Expect(errors.Is(err, types.ErrNoAccess)).Should(BeTrue())
	})

	It("subtree handed to the public user should be finished by the continuation", func() {
		zero := 0
		slow := newManager(config.Queue{SyncBudgetMs: &zero})
		public := slow.Access().PublicUser()

		item, err := slow.ChangeOwner(ctx, userA, docs.ID, public, true)
		Expect(err).Should(BeNil())
		Expect(item.Owner).Should(Equal(public))

		_, err = dispatch.NewDispatcher(mgr.Queue(), config.Queue{}).RunPending(ctx)
		Expect(err).Should(BeNil())
		for _, id := range []int64{docs.ID, folder.ID, a.ID, b.ID} {
			Expect(reload(id).Owner).Should(Equal(public))
		}

		pending, err := mgr.Queue().Pending(ctx)
		Expect(err).Should(BeNil())
		Expect(pending).Should(BeEmpty())
	})

	It("non recursive change should only touch the item", func() {
		_, err := mgr.ChangeOwner(ctx, userA, folder.ID, userB, false)
		Expect(err).Should(BeNil())
		Expect(reload(folder.ID).Owner).Should(Equal(userB))
		Expect(reload(a.ID).Owner).Should(Equal(userA))
	})

	It("root name taken by the new owner should conflict", func() {
		mustFolder(userB, nil, "docs")
		_, err := mgr.ChangeOwner(ctx, userA, docs.ID, userB, true)
		Expect(errors.Is(err, types.ErrNameConflict)).Should(BeTrue())
		Expect(reload(docs.ID).Owner).Should(Equal(userA))
	})

	It("only owner or administrator may change owner", func() {
		_, err := mgr.ChangeOwner(ctx, userC, docs.ID, userC, false)
		Expect(err).Should(Equal(types.ErrNoPerm))

		_, err = mgr.ChangeOwner(ctx, adminUser, docs.ID, userC, false)
		Expect(err).Should(BeNil())
		Expect(reload(docs.ID).Owner).Should(Equal(userC))
	})

	It("unknown new owner should be not found", func() {
		_, err := mgr.ChangeOwner(ctx, userA, docs.ID, 99, false)
		Expect(types.IsNotFound(err)).Should(BeTrue())
	})

	It("usage should follow the new owner", func() {
		_, err := mgr.ChangeOwner(ctx, userA, folder.ID, userB, true)
		Expect(err).Should(BeNil())

		_, err = dispatch.NewDispatcher(mgr.Queue(), config.Queue{}).RunPending(ctx)
		Expect(err).Should(BeNil())

		usageB, err := mgr.GetUsage(ctx, userB)
		Expect(err).Should(BeNil())
		Expect(usageB.FolderCount).Should(Equal(int64(1)))
		Expect(usageB.FileCount).Should(Equal(int64(1)))
		Expect(usageB.TotalBytes).Should(Equal(int64(3)))

		usageA, err := mgr.GetUsage(ctx, userA)
		Expect(err).Should(BeNil())
		Expect(usageA.FolderCount).Should(Equal(int64(1)))
		Expect(usageA.FileCount).Should(Equal(int64(1)))
		Expect(usageA.TotalBytes).Should(Equal(int64(2)))
	})
})

var _ = Describe("TestRebuildUsage", func() {
	It("rebuild should count items per owner", func() {
		docs := mustFolder(userA, nil, "docs")
		mustFile(userA, docs, "a.txt", "12345")
		mustFile(userA, docs, "b.txt", "1")
		mustFolder(userB, nil, "home")

		Expect(mgr.RebuildUsage(ctx)).Should(BeNil())
		usage, err := mgr.GetUsage(ctx, userA)
		Expect(err).Should(BeNil())
		Expect(usage.FolderCount).Should(Equal(int64(1)))
		Expect(usage.FileCount).Should(Equal(int64(2)))
		Expect(usage.TotalBytes).Should(Equal(int64(6)))

		usage, err = mgr.GetUsage(ctx, userB)
		Expect(err).Should(BeNil())
		Expect(usage.FolderCount).Should(Equal(int64(1)))
	})
})
