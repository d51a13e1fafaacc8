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

var _ = Describe("TestCopy", func() {
	var (
		src, dst, folder *types.Item
	)
	BeforeEach(func() {
		src = mustFolder(userA, nil, "src")
		dst = mustFolder(userA, nil, "dst")
		folder = mustFolder(userA, src, "A")
		mustFile(userA, folder, "1.txt", "one")
		mustFile(userA, folder, "2.txt", "two")
		mustFile(userA, folder, "3.txt", "three")
	})

	It("copied file should own its content", func() {
		f := mustFile(userA, src, "x.txt", "payload")
		cp, err := mgr.Copy(ctx, userA, f.ID, idPtr(dst), CopyOption{})
		Expect(err).Should(BeNil())
		Expect(cp.ObjectID).ShouldNot(Equal(f.ObjectID))
		Expect(readContent(cp)).Should(Equal("payload"))

		Expect(mgr.Delete(ctx, userA, f.ID)).Should(BeNil())
		Expect(readContent(reload(cp.ID))).Should(Equal("payload"))
		Expect(sizeOf(dst.ID)).Should(Equal(int64(7)))
	})

	It("copy folder should copy the whole subtree", func() {
		sub := mustFolder(userA, folder, "sub")
		mustFile(userA, sub, "deep.txt", "deep")

		cp, err := mgr.Copy(ctx, userA, folder.ID, idPtr(dst), CopyOption{})
		Expect(err).Should(BeNil())
		cp = reload(cp.ID)
		Expect(cp.Disabled).Should(BeFalse())
		Expect(cp.Name).Should(Equal("A"))
		Expect(childNames(userA, cp.ID)).Should(ConsistOf("1.txt", "2.txt", "3.txt", "sub"))
		Expect(sizeOf(cp.ID)).Should(Equal(sizeOf(folder.ID)))
		Expect(sizeOf(dst.ID)).Should(Equal(sizeOf(folder.ID)))
		Expect(reload(cp.ID).RootOrSelf()).Should(Equal(dst.ID))
	})

	It("interrupted folder copy should be finished by the continuation", func() {
		zero := 0
		slow := newManager(config.Queue{SyncBudgetMs: &zero})

		cp, err := slow.Copy(ctx, userA, folder.ID, idPtr(dst), CopyOption{})
		Expect(err).Should(BeNil())
		Expect(cp.Disabled).Should(BeTrue())
		ids, err := testMeta.ListChildIDs(ctx, cp.ID, types.ChildFilter{})
		Expect(err).Should(BeNil())
		Expect(ids).Should(BeEmpty())
		Expect(childNames(userA, dst.ID)).Should(BeEmpty())

		n, err := dispatch.NewDispatcher(mgr.Queue(), config.Queue{}).RunPending(ctx)
		Expect(err).Should(BeNil())
		Expect(n).Should(BeNumerically(">=", 1))

		cp = reload(cp.ID)
		Expect(cp.Disabled).Should(BeFalse())
		Expect(childNames(userA, cp.ID)).Should(ConsistOf("1.txt", "2.txt", "3.txt"))
		Expect(sizeOf(cp.ID)).Should(Equal(int64(11)))

		pending, err := mgr.Queue().Pending(ctx)
		Expect(err).Should(BeNil())
		Expect(pending).Should(BeEmpty())
	})

	It("copy continuation should skip what was already copied", func() {
		cp, err := mgr.Copy(ctx, userA, folder.ID, idPtr(dst), CopyOption{})
		Expect(err).Should(BeNil())

		children, err := testMeta.ListChildIDs(ctx, folder.ID, types.ChildFilter{})
		Expect(err).Should(BeNil())
		task := dispatch.NewTask(types.TaskCopy, children, types.TaskParams{DestinationID: types.Int64Ptr(cp.ID), Actor: userA})
		remaining, err := mgr.executeCopy(ctx, task, dispatch.Unlimited())
		Expect(err).Should(BeNil())
		Expect(remaining).Should(BeEmpty())
		Expect(childNames(userA, cp.ID)).Should(ConsistOf("1.txt", "2.txt", "3.txt"))
	})

	It("copy into its own subtree should be rejected", func() {
		sub := mustFolder(userA, folder, "sub")
		_, err := mgr.Copy(ctx, userA, folder.ID, idPtr(sub), CopyOption{})
		Expect(errors.Is(err, types.ErrCyclicTarget)).Should(BeTrue())
	})

	It("copy by a viewer should belong to the viewer", func() {
		Expect(mgr.Share(ctx, userA, src.ID, types.Grants{userB: {View: true}})).Should(BeNil())
		home := mustFolder(userB, nil, "home")

		cp, err := mgr.Copy(ctx, userB, folder.ID, idPtr(home), CopyOption{NewName: "mine"})
		Expect(err).Should(BeNil())
		Expect(cp.Owner).Should(Equal(userB))
		Expect(cp.Name).Should(Equal("mine"))
		children, err := mgr.ListChildren(ctx, userB, cp.ID)
		Expect(err).Should(BeNil())
		for _, c := range children {
			Expect(c.Owner).Should(Equal(userB))
		}

		_, err = mgr.Copy(ctx, userB, folder.ID, idPtr(src), CopyOption{})
		Expect(errors.Is(err, types.ErrNoAccess)).Should(BeTrue())
	})
})

var _ = Describe("TestDuplicate", func() {
	It("duplicate should generate copy names", func() {
		docs := mustFolder(userA, nil, "docs")
		f := mustFile(userA, docs, "a.txt", "1")

		first, err := mgr.Duplicate(ctx, userA, f.ID)
		Expect(err).Should(BeNil())
		Expect(first.Name).Should(Equal("a copy.txt"))

		second, err := mgr.Duplicate(ctx, userA, f.ID)
		Expect(err).Should(BeNil())
		Expect(second.Name).Should(Equal("a copy 1.txt"))
		Expect(sizeOf(docs.ID)).Should(Equal(int64(3)))
	})

	It("duplicate root folder should stay in the root list", func() {
		docs := mustFolder(userA, nil, "docs")
		mustFile(userA, docs, "a.txt", "1")

		dup, err := mgr.Duplicate(ctx, userA, docs.ID)
		Expect(err).Should(BeNil())
		Expect(dup.IsRoot()).Should(BeTrue())
		Expect(dup.Name).Should(Equal("docs copy"))
		Expect(childNames(userA, dup.ID)).Should(ConsistOf("a.txt"))
	})
})
