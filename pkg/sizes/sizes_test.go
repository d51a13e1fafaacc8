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

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/dispatch"
	"github.com/basenana/nanatree/pkg/lock"
	"github.com/basenana/nanatree/pkg/types"
)

type sampleTree struct {
	root, docs, photos, deep *types.Item
}

// root(docs(a.txt 10, b.txt 20, deep(c.txt 5)), photos(p.png 100, hidden.png 1000), top.txt 1)
func buildSampleTree() sampleTree {
	t := sampleTree{}
	t.root = newItem("root", types.FolderKind, nil, nil)
	t.docs = newItem("docs", types.FolderKind, t.root, nil)
	newItem("a.txt", types.FileKind, t.docs, types.Int64Ptr(10))
	newItem("b.txt", types.FileKind, t.docs, types.Int64Ptr(20))
	t.deep = newItem("deep", types.FolderKind, t.docs, nil)
	newItem("c.txt", types.FileKind, t.deep, types.Int64Ptr(5))
	t.photos = newItem("photos", types.FolderKind, t.root, nil)
	newItem("p.png", types.ImageKind, t.photos, types.Int64Ptr(100))
	hidden := newItem("hidden.png", types.ImageKind, t.photos, types.Int64Ptr(1000))
	hidden.Hidden = true
	Expect(testMeta.UpdateItem(context.TODO(), hidden)).Should(BeNil())
	newItem("top.txt", types.FileKind, t.root, types.Int64Ptr(1))
	return t
}

var _ = Describe("TestUpdateSizeDownward", func() {
	var ctx = context.TODO()

	It("should sum every visible file below each folder", func() {
		t := buildSampleTree()
		engine := NewEngine(testMeta, testLocks, testQueue)
		size, err := engine.UpdateSizeDownward(ctx, t.root, false)
		Expect(err).Should(BeNil())
		Expect(*size).Should(Equal(int64(136)))

		Expect(*sizeOf(t.deep.ID)).Should(Equal(int64(5)))
		Expect(*sizeOf(t.docs.ID)).Should(Equal(int64(35)))
		Expect(*sizeOf(t.photos.ID)).Should(Equal(int64(100)))
		Expect(*sizeOf(t.root.ID)).Should(Equal(int64(136)))
	})

	It("should not write again when nothing is stale", func() {
		t := buildSampleTree()
		counting := &countingStore{Meta: testMeta}
		engine := NewEngine(counting, testLocks, testQueue)

		_, err := engine.UpdateSizeDownward(ctx, t.root, false)
		Expect(err).Should(BeNil())
		Expect(counting.writes).Should(Equal(4))

		root, err := testMeta.GetItem(ctx, t.root.ID)
		Expect(err).Should(BeNil())
		size, err := engine.UpdateSizeDownward(ctx, root, false)
		Expect(err).Should(BeNil())
		Expect(*size).Should(Equal(int64(136)))
		Expect(counting.writes).Should(Equal(4))
	})

	It("should recompute everything on overwrite", func() {
		t := buildSampleTree()
		engine := NewEngine(testMeta, testLocks, testQueue)
		Expect(testMeta.SetItemSize(ctx, t.docs.ID, types.Int64Ptr(999))).Should(BeNil())
		docs, err := testMeta.GetItem(ctx, t.docs.ID)
		Expect(err).Should(BeNil())

		size, err := engine.UpdateSizeDownward(ctx, docs, false)
		Expect(err).Should(BeNil())
		Expect(*size).Should(Equal(int64(999)))

		size, err = engine.UpdateSizeDownward(ctx, docs, true)
		Expect(err).Should(BeNil())
		Expect(*size).Should(Equal(int64(35)))
	})

	It("should leave ancestors of a busy folder unknown", func() {
		t := buildSampleTree()
		engine := NewEngine(testMeta, testLocks, testQueue)
		other := testLocks.NewHolder()
		Expect(other.Acquire(ctx, lock.ItemLock(t.deep.ID))).Should(BeNil())

		size, err := engine.UpdateSizeDownward(ctx, t.root, false)
		Expect(types.IsBusy(err)).Should(BeTrue())
		Expect(size).Should(BeNil())
		Expect(sizeOf(t.docs.ID)).Should(BeNil())
		Expect(sizeOf(t.root.ID)).Should(BeNil())
		Expect(*sizeOf(t.photos.ID)).Should(Equal(int64(100)))
		other.ReleaseAll(ctx)
	})
})

var _ = Describe("TestRefreshSizes", func() {
	var ctx = context.TODO()

	It("should invalidate and recompute the whole chain", func() {
		t := buildSampleTree()
		engine := NewEngine(testMeta, testLocks, testQueue)
		_, err := engine.UpdateSizeDownward(ctx, t.root, false)
		Expect(err).Should(BeNil())

		newItem("d.txt", types.FileKind, t.deep, types.Int64Ptr(50))
		Expect(engine.RefreshSizes(ctx, []int64{t.deep.ID})).Should(BeNil())
		Expect(*sizeOf(t.deep.ID)).Should(Equal(int64(55)))
		Expect(*sizeOf(t.docs.ID)).Should(Equal(int64(85)))
		Expect(*sizeOf(t.root.ID)).Should(Equal(int64(186)))
	})

	It("should clear nothing while an ancestor is locked", func() {
		t := buildSampleTree()
		engine := NewEngine(testMeta, testLocks, testQueue)
		_, err := engine.UpdateSizeDownward(ctx, t.root, false)
		Expect(err).Should(BeNil())

		newItem("d.txt", types.FileKind, t.deep, types.Int64Ptr(50))
		other := testLocks.NewHolder()
		Expect(other.Acquire(ctx, lock.ItemLock(t.docs.ID))).Should(BeNil())

		err = engine.RefreshSizes(ctx, []int64{t.deep.ID})
		Expect(types.IsBusy(err)).Should(BeTrue())
		Expect(*sizeOf(t.deep.ID)).Should(Equal(int64(5)))
		Expect(*sizeOf(t.docs.ID)).Should(Equal(int64(35)))
		Expect(*sizeOf(t.root.ID)).Should(Equal(int64(136)))

		pending, err := testQueue.Pending(ctx)
		Expect(err).Should(BeNil())
		Expect(pending).Should(HaveLen(1))
		Expect(pending[0].ItemIDs).Should(Equal([]int64{t.deep.ID}))

		other.ReleaseAll(ctx)
		n, err := dispatch.NewDispatcher(testQueue, config.Queue{}).RunPending(ctx)
		Expect(err).Should(BeNil())
		Expect(n).Should(Equal(1))
		Expect(*sizeOf(t.deep.ID)).Should(Equal(int64(55)))
		Expect(*sizeOf(t.docs.ID)).Should(Equal(int64(85)))
		Expect(*sizeOf(t.root.ID)).Should(Equal(int64(186)))
	})

	It("should not write a sum over a subfolder invalidated meanwhile", func() {
		t := buildSampleTree()
		engine := NewEngine(testMeta, testLocks, testQueue)
		_, err := engine.UpdateSizeDownward(ctx, t.root, false)
		Expect(err).Should(BeNil())
		Expect(testMeta.SetItemSize(ctx, t.docs.ID, nil)).Should(BeNil())

		newItem("d.txt", types.FileKind, t.deep, types.Int64Ptr(50))
		racing := &invalidatingStore{Meta: testMeta, parent: t.docs.ID, child: t.deep.ID}
		docs, err := testMeta.GetItem(ctx, t.docs.ID)
		Expect(err).Should(BeNil())

		size, err := NewEngine(racing, testLocks, testQueue).UpdateSizeDownward(ctx, docs, false)
		Expect(err).Should(BeNil())
		Expect(size).Should(BeNil())
		Expect(racing.fired).Should(BeTrue())
		Expect(sizeOf(t.docs.ID)).Should(BeNil())
	})
})

var _ = Describe("TestUpdateSizeUpward", func() {
	var ctx = context.TODO()

	It("should refresh stale ancestors from direct children", func() {
		t := buildSampleTree()
		engine := NewEngine(testMeta, testLocks, testQueue)
		_, err := engine.UpdateSizeDownward(ctx, t.root, false)
		Expect(err).Should(BeNil())

		f := newItem("d.txt", types.FileKind, t.deep, types.Int64Ptr(50))
		for _, id := range []int64{t.deep.ID, t.docs.ID, t.root.ID} {
			Expect(testMeta.SetItemSize(ctx, id, nil)).Should(BeNil())
		}
		Expect(engine.UpdateSizeUpward(ctx, f)).Should(BeNil())
		Expect(*sizeOf(t.deep.ID)).Should(Equal(int64(55)))
		Expect(*sizeOf(t.docs.ID)).Should(Equal(int64(85)))
		Expect(*sizeOf(t.root.ID)).Should(Equal(int64(186)))
	})

	It("should leave known folders untouched", func() {
		t := buildSampleTree()
		engine := NewEngine(testMeta, testLocks, testQueue)
		Expect(testMeta.SetItemSize(ctx, t.root.ID, types.Int64Ptr(7))).Should(BeNil())
		deep, err := testMeta.GetItem(ctx, t.deep.ID)
		Expect(err).Should(BeNil())
		Expect(engine.UpdateSizeUpward(ctx, deep)).Should(BeNil())
		Expect(*sizeOf(t.deep.ID)).Should(Equal(int64(5)))
		Expect(*sizeOf(t.root.ID)).Should(Equal(int64(7)))
	})
})

var _ = Describe("TestUpdateSizes", func() {
	var ctx = context.TODO()

	It("should finish a whole tree synchronously", func() {
		t := buildSampleTree()
		engine := NewEngine(testMeta, testLocks, testQueue)
		Expect(engine.UpdateSizes(ctx, []int64{t.root.ID}, false)).Should(BeNil())
		Expect(*sizeOf(t.root.ID)).Should(Equal(int64(136)))

		pending, err := testQueue.Pending(ctx)
		Expect(err).Should(BeNil())
		Expect(pending).Should(BeEmpty())
	})

	It("should requeue busy folders and converge later", func() {
		t := buildSampleTree()
		engine := NewEngine(testMeta, testLocks, testQueue)
		other := testLocks.NewHolder()
		Expect(other.Acquire(ctx, lock.ItemLock(t.deep.ID))).Should(BeNil())

		err := engine.UpdateSizes(ctx, []int64{t.root.ID}, false)
		Expect(types.IsBusy(err)).Should(BeTrue())
		Expect(sizeOf(t.root.ID)).Should(BeNil())

		pending, err := testQueue.Pending(ctx)
		Expect(err).Should(BeNil())
		Expect(pending).Should(HaveLen(1))
		Expect(pending[0].ItemIDs).Should(Equal([]int64{t.deep.ID}))

		other.ReleaseAll(ctx)
		d := dispatch.NewDispatcher(testQueue, config.Queue{})
		n, err := d.RunPending(ctx)
		Expect(err).Should(BeNil())
		Expect(n).Should(Equal(1))

		Expect(*sizeOf(t.deep.ID)).Should(Equal(int64(5)))
		Expect(*sizeOf(t.docs.ID)).Should(Equal(int64(35)))
		Expect(*sizeOf(t.root.ID)).Should(Equal(int64(136)))
		pending, err = testQueue.Pending(ctx)
		Expect(err).Should(BeNil())
		Expect(pending).Should(BeEmpty())
	})

	It("should skip items that no longer exist", func() {
		engine := NewEngine(testMeta, testLocks, testQueue)
		Expect(engine.UpdateSizes(ctx, []int64{404}, false)).Should(BeNil())
	})
})
