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
	"context"
	"io"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/lock"
	"github.com/basenana/nanatree/pkg/metastore"
	"github.com/basenana/nanatree/pkg/object"
	"github.com/basenana/nanatree/pkg/types"
)

// streamingObjects serves content as a plain stream, like a remote backend.
type streamingObjects struct {
	object.Store
}

func (s streamingObjects) Open(ctx context.Context, objectID string) (io.ReadCloser, error) {
	rc, err := s.Store.Open(ctx, objectID)
	if err != nil {
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{Reader: rc, Closer: rc}, nil
}

// growingMeta adds a file to folder right after its children are first listed.
type growingMeta struct {
	metastore.Meta
	folder *types.Item
	added  *types.Item
}

func (g *growingMeta) ListChildren(ctx context.Context, parentID int64, filter types.ChildFilter) ([]*types.Item, error) {
	items, err := g.Meta.ListChildren(ctx, parentID, filter)
	if err == nil && parentID == g.folder.ID && g.added == nil {
		g.added = newItem("late.txt", types.FileKind, g.folder.Owner, g.folder)
		g.added.Size = types.Int64Ptr(0)
		Expect(g.Meta.CreateItem(ctx, g.added)).Should(BeNil())
	}
	return items, err
}

var _ = Describe("TestArchive", func() {
	var (
		src, dst, docs, top *types.Item
	)
	BeforeEach(func() {
		src = mustFolder(userA, nil, "src")
		dst = mustFolder(userA, nil, "dst")
		docs = mustFolder(userA, src, "docs")
		mustFile(userA, docs, "a.txt", "alpha")
		sub := mustFolder(userA, docs, "sub")
		mustFile(userA, sub, "b.txt", "beta")
		top = mustFile(userA, src, "top.txt", "top")
	})

	findChild := func(parentID int64, name string) *types.Item {
		children, err := mgr.ListChildren(ctx, userA, parentID)
		Expect(err).Should(BeNil())
		for _, c := range children {
			if c.Name == name {
				return c
			}
		}
		Fail("child " + name + " not found")
		return nil
	}

	It("archive then unarchive should restore the tree", func() {
		zipItem, err := mgr.Archive(ctx, userA, []int64{docs.ID, top.ID}, idPtr(dst), "bundle")
		Expect(err).Should(BeNil())
		Expect(zipItem.Name).Should(Equal("bundle.zip"))
		Expect(zipItem.MimeType).Should(Equal("application/zip"))
		Expect(*zipItem.Size).Should(BeNumerically(">", 0))

		folder, err := mgr.Unarchive(ctx, userA, zipItem.ID, idPtr(dst))
		Expect(err).Should(BeNil())
		Expect(folder.Name).Should(Equal("bundle"))
		Expect(folder.Disabled).Should(BeFalse())
		Expect(childNames(userA, folder.ID)).Should(ConsistOf("docs", "top.txt"))

		restored := findChild(folder.ID, "docs")
		Expect(childNames(userA, restored.ID)).Should(ConsistOf("a.txt", "sub"))
		Expect(readContent(findChild(restored.ID, "a.txt"))).Should(Equal("alpha"))
		restoredSub := findChild(restored.ID, "sub")
		Expect(readContent(findChild(restoredSub.ID, "b.txt"))).Should(Equal("beta"))
		Expect(readContent(findChild(folder.ID, "top.txt"))).Should(Equal("top"))

		Expect(sizeOf(folder.ID)).Should(Equal(int64(12)))
	})

	It("unarchive should read a seekable object in place", func() {
		zipItem, err := mgr.Archive(ctx, userA, []int64{top.ID}, idPtr(dst), "bundle")
		Expect(err).Should(BeNil())
		rc, err := testObjects.Open(ctx, zipItem.ObjectID)
		Expect(err).Should(BeNil())
		defer rc.Close()
		_, ok := rc.(seekReaderAt)
		Expect(ok).Should(BeTrue())
	})

	It("unarchive should spool a streamed object", func() {
		zipItem, err := mgr.Archive(ctx, userA, []int64{docs.ID}, idPtr(dst), "bundle")
		Expect(err).Should(BeNil())

		streaming := New(testMeta, streamingObjects{Store: testObjects}, testIdent, testIndexer, config.Config{})
		folder, err := streaming.Unarchive(ctx, userA, zipItem.ID, idPtr(dst))
		Expect(err).Should(BeNil())
		restored := findChild(folder.ID, "docs")
		Expect(readContent(findChild(restored.ID, "a.txt"))).Should(Equal("alpha"))
		Expect(sizeOf(folder.ID)).Should(Equal(int64(9)))
	})

	It("unarchive should not reuse a taken folder name", func() {
		zipItem, err := mgr.Archive(ctx, userA, []int64{top.ID}, idPtr(dst), "bundle.zip")
		Expect(err).Should(BeNil())
		mustFolder(userA, dst, "bundle")

		folder, err := mgr.Unarchive(ctx, userA, zipItem.ID, idPtr(dst))
		Expect(err).Should(BeNil())
		Expect(folder.Name).Should(Equal("bundle 1"))
	})

	It("archive should include children added before the subtree was locked", func() {
		growing := &growingMeta{Meta: testMeta, folder: docs}
		racing := New(growing, testObjects, testIdent, testIndexer, config.Config{})
		zipItem, err := racing.Archive(ctx, userA, []int64{docs.ID}, idPtr(dst), "bundle")
		Expect(err).Should(BeNil())
		Expect(growing.added).ShouldNot(BeNil())

		folder, err := mgr.Unarchive(ctx, userA, zipItem.ID, idPtr(dst))
		Expect(err).Should(BeNil())
		restored := findChild(folder.ID, "docs")
		Expect(childNames(userA, restored.ID)).Should(ConsistOf("a.txt", "sub", "late.txt"))
	})

	It("archive should wait for every item of the subtree", func() {
		holder := mgr.Locks().NewHolder()
		nested := findChild(docs.ID, "sub")
		Expect(holder.Acquire(ctx, lock.ItemLock(nested.ID))).Should(BeNil())
		defer holder.ReleaseAll(ctx)

		_, err := mgr.Archive(ctx, userA, []int64{docs.ID}, idPtr(dst), "bundle")
		Expect(types.IsBusy(err)).Should(BeTrue())
		Expect(childNames(userA, dst.ID)).Should(BeEmpty())
	})

	It("broken archive should leave nothing behind", func() {
		bad, err := mgr.CreateFile(ctx, userA, idPtr(src), CreateAttr{Name: "bad.zip"}, strings.NewReader("not a zip"))
		Expect(err).Should(BeNil())

		_, err = mgr.Unarchive(ctx, userA, bad.ID, idPtr(dst))
		Expect(types.IsSystem(err)).Should(BeTrue())
		ids, err := testMeta.ListChildIDs(ctx, dst.ID, types.ChildFilter{IncludeHidden: true})
		Expect(err).Should(BeNil())
		Expect(ids).Should(BeEmpty())
	})
})
