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

package access

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basenana/nanatree/pkg/types"
)

var _ = Describe("TestSharingStatus", func() {
	var (
		ctx   = context.TODO()
		model *Model
		root  *types.Item
		child *types.Item
	)

	BeforeEach(func() {
		model = NewModel(memMeta, ident)
		root = newItem("shared-root", types.FolderKind, 1, nil)
		child = newItem("child.txt", types.FileKind, 1, root)
	})

	Context("a root without grants", func() {
		It("should be personal to the owner and private to others", func() {
			status, err := model.GetSharingStatus(ctx, child, 1)
			Expect(err).Should(BeNil())
			Expect(status).Should(Equal(types.SharingPersonal))

			status, err = model.GetSharingStatus(ctx, child, 2)
			Expect(err).Should(BeNil())
			Expect(status).Should(Equal(types.SharingPrivate))
		})
	})

	Context("sharing a root with view", func() {
		It("should be shared with the grantee and shared by the owner", func() {
			Expect(model.Share(ctx, root, types.Grants{2: {View: true}}, 1)).Should(BeNil())

			status, err := model.GetSharingStatus(ctx, child, 2)
			Expect(err).Should(BeNil())
			Expect(status).Should(Equal(types.SharingSharedWith))

			status, err = model.GetSharingStatus(ctx, child, 1)
			Expect(err).Should(BeNil())
			Expect(status).Should(Equal(types.SharingSharedByMe))

			ok, err := model.CanAccess(ctx, root, 3, types.GrantView)
			Expect(err).Should(BeNil())
			Expect(ok).Should(BeFalse())

			ok, err = model.CanAccess(ctx, child, 2, types.GrantView)
			Expect(err).Should(BeNil())
			Expect(ok).Should(BeTrue())

			ok, err = model.CanAccess(ctx, child, 2, types.GrantAuthor)
			Expect(err).Should(BeNil())
			Expect(ok).Should(BeFalse())

			ok, err = model.CanAccess(ctx, child, 4, types.GrantAuthor)
			Expect(err).Should(BeNil())
			Expect(ok).Should(BeTrue())
		})

		It("should not let others share", func() {
			err := model.Share(ctx, root, types.Grants{3: {View: true}}, 2)
			Expect(err).Should(Equal(types.ErrNoAccess))
		})
	})

	Context("public sharing", func() {
		It("should require the share publicly permission", func() {
			Expect(model.Share(ctx, root, types.Grants{0: {View: true}}, 1)).Should(Equal(types.ErrNoPerm))

			pubRoot := newItem("pub-root", types.FolderKind, 5, nil)
			Expect(model.Share(ctx, pubRoot, types.Grants{0: {View: true}}, 5)).Should(BeNil())

			status, err := model.GetSharingStatus(ctx, pubRoot, 3)
			Expect(err).Should(BeNil())
			Expect(status).Should(Equal(types.SharingPublic))

			ok, err := model.CanAccess(ctx, pubRoot, 3, types.GrantView)
			Expect(err).Should(BeNil())
			Expect(ok).Should(BeTrue())
		})
	})

	Context("unsharing", func() {
		It("should never drop the owner", func() {
			Expect(model.Share(ctx, root, types.Grants{2: {View: true}, 3: {Author: true}}, 1)).Should(BeNil())
			Expect(model.Unshare(ctx, root, []int64{1, 2}, 1)).Should(BeNil())

			grants, err := model.GetAccessGrants(ctx, root)
			Expect(err).Should(BeNil())
			Expect(grants).Should(HaveKey(int64(1)))
			Expect(grants).ShouldNot(HaveKey(int64(2)))
			Expect(grants[3]).Should(Equal(types.Grant{View: true, Author: true}))

			Expect(model.UnshareFromAll(ctx, 3)).Should(BeNil())
			grants, err = model.GetAccessGrants(ctx, root)
			Expect(err).Should(BeNil())
			Expect(grants).Should(HaveLen(1))

			Expect(model.Share(ctx, root, types.Grants{2: {View: true}}, 1)).Should(BeNil())
			Expect(model.UnshareAll(ctx, []*types.Item{root})).Should(BeNil())
			status, err := model.GetSharingStatus(ctx, child, 1)
			Expect(err).Should(BeNil())
			Expect(status).Should(Equal(types.SharingPersonal))
		})
	})

	Context("hidden and disabled items", func() {
		It("should deny every access", func() {
			hidden := newItem("hidden.txt", types.FileKind, 1, root)
			hidden.Hidden = true
			ok, err := model.CanAccess(ctx, hidden, 1, types.GrantView)
			Expect(err).Should(BeNil())
			Expect(ok).Should(BeFalse())
		})
	})

	Context("grants on a non-root", func() {
		It("should be rejected", func() {
			_, err := model.GetAccessGrants(ctx, child)
			Expect(err).Should(MatchError(types.ErrNotRoot))
		})
	})
})
