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

package pathmgr

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basenana/nanatree/pkg/types"
)

var _ = Describe("TestResolve", func() {
	var (
		aliceDocs, aliceReport, bobDocs, bobReport *types.Item
	)
	BeforeEach(func() {
		aliceDocs = mustFolder(alice, nil, "docs")
		aliceReport = mustFile(alice, aliceDocs, "report.txt")
		bobDocs = mustFolder(bob, nil, "docs")
		bobReport = mustFile(bob, bobDocs, "report.txt")
	})

	It("personal path should resolve to the file", func() {
		item, err := resolver.Resolve(ctx, alice, "personal:/docs/report.txt")
		Expect(err).Should(BeNil())
		Expect(item.ID).Should(Equal(aliceReport.ID))

		chain, err := resolver.ResolveChain(ctx, alice, "/docs/report.txt")
		Expect(err).Should(BeNil())
		Expect(chain).Should(HaveLen(2))
		Expect(chain[0].ID).Should(Equal(aliceDocs.ID))
	})

	It("same root name of two owners should need an owner", func() {
		Expect(mgr.Share(ctx, bob, bobDocs.ID, types.Grants{alice: {View: true}})).Should(BeNil())

		_, err := resolver.Resolve(ctx, alice, "personal:/docs/report.txt")
		Expect(errors.Is(err, types.ErrAmbiguous)).Should(BeTrue())

		item, err := resolver.Resolve(ctx, alice, "personal://bob/docs/report.txt")
		Expect(err).Should(BeNil())
		Expect(item.ID).Should(Equal(bobReport.ID))

		item, err = resolver.Resolve(ctx, alice, "personal://1/docs/report.txt")
		Expect(err).Should(BeNil())
		Expect(item.ID).Should(Equal(aliceReport.ID))
	})

	It("roots of others should stay hidden without a grant", func() {
		_, err := resolver.Resolve(ctx, alice, "personal://bob/docs/report.txt")
		Expect(types.IsNotFound(err)).Should(BeTrue())
		_, err = resolver.Resolve(ctx, carol, "/docs")
		Expect(types.IsNotFound(err)).Should(BeTrue())
	})

	It("missing segment should be not found", func() {
		_, err := resolver.Resolve(ctx, alice, "/docs/missing.txt")
		Expect(types.IsNotFound(err)).Should(BeTrue())
		_, err = resolver.Resolve(ctx, alice, "/docs/report.txt/deeper")
		Expect(types.IsNotFound(err)).Should(BeTrue())
	})

	It("public path should only see public roots", func() {
		_, err := resolver.Resolve(ctx, carol, "public:/docs/report.txt")
		Expect(types.IsNotFound(err)).Should(BeTrue())

		Expect(mgr.Share(ctx, admin, aliceDocs.ID, types.Grants{mgr.Access().PublicUser(): {View: true}})).Should(BeNil())
		item, err := resolver.Resolve(ctx, carol, "public:/docs/report.txt")
		Expect(err).Should(BeNil())
		Expect(item.ID).Should(Equal(aliceReport.ID))
	})
})
