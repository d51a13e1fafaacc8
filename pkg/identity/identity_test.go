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

package identity

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/types"
)

var _ = Describe("TestStaticProvider", func() {
	var (
		ctx = context.TODO()
		p   = NewCachedProvider(NewStaticProvider(config.Identity{Accounts: []config.Account{
			{ID: 1, Name: "root", Admin: true},
			{ID: 2, Name: "alice"},
			{ID: 3, Name: "viewer", Permissions: []string{string(types.PermView)}},
		}}, config.Tree{}), 16, time.Minute)
	)

	It("should resolve accounts by name and id", func() {
		acc, err := p.LookupAccount(ctx, "alice")
		Expect(err).Should(BeNil())
		Expect(acc.ID).Should(Equal(int64(2)))

		acc, err = p.LookupAccount(ctx, "3")
		Expect(err).Should(BeNil())
		Expect(acc.Name).Should(Equal("viewer"))

		_, err = p.LookupAccount(ctx, "bob")
		Expect(types.IsNotFound(err)).Should(BeTrue())
	})

	It("should answer permission checks", func() {
		Expect(p.IsAdmin(ctx, 1)).Should(BeTrue())
		Expect(p.HasPermission(ctx, 1, types.PermAdminister)).Should(BeTrue())
		Expect(p.HasPermission(ctx, 2, types.PermShare)).Should(BeTrue())
		Expect(p.HasPermission(ctx, 2, types.PermSharePublicly)).Should(BeFalse())
		Expect(p.HasPermission(ctx, 3, types.PermAuthor)).Should(BeFalse())
		Expect(p.HasPermission(ctx, 99, types.PermView)).Should(BeFalse())
		Expect(p.PublicUser()).Should(Equal(int64(0)))
	})
})
