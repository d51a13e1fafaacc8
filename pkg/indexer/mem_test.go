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

package indexer

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basenana/nanatree/pkg/types"
)

var _ = Describe("TestMemIndexer", func() {
	It("should track reindex and delete marks", func() {
		idx := NewMem()
		Expect(idx.MarkForReindex(context.TODO(), &types.Item{ID: 1, Name: "a"})).Should(BeNil())
		Expect(idx.MarkForReindex(context.TODO(), &types.Item{ID: 2, Name: "b"})).Should(BeNil())
		Expect(idx.Delete(context.TODO(), 1)).Should(BeNil())

		Expect(idx.Pending()).Should(Equal(map[int64]string{2: "b"}))
		Expect(idx.IsDeleted(1)).Should(BeTrue())
		Expect(idx.IsDeleted(2)).Should(BeFalse())
	})
})
