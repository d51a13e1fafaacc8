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
	"fmt"

	"github.com/basenana/nanatree/pkg/types"
)

const maxTreeDepth = 1024

// ListDescendantIDs returns every id below item. Roots are served by a
// single root_id query. Other items are walked breadth first, each level
// yields its folders before its files.
func ListDescendantIDs(ctx context.Context, store ItemStore, item *types.Item) ([]int64, error) {
	if item.IsRoot() {
		return store.ListIDsByRoot(ctx, item.ID)
	}
	if !item.IsFolder() {
		return nil, nil
	}

	var (
		result  []int64
		pending = []int64{item.ID}
	)
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		parentID := pending[0]
		pending = pending[1:]

		children, err := store.ListChildren(ctx, parentID, types.ChildFilter{IncludeHidden: true})
		if err != nil {
			return result, err
		}
		var files []int64
		for _, child := range children {
			if child.IsFolder() {
				result = append(result, child.ID)
				pending = append(pending, child.ID)
				continue
			}
			files = append(files, child.ID)
		}
		result = append(result, files...)
	}
	return result, nil
}

// ListAncestors returns the parent chain of item, nearest first, ending at the root.
func ListAncestors(ctx context.Context, store ItemStore, item *types.Item) ([]*types.Item, error) {
	var (
		result  []*types.Item
		current = item
	)
	for current.ParentID != nil {
		if len(result) >= maxTreeDepth {
			return result, fmt.Errorf("item %d: parent chain exceeds %d levels", item.ID, maxTreeDepth)
		}
		parent, err := store.GetItem(ctx, *current.ParentID)
		if err != nil {
			return result, err
		}
		result = append(result, parent)
		current = parent
	}
	return result, nil
}

// IsAncestorOf reports whether candidate is item itself or one of its ancestors.
func IsAncestorOf(ctx context.Context, store ItemStore, candidate int64, item *types.Item) (bool, error) {
	if item.ID == candidate {
		return true, nil
	}
	ancestors, err := ListAncestors(ctx, store, item)
	if err != nil {
		return false, err
	}
	for _, a := range ancestors {
		if a.ID == candidate {
			return true, nil
		}
	}
	return false, nil
}
