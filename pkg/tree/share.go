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
	"time"

	"github.com/basenana/nanatree/pkg/lock"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
)

// Share merges grants into a root item.
func (m *Manager) Share(ctx context.Context, actor, rootID int64, grants types.Grants) (err error) {
	defer utils.TraceRegion(ctx, "tree.share")()
	defer logOperationLatency("share", time.Now())
	defer func() { _ = logOperationError("share", err) }()

	return m.withRootLocked(ctx, rootID, func(root *types.Item) error {
		if err := m.access.Share(ctx, root, grants, actor); err != nil {
			return err
		}
		m.publicItemActionEvent(types.ActionTypeShare, actor, root)
		return nil
	})
}

// Unshare drops users from the grants of a root item, the owner always stays.
func (m *Manager) Unshare(ctx context.Context, actor, rootID int64, users []int64) (err error) {
	defer utils.TraceRegion(ctx, "tree.unshare")()
	defer logOperationLatency("unshare", time.Now())
	defer func() { _ = logOperationError("unshare", err) }()

	return m.withRootLocked(ctx, rootID, func(root *types.Item) error {
		if err := m.access.Unshare(ctx, root, users, actor); err != nil {
			return err
		}
		m.publicItemActionEvent(types.ActionTypeShare, actor, root)
		return nil
	})
}

func (m *Manager) withRootLocked(ctx context.Context, rootID int64, fn func(root *types.Item) error) error {
	holder := m.locks.NewHolder()
	defer holder.ReleaseAll(ctx)
	if err := holder.Acquire(ctx, lock.ItemLock(rootID)); err != nil {
		return err
	}
	root, err := m.loadItem(ctx, rootID)
	if err != nil {
		return err
	}
	if !root.IsRoot() {
		return types.NewValidationError(types.ErrNotRoot, "item %d", root.ID)
	}
	return fn(root)
}
