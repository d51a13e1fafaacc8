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
	"github.com/basenana/nanatree/pkg/naming"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
)

// Rename changes the name of an item within its scope. Content items
// switch between file and image when the new extension says so.
func (m *Manager) Rename(ctx context.Context, actor, id int64, newName string) (item *types.Item, err error) {
	defer utils.TraceRegion(ctx, "tree.rename")()
	defer logOperationLatency("rename", time.Now())
	defer func() { _ = logOperationError("rename", err) }()

	item, err = m.loadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if err = m.access.CheckAccess(ctx, item, actor, types.GrantAuthor); err != nil {
		return nil, err
	}
	if err = m.names.CheckName(newName, item.Kind); err != nil {
		return nil, err
	}
	if item.Name == newName {
		return item, nil
	}

	holder := m.locks.NewHolder()
	defer holder.ReleaseAll(ctx)
	scope := types.ScopeOf(item)
	if err = holder.AcquireAll(ctx, []string{lock.ItemLock(item.ID), lock.ScopeLock(scope)}); err != nil {
		return nil, err
	}

	// reload, the item may have moved before the locks were taken
	item, err = m.loadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sameScope(scope, types.ScopeOf(item)) {
		return nil, types.NewLockError(lock.ItemLock(item.ID))
	}
	if _, err = m.resolveName(ctx, scope, newName, item.ID, false, ""); err != nil {
		return nil, err
	}

	item.Name = newName
	item.ModifiedAt = time.Now()
	if item.HasObject() {
		info, err := m.objects.Rename(ctx, item.ObjectID, newName)
		if err != nil {
			m.logger.Errorw("rename object failed", "item", item.ID, "object", item.ObjectID, "err", err)
			return nil, types.NewSystemError("rename object", err)
		}
		kind, mimeType := naming.DetectKind(newName, info.MimeType)
		if swappable(item.Kind) && swappable(kind) {
			item.Kind = kind
			item.MimeType = mimeType
		}
	}
	if err = m.store.UpdateItem(ctx, item); err != nil {
		m.logger.Errorw("update item name failed", "item", item.ID, "err", err)
		return nil, err
	}
	holder.ReleaseAll(ctx)

	m.markIndex(ctx, item)
	m.publicItemActionEvent(types.ActionTypeRename, actor, item)
	return item, nil
}

func swappable(kind types.Kind) bool {
	return kind == types.FileKind || kind == types.ImageKind
}

func sameScope(a, b types.SiblingScope) bool {
	if (a.ParentID == nil) != (b.ParentID == nil) {
		return false
	}
	if a.ParentID == nil {
		return a.Owner == b.Owner
	}
	return *a.ParentID == *b.ParentID
}
