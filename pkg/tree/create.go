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
	"time"

	"github.com/basenana/nanatree/pkg/access"
	"github.com/basenana/nanatree/pkg/lock"
	"github.com/basenana/nanatree/pkg/naming"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
)

type CreateAttr struct {
	Name        string
	Description string
	MimeType    string
	AutoRename  bool
}

// CreateFolder adds an empty folder under parentID, or a root item when parentID is nil.
func (m *Manager) CreateFolder(ctx context.Context, actor int64, parentID *int64, attr CreateAttr) (item *types.Item, err error) {
	defer utils.TraceRegion(ctx, "tree.createfolder")()
	defer logOperationLatency("create_folder", time.Now())
	defer func() { _ = logOperationError("create_folder", err) }()

	if err = m.names.CheckName(attr.Name, types.FolderKind); err != nil {
		return nil, err
	}
	parent, err := m.loadDestination(ctx, actor, parentID)
	if err != nil {
		return nil, err
	}

	item = newItem(attr.Name, types.FolderKind, actor, parent)
	item.Description = attr.Description
	item.Size = types.Int64Ptr(0)
	if err = m.insertItem(ctx, actor, parent, item, attr.AutoRename, ""); err != nil {
		return nil, err
	}
	m.markIndex(ctx, item)
	m.publicItemActionEvent(types.ActionTypeCreate, actor, item)
	return item, nil
}

// CreateFile stores the content first, then links it under parentID. The
// kind follows the detected mime type.
func (m *Manager) CreateFile(ctx context.Context, actor int64, parentID *int64, attr CreateAttr, content io.Reader) (item *types.Item, err error) {
	defer utils.TraceRegion(ctx, "tree.createfile")()
	defer logOperationLatency("create_file", time.Now())
	defer func() { _ = logOperationError("create_file", err) }()

	kind, _ := naming.DetectKind(attr.Name, attr.MimeType)
	if err = m.names.CheckName(attr.Name, kind); err != nil {
		return nil, err
	}
	parent, err := m.loadDestination(ctx, actor, parentID)
	if err != nil {
		return nil, err
	}

	info, err := m.objects.Create(ctx, attr.Name, content)
	if err != nil {
		m.logger.Errorw("store file content failed", "name", attr.Name, "err", err)
		return nil, types.NewSystemError("create object", err)
	}
	mimeType := attr.MimeType
	if mimeType == "" {
		mimeType = info.MimeType
	}
	kind, mimeType = naming.DetectKind(attr.Name, mimeType)

	item = newItem(attr.Name, kind, actor, parent)
	item.Description = attr.Description
	item.MimeType = mimeType
	item.ObjectID = info.ID
	item.Size = types.Int64Ptr(info.Size)
	if err = m.insertItem(ctx, actor, parent, item, attr.AutoRename, ""); err != nil {
		if dErr := m.objects.Delete(ctx, info.ID); dErr != nil {
			m.logger.Warnw("clean up orphan object failed", "object", info.ID, "err", dErr)
		}
		return nil, err
	}
	if parent != nil {
		m.refreshSizes(ctx, parent.ID)
	}
	m.markIndex(ctx, item)
	m.publicItemActionEvent(types.ActionTypeCreate, actor, item)
	return item, nil
}

// insertItem saves item under the scope lock of its parent, roots get owner-only grants.
func (m *Manager) insertItem(ctx context.Context, actor int64, parent *types.Item, item *types.Item, autoRename bool, suffix string) error {
	holder := m.locks.NewHolder()
	defer holder.ReleaseAll(ctx)

	scope := scopeFor(parent, item.Owner)
	if err := holder.Acquire(ctx, lock.ScopeLock(scope)); err != nil {
		return err
	}
	if parent != nil {
		fresh, err := m.loadItem(ctx, parent.ID)
		if err != nil {
			return err
		}
		if fresh.Disabled {
			return types.NewValidationError(types.ErrNotFolder, "destination %d is not ready", fresh.ID)
		}
	}

	name, err := m.resolveName(ctx, scope, item.Name, 0, autoRename, suffix)
	if err != nil {
		return err
	}
	item.Name = name

	if err = m.store.CreateItem(ctx, item); err != nil {
		m.logger.Errorw("create item failed", "name", item.Name, "actor", actor, "err", err)
		return err
	}
	if item.IsRoot() {
		if err = m.access.SetAccessGrants(ctx, item, access.DefaultGrants(item.Owner)); err != nil {
			m.logger.Errorw("init root grants failed", "item", item.ID, "err", err)
			return err
		}
	}
	return nil
}
