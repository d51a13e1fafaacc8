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

	"go.uber.org/zap"

	"github.com/basenana/nanatree/pkg/identity"
	"github.com/basenana/nanatree/pkg/metastore"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
	"github.com/basenana/nanatree/utils/logger"
)

type Store interface {
	metastore.ItemStore
	metastore.GrantStore
}

// Model derives access decisions from the grants stored on root items.
type Model struct {
	store  Store
	ident  identity.Provider
	logger *zap.SugaredLogger
}

func NewModel(store Store, ident identity.Provider) *Model {
	return &Model{store: store, ident: ident, logger: logger.NewLogger("accessModel")}
}

func (m *Model) PublicUser() int64 {
	return m.ident.PublicUser()
}

func DefaultGrants(owner int64) types.Grants {
	return types.Grants{owner: {View: true, Author: true}}
}

func (m *Model) RootOf(ctx context.Context, item *types.Item) (*types.Item, error) {
	if item.IsRoot() {
		return item, nil
	}
	return m.store.GetItem(ctx, item.RootOrSelf())
}

// GetAccessGrants returns the grants of a root, the owner is always present.
func (m *Model) GetAccessGrants(ctx context.Context, root *types.Item) (types.Grants, error) {
	defer utils.TraceRegion(ctx, "access.getgrants")()
	if !root.IsRoot() {
		return nil, types.NewValidationError(types.ErrNotRoot, "item %d", root.ID)
	}
	grants, err := m.store.ListGrants(ctx, root.ID)
	if err != nil {
		return nil, err
	}
	grants[root.Owner] = types.Grant{View: true, Author: true}
	return grants, nil
}

func (m *Model) SetAccessGrants(ctx context.Context, root *types.Item, grants types.Grants) error {
	defer utils.TraceRegion(ctx, "access.setgrants")()
	if !root.IsRoot() {
		return types.NewValidationError(types.ErrNotRoot, "item %d", root.ID)
	}
	final := grants.Clone()
	final[root.Owner] = types.Grant{View: true, Author: true}
	return m.store.ReplaceGrants(ctx, root.ID, final)
}

// IsAccessGranted checks the public user and the specific user against the root grants.
func (m *Model) IsAccessGranted(ctx context.Context, root *types.Item, uid int64, kind types.GrantKind) (bool, error) {
	grants, err := m.GetAccessGrants(ctx, root)
	if err != nil {
		return false, err
	}
	if grants[m.ident.PublicUser()].Has(kind) {
		return true, nil
	}
	return grants[uid].Has(kind), nil
}

func (m *Model) CanAccess(ctx context.Context, item *types.Item, uid int64, kind types.GrantKind) (bool, error) {
	if item.Hidden || item.Disabled {
		return false, nil
	}
	if item.Owner == uid || m.ident.IsAdmin(ctx, uid) {
		return true, nil
	}
	root, err := m.RootOf(ctx, item)
	if err != nil {
		return false, err
	}
	if root.Hidden || root.Disabled {
		return false, nil
	}
	return m.IsAccessGranted(ctx, root, uid, kind)
}

// CheckAccess is CanAccess in error form.
func (m *Model) CheckAccess(ctx context.Context, item *types.Item, uid int64, kind types.GrantKind) error {
	ok, err := m.CanAccess(ctx, item, uid, kind)
	if err != nil {
		return err
	}
	if !ok {
		return types.ErrNoAccess
	}
	return nil
}

func (m *Model) GetSharingStatus(ctx context.Context, item *types.Item, viewer int64) (types.SharingStatus, error) {
	root, err := m.RootOf(ctx, item)
	if err != nil {
		return "", err
	}
	grants, err := m.GetAccessGrants(ctx, root)
	if err != nil {
		return "", err
	}

	public := m.ident.PublicUser()
	if root.Owner == public || item.Owner == public {
		return types.SharingPublic, nil
	}
	if g, ok := grants[public]; ok && (g.View || g.Author) {
		return types.SharingPublic, nil
	}

	extra := 0
	for uid, g := range grants {
		if uid == root.Owner || (!g.View && !g.Author) {
			continue
		}
		extra++
	}
	if extra == 0 {
		if viewer == root.Owner {
			return types.SharingPersonal, nil
		}
		return types.SharingPrivate, nil
	}

	if viewer == root.Owner {
		return types.SharingSharedByMe, nil
	}
	if g, ok := grants[viewer]; ok && (g.View || g.Author) {
		return types.SharingSharedWith, nil
	}
	return types.SharingPrivate, nil
}

// Share merges grants into the root. The caller holds the root lock.
func (m *Model) Share(ctx context.Context, root *types.Item, grants types.Grants, actor int64) error {
	if err := m.checkCanShare(ctx, root, grants, actor); err != nil {
		return err
	}
	current, err := m.GetAccessGrants(ctx, root)
	if err != nil {
		return err
	}
	for uid, g := range grants {
		merged := current[uid]
		merged.View = merged.View || g.View || g.Author
		merged.Author = merged.Author || g.Author
		current[uid] = merged
	}
	return m.SetAccessGrants(ctx, root, current)
}

// Unshare removes users from the root grants, the owner is never removed.
func (m *Model) Unshare(ctx context.Context, root *types.Item, users []int64, actor int64) error {
	if err := m.checkCanShare(ctx, root, nil, actor); err != nil {
		return err
	}
	current, err := m.GetAccessGrants(ctx, root)
	if err != nil {
		return err
	}
	for _, uid := range users {
		if uid == root.Owner {
			continue
		}
		delete(current, uid)
	}
	return m.SetAccessGrants(ctx, root, current)
}

// UnshareAll resets the roots to owner-only grants. It takes no locks,
// callers make sure no concurrent traffic touches the roots.
func (m *Model) UnshareAll(ctx context.Context, roots []*types.Item) error {
	for _, root := range roots {
		if err := m.SetAccessGrants(ctx, root, DefaultGrants(root.Owner)); err != nil {
			m.logger.Errorw("unshare root failed", "root", root.ID, "err", err)
			return err
		}
	}
	return nil
}

// UnshareFromAll drops every grant given to a user. It takes no locks.
func (m *Model) UnshareFromAll(ctx context.Context, uid int64) error {
	roots, err := m.store.ListGrantedRoots(ctx, uid)
	if err != nil {
		return err
	}
	var foreign []int64
	for _, rid := range roots {
		root, err := m.store.GetItem(ctx, rid)
		if err != nil {
			if types.IsNotFound(err) {
				foreign = append(foreign, rid)
				continue
			}
			return err
		}
		if root.Owner != uid {
			foreign = append(foreign, rid)
		}
	}
	return m.store.DeleteUserGrants(ctx, uid, foreign)
}

// AccessibleRoots lists the roots a user owns or was granted, hidden ones excluded.
func (m *Model) AccessibleRoots(ctx context.Context, uid int64, name string) ([]*types.Item, error) {
	all, err := m.store.ListRootItems(ctx, types.RootFilter{Name: name})
	if err != nil {
		return nil, err
	}
	var result []*types.Item
	for _, root := range all {
		ok, err := m.CanAccess(ctx, root, uid, types.GrantView)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, root)
		}
	}
	return result, nil
}

func (m *Model) checkCanShare(ctx context.Context, root *types.Item, grants types.Grants, actor int64) error {
	if !root.IsRoot() {
		return types.NewValidationError(types.ErrNotRoot, "item %d", root.ID)
	}
	if !m.ident.HasPermission(ctx, actor, types.PermShare) {
		return types.ErrNoPerm
	}
	if g, ok := grants[m.ident.PublicUser()]; ok && (g.View || g.Author) {
		if !m.ident.HasPermission(ctx, actor, types.PermSharePublicly) {
			return types.ErrNoPerm
		}
	}
	return m.CheckAccess(ctx, root, actor, types.GrantAuthor)
}
