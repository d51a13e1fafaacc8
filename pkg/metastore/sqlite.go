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
	"sync"
	"time"

	"github.com/basenana/nanatree/pkg/types"
)

// sqliteMetaStore serializes writers, sqlite allows a single writer at a time.
type sqliteMetaStore struct {
	dbStore *sqlMetaStore
	mux     sync.RWMutex
}

var _ Meta = &sqliteMetaStore{}

func (s *sqliteMetaStore) SystemInfo(ctx context.Context) (*types.SystemInfo, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.dbStore.SystemInfo(ctx)
}

func (s *sqliteMetaStore) GetItem(ctx context.Context, id int64) (*types.Item, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.dbStore.GetItem(ctx, id)
}

func (s *sqliteMetaStore) GetItems(ctx context.Context, ids []int64) ([]*types.Item, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.dbStore.GetItems(ctx, ids)
}

func (s *sqliteMetaStore) CreateItem(ctx context.Context, item *types.Item) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.dbStore.CreateItem(ctx, item)
}

func (s *sqliteMetaStore) UpdateItem(ctx context.Context, item *types.Item) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.dbStore.UpdateItem(ctx, item)
}

func (s *sqliteMetaStore) DeleteItem(ctx context.Context, id int64) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.dbStore.DeleteItem(ctx, id)
}

func (s *sqliteMetaStore) FindChild(ctx context.Context, scope types.SiblingScope, name string) (*types.Item, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.dbStore.FindChild(ctx, scope, name)
}

func (s *sqliteMetaStore) ListChildren(ctx context.Context, parentID int64, filter types.ChildFilter) ([]*types.Item, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.dbStore.ListChildren(ctx, parentID, filter)
}

func (s *sqliteMetaStore) ListChildIDs(ctx context.Context, parentID int64, filter types.ChildFilter) ([]int64, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.dbStore.ListChildIDs(ctx, parentID, filter)
}

func (s *sqliteMetaStore) ChildNames(ctx context.Context, scope types.SiblingScope, includeHidden bool) (map[int64]string, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.dbStore.ChildNames(ctx, scope, includeHidden)
}

func (s *sqliteMetaStore) ListRootItems(ctx context.Context, filter types.RootFilter) ([]*types.Item, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.dbStore.ListRootItems(ctx, filter)
}

func (s *sqliteMetaStore) ListIDsByRoot(ctx context.Context, rootID int64) ([]int64, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.dbStore.ListIDsByRoot(ctx, rootID)
}

func (s *sqliteMetaStore) SumChildrenSize(ctx context.Context, parentID int64, kinds []types.Kind) (int64, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.dbStore.SumChildrenSize(ctx, parentID, kinds)
}

func (s *sqliteMetaStore) SetItemSize(ctx context.Context, id int64, size *int64) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.dbStore.SetItemSize(ctx, id, size)
}

func (s *sqliteMetaStore) UpdateItemRoot(ctx context.Context, ids []int64, rootID *int64) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.dbStore.UpdateItemRoot(ctx, ids, rootID)
}

func (s *sqliteMetaStore) UpdateItemOwner(ctx context.Context, ids []int64, owner int64) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.dbStore.UpdateItemOwner(ctx, ids, owner)
}

func (s *sqliteMetaStore) CountUsage(ctx context.Context) ([]types.Usage, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.dbStore.CountUsage(ctx)
}

func (s *sqliteMetaStore) ListGrants(ctx context.Context, rootID int64) (types.Grants, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.dbStore.ListGrants(ctx, rootID)
}

func (s *sqliteMetaStore) ReplaceGrants(ctx context.Context, rootID int64, grants types.Grants) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.dbStore.ReplaceGrants(ctx, rootID, grants)
}

func (s *sqliteMetaStore) DeleteGrants(ctx context.Context, rootIDs ...int64) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.dbStore.DeleteGrants(ctx, rootIDs...)
}

func (s *sqliteMetaStore) DeleteUserGrants(ctx context.Context, userID int64, rootIDs []int64) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.dbStore.DeleteUserGrants(ctx, userID, rootIDs)
}

func (s *sqliteMetaStore) ListGrantedRoots(ctx context.Context, userID int64) ([]int64, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.dbStore.ListGrantedRoots(ctx, userID)
}

func (s *sqliteMetaStore) TryLock(ctx context.Context, name, holder string, expireAt time.Time) (bool, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.dbStore.TryLock(ctx, name, holder, expireAt)
}

func (s *sqliteMetaStore) Unlock(ctx context.Context, name, holder string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.dbStore.Unlock(ctx, name, holder)
}

func (s *sqliteMetaStore) PurgeExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.dbStore.PurgeExpiredLocks(ctx, now)
}

func (s *sqliteMetaStore) CreateTask(ctx context.Context, task *types.QueuedTask) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.dbStore.CreateTask(ctx, task)
}

func (s *sqliteMetaStore) UpdateTask(ctx context.Context, task *types.QueuedTask) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.dbStore.UpdateTask(ctx, task)
}

func (s *sqliteMetaStore) DeleteTask(ctx context.Context, id int64) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.dbStore.DeleteTask(ctx, id)
}

func (s *sqliteMetaStore) GetTask(ctx context.Context, id int64) (*types.QueuedTask, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.dbStore.GetTask(ctx, id)
}

func (s *sqliteMetaStore) ClaimTasks(ctx context.Context, limit int, now, leaseUntil time.Time) ([]*types.QueuedTask, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.dbStore.ClaimTasks(ctx, limit, now, leaseUntil)
}

func (s *sqliteMetaStore) ListTasks(ctx context.Context) ([]*types.QueuedTask, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.dbStore.ListTasks(ctx)
}

func (s *sqliteMetaStore) ReplaceUsage(ctx context.Context, usages []types.Usage) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.dbStore.ReplaceUsage(ctx, usages)
}

func (s *sqliteMetaStore) GetUsage(ctx context.Context, owner int64) (*types.Usage, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.dbStore.GetUsage(ctx, owner)
}

func (s *sqliteMetaStore) ListUsage(ctx context.Context) ([]types.Usage, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.dbStore.ListUsage(ctx)
}
