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
	"time"

	"github.com/basenana/nanatree/pkg/types"
)

type Meta interface {
	SystemInfo(ctx context.Context) (*types.SystemInfo, error)

	ItemStore
	GrantStore
	LockStore
	TaskStore
	UsageStore
}

type ItemStore interface {
	GetItem(ctx context.Context, id int64) (*types.Item, error)
	GetItems(ctx context.Context, ids []int64) ([]*types.Item, error)
	CreateItem(ctx context.Context, item *types.Item) error
	UpdateItem(ctx context.Context, item *types.Item) error
	DeleteItem(ctx context.Context, id int64) error

	FindChild(ctx context.Context, scope types.SiblingScope, name string) (*types.Item, error)
	ListChildren(ctx context.Context, parentID int64, filter types.ChildFilter) ([]*types.Item, error)
	ListChildIDs(ctx context.Context, parentID int64, filter types.ChildFilter) ([]int64, error)
	ChildNames(ctx context.Context, scope types.SiblingScope, includeHidden bool) (map[int64]string, error)
	ListRootItems(ctx context.Context, filter types.RootFilter) ([]*types.Item, error)
	ListIDsByRoot(ctx context.Context, rootID int64) ([]int64, error)

	SumChildrenSize(ctx context.Context, parentID int64, kinds []types.Kind) (int64, error)
	SetItemSize(ctx context.Context, id int64, size *int64) error
	UpdateItemRoot(ctx context.Context, ids []int64, rootID *int64) error
	UpdateItemOwner(ctx context.Context, ids []int64, owner int64) error
	CountUsage(ctx context.Context) ([]types.Usage, error)
}

type GrantStore interface {
	ListGrants(ctx context.Context, rootID int64) (types.Grants, error)
	ReplaceGrants(ctx context.Context, rootID int64, grants types.Grants) error
	DeleteGrants(ctx context.Context, rootIDs ...int64) error
	DeleteUserGrants(ctx context.Context, userID int64, rootIDs []int64) error
	ListGrantedRoots(ctx context.Context, userID int64) ([]int64, error)
}

type LockStore interface {
	TryLock(ctx context.Context, name, holder string, expireAt time.Time) (bool, error)
	Unlock(ctx context.Context, name, holder string) error
	PurgeExpiredLocks(ctx context.Context, now time.Time) (int64, error)
}

type TaskStore interface {
	CreateTask(ctx context.Context, task *types.QueuedTask) error
	UpdateTask(ctx context.Context, task *types.QueuedTask) error
	DeleteTask(ctx context.Context, id int64) error
	GetTask(ctx context.Context, id int64) (*types.QueuedTask, error)
	ClaimTasks(ctx context.Context, limit int, now, leaseUntil time.Time) ([]*types.QueuedTask, error)
	ListTasks(ctx context.Context) ([]*types.QueuedTask, error)
}

type UsageStore interface {
	ReplaceUsage(ctx context.Context, usages []types.Usage) error
	GetUsage(ctx context.Context, owner int64) (*types.Usage, error)
	ListUsage(ctx context.Context) ([]types.Usage, error)
}
