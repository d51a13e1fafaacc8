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

package db

import (
	"encoding/json"
	"time"

	"github.com/basenana/nanatree/pkg/types"
)

type SystemInfo struct {
	TreeID string `gorm:"column:tree_id;primaryKey"`
}

func (i SystemInfo) TableName() string {
	return "system_info"
}

type Item struct {
	ID          int64  `gorm:"column:id;primaryKey"`
	UUID        string `gorm:"column:uuid;uniqueIndex:item_uuid"`
	Name        string `gorm:"column:name;index:item_name"`
	Kind        string `gorm:"column:kind"`
	Owner       int64  `gorm:"column:owner;index:item_owner"`
	Size        *int64 `gorm:"column:size"`
	ParentID    *int64 `gorm:"column:parent_id;index:item_parent_id"`
	RootID      *int64 `gorm:"column:root_id;index:item_root_id"`
	MimeType    string `gorm:"column:mime_type"`
	Description string `gorm:"column:description"`
	ObjectID    string `gorm:"column:object_id"`
	Hidden      bool   `gorm:"column:hidden"`
	Disabled    bool   `gorm:"column:disabled"`
	CreatedAt   int64  `gorm:"column:created_at"`
	ModifiedAt  int64  `gorm:"column:modified_at"`
}

func (i *Item) TableName() string {
	return "item"
}

func (i *Item) FromItem(item *types.Item) *Item {
	i.ID = item.ID
	i.UUID = item.UUID
	i.Name = item.Name
	i.Kind = string(item.Kind)
	i.Owner = item.Owner
	i.Size = item.Size
	i.ParentID = item.ParentID
	i.RootID = item.RootID
	i.MimeType = item.MimeType
	i.Description = item.Description
	i.ObjectID = item.ObjectID
	i.Hidden = item.Hidden
	i.Disabled = item.Disabled
	i.CreatedAt = toUnixNano(item.CreatedAt)
	i.ModifiedAt = toUnixNano(item.ModifiedAt)
	return i
}

func (i *Item) ToItem() *types.Item {
	return &types.Item{
		ID:          i.ID,
		UUID:        i.UUID,
		Name:        i.Name,
		Kind:        types.Kind(i.Kind),
		Owner:       i.Owner,
		Size:        i.Size,
		ParentID:    i.ParentID,
		RootID:      i.RootID,
		MimeType:    i.MimeType,
		Description: i.Description,
		ObjectID:    i.ObjectID,
		Hidden:      i.Hidden,
		Disabled:    i.Disabled,
		CreatedAt:   fromUnixNano(i.CreatedAt),
		ModifiedAt:  fromUnixNano(i.ModifiedAt),
	}
}

// Grant rows exist only for root items, one per user.
type Grant struct {
	ID     int64 `gorm:"column:id;autoIncrement"`
	RootID int64 `gorm:"column:root_id;index:grant_root_id"`
	UserID int64 `gorm:"column:user_id;index:grant_user_id"`
	View   bool  `gorm:"column:can_view"`
	Author bool  `gorm:"column:can_author"`
}

func (g *Grant) TableName() string {
	return "item_grant"
}

type Lock struct {
	Name     string `gorm:"column:name;primaryKey"`
	Holder   string `gorm:"column:holder"`
	ExpireAt int64  `gorm:"column:expire_at;index:lock_expire_at"`
}

func (l *Lock) TableName() string {
	return "tree_lock"
}

type QueuedTask struct {
	ID           int64  `gorm:"column:id;autoIncrement"`
	Kind         string `gorm:"column:kind;index:task_kind"`
	ItemIDs      string `gorm:"column:item_ids"`
	Params       string `gorm:"column:params"`
	Attempts     int    `gorm:"column:attempts"`
	CreatedAt    int64  `gorm:"column:created_at"`
	ClaimedUntil int64  `gorm:"column:claimed_until;index:task_claimed_until"`
}

func (t *QueuedTask) TableName() string {
	return "queued_task"
}

func (t *QueuedTask) FromTask(task *types.QueuedTask) (*QueuedTask, error) {
	ids, err := json.Marshal(task.ItemIDs)
	if err != nil {
		return nil, err
	}
	params, err := json.Marshal(task.Params)
	if err != nil {
		return nil, err
	}
	t.ID = task.ID
	t.Kind = string(task.Kind)
	t.ItemIDs = string(ids)
	t.Params = string(params)
	t.Attempts = task.Attempts
	t.CreatedAt = toUnixNano(task.CreatedAt)
	t.ClaimedUntil = toUnixNano(task.ClaimedUntil)
	return t, nil
}

func (t *QueuedTask) ToTask() (*types.QueuedTask, error) {
	result := &types.QueuedTask{
		ID:           t.ID,
		Kind:         types.TaskKind(t.Kind),
		Attempts:     t.Attempts,
		CreatedAt:    fromUnixNano(t.CreatedAt),
		ClaimedUntil: fromUnixNano(t.ClaimedUntil),
	}
	if t.ItemIDs != "" {
		if err := json.Unmarshal([]byte(t.ItemIDs), &result.ItemIDs); err != nil {
			return nil, err
		}
	}
	if t.Params != "" {
		if err := json.Unmarshal([]byte(t.Params), &result.Params); err != nil {
			return nil, err
		}
	}
	return result, nil
}

type Usage struct {
	Owner       int64 `gorm:"column:owner;primaryKey;autoIncrement:false"`
	FolderCount int64 `gorm:"column:folder_count"`
	FileCount   int64 `gorm:"column:file_count"`
	TotalBytes  int64 `gorm:"column:total_bytes"`
}

func (u *Usage) TableName() string {
	return "owner_usage"
}

func (u *Usage) ToUsage() types.Usage {
	return types.Usage{
		Owner:       u.Owner,
		FolderCount: u.FolderCount,
		FileCount:   u.FileCount,
		TotalBytes:  u.TotalBytes,
	}
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
