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

package types

import (
	"time"
)

type SystemInfo struct {
	TreeID     string `json:"tree_id"`
	ItemCount  int64  `json:"item_count"`
	BytesTotal int64  `json:"bytes_total"`
}

// Item is a node of the tree. A nil ParentID marks a root item.
// A nil Size on a folder means the aggregate is stale.
type Item struct {
	ID          int64     `json:"id"`
	UUID        string    `json:"uuid"`
	Name        string    `json:"name"`
	Kind        Kind      `json:"kind"`
	Owner       int64     `json:"owner"`
	Size        *int64    `json:"size,omitempty"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	RootID      *int64    `json:"root_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modified_at"`
	MimeType    string    `json:"mime_type,omitempty"`
	Description string    `json:"description,omitempty"`
	ObjectID    string    `json:"object_id,omitempty"`
	Hidden      bool      `json:"hidden,omitempty"`
	Disabled    bool      `json:"disabled,omitempty"`
}

func (i *Item) IsFolder() bool {
	return i.Kind == FolderKind
}

func (i *Item) IsRoot() bool {
	return i.ParentID == nil
}

// RootOrSelf returns the id of the root this item belongs to.
func (i *Item) RootOrSelf() int64 {
	if i.IsRoot() || i.RootID == nil {
		return i.ID
	}
	return *i.RootID
}

func (i *Item) HasObject() bool {
	return i.ObjectID != "" && !i.IsFolder()
}

func (i *Item) SizeOrZero() int64 {
	if i.Size == nil {
		return 0
	}
	return *i.Size
}

func (i *Item) Clone() *Item {
	n := *i
	if i.Size != nil {
		n.Size = Int64Ptr(*i.Size)
	}
	if i.ParentID != nil {
		n.ParentID = Int64Ptr(*i.ParentID)
	}
	if i.RootID != nil {
		n.RootID = Int64Ptr(*i.RootID)
	}
	return &n
}

func Int64Ptr(v int64) *int64 {
	return &v
}

// SiblingScope is the set of items names must be unique within:
// the children of ParentID, or the root list of Owner when ParentID is nil.
type SiblingScope struct {
	ParentID *int64
	Owner    int64
}

func ScopeOf(item *Item) SiblingScope {
	if item.ParentID == nil {
		return SiblingScope{Owner: item.Owner}
	}
	return SiblingScope{ParentID: Int64Ptr(*item.ParentID)}
}

type ChildFilter struct {
	Kinds         []Kind
	IncludeHidden bool
}

type RootFilter struct {
	Owner         *int64
	Name          string
	IncludeHidden bool
}
