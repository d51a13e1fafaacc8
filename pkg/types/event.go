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

const (
	ActionTypeCreate      = "create"
	ActionTypeRename      = "rename"
	ActionTypeMove        = "move"
	ActionTypeCopy        = "copy"
	ActionTypeDelete      = "delete"
	ActionTypeShare       = "share"
	ActionTypeChangeOwner = "changeowner"
	ActionTypeArchive     = "archive"
	ActionTypeUnarchive   = "unarchive"
	ActionTypeSizes       = "sizes"
)

type ItemEvent struct {
	Id          string    `json:"id"`
	Type        string    `json:"type"`
	Source      string    `json:"source"`
	SpecVersion string    `json:"specversion"`
	Time        time.Time `json:"time"`
	Actor       int64     `json:"actor"`
	Data        EventData `json:"data"`
}

type EventData struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Owner    int64  `json:"owner"`
	ParentID *int64 `json:"parent_id,omitempty"`
	RootID   *int64 `json:"root_id,omitempty"`
	Size     *int64 `json:"size,omitempty"`
}

func NewEventData(item *Item) EventData {
	return EventData{
		ID:       item.ID,
		Name:     item.Name,
		Kind:     item.Kind,
		Owner:    item.Owner,
		ParentID: item.ParentID,
		RootID:   item.RootID,
		Size:     item.Size,
	}
}
