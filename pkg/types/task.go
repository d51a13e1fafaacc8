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

import "time"

type TaskKind string

const (
	TaskUpdateSizes  TaskKind = "updatesizes"
	TaskCopy         TaskKind = "copy"
	TaskMove         TaskKind = "move"
	TaskChangeOwner  TaskKind = "changeowner"
	TaskRebuildUsage TaskKind = "rebuildusage"
)

type TaskParams struct {
	DestinationID *int64 `json:"destination_id,omitempty"`
	RootID        *int64 `json:"root_id,omitempty"`
	NewOwner      *int64 `json:"new_owner,omitempty"`
	Overwrite     bool   `json:"overwrite,omitempty"`
	Invalidate    bool   `json:"invalidate,omitempty"`
	Actor         int64  `json:"actor,omitempty"`
}

// QueuedTask is a durable continuation. ItemIDs shrinks as work completes.
type QueuedTask struct {
	ID           int64      `json:"id"`
	Kind         TaskKind   `json:"kind"`
	ItemIDs      []int64    `json:"item_ids"`
	Params       TaskParams `json:"params"`
	Attempts     int        `json:"attempts"`
	CreatedAt    time.Time  `json:"created_at"`
	ClaimedUntil time.Time  `json:"claimed_until"`
}
