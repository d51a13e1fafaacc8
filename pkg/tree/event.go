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
	"github.com/basenana/nanatree/pkg/events"
	"github.com/basenana/nanatree/pkg/types"
)

type itemEvent struct {
	item       *types.Item
	actor      int64
	actionType string
}

var eventQ = make(chan *itemEvent, 128)

// publicItemActionEvent never blocks a committed mutation, a full queue drops the event.
func (m *Manager) publicItemActionEvent(actionType string, actor int64, item *types.Item) {
	if item == nil {
		return
	}
	select {
	case eventQ <- &itemEvent{item: item.Clone(), actor: actor, actionType: actionType}:
	default:
		m.logger.Warnw("event queue is full, drop item event", "item", item.ID, "action", actionType)
	}
}

func (m *Manager) itemActionEventHandler() {
	m.logger.Debugw("start itemActionEventHandler")
	for evt := range eventQ {
		events.Publish(evt.actionType, evt.actor, evt.item)
	}
}
