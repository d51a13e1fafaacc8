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

package events

import (
	"time"

	"github.com/hyponet/eventbus"

	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
	"github.com/basenana/nanatree/utils/logger"
)

func BuildItemEvent(actionType string, actor int64, item *types.Item) *types.ItemEvent {
	return &types.ItemEvent{
		Id:          utils.NewUUID(),
		Type:        actionType,
		Source:      "treeManager",
		SpecVersion: "1.0",
		Time:        time.Now(),
		Actor:       actor,
		Data:        types.NewEventData(item),
	}
}

// Publish notifies observers after a mutation is committed. Delivery is
// asynchronous and best effort.
func Publish(actionType string, actor int64, item *types.Item) {
	if item == nil {
		return
	}
	eventbus.Publish(ItemActionTopic(actionType), BuildItemEvent(actionType, actor, item))
}

// Subscribe registers an observer on a topic, a panicking observer is logged and dropped.
func Subscribe(topic string, fn func(evt *types.ItemEvent)) string {
	log := logger.NewLogger("eventObserver")
	return eventbus.Subscribe(topic, func(evt *types.ItemEvent) {
		defer func() {
			if rErr := utils.Recover(recover()); rErr != nil {
				log.Errorw("observer panic", "topic", topic, "event", evt.Id, "err", rErr)
			}
		}()
		fn(evt)
	})
}

func Unsubscribe(id string) {
	eventbus.Unsubscribe(id)
}
