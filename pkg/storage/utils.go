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

package storage

import "fmt"

// shard spreads keys over directories, short keys go to "_".
func shard(key string) string {
	if len(key) < 2 {
		return "_"
	}
	return key[:2]
}

func objectName(prefix, key string) string {
	return fmt.Sprintf("%s/objects/%s/%s", prefix, shard(key), key)
}
