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

package config

import (
	"fmt"
	"path"

	"github.com/basenana/nanatree/utils"
)

func DefaultConfig(workdir string) (Config, error) {
	var (
		dataPath = path.Join(workdir, "local-data")
		err      error
	)

	cfg := Config{
		Api: Api{
			Enable:  true,
			Host:    "127.0.0.1",
			Port:    17087,
			Metrics: true,
		},
		Meta: Meta{
			Type: SqliteMeta,
			Path: fmt.Sprintf("%s/nanatree.db", workdir),
		},
		Storages: []Storage{
			{
				ID:       "local-data",
				Type:     LocalStorage,
				LocalDir: dataPath,
			},
		},
		Lock: Lock{TimeoutSeconds: defaultLockTimeout},
		Queue: Queue{
			IntervalSeconds: defaultQueueInterval,
			BatchSize:       defaultQueueBatch,
			LeaseSeconds:    defaultQueueLease,
		},
		Tree: Tree{
			NameMaxLength: defaultNameMaxLength,
			ReservedChars: defaultReservedChars,
			CopySuffix:    defaultCopySuffix,
		},
		Debug: false,
	}

	err = utils.Mkdir(dataPath)
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}
