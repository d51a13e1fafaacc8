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

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"go.uber.org/zap"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
	"github.com/basenana/nanatree/utils/logger"
)

const (
	LocalStorage         = config.LocalStorage
	defaultLocalDirMode  = 0755
	defaultLocalFileMode = 0644
)

type local struct {
	sid    string
	dir    string
	logger *zap.SugaredLogger
}

var _ Storage = &local{}

func (l *local) ID() string {
	return l.sid
}

func (l *local) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	defer utils.TraceRegion(ctx, "local.get")()
	file, err := l.openLocalFile(l.key2LocalPath(key), os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (l *local) Put(ctx context.Context, key string, in io.Reader) error {
	defer utils.TraceRegion(ctx, "local.put")()
	p := l.key2LocalPath(key)
	if err := os.MkdirAll(path.Dir(p), defaultLocalDirMode); err != nil {
		l.logger.Errorw("data path mkdir failed", "path", path.Dir(p), "err", err)
		return err
	}

	tmp := p + ".tmp"
	file, err := l.openLocalFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return err
	}
	if _, err = io.Copy(file, in); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		l.logger.Errorw("copy file failed", "key", key, "err", err)
		return err
	}
	if err = file.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, p)
}

func (l *local) Delete(ctx context.Context, key string) error {
	defer utils.TraceRegion(ctx, "local.delete")()
	err := os.Remove(l.key2LocalPath(key))
	if err != nil && !os.IsNotExist(err) {
		l.logger.Errorw("delete file failed", "key", key, "err", err)
		return err
	}
	return nil
}

func (l *local) Head(ctx context.Context, key string) (Info, error) {
	defer utils.TraceRegion(ctx, "local.head")()
	info, err := os.Stat(l.key2LocalPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, types.ErrNotFound
		}
		return Info{}, err
	}
	return Info{Key: key, Size: info.Size()}, nil
}

func (l *local) openLocalFile(path string, flag int) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if os.IsNotExist(err) && flag&os.O_CREATE == 0 {
		return nil, types.ErrNotFound
	}
	if info != nil && info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	f, err := os.OpenFile(path, flag, defaultLocalFileMode)
	if err != nil {
		l.logger.Errorw("open file failed", "path", path, "err", err)
	}
	return f, err
}

func (l *local) key2LocalPath(key string) string {
	return path.Join(l.dir, shard(key), key)
}

func newLocalStorage(sid, dir string) (Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("local_dir is empty")
	}
	if err := utils.Mkdir(dir); err != nil {
		return nil, fmt.Errorf("init local data dir failed: %s", err)
	}
	return &local{
		sid:    sid,
		dir:    dir,
		logger: logger.NewLogger("localStorage"),
	}, nil
}
