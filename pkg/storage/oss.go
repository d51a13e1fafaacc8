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
	"runtime/trace"
	"strconv"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"go.uber.org/zap"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils/logger"
)

const (
	OSSStorage = config.OSSStorage
)

type aliyunOSSStorage struct {
	sid        string
	cli        *oss.Client
	bucket     *oss.Bucket
	cfg        *config.OSSConfig
	readLimit  chan struct{}
	writeLimit chan struct{}
	logger     *zap.SugaredLogger
}

var _ Storage = &aliyunOSSStorage{}

func (a *aliyunOSSStorage) ID() string {
	return a.sid
}

func (a *aliyunOSSStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	defer trace.StartRegion(ctx, "storage.oss.Get").End()
	a.readLimit <- struct{}{}
	defer func() {
		<-a.readLimit
	}()
	r, err := a.bucket.GetObject(ossObjectName(key))
	if err != nil {
		if isOSSNotFound(err) {
			return nil, types.ErrNotFound
		}
		a.logger.Errorw("get oss object error", "object", ossObjectName(key), "err", err)
		return nil, err
	}
	return r, nil
}

func (a *aliyunOSSStorage) Put(ctx context.Context, key string, in io.Reader) error {
	defer trace.StartRegion(ctx, "storage.oss.Put").End()
	a.writeLimit <- struct{}{}
	defer func() {
		<-a.writeLimit
	}()
	if err := a.bucket.PutObject(ossObjectName(key), in); err != nil {
		a.logger.Errorw("put object to oss error", "object", ossObjectName(key), "err", err)
		return err
	}
	return nil
}

func (a *aliyunOSSStorage) Delete(ctx context.Context, key string) error {
	defer trace.StartRegion(ctx, "storage.oss.Delete").End()
	if err := a.bucket.DeleteObject(ossObjectName(key)); err != nil {
		a.logger.Errorw("delete object error", "object", ossObjectName(key), "err", err)
		return err
	}
	return nil
}

func (a *aliyunOSSStorage) Head(ctx context.Context, key string) (Info, error) {
	defer trace.StartRegion(ctx, "storage.oss.Head").End()
	header, err := a.bucket.GetObjectMeta(ossObjectName(key))
	if err != nil {
		if isOSSNotFound(err) {
			return Info{}, types.ErrNotFound
		}
		a.logger.Errorw("head oss object error", "object", ossObjectName(key), "err", err)
		return Info{}, err
	}
	info := Info{Key: key}
	info.Size, _ = strconv.ParseInt(header.Get("Content-Length"), 10, 64)
	return info, nil
}

func (a *aliyunOSSStorage) initOSSBucket(ctx context.Context) error {
	defer trace.StartRegion(ctx, "storage.oss.initOSSBucket").End()
	a.logger.Infof("OSS SDK Version: %s", oss.Version)

	isExist, err := a.cli.IsBucketExist(a.cfg.BucketName)
	if err != nil {
		a.logger.Errorw("check bucket error", "bucket", a.cfg.BucketName, "err", err)
		return err
	}
	if !isExist {
		if err = a.cli.CreateBucket(a.cfg.BucketName); err != nil {
			a.logger.Errorw("create bucket error", "bucket", a.cfg.BucketName, "err", err)
			return err
		}
	}

	a.bucket, err = a.cli.Bucket(a.cfg.BucketName)
	if err != nil {
		a.logger.Errorw("build bucket error", "bucket", a.cfg.BucketName, "err", err)
	}
	return err
}

func newOSSStorage(storageID string, cfg *config.OSSConfig) (Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("OSS config is nil")
	}
	if storageID == "" {
		return nil, fmt.Errorf("storage id is empty")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OSS endpoint is empty")
	}
	if cfg.AccessKeyID == "" {
		return nil, fmt.Errorf("OSS access_key_id is empty")
	}
	if cfg.AccessKeySecret == "" {
		return nil, fmt.Errorf("OSS access_key_secret is empty")
	}
	if cfg.BucketName == "" {
		cfg.BucketName = fmt.Sprintf("nanatree-%s", storageID)
	}
	cli, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, err
	}

	cli.Config.RetryTimes = 20
	cli.Config.Timeout = 60 * 10
	cli.Config.HTTPTimeout = oss.HTTPTimeout{
		ConnectTimeout:   60,
		ReadWriteTimeout: 60 * 10,
		HeaderTimeout:    60,
		LongTimeout:      60 * 10,
		IdleConnTimeout:  60,
	}

	s := &aliyunOSSStorage{
		sid:        storageID,
		cli:        cli,
		cfg:        cfg,
		readLimit:  make(chan struct{}, 50),
		writeLimit: make(chan struct{}, 20),
		logger:     logger.NewLogger("OSS"),
	}
	return s, s.initOSSBucket(context.Background())
}

func isOSSNotFound(err error) bool {
	switch svcErr := err.(type) {
	case oss.ServiceError:
		return svcErr.StatusCode == 404
	case *oss.ServiceError:
		return svcErr.StatusCode == 404
	}
	return false
}

func ossObjectName(key string) string {
	return objectName("oss", key)
}
