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
	"net/http"
	"runtime/trace"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils/logger"
)

const (
	MinioStorage = config.MinioStorage
)

var maxConcurrentUploads = make(chan struct{}, 10)

type minioStorage struct {
	sid    string
	bucket string
	cli    *minio.Client
	cfg    *config.MinIOConfig
	logger *zap.SugaredLogger
}

var _ Storage = &minioStorage{}

func (m *minioStorage) ID() string {
	return m.sid
}

func (m *minioStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	defer trace.StartRegion(ctx, "storage.minio.Get").End()
	if _, err := m.Head(ctx, key); err != nil {
		return nil, err
	}
	obj, err := m.cli.GetObject(ctx, m.bucket, minioObjectName(key), minio.GetObjectOptions{})
	if err != nil {
		m.logger.Errorw("get object failed", "object", minioObjectName(key), "err", err)
		return nil, err
	}
	return obj, nil
}

func (m *minioStorage) Put(ctx context.Context, key string, in io.Reader) error {
	defer trace.StartRegion(ctx, "storage.minio.Put").End()
	maxConcurrentUploads <- struct{}{}
	defer func() {
		<-maxConcurrentUploads
	}()

	_, err := m.cli.PutObject(ctx, m.bucket, minioObjectName(key), in, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		m.logger.Errorw("put object failed", "object", minioObjectName(key), "err", err)
		return err
	}
	return nil
}

func (m *minioStorage) Delete(ctx context.Context, key string) error {
	defer trace.StartRegion(ctx, "storage.minio.Delete").End()
	err := m.cli.RemoveObject(ctx, m.bucket, minioObjectName(key), minio.RemoveObjectOptions{})
	if err != nil {
		m.logger.Errorw("delete object failed", "object", minioObjectName(key), "err", err)
		return err
	}
	return nil
}

func (m *minioStorage) Head(ctx context.Context, key string) (Info, error) {
	defer trace.StartRegion(ctx, "storage.minio.Head").End()
	info, err := m.cli.StatObject(ctx, m.bucket, minioObjectName(key), minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return Info{}, types.ErrNotFound
		}
		m.logger.Errorw("head object failed", "object", minioObjectName(key), "err", err)
		return Info{}, err
	}
	return Info{Key: key, Size: info.Size}, nil
}

func (m *minioStorage) initBucket(ctx context.Context) error {
	defer trace.StartRegion(ctx, "storage.minio.initBucket").End()
	ctx, canF := context.WithTimeout(ctx, time.Minute)
	defer canF()

	exists, errBucketExists := m.cli.BucketExists(ctx, m.bucket)
	if errBucketExists == nil && exists {
		return nil
	}

	m.logger.Infof("init bucket: %s", m.bucket)
	return m.cli.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.cfg.Location})
}

func newMinioStorage(storageID string, cfg *config.MinIOConfig) (Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("minio is nil")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config endpoint is empty")
	}
	if cfg.AccessKeyID == "" {
		return nil, fmt.Errorf("minio config access_key_id is empty")
	}
	if cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("minio config secret_access_key is empty")
	}
	if cfg.BucketName == "" {
		cfg.BucketName = fmt.Sprintf("nanatree-%s", storageID)
	}

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.Token),
		Secure:    cfg.UseSSL,
		Transport: http.DefaultTransport,
	})
	if err != nil {
		return nil, err
	}
	s := &minioStorage{
		sid:    storageID,
		bucket: cfg.BucketName,
		cli:    minioClient,
		cfg:    cfg,
		logger: logger.NewLogger("minio"),
	}
	return s, s.initBucket(context.TODO())
}

func minioObjectName(key string) string {
	return objectName("minio", key)
}
