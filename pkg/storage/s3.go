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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/trace"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go/logging"
	"go.uber.org/zap"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
	"github.com/basenana/nanatree/utils/logger"
)

const (
	S3Storage          = config.S3Storage
	s3ReadLimitEnvKey  = "STORAGE_S3_READ_LIMIT"
	s3WriteLimitEnvKey = "STORAGE_S3_WRITE_LIMIT"
)

type s3Storage struct {
	sid       string
	s3Client  *s3.Client
	cfg       *config.S3Config
	readRate  *utils.ParallelLimiter
	writeRate *utils.ParallelLimiter
	logger    *zap.SugaredLogger
}

var _ Storage = &s3Storage{}

func (s *s3Storage) ID() string {
	return s.sid
}

func (s *s3Storage) initBucket(ctx context.Context) error {
	_, err := s.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.BucketName)})
	if err == nil {
		return nil
	}
	s.logger.Warnw("head bucket got error, try create one", "bucket", s.cfg.BucketName, "err", err)

	_, err = s.s3Client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket:                    aws.String(s.cfg.BucketName),
		CreateBucketConfiguration: &s3types.CreateBucketConfiguration{LocationConstraint: s3types.BucketLocationConstraint(s.cfg.Region)},
	})
	if err != nil {
		s.logger.Errorw("create bucket error", "bucket", s.cfg.BucketName, "err", err)
		return fmt.Errorf("create bucket %s error %s", s.cfg.BucketName, err)
	}
	return nil
}

func (s *s3Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	defer trace.StartRegion(ctx, "storage.s3.Get").End()
	if err := s.readRate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.readRate.Release()

	output, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.BucketName),
		Key:    aws.String(s3ObjectName(key)),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, types.ErrNotFound
		}
		s.logger.Errorw("get s3 object error", "object", s3ObjectName(key), "err", err)
		return nil, err
	}
	return output.Body, nil
}

func (s *s3Storage) Put(ctx context.Context, key string, in io.Reader) error {
	defer trace.StartRegion(ctx, "storage.s3.Put").End()
	if err := s.writeRate.Acquire(ctx); err != nil {
		return err
	}
	defer s.writeRate.Release()

	body, err := newS3SeekerWrapper(in)
	if err != nil {
		return err
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.BucketName),
		Key:    aws.String(s3ObjectName(key)),
		Body:   body,
	})
	if err != nil {
		s.logger.Errorw("put object to s3 error", "object", s3ObjectName(key), "err", err)
		return err
	}
	return nil
}

func (s *s3Storage) Delete(ctx context.Context, key string) error {
	defer trace.StartRegion(ctx, "storage.s3.Delete").End()
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.BucketName),
		Key:    aws.String(s3ObjectName(key)),
	})
	if err != nil {
		s.logger.Errorw("delete s3 object error", "object", s3ObjectName(key), "err", err)
		return err
	}
	return nil
}

func (s *s3Storage) Head(ctx context.Context, key string) (Info, error) {
	defer trace.StartRegion(ctx, "storage.s3.Head").End()
	output, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.BucketName),
		Key:    aws.String(s3ObjectName(key)),
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return Info{}, types.ErrNotFound
		}
		s.logger.Errorw("get s3 object attr error", "object", s3ObjectName(key), "err", err)
		return Info{}, err
	}
	return Info{Key: key, Size: output.ContentLength}, nil
}

func newS3Storage(storageID string, cfg *config.S3Config) (Storage, error) {
	log := logger.NewLogger("s3")
	if cfg == nil {
		return nil, fmt.Errorf("s3 config is nil")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is empty")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("access_key_id or secret_access_key is empty")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("bucket_name is empty")
	}

	awsConfig, err := awscfg.LoadDefaultConfig(
		context.TODO(),
		awscfg.WithRegion(cfg.Region),
		awscfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awscfg.WithDefaultsMode(aws.DefaultsModeStandard),
		awscfg.WithLogger(s3LoggerWrapper{SugaredLogger: log}),
		awscfg.WithClientLogMode(aws.LogRetries),
	)
	if err != nil {
		return nil, err
	}
	s := &s3Storage{
		sid:       storageID,
		s3Client:  s3.NewFromConfig(awsConfig, s3CustomConfig(cfg)),
		cfg:       cfg,
		readRate:  utils.NewParallelLimiter(utils.Str2Int(os.Getenv(s3ReadLimitEnvKey), 20)),
		writeRate: utils.NewParallelLimiter(utils.Str2Int(os.Getenv(s3WriteLimitEnvKey), 10)),
		logger:    log,
	}
	return s, s.initBucket(context.TODO())
}

type s3LoggerWrapper struct {
	*zap.SugaredLogger
}

func (log s3LoggerWrapper) Logf(classification logging.Classification, format string, v ...interface{}) {
	if classification == logging.Warn {
		log.Warnf(format, v...)
		return
	}
	log.Debugf(format, v...)
}

func s3ObjectName(key string) string {
	return objectName("s3", key)
}

func s3CustomConfig(cfg *config.S3Config) func(opt *s3.Options) {
	return func(opt *s3.Options) {
		opt.RetryMode = aws.RetryModeAdaptive
		opt.RetryMaxAttempts = 50
		opt.UsePathStyle = cfg.UsePathStyle
	}
}

// newS3SeekerWrapper buffers the reader, PutObject needs a seekable body
// to sign the payload.
func newS3SeekerWrapper(r io.Reader) (io.ReadSeeker, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}
