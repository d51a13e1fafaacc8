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

import "time"

const (
	MemoryMeta   = "memory"
	SqliteMeta   = "sqlite"
	PostgresMeta = "postgres"

	S3Storage     = "s3"
	OSSStorage    = "oss"
	MinioStorage  = "minio"
	WebdavStorage = "webdav"
	LocalStorage  = "local"
	MemoryStorage = "memory"

	defaultLockTimeout   = 30
	defaultQueueInterval = 60
	defaultQueueBatch    = 20
	defaultQueueLease    = 300
	defaultSyncBudget    = 20000
	defaultNameMaxLength = 255
	defaultReservedChars = `/\`
	defaultCopySuffix    = " copy"
)

type Config struct {
	Api      Api       `json:"api"`
	Meta     Meta      `json:"meta"`
	Storages []Storage `json:"storages" validate:"min=1,dive"`
	Lock     Lock      `json:"lock"`
	Queue    Queue     `json:"queue"`
	Tree     Tree      `json:"tree"`
	Identity Identity  `json:"identity"`
	Debug    bool      `json:"debug,omitempty"`
}

type Api struct {
	Enable  bool   `json:"enable"`
	Host    string `json:"host"`
	Port    int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Metrics bool   `json:"metrics"`
	Pprof   bool   `json:"pprof"`
}

type Meta struct {
	Type string `json:"type" validate:"required,oneof=memory sqlite postgres"`
	Path string `json:"path,omitempty"`
	DSN  string `json:"dsn,omitempty"`
}

type Storage struct {
	ID       string               `json:"id" validate:"required"`
	Type     string               `json:"type" validate:"required,oneof=local memory s3 minio oss webdav"`
	LocalDir string               `json:"local_dir,omitempty"`
	S3       *S3Config            `json:"s3,omitempty"`
	MinIO    *MinIOConfig         `json:"minio,omitempty"`
	OSS      *OSSConfig           `json:"oss,omitempty"`
	Webdav   *WebdavStorageConfig `json:"webdav,omitempty"`
}

type S3Config struct {
	Region          string `json:"region"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	BucketName      string `json:"bucket_name"`
	UsePathStyle    bool   `json:"use_path_style"`
}

type MinIOConfig struct {
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	BucketName      string `json:"bucket_name"`
	Location        string `json:"location"`
	Token           string `json:"token"`
	UseSSL          bool   `json:"use_ssl"`
}

type OSSConfig struct {
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	AccessKeySecret string `json:"access_key_secret"`
	BucketName      string `json:"bucket_name"`
}

type WebdavStorageConfig struct {
	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Insecure  bool   `json:"insecure,omitempty"`
}

// Lock configures the item lease table. Disabled is only safe for
// trusted single-writer deployments.
type Lock struct {
	Disabled       bool `json:"disabled,omitempty"`
	TimeoutSeconds int  `json:"timeout_seconds,omitempty" validate:"omitempty,min=1"`
}

func (l Lock) Timeout() time.Duration {
	if l.TimeoutSeconds <= 0 {
		return defaultLockTimeout * time.Second
	}
	return time.Duration(l.TimeoutSeconds) * time.Second
}

type Queue struct {
	IntervalSeconds int `json:"interval_seconds,omitempty" validate:"omitempty,min=1"`
	BatchSize       int `json:"batch_size,omitempty" validate:"omitempty,min=1"`
	LeaseSeconds    int `json:"lease_seconds,omitempty" validate:"omitempty,min=1"`
	// SyncBudgetMs bounds the synchronous attempt of a continuation,
	// nil means default, 0 means queue everything.
	SyncBudgetMs *int `json:"sync_budget_ms,omitempty" validate:"omitempty,min=0"`
}

func (q Queue) Interval() time.Duration {
	if q.IntervalSeconds <= 0 {
		return defaultQueueInterval * time.Second
	}
	return time.Duration(q.IntervalSeconds) * time.Second
}

func (q Queue) Batch() int {
	if q.BatchSize <= 0 {
		return defaultQueueBatch
	}
	return q.BatchSize
}

func (q Queue) Lease() time.Duration {
	if q.LeaseSeconds <= 0 {
		return defaultQueueLease * time.Second
	}
	return time.Duration(q.LeaseSeconds) * time.Second
}

func (q Queue) SyncBudget() time.Duration {
	if q.SyncBudgetMs == nil {
		return defaultSyncBudget * time.Millisecond
	}
	return time.Duration(*q.SyncBudgetMs) * time.Millisecond
}

type Tree struct {
	NameMaxLength     int      `json:"name_max_length,omitempty" validate:"omitempty,min=8"`
	ReservedChars     string   `json:"reserved_chars,omitempty"`
	BlockedExtensions []string `json:"blocked_extensions,omitempty"`
	CopySuffix        string   `json:"copy_suffix,omitempty"`
	PublicUserID      int64    `json:"public_user_id,omitempty"`
}

func (t Tree) MaxLength() int {
	if t.NameMaxLength <= 0 {
		return defaultNameMaxLength
	}
	return t.NameMaxLength
}

func (t Tree) Reserved() string {
	if t.ReservedChars == "" {
		return defaultReservedChars
	}
	return t.ReservedChars
}

func (t Tree) Suffix() string {
	if t.CopySuffix == "" {
		return defaultCopySuffix
	}
	return t.CopySuffix
}

type Identity struct {
	Accounts []Account `json:"accounts,omitempty" validate:"dive"`
}

type Account struct {
	ID          int64    `json:"id" validate:"min=1"`
	Name        string   `json:"name" validate:"required"`
	Admin       bool     `json:"admin,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}
