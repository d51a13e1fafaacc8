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
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	storageIDPattern = "^[a-zA-Z][a-zA-Z0-9-_.]{3,31}$"
	storageIDRegexp  = regexp.MustCompile(storageIDPattern)

	validate = validator.New()
)

type verifier func(config *Config) error

var verifiers = []verifier{
	checkStruct,
	checkApiConfig,
	checkMetaConfig,
	checkStorageConfigs,
	checkIdentityConfig,
}

func Verify(cfg *Config) error {
	for _, f := range verifiers {
		if err := f(cfg); err != nil {
			return err
		}
	}
	return nil
}

func checkStruct(config *Config) error {
	err := validate.Struct(config)
	if err == nil {
		return nil
	}
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

func checkApiConfig(config *Config) error {
	aCfg := config.Api
	if !aCfg.Enable {
		return nil
	}
	if aCfg.Host == "" || aCfg.Port == 0 {
		return fmt.Errorf("api.host or api.port not config")
	}
	return nil
}

func checkMetaConfig(config *Config) error {
	m := config.Meta
	switch m.Type {
	case SqliteMeta:
		if m.Path == "" {
			return fmt.Errorf("meta.path not config")
		}
	case PostgresMeta:
		if m.DSN == "" {
			return fmt.Errorf("meta.dsn not config")
		}
	}
	return nil
}

func checkStorageConfigs(config *Config) error {
	ids := make(map[string]struct{})
	for i, s := range config.Storages {
		if !storageIDRegexp.MatchString(s.ID) {
			return fmt.Errorf("storages[%d]: id %s not match %s", i, s.ID, storageIDPattern)
		}
		if _, ok := ids[s.ID]; ok {
			return fmt.Errorf("storages[%d]: duplicate storage id %s", i, s.ID)
		}
		ids[s.ID] = struct{}{}

		switch s.Type {
		case LocalStorage:
			if s.LocalDir == "" {
				return fmt.Errorf("storages[%d]: local_dir not config", i)
			}
			if _, err := os.Stat(s.LocalDir); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("storages[%d]: check local_dir error: %s", i, err)
			}
		case S3Storage:
			if s.S3 == nil {
				return fmt.Errorf("storages[%d]: s3 not config", i)
			}
		case MinioStorage:
			if s.MinIO == nil {
				return fmt.Errorf("storages[%d]: minio not config", i)
			}
		case OSSStorage:
			if s.OSS == nil {
				return fmt.Errorf("storages[%d]: oss not config", i)
			}
		case WebdavStorage:
			if s.Webdav == nil {
				return fmt.Errorf("storages[%d]: webdav not config", i)
			}
		}
	}
	return nil
}

func checkIdentityConfig(config *Config) error {
	names := make(map[string]struct{})
	for i, a := range config.Identity.Accounts {
		if a.ID == config.Tree.PublicUserID {
			return fmt.Errorf("identity.accounts[%d]: id %d is reserved for the public user", i, a.ID)
		}
		if _, ok := names[a.Name]; ok {
			return fmt.Errorf("identity.accounts[%d]: duplicate account name %s", i, a.Name)
		}
		names[a.Name] = struct{}{}
	}
	return nil
}
