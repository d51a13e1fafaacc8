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

package identity

import (
	"context"
	"strconv"
	"time"

	"github.com/bluele/gcache"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/types"
)

type Account struct {
	ID          int64
	Name        string
	Admin       bool
	Permissions []types.Permission
}

// Provider is the account and permission source consumed by the tree.
type Provider interface {
	IsAdmin(ctx context.Context, uid int64) bool
	HasPermission(ctx context.Context, uid int64, perm types.Permission) bool
	LookupAccount(ctx context.Context, nameOrID string) (*Account, error)
	PublicUser() int64
}

type staticProvider struct {
	accounts map[int64]*Account
	byName   map[string]*Account
	public   int64
}

var _ Provider = &staticProvider{}

// NewStaticProvider serves accounts declared in the config. Accounts without
// explicit permissions get view, author and share.
func NewStaticProvider(idCfg config.Identity, treeCfg config.Tree) Provider {
	p := &staticProvider{
		accounts: make(map[int64]*Account),
		byName:   make(map[string]*Account),
		public:   treeCfg.PublicUserID,
	}
	for _, a := range idCfg.Accounts {
		acc := &Account{ID: a.ID, Name: a.Name, Admin: a.Admin}
		if len(a.Permissions) == 0 {
			acc.Permissions = []types.Permission{types.PermView, types.PermAuthor, types.PermShare}
		}
		for _, perm := range a.Permissions {
			acc.Permissions = append(acc.Permissions, types.Permission(perm))
		}
		p.accounts[acc.ID] = acc
		p.byName[acc.Name] = acc
	}
	return p
}

func (p *staticProvider) PublicUser() int64 {
	return p.public
}

func (p *staticProvider) IsAdmin(ctx context.Context, uid int64) bool {
	acc, ok := p.accounts[uid]
	return ok && acc.Admin
}

func (p *staticProvider) HasPermission(ctx context.Context, uid int64, perm types.Permission) bool {
	acc, ok := p.accounts[uid]
	if !ok {
		return false
	}
	if acc.Admin {
		return true
	}
	for _, granted := range acc.Permissions {
		if granted == perm {
			return true
		}
	}
	return false
}

func (p *staticProvider) LookupAccount(ctx context.Context, nameOrID string) (*Account, error) {
	if acc, ok := p.byName[nameOrID]; ok {
		return acc, nil
	}
	if uid, err := strconv.ParseInt(nameOrID, 10, 64); err == nil {
		if acc, ok := p.accounts[uid]; ok {
			return acc, nil
		}
	}
	return nil, types.NewNotFoundError("account %s", nameOrID)
}

type cachedProvider struct {
	Provider
	lookups gcache.Cache
}

// NewCachedProvider caches account lookups of a slow provider.
func NewCachedProvider(p Provider, size int, expiration time.Duration) Provider {
	return &cachedProvider{
		Provider: p,
		lookups:  gcache.New(size).LRU().Expiration(expiration).Build(),
	}
}

func (c *cachedProvider) LookupAccount(ctx context.Context, nameOrID string) (*Account, error) {
	cached, err := c.lookups.Get(nameOrID)
	if err == nil {
		return cached.(*Account), nil
	}
	acc, err := c.Provider.LookupAccount(ctx, nameOrID)
	if err != nil {
		return nil, err
	}
	_ = c.lookups.Set(nameOrID, acc)
	return acc, nil
}
