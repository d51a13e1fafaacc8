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

package lock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/metastore"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
	"github.com/basenana/nanatree/utils/logger"
)

// RootList guards the root list of every owner.
const RootList = "root-list"

func ItemLock(id int64) string {
	return fmt.Sprintf("item:%d", id)
}

func ItemLocks(ids ...int64) []string {
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		result = append(result, ItemLock(id))
	}
	return result
}

// ScopeLock is the lock guarding a sibling scope: the parent item or the root list.
func ScopeLock(scope types.SiblingScope) string {
	if scope.ParentID == nil {
		return RootList
	}
	return ItemLock(*scope.ParentID)
}

type Manager struct {
	store    metastore.LockStore
	timeout  time.Duration
	disabled bool
	logger   *zap.SugaredLogger
}

func NewManager(store metastore.LockStore, cfg config.Lock) *Manager {
	return &Manager{
		store:    store,
		timeout:  cfg.Timeout(),
		disabled: cfg.Disabled,
		logger:   logger.NewLogger("lockManager"),
	}
}

func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// NewHolder returns a holder token used by a single operation.
func (m *Manager) NewHolder() *Holder {
	return &Holder{mgr: m, token: utils.NewUUID(), held: make(map[string]struct{})}
}

// Holder acquires leases on behalf of one operation. Re-acquiring a held
// name renews its expiry. Holder is safe for concurrent use.
type Holder struct {
	mgr   *Manager
	token string
	held  map[string]struct{}
	mux   sync.Mutex
}

func (h *Holder) Token() string {
	return h.token
}

// Acquire never waits, contention returns a LockError.
func (h *Holder) Acquire(ctx context.Context, name string) error {
	defer utils.TraceRegion(ctx, "lock.acquire")()
	if h.mgr.disabled {
		lockAcquireCounter.WithLabelValues("disabled").Inc()
		return nil
	}
	ok, err := h.mgr.store.TryLock(ctx, name, h.token, time.Now().Add(h.mgr.timeout))
	if err != nil {
		lockAcquireCounter.WithLabelValues("error").Inc()
		h.mgr.logger.Errorw("acquire lock failed", "lock", name, "err", err)
		return err
	}
	if !ok {
		lockAcquireCounter.WithLabelValues("busy").Inc()
		h.mgr.logger.Debugw("lock is busy", "lock", name)
		return types.NewLockError(name)
	}
	lockAcquireCounter.WithLabelValues("acquired").Inc()
	h.mux.Lock()
	h.held[name] = struct{}{}
	h.mux.Unlock()
	return nil
}

func (h *Holder) Release(ctx context.Context, name string) {
	if h.mgr.disabled {
		return
	}
	h.mux.Lock()
	delete(h.held, name)
	h.mux.Unlock()
	if err := h.mgr.store.Unlock(ctx, name, h.token); err != nil {
		h.mgr.logger.Warnw("release lock failed, wait expire", "lock", name, "err", err)
	}
}

// AcquireAll takes every name or none. Duplicates are dropped before
// acquiring, names are taken in the given order. Names held before the
// call stay held on failure.
func (h *Holder) AcquireAll(ctx context.Context, names []string) error {
	var (
		seen     = make(map[string]struct{}, len(names))
		acquired []string
	)
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		h.mux.Lock()
		_, renew := h.held[name]
		h.mux.Unlock()
		if err := h.Acquire(ctx, name); err != nil {
			for i := len(acquired) - 1; i >= 0; i-- {
				h.Release(ctx, acquired[i])
			}
			return err
		}
		if !renew {
			acquired = append(acquired, name)
		}
	}
	return nil
}

func (h *Holder) ReleaseAll(ctx context.Context) {
	h.mux.Lock()
	names := make([]string, 0, len(h.held))
	for name := range h.held {
		names = append(names, name)
	}
	h.mux.Unlock()
	sort.Strings(names)
	for _, name := range names {
		h.Release(ctx, name)
	}
}

func (h *Holder) Held() []string {
	h.mux.Lock()
	defer h.mux.Unlock()
	result := make([]string, 0, len(h.held))
	for name := range h.held {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// PurgeExpired drops leases left behind by crashed holders.
func (m *Manager) PurgeExpired(ctx context.Context) {
	n, err := m.store.PurgeExpiredLocks(ctx, time.Now())
	if err != nil {
		m.logger.Warnw("purge expired locks failed", "err", err)
		return
	}
	if n > 0 {
		m.logger.Infow("purged expired locks", "count", n)
	}
}
