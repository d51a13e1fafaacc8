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

package metastore

import (
	"context"
	"runtime/trace"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/metastore/db"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils/logger"
)

const (
	MemoryMeta   = config.MemoryMeta
	SqliteMeta   = config.SqliteMeta
	PostgresMeta = config.PostgresMeta
)

type sqlMetaStore struct {
	*gorm.DB
	logger *zap.SugaredLogger
}

var _ Meta = &sqlMetaStore{}

func buildSqlMetaStore(dbEntity *gorm.DB) (*sqlMetaStore, error) {
	s := &sqlMetaStore{DB: dbEntity, logger: logger.NewLogger("dbStore")}

	if err := db.Migrate(s.DB); err != nil {
		return nil, db.SqlError2Error(err)
	}

	_, err := s.SystemInfo(context.TODO())
	if err != nil {
		if err != types.ErrNotFound {
			return nil, err
		}
		sysInfo := &db.SystemInfo{TreeID: uuid.New().String()}
		if res := s.WithContext(context.Background()).Create(sysInfo); res.Error != nil {
			return nil, db.SqlError2Error(res.Error)
		}
	}
	return s, nil
}

func (s *sqlMetaStore) SystemInfo(ctx context.Context) (*types.SystemInfo, error) {
	defer trace.StartRegion(ctx, "metastore.sql.SystemInfo").End()
	info := &db.SystemInfo{}
	res := s.WithContext(ctx).First(info)
	if res.Error != nil {
		return nil, db.SqlError2Error(res.Error)
	}
	result := &types.SystemInfo{TreeID: info.TreeID}

	res = s.WithContext(ctx).Model(&db.Item{}).Count(&result.ItemCount)
	if res.Error != nil {
		return nil, db.SqlError2Error(res.Error)
	}
	if result.ItemCount == 0 {
		return result, nil
	}

	res = s.WithContext(ctx).Model(&db.Item{}).
		Where("kind <> ?", string(types.FolderKind)).
		Select("COALESCE(SUM(size), 0)").Scan(&result.BytesTotal)
	if res.Error != nil {
		return nil, db.SqlError2Error(res.Error)
	}
	return result, nil
}

func (s *sqlMetaStore) GetItem(ctx context.Context, id int64) (*types.Item, error) {
	defer trace.StartRegion(ctx, "metastore.sql.GetItem").End()
	defer logOperationLatency("get_item", time.Now())
	var mod = &db.Item{}
	res := s.WithContext(ctx).Where("id = ?", id).First(mod)
	if err := res.Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			s.logger.Errorw("get item by id failed", "item", id, "err", err)
			logOperationError("get_item", err)
		}
		return nil, db.SqlError2Error(err)
	}
	return mod.ToItem(), nil
}

func (s *sqlMetaStore) GetItems(ctx context.Context, ids []int64) ([]*types.Item, error) {
	defer trace.StartRegion(ctx, "metastore.sql.GetItems").End()
	if len(ids) == 0 {
		return nil, nil
	}
	var mods []db.Item
	res := s.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&mods)
	if err := res.Error; err != nil {
		s.logger.Errorw("get items failed", "count", len(ids), "err", err)
		logOperationError("get_items", err)
		return nil, db.SqlError2Error(err)
	}
	return toItems(mods), nil
}

func (s *sqlMetaStore) CreateItem(ctx context.Context, item *types.Item) error {
	defer trace.StartRegion(ctx, "metastore.sql.CreateItem").End()
	defer logOperationLatency("create_item", time.Now())
	mod := (&db.Item{}).FromItem(item)
	res := s.WithContext(ctx).Create(mod)
	if err := res.Error; err != nil {
		s.logger.Errorw("create item failed", "item", item.ID, "name", item.Name, "err", err)
		logOperationError("create_item", err)
		return db.SqlError2Error(err)
	}
	return nil
}

func (s *sqlMetaStore) UpdateItem(ctx context.Context, item *types.Item) error {
	defer trace.StartRegion(ctx, "metastore.sql.UpdateItem").End()
	defer logOperationLatency("update_item", time.Now())
	mod := (&db.Item{}).FromItem(item)
	res := s.WithContext(ctx).Model(&db.Item{}).Where("id = ?", item.ID).Select("*").Updates(mod)
	if err := res.Error; err != nil {
		s.logger.Errorw("update item failed", "item", item.ID, "err", err)
		logOperationError("update_item", err)
		return db.SqlError2Error(err)
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *sqlMetaStore) DeleteItem(ctx context.Context, id int64) error {
	defer trace.StartRegion(ctx, "metastore.sql.DeleteItem").End()
	defer logOperationLatency("delete_item", time.Now())
	err := s.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("root_id = ?", id).Delete(&db.Grant{})
		if res.Error != nil {
			return res.Error
		}
		res = tx.Where("id = ?", id).Delete(&db.Item{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			s.logger.Errorw("delete item failed", "item", id, "err", err)
			logOperationError("delete_item", err)
		}
		return db.SqlError2Error(err)
	}
	return nil
}

func (s *sqlMetaStore) FindChild(ctx context.Context, scope types.SiblingScope, name string) (*types.Item, error) {
	defer trace.StartRegion(ctx, "metastore.sql.FindChild").End()
	var mods []db.Item
	tx := scopeQuery(s.WithContext(ctx).Model(&db.Item{}), scope)
	res := tx.Where("name = ?", name).Order("hidden, id").Limit(1).Find(&mods)
	if err := res.Error; err != nil {
		s.logger.Errorw("find child by name failed", "name", name, "err", err)
		return nil, db.SqlError2Error(err)
	}
	if len(mods) == 0 {
		return nil, types.ErrNotFound
	}
	return mods[0].ToItem(), nil
}

func (s *sqlMetaStore) ListChildren(ctx context.Context, parentID int64, filter types.ChildFilter) ([]*types.Item, error) {
	defer trace.StartRegion(ctx, "metastore.sql.ListChildren").End()
	defer logOperationLatency("list_children", time.Now())
	var mods []db.Item
	res := childQuery(s.WithContext(ctx).Model(&db.Item{}), parentID, filter).Order("id").Find(&mods)
	if err := res.Error; err != nil {
		s.logger.Errorw("list children failed", "parent", parentID, "err", err)
		logOperationError("list_children", err)
		return nil, db.SqlError2Error(err)
	}
	return toItems(mods), nil
}

func (s *sqlMetaStore) ListChildIDs(ctx context.Context, parentID int64, filter types.ChildFilter) ([]int64, error) {
	defer trace.StartRegion(ctx, "metastore.sql.ListChildIDs").End()
	var ids []int64
	res := childQuery(s.WithContext(ctx).Model(&db.Item{}), parentID, filter).Order("id").Pluck("id", &ids)
	if err := res.Error; err != nil {
		s.logger.Errorw("list child ids failed", "parent", parentID, "err", err)
		return nil, db.SqlError2Error(err)
	}
	return ids, nil
}

func (s *sqlMetaStore) ChildNames(ctx context.Context, scope types.SiblingScope, includeHidden bool) (map[int64]string, error) {
	defer trace.StartRegion(ctx, "metastore.sql.ChildNames").End()
	var rows []struct {
		ID   int64
		Name string
	}
	tx := scopeQuery(s.WithContext(ctx).Model(&db.Item{}), scope)
	res := db.VisibleOnly(tx, includeHidden).Select("id, name").Scan(&rows)
	if err := res.Error; err != nil {
		s.logger.Errorw("list child names failed", "err", err)
		return nil, db.SqlError2Error(err)
	}
	result := make(map[int64]string, len(rows))
	for _, r := range rows {
		result[r.ID] = r.Name
	}
	return result, nil
}

func (s *sqlMetaStore) ListRootItems(ctx context.Context, filter types.RootFilter) ([]*types.Item, error) {
	defer trace.StartRegion(ctx, "metastore.sql.ListRootItems").End()
	var mods []db.Item
	tx := db.ParentIs(s.WithContext(ctx).Model(&db.Item{}), nil)
	tx = db.VisibleOnly(tx, filter.IncludeHidden)
	if filter.Owner != nil {
		tx = tx.Where("owner = ?", *filter.Owner)
	}
	if filter.Name != "" {
		tx = tx.Where("name = ?", filter.Name)
	}
	res := tx.Order("id").Find(&mods)
	if err := res.Error; err != nil {
		s.logger.Errorw("list root items failed", "err", err)
		return nil, db.SqlError2Error(err)
	}
	return toItems(mods), nil
}

func (s *sqlMetaStore) ListIDsByRoot(ctx context.Context, rootID int64) ([]int64, error) {
	defer trace.StartRegion(ctx, "metastore.sql.ListIDsByRoot").End()
	var ids []int64
	res := s.WithContext(ctx).Model(&db.Item{}).
		Where("root_id = ? AND id <> ?", rootID, rootID).
		Order("id").Pluck("id", &ids)
	if err := res.Error; err != nil {
		s.logger.Errorw("list ids by root failed", "root", rootID, "err", err)
		return nil, db.SqlError2Error(err)
	}
	return ids, nil
}

func (s *sqlMetaStore) SumChildrenSize(ctx context.Context, parentID int64, kinds []types.Kind) (int64, error) {
	defer trace.StartRegion(ctx, "metastore.sql.SumChildrenSize").End()
	var total int64
	tx := s.WithContext(ctx).Model(&db.Item{}).
		Where("parent_id = ? AND hidden = ? AND disabled = ?", parentID, false, false)
	if len(kinds) > 0 {
		tx = tx.Where("kind IN ?", kindStrings(kinds))
	}
	res := tx.Select("COALESCE(SUM(size), 0)").Scan(&total)
	if err := res.Error; err != nil {
		s.logger.Errorw("sum children size failed", "parent", parentID, "err", err)
		return 0, db.SqlError2Error(err)
	}
	return total, nil
}

func (s *sqlMetaStore) SetItemSize(ctx context.Context, id int64, size *int64) error {
	defer trace.StartRegion(ctx, "metastore.sql.SetItemSize").End()
	res := s.WithContext(ctx).Model(&db.Item{}).Where("id = ?", id).Update("size", size)
	if err := res.Error; err != nil {
		s.logger.Errorw("set item size failed", "item", id, "err", err)
		logOperationError("set_size", err)
		return db.SqlError2Error(err)
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *sqlMetaStore) UpdateItemRoot(ctx context.Context, ids []int64, rootID *int64) error {
	defer trace.StartRegion(ctx, "metastore.sql.UpdateItemRoot").End()
	if len(ids) == 0 {
		return nil
	}
	res := s.WithContext(ctx).Model(&db.Item{}).Where("id IN ?", ids).Update("root_id", rootID)
	if err := res.Error; err != nil {
		s.logger.Errorw("update item root failed", "count", len(ids), "err", err)
		return db.SqlError2Error(err)
	}
	return nil
}

func (s *sqlMetaStore) UpdateItemOwner(ctx context.Context, ids []int64, owner int64) error {
	defer trace.StartRegion(ctx, "metastore.sql.UpdateItemOwner").End()
	if len(ids) == 0 {
		return nil
	}
	res := s.WithContext(ctx).Model(&db.Item{}).Where("id IN ?", ids).Update("owner", owner)
	if err := res.Error; err != nil {
		s.logger.Errorw("update item owner failed", "count", len(ids), "err", err)
		return db.SqlError2Error(err)
	}
	return nil
}

func (s *sqlMetaStore) CountUsage(ctx context.Context) ([]types.Usage, error) {
	defer trace.StartRegion(ctx, "metastore.sql.CountUsage").End()
	var rows []db.Usage
	folder := string(types.FolderKind)
	res := s.WithContext(ctx).Model(&db.Item{}).
		Select("owner, "+
			"SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END) AS folder_count, "+
			"SUM(CASE WHEN kind <> ? THEN 1 ELSE 0 END) AS file_count, "+
			"COALESCE(SUM(CASE WHEN kind <> ? THEN size ELSE 0 END), 0) AS total_bytes", folder, folder, folder).
		Where("hidden = ?", false).
		Group("owner").Order("owner").Scan(&rows)
	if err := res.Error; err != nil {
		s.logger.Errorw("count usage failed", "err", err)
		return nil, db.SqlError2Error(err)
	}
	result := make([]types.Usage, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].ToUsage())
	}
	return result, nil
}

func (s *sqlMetaStore) ListGrants(ctx context.Context, rootID int64) (types.Grants, error) {
	defer trace.StartRegion(ctx, "metastore.sql.ListGrants").End()
	var mods []db.Grant
	res := s.WithContext(ctx).Where("root_id = ?", rootID).Find(&mods)
	if err := res.Error; err != nil {
		s.logger.Errorw("list grants failed", "root", rootID, "err", err)
		return nil, db.SqlError2Error(err)
	}
	result := make(types.Grants, len(mods))
	for _, m := range mods {
		result[m.UserID] = types.Grant{View: m.View, Author: m.Author}
	}
	return result, nil
}

func (s *sqlMetaStore) ReplaceGrants(ctx context.Context, rootID int64, grants types.Grants) error {
	defer trace.StartRegion(ctx, "metastore.sql.ReplaceGrants").End()
	err := s.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("root_id = ?", rootID).Delete(&db.Grant{})
		if res.Error != nil {
			return res.Error
		}
		for uid, g := range grants {
			if !g.View && !g.Author {
				continue
			}
			res = tx.Create(&db.Grant{RootID: rootID, UserID: uid, View: g.View, Author: g.Author})
			if res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Errorw("replace grants failed", "root", rootID, "err", err)
		return db.SqlError2Error(err)
	}
	return nil
}

func (s *sqlMetaStore) DeleteGrants(ctx context.Context, rootIDs ...int64) error {
	defer trace.StartRegion(ctx, "metastore.sql.DeleteGrants").End()
	if len(rootIDs) == 0 {
		return nil
	}
	res := s.WithContext(ctx).Where("root_id IN ?", rootIDs).Delete(&db.Grant{})
	if err := res.Error; err != nil {
		s.logger.Errorw("delete grants failed", "count", len(rootIDs), "err", err)
		return db.SqlError2Error(err)
	}
	return nil
}

func (s *sqlMetaStore) DeleteUserGrants(ctx context.Context, userID int64, rootIDs []int64) error {
	defer trace.StartRegion(ctx, "metastore.sql.DeleteUserGrants").End()
	tx := s.WithContext(ctx).Where("user_id = ?", userID)
	if rootIDs != nil {
		if len(rootIDs) == 0 {
			return nil
		}
		tx = tx.Where("root_id IN ?", rootIDs)
	}
	res := tx.Delete(&db.Grant{})
	if err := res.Error; err != nil {
		s.logger.Errorw("delete user grants failed", "user", userID, "err", err)
		return db.SqlError2Error(err)
	}
	return nil
}

func (s *sqlMetaStore) ListGrantedRoots(ctx context.Context, userID int64) ([]int64, error) {
	defer trace.StartRegion(ctx, "metastore.sql.ListGrantedRoots").End()
	var ids []int64
	res := s.WithContext(ctx).Model(&db.Grant{}).
		Where("user_id = ? AND (can_view = ? OR can_author = ?)", userID, true, true).
		Distinct().Order("root_id").Pluck("root_id", &ids)
	if err := res.Error; err != nil {
		s.logger.Errorw("list granted roots failed", "user", userID, "err", err)
		return nil, db.SqlError2Error(err)
	}
	return ids, nil
}

func (s *sqlMetaStore) TryLock(ctx context.Context, name, holder string, expireAt time.Time) (bool, error) {
	defer trace.StartRegion(ctx, "metastore.sql.TryLock").End()
	var (
		acquired bool
		now      = time.Now().UnixNano()
	)
	err := s.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current []db.Lock
		res := tx.Where("name = ?", name).Limit(1).Find(&current)
		if res.Error != nil {
			return res.Error
		}
		if len(current) == 0 {
			res = tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&db.Lock{Name: name, Holder: holder, ExpireAt: expireAt.UnixNano()})
			if res.Error != nil {
				return res.Error
			}
			acquired = res.RowsAffected == 1
			return nil
		}

		old := current[0]
		if old.Holder != holder && old.ExpireAt > now {
			return nil
		}
		res = tx.Model(&db.Lock{}).
			Where("name = ? AND holder = ? AND expire_at = ?", name, old.Holder, old.ExpireAt).
			Updates(map[string]interface{}{"holder": holder, "expire_at": expireAt.UnixNano()})
		if res.Error != nil {
			return res.Error
		}
		acquired = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		s.logger.Errorw("try lock failed", "lock", name, "err", err)
		logOperationError("try_lock", err)
		return false, db.SqlError2Error(err)
	}
	return acquired, nil
}

func (s *sqlMetaStore) Unlock(ctx context.Context, name, holder string) error {
	defer trace.StartRegion(ctx, "metastore.sql.Unlock").End()
	res := s.WithContext(ctx).Where("name = ? AND holder = ?", name, holder).Delete(&db.Lock{})
	if err := res.Error; err != nil {
		s.logger.Errorw("unlock failed", "lock", name, "err", err)
		return db.SqlError2Error(err)
	}
	return nil
}

func (s *sqlMetaStore) PurgeExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	defer trace.StartRegion(ctx, "metastore.sql.PurgeExpiredLocks").End()
	res := s.WithContext(ctx).Where("expire_at <= ?", now.UnixNano()).Delete(&db.Lock{})
	if err := res.Error; err != nil {
		s.logger.Errorw("purge expired locks failed", "err", err)
		return 0, db.SqlError2Error(err)
	}
	return res.RowsAffected, nil
}

func (s *sqlMetaStore) CreateTask(ctx context.Context, task *types.QueuedTask) error {
	defer trace.StartRegion(ctx, "metastore.sql.CreateTask").End()
	mod, err := (&db.QueuedTask{}).FromTask(task)
	if err != nil {
		return err
	}
	mod.ID = 0
	res := s.WithContext(ctx).Create(mod)
	if err = res.Error; err != nil {
		s.logger.Errorw("create task failed", "kind", task.Kind, "err", err)
		logOperationError("create_task", err)
		return db.SqlError2Error(err)
	}
	task.ID = mod.ID
	return nil
}

func (s *sqlMetaStore) UpdateTask(ctx context.Context, task *types.QueuedTask) error {
	defer trace.StartRegion(ctx, "metastore.sql.UpdateTask").End()
	mod, err := (&db.QueuedTask{}).FromTask(task)
	if err != nil {
		return err
	}
	res := s.WithContext(ctx).Model(&db.QueuedTask{}).Where("id = ?", task.ID).Select("*").Updates(mod)
	if err = res.Error; err != nil {
		s.logger.Errorw("update task failed", "task", task.ID, "err", err)
		return db.SqlError2Error(err)
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *sqlMetaStore) DeleteTask(ctx context.Context, id int64) error {
	defer trace.StartRegion(ctx, "metastore.sql.DeleteTask").End()
	res := s.WithContext(ctx).Where("id = ?", id).Delete(&db.QueuedTask{})
	if err := res.Error; err != nil {
		s.logger.Errorw("delete task failed", "task", id, "err", err)
		return db.SqlError2Error(err)
	}
	return nil
}

func (s *sqlMetaStore) GetTask(ctx context.Context, id int64) (*types.QueuedTask, error) {
	defer trace.StartRegion(ctx, "metastore.sql.GetTask").End()
	mod := &db.QueuedTask{}
	res := s.WithContext(ctx).Where("id = ?", id).First(mod)
	if err := res.Error; err != nil {
		return nil, db.SqlError2Error(err)
	}
	return mod.ToTask()
}

func (s *sqlMetaStore) ClaimTasks(ctx context.Context, limit int, now, leaseUntil time.Time) ([]*types.QueuedTask, error) {
	defer trace.StartRegion(ctx, "metastore.sql.ClaimTasks").End()
	var result []*types.QueuedTask
	err := s.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var mods []db.QueuedTask
		res := tx.Where("claimed_until <= ?", now.UnixNano()).Order("id").Limit(limit).Find(&mods)
		if res.Error != nil {
			return res.Error
		}
		for i := range mods {
			mod := mods[i]
			res = tx.Model(&db.QueuedTask{}).
				Where("id = ? AND claimed_until = ?", mod.ID, mod.ClaimedUntil).
				Updates(map[string]interface{}{"claimed_until": leaseUntil.UnixNano(), "attempts": mod.Attempts + 1})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			mod.ClaimedUntil = leaseUntil.UnixNano()
			mod.Attempts += 1
			task, err := mod.ToTask()
			if err != nil {
				s.logger.Errorw("decode task failed, skip", "task", mod.ID, "err", err)
				continue
			}
			result = append(result, task)
		}
		return nil
	})
	if err != nil {
		s.logger.Errorw("claim tasks failed", "err", err)
		logOperationError("claim_tasks", err)
		return nil, db.SqlError2Error(err)
	}
	return result, nil
}

func (s *sqlMetaStore) ListTasks(ctx context.Context) ([]*types.QueuedTask, error) {
	defer trace.StartRegion(ctx, "metastore.sql.ListTasks").End()
	var mods []db.QueuedTask
	res := s.WithContext(ctx).Order("id").Find(&mods)
	if err := res.Error; err != nil {
		return nil, db.SqlError2Error(err)
	}
	result := make([]*types.QueuedTask, 0, len(mods))
	for i := range mods {
		task, err := mods[i].ToTask()
		if err != nil {
			return nil, err
		}
		result = append(result, task)
	}
	return result, nil
}

func (s *sqlMetaStore) ReplaceUsage(ctx context.Context, usages []types.Usage) error {
	defer trace.StartRegion(ctx, "metastore.sql.ReplaceUsage").End()
	err := s.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&db.Usage{})
		if res.Error != nil {
			return res.Error
		}
		for _, u := range usages {
			res = tx.Create(&db.Usage{Owner: u.Owner, FolderCount: u.FolderCount, FileCount: u.FileCount, TotalBytes: u.TotalBytes})
			if res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Errorw("replace usage failed", "err", err)
		return db.SqlError2Error(err)
	}
	return nil
}

func (s *sqlMetaStore) GetUsage(ctx context.Context, owner int64) (*types.Usage, error) {
	defer trace.StartRegion(ctx, "metastore.sql.GetUsage").End()
	mod := &db.Usage{}
	res := s.WithContext(ctx).Where("owner = ?", owner).First(mod)
	if err := res.Error; err != nil {
		return nil, db.SqlError2Error(err)
	}
	u := mod.ToUsage()
	return &u, nil
}

func (s *sqlMetaStore) ListUsage(ctx context.Context) ([]types.Usage, error) {
	defer trace.StartRegion(ctx, "metastore.sql.ListUsage").End()
	var mods []db.Usage
	res := s.WithContext(ctx).Order("owner").Find(&mods)
	if err := res.Error; err != nil {
		return nil, db.SqlError2Error(err)
	}
	result := make([]types.Usage, 0, len(mods))
	for i := range mods {
		result = append(result, mods[i].ToUsage())
	}
	return result, nil
}

func newPostgresMetaStore(meta config.Meta) (*sqlMetaStore, error) {
	dbEntity, err := gorm.Open(postgres.Open(meta.DSN), &gorm.Config{Logger: db.NewDbLogger()})
	if err != nil {
		return nil, err
	}

	dbConn, err := dbEntity.DB()
	if err != nil {
		return nil, err
	}

	dbConn.SetMaxIdleConns(5)
	dbConn.SetMaxOpenConns(50)
	dbConn.SetConnMaxLifetime(time.Hour)

	if err = dbConn.Ping(); err != nil {
		return nil, err
	}

	return buildSqlMetaStore(dbEntity)
}

func newSqliteMetaStore(meta config.Meta) (*sqliteMetaStore, error) {
	dbEntity, err := gorm.Open(sqlite.Open(meta.Path), &gorm.Config{Logger: db.NewDbLogger()})
	if err != nil {
		return nil, err
	}

	dbConn, err := dbEntity.DB()
	if err != nil {
		return nil, err
	}
	// every connection to :memory: opens a different database
	dbConn.SetMaxOpenConns(1)

	if err = dbConn.Ping(); err != nil {
		return nil, err
	}

	dbStore, err := buildSqlMetaStore(dbEntity)
	if err != nil {
		return nil, err
	}

	return &sqliteMetaStore{dbStore: dbStore}, nil
}

func scopeQuery(tx *gorm.DB, scope types.SiblingScope) *gorm.DB {
	tx = db.ParentIs(tx, scope.ParentID)
	if scope.ParentID == nil {
		tx = tx.Where("owner = ?", scope.Owner)
	}
	return tx
}

func childQuery(tx *gorm.DB, parentID int64, filter types.ChildFilter) *gorm.DB {
	tx = db.VisibleOnly(tx.Where("parent_id = ?", parentID), filter.IncludeHidden)
	if len(filter.Kinds) > 0 {
		tx = tx.Where("kind IN ?", kindStrings(filter.Kinds))
	}
	return tx
}

func kindStrings(kinds []types.Kind) []string {
	result := make([]string, 0, len(kinds))
	for _, k := range kinds {
		result = append(result, string(k))
	}
	return result
}

func toItems(mods []db.Item) []*types.Item {
	result := make([]*types.Item, 0, len(mods))
	for i := range mods {
		result = append(result, mods[i].ToItem())
	}
	return result
}
