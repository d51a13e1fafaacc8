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

package tree

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/mholt/archives"
	"go.uber.org/zap"

	"github.com/basenana/nanatree/pkg/lock"
	"github.com/basenana/nanatree/pkg/naming"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
	"github.com/basenana/nanatree/utils/logger"
)

const (
	archiveExt      = ".zip"
	archiveMimeType = "application/zip"
)

type archiveEntry struct {
	item *types.Item
	path string
}

// Archive packs the given items into one zip file under destID. The whole
// subtree of every item stays locked until the container is written.
func (m *Manager) Archive(ctx context.Context, actor int64, ids []int64, destID *int64, name string) (item *types.Item, err error) {
	defer utils.TraceRegion(ctx, "tree.archive")()
	defer logger.CostLog(m.logger.With(zap.Int("items", len(ids))), "archive items")()
	defer logOperationLatency("archive", time.Now())
	defer func() { _ = logOperationError("archive", err) }()

	if len(ids) == 0 {
		return nil, types.NewValidationError(types.ErrInvalidPath, "nothing to archive")
	}
	if !strings.HasSuffix(strings.ToLower(name), archiveExt) {
		name += archiveExt
	}
	if err = m.names.CheckName(name, types.FileKind); err != nil {
		return nil, err
	}
	dest, err := m.loadDestination(ctx, actor, destID)
	if err != nil {
		return nil, err
	}

	var (
		tops     []*types.Item
		topNames []string
	)
	for _, id := range ids {
		top, err := m.loadItem(ctx, id)
		if err != nil {
			return nil, err
		}
		if err = m.access.CheckAccess(ctx, top, actor, types.GrantView); err != nil {
			return nil, err
		}
		topName, err := m.names.CreateUniqueName(topNames, top.Name, "")
		if err != nil {
			return nil, err
		}
		tops = append(tops, top)
		topNames = append(topNames, topName)
	}

	holder := m.locks.NewHolder()
	defer holder.ReleaseAll(ctx)
	entries, err := m.lockEntries(ctx, holder, tops, topNames, lock.ScopeLock(scopeFor(dest, actor)))
	if err != nil {
		return nil, err
	}

	files := make([]archives.FileInfo, 0, len(entries))
	for _, e := range entries {
		fresh, err := m.loadItem(ctx, e.item.ID)
		if err != nil {
			return nil, err
		}
		files = append(files, m.archiveFile(ctx, fresh, e.path))
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(archives.Zip{Compression: zip.Deflate}.Archive(ctx, pw, files))
	}()
	info, err := m.objects.Create(ctx, name, pr)
	_ = pr.Close()
	holder.ReleaseAll(ctx)
	if err != nil {
		m.logger.Errorw("write archive failed", "name", name, "items", ids, "err", err)
		return nil, types.NewSystemError("write archive", err)
	}

	item = newItem(name, types.FileKind, actor, dest)
	item.MimeType = archiveMimeType
	item.ObjectID = info.ID
	item.Size = types.Int64Ptr(info.Size)
	if err = m.insertItem(ctx, actor, dest, item, true, ""); err != nil {
		if dErr := m.objects.Delete(ctx, info.ID); dErr != nil {
			m.logger.Warnw("clean up orphan archive failed", "object", info.ID, "err", dErr)
		}
		return nil, err
	}
	if dest != nil {
		m.refreshSizes(ctx, dest.ID)
	}
	m.markIndex(ctx, item)
	m.publicItemActionEvent(types.ActionTypeArchive, actor, item)
	return item, nil
}

// lockEntries collects the entries of every top item and locks them. A
// child added before its folder was locked shows up in the next round, the
// set is final once a round finds nothing new.
func (m *Manager) lockEntries(ctx context.Context, holder *lock.Holder, tops []*types.Item, topNames []string, extra ...string) ([]archiveEntry, error) {
	locked := make(map[int64]bool)
	names := extra
	for {
		var entries []archiveEntry
		for i, top := range tops {
			collected, err := m.collectEntries(ctx, top, topNames[i])
			if err != nil {
				return nil, err
			}
			entries = append(entries, collected...)
		}
		for _, e := range entries {
			if !locked[e.item.ID] {
				locked[e.item.ID] = true
				names = append(names, lock.ItemLock(e.item.ID))
			}
		}
		if len(names) == 0 {
			return entries, nil
		}
		if err := holder.AcquireAll(ctx, names); err != nil {
			return nil, err
		}
		names = nil
	}
}

// collectEntries lists item and its visible descendants with their path inside the archive.
func (m *Manager) collectEntries(ctx context.Context, item *types.Item, name string) ([]archiveEntry, error) {
	result := []archiveEntry{{item: item, path: name}}
	for i := 0; i < len(result); i++ {
		cur := result[i]
		if !cur.item.IsFolder() {
			continue
		}
		children, err := m.store.ListChildren(ctx, cur.item.ID, types.ChildFilter{})
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if child.Disabled {
				continue
			}
			result = append(result, archiveEntry{item: child, path: path.Join(cur.path, child.Name)})
		}
	}
	return result, nil
}

func (m *Manager) archiveFile(ctx context.Context, item *types.Item, nameInArchive string) archives.FileInfo {
	info := itemFileInfo{item: item}
	return archives.FileInfo{
		FileInfo:      info,
		NameInArchive: nameInArchive,
		Open: func() (fs.File, error) {
			if !item.HasObject() {
				return &itemFile{ReadCloser: io.NopCloser(bytes.NewReader(nil)), info: info}, nil
			}
			rc, err := m.objects.Open(ctx, item.ObjectID)
			if err != nil {
				return nil, err
			}
			return &itemFile{ReadCloser: rc, info: info}, nil
		},
	}
}

// Unarchive restores a zip file into a new folder named after it. The
// folder stays disabled until every entry is written.
func (m *Manager) Unarchive(ctx context.Context, actor, archiveID int64, destID *int64) (folder *types.Item, err error) {
	defer utils.TraceRegion(ctx, "tree.unarchive")()
	defer logger.CostLog(m.logger.With(zap.Int64("archive", archiveID)), "unarchive")()
	defer logOperationLatency("unarchive", time.Now())
	defer func() { _ = logOperationError("unarchive", err) }()

	src, err := m.loadItem(ctx, archiveID)
	if err != nil {
		return nil, err
	}
	if err = m.access.CheckAccess(ctx, src, actor, types.GrantView); err != nil {
		return nil, err
	}
	if !src.HasObject() {
		return nil, types.NewValidationError(types.ErrInvalidPath, "item %d has no content", src.ID)
	}
	dest, err := m.loadDestination(ctx, actor, destID)
	if err != nil {
		return nil, err
	}

	rc, err := m.objects.Open(ctx, src.ObjectID)
	if err != nil {
		return nil, types.NewSystemError("open archive", err)
	}
	data, cleanup, err := seekableArchive(rc)
	if err != nil {
		return nil, types.NewSystemError("read archive", err)
	}
	defer cleanup()

	folderName := strings.TrimSuffix(src.Name, path.Ext(src.Name))
	if folderName == "" {
		folderName = src.Name
	}
	folder = newItem(folderName, types.FolderKind, actor, dest)
	folder.Disabled = true
	if err = m.insertItem(ctx, actor, dest, folder, true, ""); err != nil {
		return nil, err
	}

	u := &unpacker{m: m, actor: actor, dirs: map[string]*types.Item{"": folder}}
	if err = (archives.Zip{}).Extract(ctx, data, u.handle); err != nil {
		m.logger.Errorw("extract archive failed", "archive", src.ID, "err", err)
		if dErr := m.removeTree(ctx, folder); dErr != nil {
			m.logger.Warnw("clean up partial unarchive failed", "folder", folder.ID, "err", dErr)
		}
		if types.IsValidation(err) || types.IsBusy(err) {
			return nil, err
		}
		return nil, types.NewSystemError("extract archive", err)
	}

	m.finishCopy(ctx, folder, true)
	m.publicItemActionEvent(types.ActionTypeUnarchive, actor, folder)
	return m.loadItem(ctx, folder.ID)
}

type seekReaderAt interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

// seekableArchive hands rc to the zip reader as is when it can seek,
// otherwise the content is spooled to a temp file first.
func seekableArchive(rc io.ReadCloser) (seekReaderAt, func(), error) {
	if sra, ok := rc.(seekReaderAt); ok {
		return sra, func() { _ = rc.Close() }, nil
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "nanatree-unarchive-*.zip")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	if _, err = io.Copy(tmp, rc); err != nil {
		cleanup()
		return nil, nil, err
	}
	if _, err = tmp.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, nil, err
	}
	return tmp, cleanup, nil
}

type unpacker struct {
	m     *Manager
	actor int64
	dirs  map[string]*types.Item
}

func (u *unpacker) handle(ctx context.Context, f archives.FileInfo) error {
	name := path.Clean("/" + strings.ReplaceAll(f.NameInArchive, "\\", "/"))
	name = strings.TrimPrefix(name, "/")
	if name == "" || name == "." {
		return nil
	}
	if f.IsDir() {
		_, err := u.folder(ctx, name)
		return err
	}
	dir, base := path.Split(name)
	parent, err := u.folder(ctx, strings.TrimSuffix(dir, "/"))
	if err != nil {
		return err
	}
	if parent == nil {
		return nil
	}

	kind, _ := naming.DetectKind(base, "")
	if err = u.m.names.CheckName(base, kind); err != nil {
		u.m.logger.Infow("skip archive entry", "entry", f.NameInArchive, "err", err)
		return nil
	}
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()
	info, err := u.m.objects.Create(ctx, base, r)
	if err != nil {
		return types.NewSystemError("create object", err)
	}
	kind, mimeType := naming.DetectKind(base, info.MimeType)
	item := newItem(base, kind, u.actor, parent)
	item.MimeType = mimeType
	item.ObjectID = info.ID
	item.Size = types.Int64Ptr(info.Size)
	if err = u.place(ctx, parent, item); err != nil {
		_ = u.m.objects.Delete(ctx, info.ID)
		return err
	}
	return nil
}

// folder returns the folder created for dir, making missing levels on the
// way. It returns nil when a level has an illegal name.
func (u *unpacker) folder(ctx context.Context, dir string) (*types.Item, error) {
	if f, ok := u.dirs[dir]; ok {
		return f, nil
	}
	parentDir, base := path.Split(dir)
	parent, err := u.folder(ctx, strings.TrimSuffix(parentDir, "/"))
	if err != nil || parent == nil {
		return nil, err
	}
	if err = u.m.names.CheckName(base, types.FolderKind); err != nil {
		u.m.logger.Infow("skip archive folder", "entry", dir, "err", err)
		u.dirs[dir] = nil
		return nil, nil
	}
	f := newItem(base, types.FolderKind, u.actor, parent)
	if err = u.place(ctx, parent, f); err != nil {
		return nil, err
	}
	u.dirs[dir] = f
	return f, nil
}

// place saves item under parent, renaming it when the name is taken.
func (u *unpacker) place(ctx context.Context, parent, item *types.Item) error {
	holder := u.m.locks.NewHolder()
	defer holder.ReleaseAll(ctx)
	if err := holder.Acquire(ctx, lock.ItemLock(parent.ID)); err != nil {
		return err
	}
	name, err := u.m.resolveName(ctx, types.SiblingScope{ParentID: types.Int64Ptr(parent.ID)}, item.Name, 0, true, "")
	if err != nil {
		return err
	}
	item.Name = name
	if err = u.m.store.CreateItem(ctx, item); err != nil {
		return err
	}
	u.m.markIndex(ctx, item)
	return nil
}

type itemFileInfo struct {
	item *types.Item
}

var _ fs.FileInfo = itemFileInfo{}

func (i itemFileInfo) Name() string { return i.item.Name }

func (i itemFileInfo) Size() int64 {
	if i.item.IsFolder() {
		return 0
	}
	return i.item.SizeOrZero()
}

func (i itemFileInfo) Mode() fs.FileMode {
	if i.item.IsFolder() {
		return fs.ModeDir | 0755
	}
	return 0644
}

func (i itemFileInfo) ModTime() time.Time { return i.item.ModifiedAt }

func (i itemFileInfo) IsDir() bool { return i.item.IsFolder() }

func (i itemFileInfo) Sys() any { return nil }

type itemFile struct {
	io.ReadCloser
	info fs.FileInfo
}

func (f *itemFile) Stat() (fs.FileInfo, error) {
	return f.info, nil
}
