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

package object

import (
	"bufio"
	"context"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/basenana/nanatree/pkg/storage"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
	"github.com/basenana/nanatree/utils/logger"
)

const (
	defaultMimeType = "application/octet-stream"
	sniffLen        = 512
)

type ObjectInfo struct {
	ID       string
	Size     int64
	MimeType string
}

// Store keeps file content behind opaque object ids. Every copy owns its
// own blob so two trees never share content.
type Store interface {
	Create(ctx context.Context, name string, in io.Reader) (ObjectInfo, error)
	Duplicate(ctx context.Context, objectID, name string) (ObjectInfo, error)
	Delete(ctx context.Context, objectID string) error
	Open(ctx context.Context, objectID string) (io.ReadCloser, error)
	Rename(ctx context.Context, objectID, name string) (ObjectInfo, error)
}

type store struct {
	s      storage.Storage
	logger *zap.SugaredLogger
}

var _ Store = &store{}

func NewStore(s storage.Storage) Store {
	return &store{s: s, logger: logger.NewLogger("objectStore")}
}

func (o *store) Create(ctx context.Context, name string, in io.Reader) (ObjectInfo, error) {
	defer utils.TraceRegion(ctx, "object.create")()
	br := bufio.NewReaderSize(in, sniffLen)
	head, _ := br.Peek(sniffLen)

	info := ObjectInfo{ID: utils.NewUUID(), MimeType: mimeTypeOf(name, head)}
	counter := &countReader{r: br}
	if err := o.s.Put(ctx, info.ID, counter); err != nil {
		o.logger.Errorw("put object failed", "object", info.ID, "name", name, "err", err)
		return ObjectInfo{}, errors.Wrapf(err, "put object %s", info.ID)
	}
	info.Size = counter.n
	return info, nil
}

func (o *store) Duplicate(ctx context.Context, objectID, name string) (ObjectInfo, error) {
	defer utils.TraceRegion(ctx, "object.duplicate")()
	r, err := o.s.Get(ctx, objectID)
	if err != nil {
		return ObjectInfo{}, errors.Wrapf(err, "open source object %s", objectID)
	}
	defer r.Close()
	return o.Create(ctx, name, r)
}

// Delete ignores objects that are already gone.
func (o *store) Delete(ctx context.Context, objectID string) error {
	defer utils.TraceRegion(ctx, "object.delete")()
	if objectID == "" {
		return nil
	}
	if err := o.s.Delete(ctx, objectID); err != nil && err != types.ErrNotFound {
		o.logger.Errorw("delete object failed", "object", objectID, "err", err)
		return errors.Wrapf(err, "delete object %s", objectID)
	}
	return nil
}

func (o *store) Open(ctx context.Context, objectID string) (io.ReadCloser, error) {
	defer utils.TraceRegion(ctx, "object.open")()
	r, err := o.s.Get(ctx, objectID)
	if err != nil {
		if err == types.ErrNotFound {
			return nil, types.NewNotFoundError("object %s", objectID)
		}
		return nil, errors.Wrapf(err, "open object %s", objectID)
	}
	return r, nil
}

// Rename only re-derives the mime type, keys do not carry names.
func (o *store) Rename(ctx context.Context, objectID, name string) (ObjectInfo, error) {
	defer utils.TraceRegion(ctx, "object.rename")()
	info, err := o.s.Head(ctx, objectID)
	if err != nil {
		if err == types.ErrNotFound {
			return ObjectInfo{}, types.NewNotFoundError("object %s", objectID)
		}
		return ObjectInfo{}, errors.Wrapf(err, "head object %s", objectID)
	}
	return ObjectInfo{ID: objectID, Size: info.Size, MimeType: mimeTypeOf(name, nil)}, nil
}

func mimeTypeOf(name string, head []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(name))); t != "" {
		return t
	}
	if len(head) > 0 {
		if t := http.DetectContentType(head); t != "" {
			return t
		}
	}
	return defaultMimeType
}

type countReader struct {
	r io.Reader
	n int64
}

func (c *countReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
