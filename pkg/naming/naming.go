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

package naming

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/metastore"
	"github.com/basenana/nanatree/pkg/types"
)

type Resolver struct {
	maxLength int
	reserved  string
	blocked   map[string]struct{}
	suffix    string
}

func NewResolver(cfg config.Tree) *Resolver {
	r := &Resolver{
		maxLength: cfg.MaxLength(),
		reserved:  cfg.Reserved(),
		blocked:   make(map[string]struct{}),
		suffix:    cfg.Suffix(),
	}
	for _, ext := range cfg.BlockedExtensions {
		r.blocked[normalizeExt(ext)] = struct{}{}
	}
	return r
}

func (r *Resolver) CopySuffix() string {
	return r.suffix
}

func (r *Resolver) MaxLength() int {
	return r.maxLength
}

func (r *Resolver) IsNameLegal(name string) bool {
	return r.checkLegal(name) == nil
}

func (r *Resolver) checkLegal(name string) error {
	if name == "" || strings.TrimSpace(name) == "" {
		return types.NewValidationError(types.ErrNameIllegal, "empty name")
	}
	if name == "." || name == ".." {
		return types.NewValidationError(types.ErrNameIllegal, "%s is reserved", name)
	}
	if utf8.RuneCountInString(name) > r.maxLength {
		return types.NewValidationError(types.ErrNameTooLong, "max %d characters", r.maxLength)
	}
	if strings.ContainsAny(name, r.reserved) {
		return types.NewValidationError(types.ErrNameIllegal, "name contains one of %q", r.reserved)
	}
	return nil
}

func (r *Resolver) IsExtensionAllowed(name string) bool {
	ext := normalizeExt(path.Ext(name))
	if ext == "" {
		return true
	}
	_, blocked := r.blocked[ext]
	return !blocked
}

// CheckName validates a name, content items are also checked against the extension policy.
func (r *Resolver) CheckName(name string, kind types.Kind) error {
	if err := r.checkLegal(name); err != nil {
		return err
	}
	if kind != types.FolderKind && !r.IsExtensionAllowed(name) {
		return types.NewValidationError(types.ErrExtensionBlocked, "%s", path.Ext(name))
	}
	return nil
}

// IsNameUnique only holds while the scope lock is held.
func (r *Resolver) IsNameUnique(ctx context.Context, store metastore.ItemStore, scope types.SiblingScope, name string, excludeID int64) (bool, error) {
	names, err := store.ChildNames(ctx, scope, false)
	if err != nil {
		return false, err
	}
	for id, n := range names {
		if n == name && id != excludeID {
			return false, nil
		}
	}
	return true, nil
}

// CreateUniqueName returns proposed if it is free, otherwise tries
// base+suffix+ext then base+suffix+" N"+ext, truncating base to fit.
func (r *Resolver) CreateUniqueName(inUse []string, proposed, suffix string) (string, error) {
	used := lo.SliceToMap(inUse, func(n string) (string, struct{}) { return n, struct{}{} })
	if _, ok := used[proposed]; !ok {
		return proposed, nil
	}

	base, ext := splitExt(proposed)
	for n := 0; n <= len(inUse)+2; n++ {
		tail := suffix
		if n > 0 {
			tail = fmt.Sprintf("%s %d", suffix, n)
		}
		candidate, ok := r.fit(base, tail+ext)
		if !ok {
			return "", types.NewValidationError(types.ErrUniqueName, "no room left for %q", proposed)
		}
		if _, taken := used[candidate]; !taken {
			return candidate, nil
		}
	}
	return "", types.NewValidationError(types.ErrUniqueName, "%q", proposed)
}

func (r *Resolver) UniqueNameInScope(ctx context.Context, store metastore.ItemStore, scope types.SiblingScope, proposed, suffix string) (string, error) {
	names, err := store.ChildNames(ctx, scope, false)
	if err != nil {
		return "", err
	}
	return r.CreateUniqueName(lo.Values(names), proposed, suffix)
}

func (r *Resolver) fit(base, tail string) (string, bool) {
	room := r.maxLength - utf8.RuneCountInString(tail)
	if room < 1 {
		return "", false
	}
	runes := []rune(base)
	if len(runes) > room {
		runes = runes[:room]
	}
	if len(runes) == 0 {
		return "", false
	}
	return string(runes) + tail, true
}

// splitExt splits at the last dot, a leading dot is part of the base.
func splitExt(name string) (string, string) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return name, ""
	}
	return name[:idx], name[idx:]
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// DetectKind picks the content kind and mime type from the file name.
func DetectKind(name, mimeType string) (types.Kind, string) {
	if mimeType == "" {
		mimeType = mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	major := strings.SplitN(mimeType, "/", 2)[0]
	switch major {
	case "image":
		return types.ImageKind, mimeType
	case "audio", "video":
		return types.MediaKind, mimeType
	default:
		return types.FileKind, mimeType
	}
}
