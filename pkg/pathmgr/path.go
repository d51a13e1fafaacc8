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

package pathmgr

import (
	"strings"

	"github.com/basenana/nanatree/pkg/types"
)

const (
	SchemePersonal = "personal"
	SchemePublic   = "public"

	separator = "/"
)

// Path is a parsed item path: [scheme:][//owner]/segment/...
type Path struct {
	Scheme   string
	Owner    string
	Segments []string
}

func (p Path) String() string {
	b := strings.Builder{}
	b.WriteString(p.Scheme)
	b.WriteString(":")
	if p.Owner != "" {
		b.WriteString("//")
		b.WriteString(p.Owner)
	}
	for _, seg := range p.Segments {
		b.WriteString(separator)
		b.WriteString(seg)
	}
	return b.String()
}

// Parse validates the form of a path before any lookup happens.
//
//	/docs/report.txt              personal path of the actor
//	personal:/docs/report.txt     same as above
//	personal://bob/docs           root "docs" of bob
//	public:/shared/a.txt          root "shared" visible to everyone
func Parse(raw string) (Path, error) {
	p := Path{Scheme: SchemePersonal}
	rest := raw

	if idx := strings.Index(rest, ":"); idx >= 0 && !strings.Contains(rest[:idx], separator) {
		p.Scheme = rest[:idx]
		rest = rest[idx+1:]
		switch p.Scheme {
		case SchemePersonal, SchemePublic:
		case "":
			return Path{}, types.NewValidationError(types.ErrInvalidPath, "%q has an empty scheme", raw)
		default:
			return Path{}, types.NewValidationError(types.ErrInvalidPath, "unknown scheme %q", p.Scheme)
		}
	}

	if !strings.HasPrefix(rest, separator) {
		return Path{}, types.NewValidationError(types.ErrInvalidPath, "%q is not absolute", raw)
	}
	if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
		idx := strings.Index(rest, separator)
		if idx < 0 {
			return Path{}, types.NewValidationError(types.ErrInvalidPath, "%q has no path after the owner", raw)
		}
		p.Owner = rest[:idx]
		rest = rest[idx:]
		if p.Owner == "" {
			return Path{}, types.NewValidationError(types.ErrInvalidPath, "%q has an empty owner", raw)
		}
	}

	rest = strings.TrimPrefix(rest, separator)
	rest = strings.TrimSuffix(rest, separator)
	if rest == "" {
		return Path{}, types.NewValidationError(types.ErrInvalidPath, "%q has no path", raw)
	}
	for _, seg := range strings.Split(rest, separator) {
		switch seg {
		case "":
			return Path{}, types.NewValidationError(types.ErrInvalidPath, "%q has an empty segment", raw)
		case ".", "..":
			return Path{}, types.NewValidationError(types.ErrInvalidPath, "%q has a relative segment", raw)
		}
		p.Segments = append(p.Segments, seg)
	}
	return p, nil
}
