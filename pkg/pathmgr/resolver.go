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
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/basenana/nanatree/pkg/access"
	"github.com/basenana/nanatree/pkg/identity"
	"github.com/basenana/nanatree/pkg/metastore"
	"github.com/basenana/nanatree/pkg/types"
	"github.com/basenana/nanatree/utils"
	"github.com/basenana/nanatree/utils/logger"
)

// Resolver turns paths into items, walking from a root by child names.
type Resolver struct {
	store  metastore.ItemStore
	access *access.Model
	ident  identity.Provider
	logger *zap.SugaredLogger
}

func NewResolver(store metastore.ItemStore, model *access.Model, ident identity.Provider) *Resolver {
	return &Resolver{store: store, access: model, ident: ident, logger: logger.NewLogger("pathResolver")}
}

func (r *Resolver) Resolve(ctx context.Context, actor int64, raw string) (*types.Item, error) {
	chain, err := r.ResolveChain(ctx, actor, raw)
	if err != nil {
		return nil, err
	}
	return chain[len(chain)-1], nil
}

// ResolveChain returns the root and every item named by the path, in order.
func (r *Resolver) ResolveChain(ctx context.Context, actor int64, raw string) ([]*types.Item, error) {
	defer utils.TraceRegion(ctx, "pathmgr.resolve")()
	p, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	root, err := r.findRoot(ctx, actor, p)
	if err != nil {
		return nil, err
	}

	chain := []*types.Item{root}
	cur := root
	for _, seg := range p.Segments[1:] {
		if !cur.IsFolder() {
			return nil, types.NewNotFoundError("%s: %s is not a folder", raw, cur.Name)
		}
		next, err := r.store.FindChild(ctx, types.SiblingScope{ParentID: types.Int64Ptr(cur.ID)}, seg)
		if err != nil {
			if types.IsNotFound(err) {
				return nil, types.NewNotFoundError("%s: %s", raw, seg)
			}
			return nil, err
		}
		if next.Hidden || next.Disabled {
			return nil, types.NewNotFoundError("%s: %s", raw, seg)
		}
		chain = append(chain, next)
		cur = next
	}
	return chain, nil
}

// findRoot picks the single root named by the first segment. Without an
// owner every root the actor can see is a candidate.
func (r *Resolver) findRoot(ctx context.Context, actor int64, p Path) (*types.Item, error) {
	viewer := actor
	if p.Scheme == SchemePublic {
		viewer = r.ident.PublicUser()
	}

	var (
		candidates []*types.Item
		err        error
	)
	if p.Owner == "" {
		candidates, err = r.access.AccessibleRoots(ctx, viewer, p.Segments[0])
	} else {
		candidates, err = r.ownedRoots(ctx, viewer, p.Owner, p.Segments[0])
	}
	if err != nil {
		return nil, err
	}

	switch len(candidates) {
	case 0:
		return nil, types.NewNotFoundError("root %s", p.Segments[0])
	case 1:
		return candidates[0], nil
	default:
		r.logger.Debugw("ambiguous root", "path", p.String(), "candidates", len(candidates))
		return nil, types.NewValidationError(types.ErrAmbiguous, "%d roots named %s, add an owner", len(candidates), p.Segments[0])
	}
}

func (r *Resolver) ownedRoots(ctx context.Context, viewer int64, ownerRef, name string) ([]*types.Item, error) {
	owner, err := r.lookupOwner(ctx, ownerRef)
	if err != nil {
		return nil, err
	}
	roots, err := r.store.ListRootItems(ctx, types.RootFilter{Owner: &owner, Name: name})
	if err != nil {
		return nil, err
	}
	var result []*types.Item
	for _, root := range roots {
		ok, err := r.access.CanAccess(ctx, root, viewer, types.GrantView)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, root)
		}
	}
	return result, nil
}

// lookupOwner accepts an account name or a numeric id.
func (r *Resolver) lookupOwner(ctx context.Context, ref string) (int64, error) {
	acc, err := r.ident.LookupAccount(ctx, ref)
	if err == nil {
		return acc.ID, nil
	}
	if uid, pErr := strconv.ParseInt(ref, 10, 64); pErr == nil {
		return uid, nil
	}
	return 0, err
}
