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

package types

type Grant struct {
	View   bool `json:"view"`
	Author bool `json:"author"`
}

// Grants maps user id to the capabilities granted on a root item.
type Grants map[int64]Grant

type GrantKind string

const (
	GrantView   GrantKind = "view"
	GrantAuthor GrantKind = "author"
)

func (g Grant) Has(kind GrantKind) bool {
	switch kind {
	case GrantView:
		return g.View
	case GrantAuthor:
		return g.Author
	}
	return false
}

func (g Grants) Clone() Grants {
	result := make(Grants, len(g))
	for k, v := range g {
		result[k] = v
	}
	return result
}

type SharingStatus string

const (
	SharingPersonal   SharingStatus = "personal"
	SharingPrivate    SharingStatus = "private"
	SharingPublic     SharingStatus = "public"
	SharingSharedByMe SharingStatus = "shared by you"
	SharingSharedWith SharingStatus = "shared with you"
)

type Permission string

const (
	PermView          Permission = "can view"
	PermAuthor        Permission = "can author"
	PermShare         Permission = "can share"
	PermSharePublicly Permission = "can share publicly"
	PermAdminister    Permission = "can administer"
)
