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
	"strconv"
	"strings"
)

// set by -ldflags at build time
var (
	gitTag    string
	gitCommit string
)

type Version struct {
	Major   int    `json:"major"`
	Minor   int    `json:"minor"`
	Patch   int    `json:"patch"`
	Release string `json:"release"`
	Git     string `json:"git"`
}

func (v Version) Version() string {
	s := fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Release != "" {
		s += "-" + v.Release
	}
	return s
}

func (v Version) String() string {
	if v.Git == "" {
		return v.Version()
	}
	return fmt.Sprintf("%s (%s)", v.Version(), v.Git)
}

func VersionInfo() Version {
	info := Version{Git: gitCommit}
	tag, release, _ := strings.Cut(strings.TrimPrefix(gitTag, "v"), "-")
	info.Release = release

	numbers := []*int{&info.Major, &info.Minor, &info.Patch}
	for i, part := range strings.SplitN(tag, ".", len(numbers)) {
		*numbers[i], _ = strconv.Atoi(part)
	}
	return info
}
