// Copyright 2025 The blobwagon Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package base

import (
	"fmt"
	"strings"
	"unicode"
)

// Resource name limits, matching Azure blob naming rules
const (
	MaxResourceNameLength = 1024
	MaxResourceSegments   = 254
)

// CleanResourceName strips a single leading slash
func CleanResourceName(name string) string {
	return strings.TrimPrefix(name, "/")
}

// ValidateResourceName checks that name addresses a single object. The
// returned error wraps ErrInvalidResourceName.
func ValidateResourceName(name string) error {
	name = CleanResourceName(name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidResourceName)
	}
	if len(name) > MaxResourceNameLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidResourceName, MaxResourceNameLength)
	}
	for _, r := range name {
		if r == 0 || unicode.IsControl(r) {
			return fmt.Errorf("%w: control character %U", ErrInvalidResourceName, r)
		}
		if r == '\\' {
			return fmt.Errorf("%w: backslash not allowed", ErrInvalidResourceName)
		}
	}

	segments := strings.Split(name, "/")
	if len(segments) > MaxResourceSegments {
		return fmt.Errorf("%w: more than %d path segments", ErrInvalidResourceName, MaxResourceSegments)
	}
	for _, seg := range segments {
		switch seg {
		case "":
			return fmt.Errorf("%w: empty path segment in %q", ErrInvalidResourceName, name)
		case ".", "..":
			return fmt.Errorf("%w: relative segment %q", ErrInvalidResourceName, seg)
		}
	}
	return nil
}

// CleanDirectoryName normalizes a directory name for listing. The empty
// string and "/" denote the repository root.
func CleanDirectoryName(dir string) (string, error) {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return "", nil
	}
	if err := ValidateResourceName(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// JoinKey prefixes resource with the repository basedir
func JoinKey(basedir, resource string) string {
	basedir = strings.Trim(basedir, "/")
	resource = CleanResourceName(resource)
	if basedir == "" {
		return resource
	}
	if resource == "" {
		return basedir
	}
	return basedir + "/" + resource
}
