// Copyright 2026 SnapFS Authors
//
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

package common

import (
	"bytes"
	"path/filepath"
	"strings"
)

// DotSnapshot is the reserved path component that diverts resolution into a
// named snapshot. The comparison is ASCII case-insensitive.
const DotSnapshot = ".snapshot"

// NormalizePath cleans and normalizes a path, removing leading/trailing slashes
func NormalizePath(path string) string {
	path = filepath.Clean(path)
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, "/")
	if path == "." {
		return ""
	}
	return path
}

// SplitPath splits a path into its components
func SplitPath(path string) []string {
	path = NormalizePath(path)
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// JoinPath joins path components
func JoinPath(parts ...string) string {
	return NormalizePath(filepath.Join(parts...))
}

// ParentPath returns the parent directory of a path
func ParentPath(path string) string {
	path = NormalizePath(path)
	if path == "" {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

// BaseName returns the base name of a path
func BaseName(path string) string {
	path = NormalizePath(path)
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

// PathKeys splits a path into canonical name keys. Children of a directory
// are ordered by byte-lexicographic comparison of these keys, so every
// component is kept as the raw byte sequence of its name.
func PathKeys(path string) [][]byte {
	parts := SplitPath(path)
	keys := make([][]byte, len(parts))
	for i, p := range parts {
		keys[i] = []byte(p)
	}
	return keys
}

// JoinKeys renders name keys back into a slash-separated absolute path.
func JoinKeys(keys [][]byte) string {
	if len(keys) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, k := range keys {
		b.WriteByte('/')
		b.Write(k)
	}
	return b.String()
}

// CompareKeys orders two name keys byte-lexicographically.
func CompareKeys(a, b []byte) int {
	return bytes.Compare(a, b)
}

// IsDotSnapshot reports whether the component is the ".snapshot" pseudo
// directory. Folding is ASCII-only: 'A'..'Z' match 'a'..'z', nothing else.
func IsDotSnapshot(component []byte) bool {
	if len(component) != len(DotSnapshot) {
		return false
	}
	for i := 0; i < len(component); i++ {
		c := component[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != DotSnapshot[i] {
			return false
		}
	}
	return true
}
