// BSD 2-Clause License
//
// Copyright (c) 2020, Andrea Giacomo Baldan
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
//
// * Redistributions of source code must retain the above copyright notice, this
//   list of conditions and the following disclaimer.
//
// * Redistributions in binary form must reproduce the above copyright notice,
//   this list of conditions and the following disclaimer in the documentation
//   and/or other materials provided with the distribution.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE
// FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
// DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER
// CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY,
// OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

// Package filestore resolves front-end supplied file paths against a
// fixed root directory, neutralising path traversal, and performs the
// read/write operations the HTTP file handlers need.
package filestore

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var repeatedSeparators = regexp.MustCompile(regexp.QuoteMeta(string(os.PathSeparator)) + "+")

// SecureRelativePath strips every "~", then ".." segments, collapses
// repeated path separators, and returns a path guaranteed relative: it
// never escapes the root it is later joined against. Idempotent:
// applying it twice yields the same result as applying it once.
func SecureRelativePath(p string) string {
	p = strings.ReplaceAll(p, "~", "")
	p = strings.ReplaceAll(p, "..", "")
	p = repeatedSeparators.ReplaceAllString(p, string(os.PathSeparator))
	return strings.TrimLeft(p, string(os.PathSeparator))
}

// FileStore roots every path it resolves under Root.
type FileStore struct {
	Root string
}

func New(root string) *FileStore {
	return &FileStore{Root: root}
}

// Resolve returns the secured absolute path for a front-end supplied
// relative path.
func (f *FileStore) Resolve(relPath string) string {
	return filepath.Join(f.Root, SecureRelativePath(relPath))
}

// Read returns the contents of relPath, secured against the store's root.
func (f *FileStore) Read(relPath string) ([]byte, error) {
	return os.ReadFile(f.Resolve(relPath))
}

// Write creates any missing parent directories and writes content to
// relPath, secured against the store's root. Returns the secured
// relative path that was actually written, for echoing back to the
// caller.
func (f *FileStore) Write(relPath string, content []byte) (string, error) {
	secured := SecureRelativePath(relPath)
	full := filepath.Join(f.Root, secured)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return "", err
	}
	return secured, nil
}

// StripRootPrefix removes the store's root directory prefix (plus a
// trailing separator) from s. The file-run handler does not call it:
// file-run output, including error paths, reaches the front-end with
// the absolute root still in it.
func (f *FileStore) StripRootPrefix(s string) string {
	return strings.ReplaceAll(s, f.Root+string(os.PathSeparator), "")
}
