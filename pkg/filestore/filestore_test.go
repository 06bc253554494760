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

package filestore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSecureRelativePathNeutralisesTraversal(t *testing.T) {
	cases := []struct{ in, want string }{
		{"../../../..ssh/config", "ssh/config"},
		{"../../etc/passwd", "etc/passwd"},
		{"~/secrets", "secrets"},
		{"a//b///c", "a/b/c"},
		{"/already/absolute", "already/absolute"},
	}
	for _, c := range cases {
		got := SecureRelativePath(c.in)
		if got != c.want {
			t.Errorf("SecureRelativePath(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSecureRelativePathIsIdempotent(t *testing.T) {
	inputs := []string{"../../../..ssh/config", "modules/test.py", "~/../x//y"}
	for _, in := range inputs {
		once := SecureRelativePath(in)
		twice := SecureRelativePath(once)
		if once != twice {
			t.Errorf("SecureRelativePath not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestSecureRelativePathNeverEscapesRoot(t *testing.T) {
	for _, in := range []string{"../../../../../etc/passwd", "..", "~", "/../../x"} {
		secured := SecureRelativePath(in)
		if strings.Contains(secured, "..") {
			t.Errorf("secured path %q for input %q still contains ..", secured, in)
		}
		if strings.HasPrefix(secured, "/") {
			t.Errorf("secured path %q for input %q is absolute", secured, in)
		}
		if strings.Contains(secured, "~") {
			t.Errorf("secured path %q for input %q still contains ~", secured, in)
		}
	}
}

func TestFileStoreWriteAndReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	fs := New(root)

	secured, err := fs.Write("../../../..ssh/config", []byte("x"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if secured != "ssh/config" {
		t.Errorf("secured path = %q, want ssh/config", secured)
	}

	full := filepath.Join(root, "ssh/config")
	if _, err := os.Stat(full); err != nil {
		t.Errorf("expected file at %s, stat failed: %v", full, err)
	}

	contents, err := fs.Read("ssh/config")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(contents) != "x" {
		t.Errorf("contents = %q, want x", contents)
	}
}

func TestStripRootPrefix(t *testing.T) {
	fs := New("/srv/files")
	got := fs.StripRootPrefix("/srv/files/modules/test.py: line 3")
	if got != "modules/test.py: line 3" {
		t.Errorf("StripRootPrefix = %q", got)
	}
}
