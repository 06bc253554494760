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

// Package endpoint persists named, reusable execution configurations
// and runs them on demand through the job loop -- a thin layer on top
// of the core process executor, the same relationship spec.md draws
// between endpoint mode and the core runtime.
package endpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v2"
)

// Repository names a git remote an endpoint should be checked out from
// before running, reusing the teacher's repository/branch shape.
type Repository struct {
	URL    string `json:"url" yaml:"url"`
	Branch string `json:"branch" yaml:"branch"`
}

// Config is a single named endpoint: an argv template plus environment
// overlay, optionally backed by a repository checkout.
type Config struct {
	Name       string            `json:"name" yaml:"name"`
	Argv       []string          `json:"argv" yaml:"argv"`
	Env        map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Repository *Repository       `json:"repository,omitempty" yaml:"repository,omitempty"`
}

// Store persists Config values as one file per endpoint under root,
// in YAML (matching backend/ci.go's CIConfig format) with a JSON
// mirror for HTTP round-tripping.
type Store struct {
	root string
	mu   sync.RWMutex
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.root, name+".yaml")
}

// Save persists cfg, overwriting any existing endpoint of the same name.
func (s *Store) Save(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("endpoint: creating store root: %w", err)
	}
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("endpoint: marshaling config for %s: %w", cfg.Name, err)
	}
	return os.WriteFile(s.path(cfg.Name), body, 0o644)
}

// Get loads the named endpoint config.
func (s *Store) Get(name string) (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body, err := os.ReadFile(s.path(name))
	if err != nil {
		return Config{}, fmt.Errorf("endpoint: reading config for %s: %w", name, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("endpoint: unmarshaling config for %s: %w", name, err)
	}
	return cfg, nil
}

// MarshalJSON-friendly accessor used by the HTTP handler to echo a
// config back as JSON regardless of its on-disk YAML representation.
func (c Config) AsJSON() ([]byte, error) {
	return json.Marshal(c)
}
