// Copyright (c) 2016-2019 Uber Technologies, Inc.
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

// Package configutil loads YAML configuration files, with validator.v2
// struct-tag validation and a base-config "extends" chain: a config file
// may name another file (resolved relative to its own directory) whose
// values it overrides.
package configutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v2"
)

// ErrCycleRef is returned when an extends chain cycles back on itself.
var ErrCycleRef = errors.New("cyclic reference in configuration extends detected")

// ValidationError wraps a validator.v2 error map, giving callers access
// to per-field errors via ErrForField.
type ValidationError struct {
	errs map[string]validator.ErrorArray
}

func (e ValidationError) Error() string {
	if ve, ok := e.asValidatorError(); ok {
		return ve.Error()
	}
	return "validation failed"
}

func (e ValidationError) asValidatorError() (validator.ErrorMap, bool) {
	if len(e.errs) == 0 {
		return nil, false
	}
	m := make(validator.ErrorMap, len(e.errs))
	for k, v := range e.errs {
		m[k] = v
	}
	return m, true
}

// ErrForField returns the validation errors recorded for the named
// field, or nil if the field had none.
func (e ValidationError) ErrForField(field string) validator.ErrorArray {
	return e.errs[field]
}

type extendsStub struct {
	Extends string `yaml:"extends"`
}

// resolveExtends walks the "extends" chain starting at fpath, resolving
// each referenced file relative to the directory of the file that named
// it, and returns the chain ordered from the deepest base to fpath
// itself (so that later files in the slice override earlier ones).
// readExtends(filename) returns the raw "extends" value found in that
// file (empty string if none).
func resolveExtends(fpath string, readExtends func(string) (string, error)) ([]string, error) {
	visited := make(map[string]bool)
	var chain []string
	cur := fpath
	for {
		if visited[cur] {
			return nil, ErrCycleRef
		}
		visited[cur] = true
		chain = append([]string{cur}, chain...)

		parent, err := readExtends(cur)
		if err != nil {
			return nil, err
		}
		if parent == "" {
			break
		}
		if !filepath.IsAbs(parent) {
			parent = filepath.Join(filepath.Dir(cur), parent)
		}
		cur = parent
	}
	return chain, nil
}

func readExtendsFromFile(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		// Missing files are reported later when actually loaded; here we
		// only need a best-effort extends value to build the chain, and a
		// read failure cannot name a parent.
		return "", nil
	}
	var stub extendsStub
	if err := yaml.Unmarshal(data, &stub); err != nil {
		return "", nil
	}
	return stub.Extends, nil
}

// Load reads fpath (and any files it extends, base-first) into cfg and
// validates the merged result exactly once.
func Load(fpath string, cfg interface{}) error {
	if _, err := os.Stat(fpath); err != nil {
		return fmt.Errorf("stat %s: %w", fpath, err)
	}
	chain, err := resolveExtends(fpath, readExtendsFromFile)
	if err != nil {
		return err
	}
	return loadFiles(cfg, chain)
}

// loadFiles merges each file in order (later files win) into cfg, then
// validates once at the end.
func loadFiles(cfg interface{}, files []string) error {
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("unmarshal %s: %w", f, err)
		}
	}
	if err := validator.Validate(cfg); err != nil {
		if errs, ok := err.(validator.ErrorMap); ok {
			converted := make(map[string]validator.ErrorArray, len(errs))
			for k, v := range errs {
				converted[k] = v
			}
			return ValidationError{converted}
		}
		return err
	}
	return nil
}
