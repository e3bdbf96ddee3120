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

// Package diskspaceutil reports local filesystem usage, used by the
// saver to refuse starting a download that cannot possibly fit.
package diskspaceutil

import "syscall"

const _mountPoint = "/"

// FileSystemSize returns the total size of the filesystem backing
// _mountPoint, in bytes.
func FileSystemSize() (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(_mountPoint, &stat); err != nil {
		return 0, err
	}
	return stat.Blocks * uint64(stat.Bsize), nil
}

// FileSystemUtil returns the percentage (0, 100) of the filesystem
// backing _mountPoint currently in use.
func FileSystemUtil() (float64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(_mountPoint, &stat); err != nil {
		return 0, err
	}
	total := float64(stat.Blocks)
	free := float64(stat.Bfree)
	if total == 0 {
		return 0, nil
	}
	return (total - free) / total * 100, nil
}
