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

// Package netutil provides small address-handling helpers.
package netutil

import (
	"fmt"
	"strings"
)

// SplitHostPort splits addr into host and port, tolerating an address
// with no port (port is returned empty) rather than erroring the way
// net.SplitHostPort does.
func SplitHostPort(addr string) (host, port string, err error) {
	switch strings.Count(addr, ":") {
	case 0:
		return addr, "", nil
	case 1:
		parts := strings.SplitN(addr, ":", 2)
		if parts[1] == "" {
			return "", "", fmt.Errorf("%s is not a valid address", addr)
		}
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("%s is not a valid address", addr)
	}
}
