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

// Package memsize formats byte and bit counts as human-readable strings
// (the saver uses it in its insufficient-disk-space error), built on
// c2h5oh/datasize's unit constants.
package memsize

import (
	"fmt"

	"github.com/c2h5oh/datasize"
)

const (
	B  = uint64(datasize.B)
	KB = uint64(datasize.KB)
	MB = uint64(datasize.MB)
	GB = uint64(datasize.GB)
	TB = uint64(datasize.TB)

	Kbit = KB / 8
	Mbit = MB / 8
	Gbit = GB / 8
	Tbit = TB / 8
)

// Format renders a byte count as the largest unit that keeps the value
// at least 1, with two decimal places.
func Format(b uint64) string {
	return formatUnits(b, "B", KB, MB, GB, TB)
}

// BitFormat renders a bit count the same way Format does for bytes.
func BitFormat(bits uint64) string {
	return formatUnits(bits, "bit", Kbit, Mbit, Gbit, Tbit)
}

func formatUnits(v uint64, unit string, k, m, g, t uint64) string {
	switch {
	case v == 0:
		return fmt.Sprintf("0%s", unit)
	case v >= t:
		return fmt.Sprintf("%.2fT%s", float64(v)/float64(t), unit)
	case v >= g:
		return fmt.Sprintf("%.2fG%s", float64(v)/float64(g), unit)
	case v >= m:
		return fmt.Sprintf("%.2fM%s", float64(v)/float64(m), unit)
	case v >= k:
		return fmt.Sprintf("%.2fK%s", float64(v)/float64(k), unit)
	default:
		return fmt.Sprintf("%.2f%s", float64(v), unit)
	}
}
