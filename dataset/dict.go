// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"encoding/binary"
	"io"

	"github.com/gorse-io/lightgcn/base/encoding"
	"github.com/juju/errors"
)

// FreqDict maps names to dense indices and counts how often each name is seen.
type FreqDict struct {
	si  map[string]int
	is  []string
	cnt []int
}

func NewFreqDict() *FreqDict {
	return &FreqDict{si: map[string]int{}}
}

func (d *FreqDict) Count() int {
	return len(d.is)
}

// Id returns the index of s and increases its frequency.
func (d *FreqDict) Id(s string) int {
	y := d.NotCount(s)
	d.cnt[y]++
	return y
}

// NotCount returns the index of s without changing its frequency.
func (d *FreqDict) NotCount(s string) int {
	if y, ok := d.si[s]; ok {
		return y
	}
	y := len(d.is)
	d.si[s] = y
	d.is = append(d.is, s)
	d.cnt = append(d.cnt, 0)
	return y
}

// Lookup returns the index of s if it exists.
func (d *FreqDict) Lookup(s string) (int, bool) {
	y, ok := d.si[s]
	return y, ok
}

func (d *FreqDict) String(id int) (string, bool) {
	if id < 0 || id >= len(d.is) {
		return "", false
	}
	return d.is[id], true
}

func (d *FreqDict) Freq(id int) int {
	if id < 0 || id >= len(d.cnt) {
		return 0
	}
	return d.cnt[id]
}

// Marshal writes names and frequencies to a byte stream.
func (d *FreqDict) Marshal(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(d.is))); err != nil {
		return errors.Trace(err)
	}
	for i, s := range d.is {
		if err := encoding.WriteString(w, s); err != nil {
			return errors.Trace(err)
		}
		if err := binary.Write(w, binary.LittleEndian, int32(d.cnt[i])); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Unmarshal reads names and frequencies from a byte stream.
func (d *FreqDict) Unmarshal(r io.Reader) error {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return errors.Trace(err)
	}
	if n < 0 {
		return errors.NotValidf("dictionary size %d", n)
	}
	d.si = make(map[string]int, n)
	d.is = make([]string, 0, n)
	d.cnt = make([]int, 0, n)
	for i := int32(0); i < n; i++ {
		s, err := encoding.ReadString(r)
		if err != nil {
			return errors.Trace(err)
		}
		var cnt int32
		if err = binary.Read(r, binary.LittleEndian, &cnt); err != nil {
			return errors.Trace(err)
		}
		d.si[s] = len(d.is)
		d.is = append(d.is, s)
		d.cnt = append(d.cnt, int(cnt))
	}
	return nil
}
