// Copyright 2022 gorse Project Authors
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

package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopKFilter(t *testing.T) {
	// not full
	a := NewTopKFilter[int32, float32](3)
	a.Push(10, 2)
	a.Push(20, 8)
	a.Push(30, 1)
	values, weights := a.PopAll()
	assert.Equal(t, []int32{20, 10, 30}, values)
	assert.Equal(t, []float32{8, 2, 1}, weights)
	assert.Zero(t, a.Len())

	// full
	a = NewTopKFilter[int32, float32](3)
	for _, e := range []Elem[int32, float32]{{10, 2}, {20, 8}, {30, 1}, {40, 2}, {50, 5}, {12, 10}, {67, 7}, {32, 9}} {
		a.Push(e.Value, e.Weight)
	}
	assert.Equal(t, 3, a.Len())
	values, weights = a.PopAll()
	assert.Equal(t, []int32{12, 32, 20}, values)
	assert.Equal(t, []float32{10, 9, 8}, weights)

	// empty
	a = NewTopKFilter[int32, float32](0)
	a.Push(1, 1)
	values, _ = a.PopAll()
	assert.Empty(t, values)
}

func TestTopKStringFilter(t *testing.T) {
	a := NewTopKFilter[string, float64](2)
	a.Push("10", 2)
	a.Push("20", 8)
	a.Push("30", 1)
	values, weights := a.PopAll()
	assert.Equal(t, []string{"20", "10"}, values)
	assert.Equal(t, []float64{8, 2}, weights)
}
