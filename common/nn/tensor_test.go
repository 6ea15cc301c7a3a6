// Copyright 2024 gorse Project Authors
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

package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTensor(t *testing.T) {
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, []int{2, 3}, x.Shape())
	assert.Equal(t, []float32{4, 5, 6}, x.Row(1))
	assert.Panics(t, func() { NewTensor([]float32{1, 2, 3}, 2, 2) })
	assert.Panics(t, func() { x.Value() })
	assert.Panics(t, func() { NewTensor([]float32{1, 2}, 2).Row(0) })
	assert.Equal(t, float32(3), NewScalar(3).Value())
}

func TestFromMatrix(t *testing.T) {
	m := [][]float32{{1, 2, 3}, {4, 5, 6}}
	x := FromMatrix(m)
	assert.Equal(t, []int{2, 3}, x.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, x.Data())

	// copied in both directions
	m[0][0] = 100
	assert.Equal(t, float32(1), x.Data()[0])
	out := x.Matrix()
	assert.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}}, out)
	out[1][1] = 100
	assert.Equal(t, float32(5), x.Data()[4])

	assert.Panics(t, func() { FromMatrix([][]float32{{1, 2}, {3}}) })
}

func TestInitializers(t *testing.T) {
	assert.Equal(t, []float32{1, 1, 1, 1}, Ones(2, 2).Data())
	assert.Equal(t, []float32{0, 0, 0}, Zeros(3).Data())

	x := Normal(1, 0.1, rng, 100, 100)
	assert.Equal(t, []int{100, 100}, x.Shape())
	assert.InDelta(t, 1, Mean(x).Value(), 0.01)
}

func TestTensor_String(t *testing.T) {
	assert.Equal(t, "3", NewScalar(3).String())
	assert.Equal(t, "[1, 2, 3]", NewTensor([]float32{1, 2, 3}, 3).String())
	assert.Equal(t, "[0, 0, 0, 0, 0, ..., 0, 0, 0, 0, 0]", Zeros(20).String())
}

func TestTensor_NoGrad(t *testing.T) {
	x := NewTensor([]float32{1, 2, 3}, 3)
	y := Square(x).NoGrad()
	z := Sum(Add(y, x))
	z.Backward()
	assert.Equal(t, []float32{1, 1, 1}, x.grad.data)
	assert.Equal(t, []float32{1, 1, 1}, y.Grad().Data())
}
