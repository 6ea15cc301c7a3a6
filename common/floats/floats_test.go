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

package floats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdd(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	b := []float32{5, 6, 7, 8}
	Add(a, b)
	assert.Equal(t, []float32{6, 8, 10, 12}, a)
	assert.Panics(t, func() { Add([]float32{1}, nil) })
}

func TestAddTo(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	b := []float32{5, 6, 7, 8}
	c := make([]float32, 4)
	AddTo(a, b, c)
	assert.Equal(t, []float32{6, 8, 10, 12}, c)
	assert.Panics(t, func() { AddTo([]float32{1}, nil, nil) })
}

func TestMulConst(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	MulConst(a, 2)
	assert.Equal(t, []float32{2, 4, 6, 8}, a)
	b := []float32{1, 2, 3, 4}
	MulConstAdd(a, 2, b)
	assert.Equal(t, []float32{5, 10, 15, 20}, b)
}

func TestDot(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	b := []float32{5, 6, 7, 8}
	assert.Equal(t, float32(70), Dot(a, b))
	assert.Equal(t, float32(30), Norm(a))
	assert.Equal(t, float32(10), Sum(a))
	assert.Panics(t, func() { Dot([]float32{1}, nil) })
}

func TestMM(t *testing.T) {
	// A: 2x3, B: 3x2
	a := []float32{1, 2, 3, 4, 5, 6}
	b := []float32{7, 8, 9, 10, 11, 12}
	c := make([]float32, 4)
	MM(false, false, 2, 2, 3, a, 3, b, 2, c, 2)
	assert.Equal(t, []float32{58, 64, 139, 154}, c)

	// A * A^T: 2x2
	c = make([]float32, 4)
	MM(false, true, 2, 2, 3, a, 3, a, 3, c, 2)
	assert.Equal(t, []float32{14, 32, 32, 77}, c)

	// A^T * A: 3x3
	c = make([]float32, 9)
	MM(true, false, 3, 3, 2, a, 3, a, 3, c, 3)
	assert.Equal(t, []float32{17, 22, 27, 22, 29, 36, 27, 36, 45}, c)

	// A^T * B^T: (3x2) * (2x3)
	c = make([]float32, 9)
	MM(true, true, 3, 3, 2, a, 3, b, 2, c, 3)
	assert.Equal(t, []float32{39, 49, 59, 54, 68, 82, 69, 87, 105}, c)

	// accumulate
	c = []float32{1, 1, 1, 1}
	MM(false, false, 2, 2, 3, a, 3, b, 2, c, 2)
	assert.Equal(t, []float32{59, 65, 140, 155}, c)
}
