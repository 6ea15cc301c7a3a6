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
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/lightgcn/base"
)

type Tensor struct {
	data  []float32
	shape []int
	grad  *Tensor
	op    op
}

func NewTensor(data []float32, shape ...int) *Tensor {
	if size(shape) != len(data) {
		panic(fmt.Sprintf("nn: %d elements do not fit shape %v", len(data), shape))
	}
	return &Tensor{
		data:  data,
		shape: shape,
	}
}

func NewScalar(data float32) *Tensor {
	return &Tensor{
		data:  []float32{data},
		shape: []int{},
	}
}

// FromMatrix copies a matrix into a 2D tensor.
func FromMatrix(m [][]float32) *Tensor {
	if len(m) == 0 {
		return Zeros(0, 0)
	}
	cols := len(m[0])
	data := make([]float32, 0, len(m)*cols)
	for i := range m {
		if len(m[i]) != cols {
			panic("nn: rows of matrix have different lengths")
		}
		data = append(data, m[i]...)
	}
	return NewTensor(data, len(m), cols)
}

// Ones creates a tensor filled with ones.
func Ones(shape ...int) *Tensor {
	data := make([]float32, size(shape))
	for i := range data {
		data[i] = 1
	}
	return &Tensor{
		data:  data,
		shape: shape,
	}
}

// Zeros creates a tensor filled with zeros.
func Zeros(shape ...int) *Tensor {
	return &Tensor{
		data:  make([]float32, size(shape)),
		shape: shape,
	}
}

// Normal creates a tensor filled with normal random floats.
func Normal(mean, std float32, rng base.RandomGenerator, shape ...int) *Tensor {
	return &Tensor{
		data:  rng.NewNormalVector(size(shape), mean, std),
		shape: shape,
	}
}

func size(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// NoGrad detaches a tensor from the graph that created it.
func (t *Tensor) NoGrad() *Tensor {
	if t.op != nil {
		t.op = nil
	}
	return t
}

// Data returns the underlying row-major storage.
func (t *Tensor) Data() []float32 {
	return t.data
}

func (t *Tensor) Shape() []int {
	return t.shape
}

// Value returns the only element of a scalar tensor.
func (t *Tensor) Value() float32 {
	if len(t.data) != 1 {
		panic("nn: tensor is not a scalar")
	}
	return t.data[0]
}

// Row returns the i-th row of a 2D tensor. The row shares storage with the tensor.
func (t *Tensor) Row(i int) []float32 {
	if len(t.shape) != 2 {
		panic("nn: tensor is not a matrix")
	}
	return t.data[i*t.shape[1] : (i+1)*t.shape[1]]
}

// Matrix copies a 2D tensor into a matrix.
func (t *Tensor) Matrix() [][]float32 {
	if len(t.shape) != 2 {
		panic("nn: tensor is not a matrix")
	}
	m := make([][]float32, t.shape[0])
	for i := range m {
		m[i] = make([]float32, t.shape[1])
		copy(m[i], t.Row(i))
	}
	return m
}

func (t *Tensor) String() string {
	// Print scalar value
	if len(t.shape) == 0 {
		return fmt.Sprint(t.data[0])
	}

	builder := strings.Builder{}
	builder.WriteString("[")
	if len(t.data) <= 10 {
		for i := 0; i < len(t.data); i++ {
			builder.WriteString(fmt.Sprint(t.data[i]))
			if i != len(t.data)-1 {
				builder.WriteString(", ")
			}
		}
	} else {
		for i := 0; i < 5; i++ {
			builder.WriteString(fmt.Sprint(t.data[i]))
			builder.WriteString(", ")
		}
		builder.WriteString("..., ")
		for i := len(t.data) - 5; i < len(t.data); i++ {
			builder.WriteString(fmt.Sprint(t.data[i]))
			if i != len(t.data)-1 {
				builder.WriteString(", ")
			}
		}
	}
	builder.WriteString("]")
	return builder.String()
}

// Backward computes gradients of the tensor with respect to every tensor in
// the graph that created it. Gradients of leaf tensors are accumulated until
// they are reset by an optimizer.
func (t *Tensor) Backward() {
	// sort the graph in topological order
	var order []*Tensor
	visited := mapset.NewThreadUnsafeSet[*Tensor]()
	var visit func(x *Tensor)
	visit = func(x *Tensor) {
		if visited.Contains(x) {
			return
		}
		visited.Add(x)
		if x.op != nil {
			inputs, _ := x.op.inputsAndOutput()
			for _, input := range inputs {
				visit(input)
			}
			// gradients of intermediate tensors are never reused
			x.grad = nil
		}
		order = append(order, x)
	}
	visit(t)

	t.grad = Ones(t.shape...)
	for i := len(order) - 1; i >= 0; i-- {
		y := order[i]
		if y.op == nil || y.grad == nil {
			continue
		}
		inputs, _ := y.op.inputsAndOutput()
		grads := y.op.backward(y.grad)
		for j := range grads {
			if inputs[j].grad == nil {
				inputs[j].grad = grads[j]
			} else {
				inputs[j].grad.add(grads[j])
			}
		}
	}
}

func (t *Tensor) Grad() *Tensor {
	return t.grad
}

func (t *Tensor) clone() *Tensor {
	newData := make([]float32, len(t.data))
	copy(newData, t.data)
	return &Tensor{
		data:  newData,
		shape: t.shape,
	}
}

func (t *Tensor) add(other *Tensor) *Tensor {
	wSize := size(other.shape)
	for i := range t.data {
		t.data[i] += other.data[i%wSize]
	}
	return t
}

func (t *Tensor) sub(other *Tensor) *Tensor {
	wSize := size(other.shape)
	for i := range t.data {
		t.data[i] -= other.data[i%wSize]
	}
	return t
}

func (t *Tensor) mul(other *Tensor) *Tensor {
	wSize := size(other.shape)
	for i := range t.data {
		t.data[i] *= other.data[i%wSize]
	}
	return t
}

func (t *Tensor) neg() *Tensor {
	for i := range t.data {
		t.data[i] = -t.data[i]
	}
	return t
}

func (t *Tensor) sum() float32 {
	sum := float32(0)
	for i := range t.data {
		sum += t.data[i]
	}
	return sum
}
