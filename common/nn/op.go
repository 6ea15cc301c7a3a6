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

	"github.com/chewxy/math32"
	"github.com/gorse-io/lightgcn/common/floats"
	"github.com/gorse-io/lightgcn/common/sparse"
)

type op interface {
	String() string
	forward(inputs ...*Tensor) *Tensor
	backward(dy *Tensor) []*Tensor
	inputsAndOutput() ([]*Tensor, *Tensor)
	setInputs(inputs ...*Tensor)
	setOutput(y *Tensor)
}

type baseOp struct {
	inputs []*Tensor
	output *Tensor
}

func (b *baseOp) inputsAndOutput() ([]*Tensor, *Tensor) {
	return b.inputs, b.output
}

func (b *baseOp) setInputs(inputs ...*Tensor) {
	b.inputs = inputs
}

func (b *baseOp) setOutput(y *Tensor) {
	b.output = y
}

func apply[T op](f T, inputs ...*Tensor) *Tensor {
	y := f.forward(inputs...)
	f.setInputs(inputs...)
	f.setOutput(y)
	y.op = f
	return y
}

// reduce sums a gradient of a broadcast result back to the shape of the operand.
func reduce(dy *Tensor, shape []int) *Tensor {
	gx := Zeros(shape...)
	wSize := size(shape)
	for i := range dy.data {
		gx.data[i%wSize] += dy.data[i]
	}
	return gx
}

type add struct {
	baseOp
}

func (a *add) String() string {
	return "Add"
}

func (a *add) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.add(inputs[1])
	return y
}

func (a *add) backward(dy *Tensor) []*Tensor {
	return []*Tensor{dy.clone(), reduce(dy, a.inputs[1].shape)}
}

type sub struct {
	baseOp
	swapped bool
}

func (s *sub) String() string {
	return "Sub"
}

func (s *sub) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.sub(inputs[1])
	if s.swapped {
		y.neg()
	}
	return y
}

func (s *sub) backward(dy *Tensor) []*Tensor {
	gx0 := dy.clone()
	gx1 := reduce(dy, s.inputs[1].shape).neg()
	if s.swapped {
		gx0.neg()
		gx1.neg()
	}
	return []*Tensor{gx0, gx1}
}

type mul struct {
	baseOp
}

func (m *mul) String() string {
	return "Mul"
}

func (m *mul) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.mul(inputs[1])
	return y
}

func (m *mul) backward(dy *Tensor) []*Tensor {
	gx0 := dy.clone()
	gx0.mul(m.inputs[1])
	gx1 := Zeros(m.inputs[1].shape...)
	wSize := size(gx1.shape)
	for i := range dy.data {
		gx1.data[i%wSize] += dy.data[i] * m.inputs[0].data[i]
	}
	return []*Tensor{gx0, gx1}
}

type square struct {
	baseOp
}

func (s *square) String() string {
	return "Square"
}

func (s *square) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.mul(inputs[0])
	return y
}

func (s *square) backward(dy *Tensor) []*Tensor {
	dx := s.inputs[0].clone()
	dx.mul(dy)
	for i := range dx.data {
		dx.data[i] *= 2
	}
	return []*Tensor{dx}
}

type sum struct {
	baseOp
}

func (s *sum) String() string {
	return "Sum"
}

func (s *sum) forward(inputs ...*Tensor) *Tensor {
	return NewScalar(inputs[0].sum())
}

func (s *sum) backward(dy *Tensor) []*Tensor {
	dx := Ones(s.inputs[0].shape...)
	dx.mul(dy)
	return []*Tensor{dx}
}

type mean struct {
	baseOp
}

func (m *mean) String() string {
	return "Mean"
}

func (m *mean) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	return NewScalar(x.sum() / float32(len(x.data)))
}

func (m *mean) backward(dy *Tensor) []*Tensor {
	dx := Zeros(m.inputs[0].shape...)
	for i := range dx.data {
		dx.data[i] = dy.data[0] / float32(len(dx.data))
	}
	return []*Tensor{dx}
}

type rowSum struct {
	baseOp
}

func (r *rowSum) String() string {
	return "RowSum"
}

func (r *rowSum) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	y := Zeros(x.shape[0])
	for i := range y.data {
		y.data[i] = floats.Sum(x.Row(i))
	}
	return y
}

func (r *rowSum) backward(dy *Tensor) []*Tensor {
	dx := Zeros(r.inputs[0].shape...)
	for i := range dy.data {
		row := dx.Row(i)
		for j := range row {
			row[j] = dy.data[i]
		}
	}
	return []*Tensor{dx}
}

type sigmoid struct {
	baseOp
}

func (s *sigmoid) String() string {
	return "Sigmoid"
}

func (s *sigmoid) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	for i := range y.data {
		y.data[i] = sigmoidScalar(y.data[i])
	}
	return y
}

func (s *sigmoid) backward(dy *Tensor) []*Tensor {
	// dx = dy * y * (1 - y)
	dx := dy.clone()
	for i := range dx.data {
		dx.data[i] *= s.output.data[i] * (1 - s.output.data[i])
	}
	return []*Tensor{dx}
}

func sigmoidScalar(x float32) float32 {
	if x >= 0 {
		return 1 / (1 + math32.Exp(-x))
	}
	z := math32.Exp(x)
	return z / (1 + z)
}

type softplus struct {
	baseOp
}

func (s *softplus) String() string {
	return "Softplus"
}

func (s *softplus) forward(inputs ...*Tensor) *Tensor {
	// y = max(x, 0) + log(1 + exp(-|x|))
	y := inputs[0].clone()
	for i, x := range y.data {
		y.data[i] = math32.Max(x, 0) + math32.Log1p(math32.Exp(-math32.Abs(x)))
	}
	return y
}

func (s *softplus) backward(dy *Tensor) []*Tensor {
	// dx = dy * sigmoid(x)
	dx := dy.clone()
	for i := range dx.data {
		dx.data[i] *= sigmoidScalar(s.inputs[0].data[i])
	}
	return []*Tensor{dx}
}

type matMul struct {
	baseOp
	transA bool
	transB bool
}

func (m *matMul) String() string {
	return "MatMul"
}

func (m *matMul) forward(inputs ...*Tensor) *Tensor {
	return inputs[0].matMul(inputs[1], m.transA, m.transB)
}

func (m *matMul) backward(dy *Tensor) []*Tensor {
	a, b := m.inputs[0], m.inputs[1]
	var da, db *Tensor
	switch {
	case !m.transA && !m.transB:
		da = dy.matMul(b, false, true)
		db = a.matMul(dy, true, false)
	case !m.transA && m.transB:
		da = dy.matMul(b, false, false)
		db = dy.matMul(a, true, false)
	case m.transA && !m.transB:
		da = b.matMul(dy, false, true)
		db = a.matMul(dy, false, false)
	default:
		da = b.matMul(dy, true, true)
		db = dy.matMul(a, true, true)
	}
	return []*Tensor{da, db}
}

func (t *Tensor) matMul(other *Tensor, transA, transB bool) *Tensor {
	if len(t.shape) != 2 || len(other.shape) != 2 {
		panic("nn: matMul requires matrices")
	}
	m, k := t.shape[0], t.shape[1]
	if transA {
		m, k = k, m
	}
	k2, n := other.shape[0], other.shape[1]
	if transB {
		k2, n = n, k2
	}
	if k != k2 {
		panic(fmt.Sprintf("nn: matMul shapes %v and %v do not match", t.shape, other.shape))
	}
	y := Zeros(m, n)
	floats.MM(transA, transB, m, n, k, t.data, t.shape[1], other.data, other.shape[1], y.data, n)
	return y
}

type embedding struct {
	baseOp
	indices []int32
}

func (e *embedding) String() string {
	return "Embedding"
}

func (e *embedding) forward(inputs ...*Tensor) *Tensor {
	w := inputs[0]
	y := Zeros(len(e.indices), w.shape[1])
	for i, index := range e.indices {
		copy(y.Row(i), w.Row(int(index)))
	}
	return y
}

func (e *embedding) backward(dy *Tensor) []*Tensor {
	dw := Zeros(e.inputs[0].shape...)
	for i, index := range e.indices {
		floats.Add(dw.Row(int(index)), dy.Row(i))
	}
	return []*Tensor{dw}
}

type spMM struct {
	baseOp
	a     *sparse.Matrix
	nJobs int
}

func (s *spMM) String() string {
	return "SpMM"
}

func (s *spMM) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	rows, _ := s.a.Shape()
	y := Zeros(rows, x.shape[1])
	s.a.MulDense(x.data, x.shape[1], y.data, s.nJobs)
	return y
}

func (s *spMM) backward(dy *Tensor) []*Tensor {
	dx := Zeros(s.inputs[0].shape...)
	s.a.MulDenseTransposeAdd(dy.data, dy.shape[1], dx.data)
	return []*Tensor{dx}
}

type average struct {
	baseOp
}

func (a *average) String() string {
	return "Average"
}

func (a *average) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	for _, x := range inputs[1:] {
		floats.Add(y.data, x.data)
	}
	floats.MulConst(y.data, 1/float32(len(inputs)))
	return y
}

func (a *average) backward(dy *Tensor) []*Tensor {
	dx := dy.clone()
	floats.MulConst(dx.data, 1/float32(len(a.inputs)))
	grads := make([]*Tensor, len(a.inputs))
	for i := range grads {
		grads[i] = dx.clone()
	}
	return grads
}

func checkSuffix(x0, x1 *Tensor) {
	for i := 0; i < len(x1.shape); i++ {
		if x0.shape[len(x0.shape)-len(x1.shape)+i] != x1.shape[i] {
			panic("the shape of the second tensor must be a suffix sequence of the shape of the first tensor")
		}
	}
}

// Add returns the element-wise sum of two tensors. The shape of the second tensor must be a suffix sequence of the shape of the first tensor.
func Add(x0, x1 *Tensor) *Tensor {
	if len(x0.shape) < len(x1.shape) {
		x0, x1 = x1, x0
	}
	checkSuffix(x0, x1)
	return apply(&add{}, x0, x1)
}

// Sub returns the element-wise difference of two tensors. The shape of the second tensor must be a suffix sequence of the shape of the first tensor.
func Sub(x0, x1 *Tensor) *Tensor {
	if len(x0.shape) < len(x1.shape) {
		checkSuffix(x1, x0)
		return apply(&sub{swapped: true}, x1, x0)
	}
	checkSuffix(x0, x1)
	return apply(&sub{}, x0, x1)
}

// Mul returns the element-wise product of two tensors. The shape of the second tensor must be a suffix sequence of the shape of the first tensor.
func Mul(x0, x1 *Tensor) *Tensor {
	if len(x0.shape) < len(x1.shape) {
		x0, x1 = x1, x0
	}
	checkSuffix(x0, x1)
	return apply(&mul{}, x0, x1)
}

// Square returns the element-wise square of a tensor.
func Square(x *Tensor) *Tensor {
	return apply(&square{}, x)
}

// Sum returns the sum of all elements in a tensor.
func Sum(x *Tensor) *Tensor {
	return apply(&sum{}, x)
}

// Mean returns the mean of all elements in a tensor.
func Mean(x *Tensor) *Tensor {
	return apply(&mean{}, x)
}

// RowSum sums a matrix along its second dimension.
func RowSum(x *Tensor) *Tensor {
	if len(x.shape) != 2 {
		panic("nn: RowSum requires a matrix")
	}
	return apply(&rowSum{}, x)
}

func Sigmoid(x *Tensor) *Tensor {
	return apply(&sigmoid{}, x)
}

// Softplus returns log(1 + exp(x)) element-wise.
func Softplus(x *Tensor) *Tensor {
	return apply(&softplus{}, x)
}

// MatMul returns op(a) * op(b), where op transposes a matrix if requested.
func MatMul(a, b *Tensor, transA, transB bool) *Tensor {
	return apply(&matMul{transA: transA, transB: transB}, a, b)
}

// Embedding gathers rows of w.
func Embedding(w *Tensor, indices []int32) *Tensor {
	if len(w.shape) != 2 {
		panic("nn: embedding weights must be a matrix")
	}
	for _, index := range indices {
		if index < 0 || int(index) >= w.shape[0] {
			panic(fmt.Sprintf("nn: embedding index %d out of range [0, %d)", index, w.shape[0]))
		}
	}
	return apply(&embedding{indices: indices}, w)
}

// SpMM multiplies a sparse matrix by a dense matrix. Folds of the sparse
// matrix are multiplied on up to nJobs goroutines.
func SpMM(a *sparse.Matrix, x *Tensor, nJobs int) *Tensor {
	rows, cols := a.Shape()
	if len(x.shape) != 2 || x.shape[0] != cols {
		panic(fmt.Sprintf("nn: SpMM shapes %dx%d and %v do not match", rows, cols, x.shape))
	}
	return apply(&spMM{a: a, nJobs: nJobs}, x)
}

// Average returns the element-wise mean of tensors with the same shape.
func Average(xs ...*Tensor) *Tensor {
	if len(xs) == 0 {
		panic("nn: Average requires at least one tensor")
	}
	for _, x := range xs[1:] {
		if len(x.data) != len(xs[0].data) {
			panic("nn: Average requires tensors with the same shape")
		}
	}
	return apply(&average{}, xs...)
}
