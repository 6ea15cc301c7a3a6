// Copyright 2025 gorse Project Authors
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

package sparse

import (
	"github.com/gorse-io/lightgcn/base"
	"github.com/gorse-io/lightgcn/common/parallel"
	"github.com/samber/lo"
)

// Matrix is a sparse matrix partitioned by rows into one or more folds.
// Products computed on folds are identical to products on the whole matrix.
type Matrix struct {
	rows    int
	cols    int
	folds   []*CSR
	offsets []int
}

// Whole wraps a CSR matrix as a single fold.
func Whole(m *CSR) *Matrix {
	return &Matrix{
		rows:    m.rows,
		cols:    m.cols,
		folds:   []*CSR{m},
		offsets: []int{0},
	}
}

// Split partitions a CSR matrix into at most nFolds folds of contiguous rows.
func Split(m *CSR, nFolds int) *Matrix {
	if nFolds <= 1 {
		return Whole(m)
	}
	chunks := parallel.Split(lo.Range(m.rows), nFolds)
	if len(chunks) <= 1 {
		return Whole(m)
	}
	s := &Matrix{rows: m.rows, cols: m.cols}
	for _, chunk := range chunks {
		begin, end := chunk[0], chunk[len(chunk)-1]+1
		s.folds = append(s.folds, m.SliceRows(begin, end))
		s.offsets = append(s.offsets, begin)
	}
	return s
}

// Merge concatenates folds into a single CSR matrix.
func (m *Matrix) Merge() *CSR {
	if len(m.folds) == 1 {
		return m.folds[0]
	}
	merged := &CSR{
		rows:    m.rows,
		cols:    m.cols,
		indptr:  make([]int32, 1, m.rows+1),
		indices: make([]int32, 0, m.NNZ()),
		values:  make([]float32, 0, m.NNZ()),
	}
	for _, f := range m.folds {
		offset := int32(len(merged.values))
		for _, p := range f.indptr[1:] {
			merged.indptr = append(merged.indptr, p+offset)
		}
		merged.indices = append(merged.indices, f.indices...)
		merged.values = append(merged.values, f.values...)
	}
	return merged
}

// Resplit partitions the matrix into nFolds folds again.
func (m *Matrix) Resplit(nFolds int) *Matrix {
	return Split(m.Merge(), nFolds)
}

// Shape returns the number of rows and columns.
func (m *Matrix) Shape() (int, int) {
	return m.rows, m.cols
}

// Folds returns the folds of the matrix.
func (m *Matrix) Folds() []*CSR {
	return m.folds
}

// NNZ returns the number of stored entries.
func (m *Matrix) NNZ() int {
	return lo.SumBy(m.folds, func(f *CSR) int { return f.NNZ() })
}

// Sum returns the sum of all stored values.
func (m *Matrix) Sum() float32 {
	return lo.SumBy(m.folds, func(f *CSR) float32 { return f.Sum() })
}

// At returns the value at (i, j).
func (m *Matrix) At(i, j int) float32 {
	for k := len(m.offsets) - 1; k >= 0; k-- {
		if i >= m.offsets[k] {
			return m.folds[k].At(i-m.offsets[k], j)
		}
	}
	return 0
}

// Dropout applies edge dropout to every fold. See CSR.Dropout.
func (m *Matrix) Dropout(keepProb float32, rng base.RandomGenerator) *Matrix {
	dropped := &Matrix{
		rows:    m.rows,
		cols:    m.cols,
		folds:   make([]*CSR, len(m.folds)),
		offsets: m.offsets,
	}
	for i, f := range m.folds {
		dropped.folds[i] = f.Dropout(keepProb, rng)
	}
	return dropped
}

// MulDense computes dst = A * X. Folds are multiplied on up to nJobs goroutines
// and each fold writes its own rows of dst.
func (m *Matrix) MulDense(x []float32, d int, dst []float32, nJobs int) {
	if len(x) != m.cols*d || len(dst) != m.rows*d {
		panic("sparse: matrix sizes do not match")
	}
	parallel.For(len(m.folds), nJobs, func(i int) {
		f := m.folds[i]
		begin := m.offsets[i] * d
		f.MulDense(x, d, dst[begin:begin+f.rows*d])
	})
}

// MulDenseTransposeAdd computes dx += A^T * dY.
func (m *Matrix) MulDenseTransposeAdd(dy []float32, d int, dx []float32) {
	if len(dy) != m.rows*d || len(dx) != m.cols*d {
		panic("sparse: matrix sizes do not match")
	}
	for i, f := range m.folds {
		begin := m.offsets[i] * d
		f.MulDenseTransposeAdd(dy[begin:begin+f.rows*d], d, dx)
	}
}
