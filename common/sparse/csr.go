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
	"cmp"
	"slices"
	"sort"

	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/lightgcn/base"
	"github.com/juju/errors"
)

// Entry is a coordinate of a sparse matrix and its value.
type Entry struct {
	Row   int32
	Col   int32
	Value float32
}

// CSR is an immutable sparse matrix in compressed sparse row format.
type CSR struct {
	rows    int
	cols    int
	indptr  []int32
	indices []int32
	values  []float32
}

// NewCSR creates a rows x cols matrix from coordinate entries. Values of
// duplicated coordinates are summed.
func NewCSR(rows, cols int, entries []Entry) (*CSR, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	for _, e := range sorted {
		if e.Row < 0 || int(e.Row) >= rows || e.Col < 0 || int(e.Col) >= cols {
			return nil, errors.NotValidf("entry (%d, %d) of %dx%d matrix", e.Row, e.Col, rows, cols)
		}
	}
	slices.SortFunc(sorted, func(a, b Entry) int {
		if c := cmp.Compare(a.Row, b.Row); c != 0 {
			return c
		}
		return cmp.Compare(a.Col, b.Col)
	})
	m := &CSR{
		rows:    rows,
		cols:    cols,
		indptr:  make([]int32, rows+1),
		indices: make([]int32, 0, len(sorted)),
		values:  make([]float32, 0, len(sorted)),
	}
	for i, e := range sorted {
		if i > 0 && sorted[i-1].Row == e.Row && sorted[i-1].Col == e.Col {
			m.values[len(m.values)-1] += e.Value
			continue
		}
		m.indices = append(m.indices, e.Col)
		m.values = append(m.values, e.Value)
		m.indptr[e.Row+1]++
	}
	for i := 0; i < rows; i++ {
		m.indptr[i+1] += m.indptr[i]
	}
	return m, nil
}

// Diagonal creates a square matrix with values on its diagonal.
func Diagonal(values []float32) *CSR {
	n := len(values)
	m := &CSR{
		rows:    n,
		cols:    n,
		indptr:  make([]int32, n+1),
		indices: make([]int32, n),
		values:  make([]float32, n),
	}
	for i := 0; i < n; i++ {
		m.indptr[i+1] = int32(i + 1)
		m.indices[i] = int32(i)
		m.values[i] = values[i]
	}
	return m
}

// Shape returns the number of rows and columns.
func (m *CSR) Shape() (int, int) {
	return m.rows, m.cols
}

// NNZ returns the number of stored entries.
func (m *CSR) NNZ() int {
	return len(m.values)
}

// Sum returns the sum of all stored values.
func (m *CSR) Sum() float32 {
	var sum float32
	for _, v := range m.values {
		sum += v
	}
	return sum
}

// Row returns column indices and values of the i-th row. The returned slices must not be modified.
func (m *CSR) Row(i int) ([]int32, []float32) {
	begin, end := m.indptr[i], m.indptr[i+1]
	return m.indices[begin:end], m.values[begin:end]
}

// At returns the value at (i, j).
func (m *CSR) At(i, j int) float32 {
	indices, values := m.Row(i)
	k := sort.Search(len(indices), func(k int) bool { return indices[k] >= int32(j) })
	if k < len(indices) && indices[k] == int32(j) {
		return values[k]
	}
	return 0
}

// MulDense computes dst = A * X, where X is a row-major cols x d matrix and
// dst is a row-major rows x d matrix.
func (m *CSR) MulDense(x []float32, d int, dst []float32) {
	if len(x) != m.cols*d || len(dst) != m.rows*d {
		panic("sparse: matrix sizes do not match")
	}
	for i := 0; i < m.rows; i++ {
		row := dst[i*d : (i+1)*d]
		for k := range row {
			row[k] = 0
		}
		for p := m.indptr[i]; p < m.indptr[i+1]; p++ {
			j, v := int(m.indices[p]), m.values[p]
			src := x[j*d : (j+1)*d]
			for k := range row {
				row[k] += v * src[k]
			}
		}
	}
}

// MulDenseTransposeAdd computes dx += A^T * dY, where dY is a row-major
// rows x d matrix and dx is a row-major cols x d matrix.
func (m *CSR) MulDenseTransposeAdd(dy []float32, d int, dx []float32) {
	if len(dy) != m.rows*d || len(dx) != m.cols*d {
		panic("sparse: matrix sizes do not match")
	}
	for i := 0; i < m.rows; i++ {
		src := dy[i*d : (i+1)*d]
		for p := m.indptr[i]; p < m.indptr[i+1]; p++ {
			j, v := int(m.indices[p]), m.values[p]
			row := dx[j*d : (j+1)*d]
			for k := range row {
				row[k] += v * src[k]
			}
		}
	}
}

// SliceRows returns rows in [begin, end) as a new matrix. Storage is shared
// with the receiver.
func (m *CSR) SliceRows(begin, end int) *CSR {
	if begin < 0 || end > m.rows || begin > end {
		panic("sparse: row range out of bounds")
	}
	offset := m.indptr[begin]
	indptr := make([]int32, end-begin+1)
	for i := range indptr {
		indptr[i] = m.indptr[begin+i] - offset
	}
	return &CSR{
		rows:    end - begin,
		cols:    m.cols,
		indptr:  indptr,
		indices: m.indices[offset:m.indptr[end]],
		values:  m.values[offset:m.indptr[end]],
	}
}

// Dropout returns a new matrix that keeps every stored entry independently
// with probability keepProb. Kept values are scaled by 1/keepProb so that the
// expected matrix is unchanged. The receiver is not modified.
func (m *CSR) Dropout(keepProb float32, rng base.RandomGenerator) *CSR {
	if keepProb <= 0 || keepProb > 1 {
		panic("sparse: keep probability must be in (0, 1]")
	}
	kept := bitset.New(uint(len(m.values)))
	for p := range m.values {
		// keep if floor(u + keepProb) == 1
		if rng.Float32()+keepProb >= 1 {
			kept.Set(uint(p))
		}
	}
	dropped := &CSR{
		rows:    m.rows,
		cols:    m.cols,
		indptr:  make([]int32, m.rows+1),
		indices: make([]int32, 0, kept.Count()),
		values:  make([]float32, 0, kept.Count()),
	}
	for i := 0; i < m.rows; i++ {
		for p := m.indptr[i]; p < m.indptr[i+1]; p++ {
			if kept.Test(uint(p)) {
				dropped.indices = append(dropped.indices, m.indices[p])
				dropped.values = append(dropped.values, m.values[p]/keepProb)
			}
		}
		dropped.indptr[i+1] = int32(len(dropped.values))
	}
	return dropped
}
