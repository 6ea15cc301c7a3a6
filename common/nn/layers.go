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
	"github.com/gorse-io/lightgcn/base"
	"github.com/juju/errors"
)

// EmbeddingLayer is a lookup table of n vectors of size dim.
type EmbeddingLayer struct {
	W *Tensor
}

// NewEmbedding creates an embedding table initialized from N(mean, std²).
func NewEmbedding(n, dim int, mean, std float32, rng base.RandomGenerator) *EmbeddingLayer {
	return &EmbeddingLayer{
		W: Normal(mean, std, rng, n, dim),
	}
}

// Forward gathers rows of the table.
func (e *EmbeddingLayer) Forward(indices []int32) *Tensor {
	return Embedding(e.W, indices)
}

// Weight returns the whole table as a tensor tracked by autograd.
func (e *EmbeddingLayer) Weight() *Tensor {
	return e.W
}

// Set overwrites the table with a matrix of the same shape.
func (e *EmbeddingLayer) Set(m [][]float32) error {
	if len(m) != e.W.shape[0] {
		return errors.NotValidf("embedding with %d rows, expected %d", len(m), e.W.shape[0])
	}
	for i := range m {
		if len(m[i]) != e.W.shape[1] {
			return errors.NotValidf("embedding row of size %d, expected %d", len(m[i]), e.W.shape[1])
		}
	}
	copy(e.W.data, FromMatrix(m).data)
	return nil
}

func (e *EmbeddingLayer) Parameters() []*Tensor {
	return []*Tensor{e.W}
}
