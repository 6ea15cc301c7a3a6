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
	"github.com/gorse-io/lightgcn/base"
	"github.com/gorse-io/lightgcn/common/sparse"
	"github.com/juju/errors"
)

// Dataset supplies the interaction graph consumed by graph models.
type Dataset interface {
	CountUsers() int
	CountItems() int
	SparseGraph() *Graph
}

// Named is implemented by datasets that keep external identifiers of users
// and items.
type Named interface {
	UserDict() *FreqDict
	ItemDict() *FreqDict
}

// Graph holds the normalized adjacency submatrices of a user-item graph.
//
//	User: items x users
//	Item: users x items
//	UU:   users x users
//	VV:   items x items
//	DU:   users x users, diagonal
//	DV:   items x items, diagonal
type Graph struct {
	User *sparse.Matrix
	Item *sparse.Matrix
	UU   *sparse.Matrix
	VV   *sparse.Matrix
	DU   *sparse.Matrix
	DV   *sparse.Matrix
}

func (g *Graph) matrices() []*sparse.Matrix {
	return []*sparse.Matrix{g.User, g.Item, g.UU, g.VV, g.DU, g.DV}
}

// Split returns a copy of the graph whose submatrices are partitioned into
// nFolds row folds.
func (g *Graph) Split(nFolds int) *Graph {
	return &Graph{
		User: g.User.Resplit(nFolds),
		Item: g.Item.Resplit(nFolds),
		UU:   g.UU.Resplit(nFolds),
		VV:   g.VV.Resplit(nFolds),
		DU:   g.DU.Resplit(nFolds),
		DV:   g.DV.Resplit(nFolds),
	}
}

// Dropout returns a copy of the graph with edge dropout applied to every
// submatrix. The receiver is not modified.
func (g *Graph) Dropout(keepProb float32, rng base.RandomGenerator) *Graph {
	return &Graph{
		User: g.User.Dropout(keepProb, rng),
		Item: g.Item.Dropout(keepProb, rng),
		UU:   g.UU.Dropout(keepProb, rng),
		VV:   g.VV.Dropout(keepProb, rng),
		DU:   g.DU.Dropout(keepProb, rng),
		DV:   g.DV.Dropout(keepProb, rng),
	}
}

// NNZ returns the number of edges in all submatrices.
func (g *Graph) NNZ() int {
	var n int
	for _, m := range g.matrices() {
		n += m.NNZ()
	}
	return n
}

// Validate checks that submatrices fit nUsers users and nItems items.
func (g *Graph) Validate(nUsers, nItems int) error {
	expected := []struct {
		name       string
		rows, cols int
	}{
		{"user", nItems, nUsers},
		{"item", nUsers, nItems},
		{"uu", nUsers, nUsers},
		{"vv", nItems, nItems},
		{"du", nUsers, nUsers},
		{"dv", nItems, nItems},
	}
	for i, m := range g.matrices() {
		if m == nil {
			return errors.NotFoundf("%s graph", expected[i].name)
		}
		rows, cols := m.Shape()
		if rows != expected[i].rows || cols != expected[i].cols {
			return errors.NotValidf("%s graph of shape %dx%d, expected %dx%d",
				expected[i].name, rows, cols, expected[i].rows, expected[i].cols)
		}
	}
	return nil
}
