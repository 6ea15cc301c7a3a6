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

package dataset

import (
	"slices"

	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/lightgcn/base"
	"github.com/gorse-io/lightgcn/base/log"
	"github.com/gorse-io/lightgcn/common/sparse"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// InteractionGraph is an in-memory user-item graph built from indexed
// interactions. Users may be linked to users and items to items.
type InteractionGraph struct {
	userItems []mapset.Set[int32]
	itemUsers []mapset.Set[int32]
	userLinks []mapset.Set[int32]
	itemLinks []mapset.Set[int32]
	userDict  *FreqDict
	itemDict  *FreqDict
	graph     *Graph
}

// NewInteractionGraph creates an empty graph of nUsers users and nItems items.
func NewInteractionGraph(nUsers, nItems int) *InteractionGraph {
	g := &InteractionGraph{
		userDict: NewFreqDict(),
		itemDict: NewFreqDict(),
	}
	g.growUsers(nUsers)
	g.growItems(nItems)
	return g
}

func newSets(n int) []mapset.Set[int32] {
	sets := make([]mapset.Set[int32], n)
	for i := range sets {
		sets[i] = mapset.NewThreadUnsafeSet[int32]()
	}
	return sets
}

func (g *InteractionGraph) growUsers(n int) {
	if n > len(g.userItems) {
		g.userItems = append(g.userItems, newSets(n-len(g.userItems))...)
		g.userLinks = append(g.userLinks, newSets(n-len(g.userLinks))...)
	}
}

func (g *InteractionGraph) growItems(n int) {
	if n > len(g.itemUsers) {
		g.itemUsers = append(g.itemUsers, newSets(n-len(g.itemUsers))...)
		g.itemLinks = append(g.itemLinks, newSets(n-len(g.itemLinks))...)
	}
}

func (g *InteractionGraph) CountUsers() int {
	return len(g.userItems)
}

func (g *InteractionGraph) CountItems() int {
	return len(g.itemUsers)
}

// UserDict returns names of users added by AddNamedInteraction.
func (g *InteractionGraph) UserDict() *FreqDict {
	return g.userDict
}

// ItemDict returns names of items added by AddNamedInteraction.
func (g *InteractionGraph) ItemDict() *FreqDict {
	return g.itemDict
}

// AddInteraction adds an edge between user u and item i. Duplicated edges are ignored.
func (g *InteractionGraph) AddInteraction(u, i int32) error {
	if u < 0 || int(u) >= g.CountUsers() {
		return errors.NotValidf("user %d", u)
	}
	if i < 0 || int(i) >= g.CountItems() {
		return errors.NotValidf("item %d", i)
	}
	if g.userItems[u].Add(i) {
		g.itemUsers[i].Add(u)
		g.graph = nil
	}
	return nil
}

// AddNamedInteraction adds an edge between named user and item. Unknown names
// are appended after existing users and items.
func (g *InteractionGraph) AddNamedInteraction(userId, itemId string) {
	u, i := g.userDict.Id(userId), g.itemDict.Id(itemId)
	g.growUsers(u + 1)
	g.growItems(i + 1)
	// indices are in range after growing
	_ = g.AddInteraction(int32(u), int32(i))
}

// AddUserLink adds an undirected edge between two users. Self links are ignored.
func (g *InteractionGraph) AddUserLink(u, v int32) error {
	if u < 0 || int(u) >= g.CountUsers() {
		return errors.NotValidf("user %d", u)
	}
	if v < 0 || int(v) >= g.CountUsers() {
		return errors.NotValidf("user %d", v)
	}
	if u != v && g.userLinks[u].Add(v) {
		g.userLinks[v].Add(u)
		g.graph = nil
	}
	return nil
}

// AddItemLink adds an undirected edge between two items. Self links are ignored.
func (g *InteractionGraph) AddItemLink(i, j int32) error {
	if i < 0 || int(i) >= g.CountItems() {
		return errors.NotValidf("item %d", i)
	}
	if j < 0 || int(j) >= g.CountItems() {
		return errors.NotValidf("item %d", j)
	}
	if i != j && g.itemLinks[i].Add(j) {
		g.itemLinks[j].Add(i)
		g.graph = nil
	}
	return nil
}

// UserItems returns items interacted by user u. The set must not be modified.
func (g *InteractionGraph) UserItems(u int32) mapset.Set[int32] {
	return g.userItems[u]
}

// SampleTriplets draws n users uniformly and samples a positive item and a
// negative item for each of them. Users without positive or negative items are
// skipped, so fewer than n triplets may be returned.
func (g *InteractionGraph) SampleTriplets(n int, rng base.RandomGenerator) (users, pos, neg []int32) {
	nUsers, nItems := g.CountUsers(), g.CountItems()
	if nUsers == 0 {
		return
	}
	for k := 0; k < n; k++ {
		u := rng.Int31n(int32(nUsers))
		items := g.userItems[u]
		if items.Cardinality() == 0 || items.Cardinality() == nItems {
			continue
		}
		positives := items.ToSlice()
		slices.Sort(positives)
		users = append(users, u)
		pos = append(pos, positives[rng.Intn(len(positives))])
		neg = append(neg, rng.SampleInt32(0, int32(nItems), 1, items)[0])
	}
	return
}

// UserDegree returns the number of items and users linked to user u.
func (g *InteractionGraph) UserDegree(u int32) int {
	return g.userItems[u].Cardinality() + g.userLinks[u].Cardinality()
}

// ItemDegree returns the number of users and items linked to item i.
func (g *InteractionGraph) ItemDegree(i int32) int {
	return g.itemUsers[i].Cardinality() + g.itemLinks[i].Cardinality()
}

// SparseGraph returns the normalized adjacency submatrices. With self
// connections, the degree of a node x is d(x) = deg(x) + 1 and
//
//	Item[u,i] = User[i,u] = 1/sqrt(d(u)d(i))
//	UU[u,v] = 1/sqrt(d(u)d(v))
//	VV[i,j] = 1/sqrt(d(i)d(j))
//	DU[u,u] = 1/d(u)
//	DV[i,i] = 1/d(i)
//
// The graph is built on first use and rebuilt after edges are added.
func (g *InteractionGraph) SparseGraph() *Graph {
	if g.graph != nil {
		return g.graph
	}
	nUsers, nItems := g.CountUsers(), g.CountItems()
	userDegrees := make([]float32, nUsers)
	for u := range userDegrees {
		userDegrees[u] = float32(g.UserDegree(int32(u)) + 1)
	}
	itemDegrees := make([]float32, nItems)
	for i := range itemDegrees {
		itemDegrees[i] = float32(g.ItemDegree(int32(i)) + 1)
	}

	var userEntries, itemEntries, uuEntries, vvEntries []sparse.Entry
	for u, items := range g.userItems {
		for i := range items.Iter() {
			w := 1 / math32.Sqrt(userDegrees[u]*itemDegrees[i])
			itemEntries = append(itemEntries, sparse.Entry{Row: int32(u), Col: i, Value: w})
			userEntries = append(userEntries, sparse.Entry{Row: i, Col: int32(u), Value: w})
		}
	}
	for u, users := range g.userLinks {
		for v := range users.Iter() {
			uuEntries = append(uuEntries, sparse.Entry{Row: int32(u), Col: v, Value: 1 / math32.Sqrt(userDegrees[u]*userDegrees[v])})
		}
	}
	for i, items := range g.itemLinks {
		for j := range items.Iter() {
			vvEntries = append(vvEntries, sparse.Entry{Row: int32(i), Col: j, Value: 1 / math32.Sqrt(itemDegrees[i]*itemDegrees[j])})
		}
	}
	for u := range userDegrees {
		userDegrees[u] = 1 / userDegrees[u]
	}
	for i := range itemDegrees {
		itemDegrees[i] = 1 / itemDegrees[i]
	}

	g.graph = &Graph{
		User: sparse.Whole(mustCSR(nItems, nUsers, userEntries)),
		Item: sparse.Whole(mustCSR(nUsers, nItems, itemEntries)),
		UU:   sparse.Whole(mustCSR(nUsers, nUsers, uuEntries)),
		VV:   sparse.Whole(mustCSR(nItems, nItems, vvEntries)),
		DU:   sparse.Whole(sparse.Diagonal(userDegrees)),
		DV:   sparse.Whole(sparse.Diagonal(itemDegrees)),
	}
	log.Logger().Debug("build sparse graph",
		zap.Int("n_users", nUsers),
		zap.Int("n_items", nItems),
		zap.Int("n_interactions", len(itemEntries)),
		zap.Int("n_user_links", len(uuEntries)),
		zap.Int("n_item_links", len(vvEntries)))
	return g.graph
}

// mustCSR builds a matrix from entries that are in range by construction.
func mustCSR(rows, cols int, entries []sparse.Entry) *sparse.CSR {
	m, err := sparse.NewCSR(rows, cols, entries)
	if err != nil {
		panic(err)
	}
	return m
}
