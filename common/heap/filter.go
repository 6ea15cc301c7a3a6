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
	"container/heap"

	"golang.org/x/exp/constraints"
)

type Elem[T any, W constraints.Ordered] struct {
	Value  T
	Weight W
}

// minHeap keeps the element with the minimal weight on top.
type minHeap[T any, W constraints.Ordered] []Elem[T, W]

func (h minHeap[T, W]) Len() int           { return len(h) }
func (h minHeap[T, W]) Less(i, j int) bool { return h[i].Weight < h[j].Weight }
func (h minHeap[T, W]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minHeap[T, W]) Push(x any) {
	*h = append(*h, x.(Elem[T, W]))
}

func (h *minHeap[T, W]) Pop() any {
	old := *h
	elem := old[len(old)-1]
	*h = old[:len(old)-1]
	return elem
}

// TopKFilter keeps k elements with maximum weights.
type TopKFilter[T any, W constraints.Ordered] struct {
	elems minHeap[T, W]
	k     int
}

// NewTopKFilter creates a top k filter.
func NewTopKFilter[T any, W constraints.Ordered](k int) *TopKFilter[T, W] {
	return &TopKFilter[T, W]{k: k}
}

func (filter *TopKFilter[T, W]) Len() int {
	return filter.elems.Len()
}

// Push pushes an element into the filter. The element with the minimal weight
// is dropped if there are more than k elements. The complexity is O(log k).
func (filter *TopKFilter[T, W]) Push(value T, weight W) {
	if filter.k <= 0 {
		return
	}
	if filter.Len() == filter.k {
		if weight <= filter.elems[0].Weight {
			return
		}
		filter.elems[0] = Elem[T, W]{value, weight}
		heap.Fix(&filter.elems, 0)
		return
	}
	heap.Push(&filter.elems, Elem[T, W]{value, weight})
}

// PopAll pops all elements in decreasing order of weights.
func (filter *TopKFilter[T, W]) PopAll() ([]T, []W) {
	values := make([]T, filter.Len())
	weights := make([]W, filter.Len())
	for i := len(values) - 1; i >= 0; i-- {
		elem := heap.Pop(&filter.elems).(Elem[T, W])
		values[i], weights[i] = elem.Value, elem.Weight
	}
	return values, weights
}
