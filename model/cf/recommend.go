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

package cf

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/lightgcn/common/heap"
	"github.com/gorse-io/lightgcn/common/parallel"
	"github.com/juju/errors"
)

// Recommend returns at most n items with the highest ratings for a user in
// decreasing order. Items in exclude are skipped.
func Recommend(m Model, userIndex int32, n int, exclude mapset.Set[int32]) ([]int32, []float32) {
	return topK(m.GetUsersRating([]int32{userIndex}).Row(0), n, exclude)
}

// RecommendUsers recommends items for a batch of users. Ratings are computed
// once and top n items are selected on nJobs goroutines. exclude may be nil.
func RecommendUsers(ctx context.Context, m Model, users []int32, n, nJobs int,
	exclude func(userIndex int32) mapset.Set[int32]) ([][]int32, error) {
	if len(users) == 0 {
		return nil, nil
	}
	ratings := m.GetUsersRating(users)
	result := make([][]int32, len(users))
	err := parallel.Parallel(ctx, len(users), nJobs, func(_, jobId int) error {
		var excludeSet mapset.Set[int32]
		if exclude != nil {
			excludeSet = exclude(users[jobId])
		}
		result[jobId], _ = topK(ratings.Row(jobId), n, excludeSet)
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return result, nil
}

// RecommendByName recommends items for a user identified by name. Unknown
// users get the most popular items.
func RecommendByName(m Model, userId string, n int) ([]string, []float32) {
	var items []int32
	var scores []float32
	if userIndex, ok := m.UserDict().Lookup(userId); ok && userIndex < m.NumUsers() {
		items, scores = Recommend(m, int32(userIndex), n, nil)
	} else {
		filter := heap.NewTopKFilter[int32, float32](n)
		for i := 0; i < m.ItemDict().Count(); i++ {
			filter.Push(int32(i), float32(m.ItemDict().Freq(i)))
		}
		items, scores = filter.PopAll()
	}
	names := make([]string, 0, len(items))
	weights := make([]float32, 0, len(items))
	for k, i := range items {
		if name, ok := m.ItemDict().String(int(i)); ok {
			names = append(names, name)
			weights = append(weights, scores[k])
		}
	}
	return names, weights
}

func topK(scores []float32, n int, exclude mapset.Set[int32]) ([]int32, []float32) {
	filter := heap.NewTopKFilter[int32, float32](n)
	for i, score := range scores {
		if exclude != nil && exclude.Contains(int32(i)) {
			continue
		}
		filter.Push(int32(i), score)
	}
	return filter.PopAll()
}
