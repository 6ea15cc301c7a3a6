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

package parallel

import (
	"context"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestParallel(t *testing.T) {
	for _, nWorkers := range []int{1, 4} {
		a := lo.Range(10000)
		b := make([]int, len(a))
		workerIds := make([]int, len(a))
		err := Parallel(context.Background(), len(a), nWorkers, func(workerId, jobId int) error {
			b[jobId] = a[jobId]
			workerIds[jobId] = workerId
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, a, b)
		for _, workerId := range workerIds {
			assert.Less(t, workerId, nWorkers)
		}
	}
}

func TestParallel_Error(t *testing.T) {
	for _, nWorkers := range []int{1, 4} {
		var count atomic.Int32
		err := Parallel(context.Background(), 10000, nWorkers, func(_, jobId int) error {
			count.Add(1)
			if jobId == 10 {
				return errors.New("job 10 failed")
			}
			return nil
		})
		assert.ErrorContains(t, err, "job 10 failed")
		assert.Less(t, count.Load(), int32(10000))
	}
}

func TestParallel_Cancel(t *testing.T) {
	for _, nWorkers := range []int{1, 4} {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var count atomic.Int32
		err := Parallel(ctx, 100, nWorkers, func(_, _ int) error {
			count.Add(1)
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, count.Load())
	}
}

func TestFor(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		// multiple threads
		a := lo.Range(10000)
		b := make([]int, len(a))
		For(len(a), 4, func(jobId int) {
			b[jobId] = a[jobId]
			time.Sleep(time.Microsecond)
		})
		assert.Equal(t, a, b)
		// single thread
		b = make([]int, len(a))
		For(len(a), 1, func(jobId int) {
			b[jobId] = a[jobId]
		})
		assert.Equal(t, a, b)
	})
}

func TestSplit(t *testing.T) {
	a := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	b := Split(a, 3)
	assert.Equal(t, [][]int{{1, 2, 3, 4}, {5, 6, 7}, {8, 9, 10}}, b)

	a = []int{1, 2, 3}
	b = Split(a, 5)
	assert.Equal(t, [][]int{{1}, {2}, {3}}, b)

	assert.Nil(t, Split([]int{}, 3))
}
