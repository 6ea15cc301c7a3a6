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
	"github.com/gorse-io/lightgcn/common/nn"
)

// TrainBatch runs one optimizer step on a triplet batch. The objective is
// loss + weightDecay * reg. It returns the loss and the penalty before the
// step.
func TrainBatch(m Model, optimizer nn.Optimizer, users, pos, neg []int32, weightDecay float32) (float32, float32) {
	loss, reg := m.BPRLoss(users, pos, neg)
	total := nn.Add(loss, nn.Mul(reg, nn.NewScalar(weightDecay)))
	optimizer.ZeroGrad()
	total.Backward()
	optimizer.Step()
	return loss.Value(), reg.Value()
}
