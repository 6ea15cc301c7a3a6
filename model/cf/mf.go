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
	"io"

	"github.com/gorse-io/lightgcn/base/log"
	"github.com/gorse-io/lightgcn/common/nn"
	"github.com/gorse-io/lightgcn/dataset"
	"github.com/gorse-io/lightgcn/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// PureMF is plain matrix factorization. The score of user u to item i is
//
//	\sigma(p_u^T q_i)
//
// Hyper-parameters:
//
//	NFactors	- The number of latent factors. Default is 64.
//	InitMean	- The mean of initial embeddings. Default is 0.
//	InitStdDev	- The standard deviation of initial embeddings. Default is 1.
type PureMF struct {
	BaseEmbedding
}

// NewPureMF creates a PureMF model for users and items of a dataset.
func NewPureMF(ds dataset.Dataset, params model.Params) *PureMF {
	mf := new(PureMF)
	mf.SetParams(params)
	mf.init(ds)
	log.Logger().Info("create model",
		zap.String("model", "mf"),
		zap.Int("n_users", ds.CountUsers()),
		zap.Int("n_items", ds.CountItems()),
		zap.Any("params", mf.GetParams()))
	return mf
}

// SetParams sets hyper-parameters for the PureMF model.
func (mf *PureMF) SetParams(params model.Params) {
	mf.setParams(params, 1)
}

// GetUsersRating returns sigmoid scores of users to all items.
func (mf *PureMF) GetUsersRating(users []int32) *nn.Tensor {
	usersEmb := mf.UserEmbedding.Forward(users)
	scores := nn.MatMul(usersEmb, mf.ItemEmbedding.Weight(), false, true)
	return nn.Sigmoid(scores)
}

// BPRLoss computes the pairwise loss and the L2 penalty of a triplet batch.
func (mf *PureMF) BPRLoss(users, pos, neg []int32) (*nn.Tensor, *nn.Tensor) {
	checkTriplets(users, pos, neg)
	usersEmb := mf.UserEmbedding.Forward(users)
	posEmb := mf.ItemEmbedding.Forward(pos)
	negEmb := mf.ItemEmbedding.Forward(neg)
	loss, reg := bprLoss(usersEmb, posEmb, negEmb, usersEmb, posEmb, negEmb)
	LossGaugeVec.WithLabelValues("mf", LabelLoss).Set(float64(loss.Value()))
	LossGaugeVec.WithLabelValues("mf", LabelReg).Set(float64(reg.Value()))
	return loss, reg
}

// Forward returns sigmoid scores of (users[k], items[k]) pairs.
func (mf *PureMF) Forward(users, items []int32) *nn.Tensor {
	usersEmb := mf.UserEmbedding.Forward(users)
	itemsEmb := mf.ItemEmbedding.Forward(items)
	return nn.Sigmoid(nn.RowSum(nn.Mul(usersEmb, itemsEmb)))
}

// Unmarshal model from byte stream.
func (mf *PureMF) Unmarshal(r io.Reader) error {
	if err := mf.BaseEmbedding.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	mf.SetParams(mf.Params)
	return nil
}
