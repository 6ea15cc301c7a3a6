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
	"time"

	"github.com/gorse-io/lightgcn/base/log"
	"github.com/gorse-io/lightgcn/common/nn"
	"github.com/gorse-io/lightgcn/dataset"
	"github.com/gorse-io/lightgcn/model"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// LightGCN propagates embeddings over a normalized user-item graph with
// self connections. Layer k+1 is computed from layer k by
//
//	u = u + DU e_u^0,  v = v + DV e_v^0
//	u' = Item v + UU u
//	v' = User u' + VV v
//
// and the final representation is the mean of layers 0 to n.
//
// Hyper-parameters:
//
//	NFactors	- The number of latent factors. Default is 64.
//	NLayers		- The number of propagation layers. Default is 3.
//	Dropout		- Drop graph edges in training. Default is false.
//	KeepProb	- The probability to keep an edge. Default is 0.6.
//	ASplit		- Split adjacency matrices into row folds. Default is false.
//	NFolds		- The number of folds. Default is 100.
//	Jobs		- The number of goroutines multiplying folds. Default is 1.
//	InitMean	- The mean of initial embeddings. Default is 0.
//	InitStdDev	- The standard deviation of initial embeddings. Default is 0.1.
type LightGCN struct {
	BaseEmbedding
	graph    *dataset.Graph
	training bool
	// Hyper parameters
	nLayers  int
	keepProb float32
	dropout  bool
	aSplit   bool
	nFolds   int
	jobs     int
}

// NewLightGCN creates a LightGCN model on the sparse graph of a dataset.
func NewLightGCN(ds dataset.Dataset, params model.Params) (*LightGCN, error) {
	lgn := new(LightGCN)
	lgn.setParams(params)
	lgn.init(ds)
	if err := lgn.SetGraph(ds.SparseGraph()); err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("create model",
		zap.String("model", "lightgcn"),
		zap.Int("n_users", ds.CountUsers()),
		zap.Int("n_items", ds.CountItems()),
		zap.Bool("dropout", lgn.dropout),
		zap.Any("params", lgn.GetParams()))
	return lgn, nil
}

const defaultKeepProb = 0.6

// SetParams sets hyper-parameters for the LightGCN model. An invalid keep
// probability is replaced by the default one. The attached graph is split
// again if ASplit or NFolds changes.
func (lgn *LightGCN) SetParams(params model.Params) {
	lgn.setParams(params)
	if err := lgn.checkKeepProb(); err != nil {
		log.Logger().Error("invalid keep probability, use default",
			zap.Float32("keep_prob", lgn.keepProb),
			zap.Float32("default", defaultKeepProb))
		lgn.keepProb = defaultKeepProb
	}
	if lgn.graph != nil {
		lgn.graph = lgn.graph.Split(lo.Ternary(lgn.aSplit, lgn.nFolds, 1))
	}
}

func (lgn *LightGCN) setParams(params model.Params) {
	lgn.BaseEmbedding.setParams(params, 0.1)
	lgn.nLayers = lgn.Params.GetInt(model.NLayers, 3)
	lgn.keepProb = lgn.Params.GetFloat32(model.KeepProb, defaultKeepProb)
	lgn.dropout = lgn.Params.GetBool(model.Dropout, false)
	lgn.aSplit = lgn.Params.GetBool(model.ASplit, false)
	lgn.nFolds = lgn.Params.GetInt(model.NFolds, 100)
	lgn.jobs = lgn.Params.GetInt(model.Jobs, 1)
}

func (lgn *LightGCN) checkKeepProb() error {
	if lgn.dropout && (lgn.keepProb <= 0 || lgn.keepProb > 1) {
		return errors.NotValidf("keep probability %v", lgn.keepProb)
	}
	return nil
}

// SetGraph attaches a graph. Submatrices are split into folds if ASplit is set.
func (lgn *LightGCN) SetGraph(g *dataset.Graph) error {
	if g == nil {
		return errors.NotFoundf("graph")
	}
	if err := g.Validate(lgn.NumUsers(), lgn.NumItems()); err != nil {
		return errors.Trace(err)
	}
	if err := lgn.checkKeepProb(); err != nil {
		return errors.Trace(err)
	}
	if lgn.aSplit {
		g = g.Split(lgn.nFolds)
	}
	lgn.graph = g
	return nil
}

// Train enables edge dropout if Dropout is set.
func (lgn *LightGCN) Train() {
	lgn.training = true
}

// Eval disables edge dropout.
func (lgn *LightGCN) Eval() {
	lgn.training = false
}

// IsTraining reports whether the model is in training mode.
func (lgn *LightGCN) IsTraining() bool {
	return lgn.training
}

// Computer returns propagated representations of all users and all items.
func (lgn *LightGCN) Computer() (*nn.Tensor, *nn.Tensor) {
	if lgn.graph == nil {
		panic("cf: graph is not attached")
	}
	start := time.Now()
	g := lgn.graph
	if lgn.dropout && lgn.training {
		g = g.Dropout(lgn.keepProb, lgn.GetRandomGenerator())
		kept := g.NNZ()
		DropoutEdgesTotalVec.WithLabelValues(LabelKept).Add(float64(kept))
		DropoutEdgesTotalVec.WithLabelValues(LabelDropped).Add(float64(lgn.graph.NNZ() - kept))
	}

	usersEmb, itemsEmb := lgn.Embeddings()
	embsUser, embsItem := []*nn.Tensor{usersEmb}, []*nn.Tensor{itemsEmb}
	// self connections are computed from layer 0
	du := nn.SpMM(g.DU, usersEmb, lgn.jobs)
	dv := nn.SpMM(g.DV, itemsEmb, lgn.jobs)
	for layer := 0; layer < lgn.nLayers; layer++ {
		usersEmb = nn.Add(usersEmb, du)
		itemsEmb = nn.Add(itemsEmb, dv)
		usersEmb = nn.Add(nn.SpMM(g.Item, itemsEmb, lgn.jobs), nn.SpMM(g.UU, usersEmb, lgn.jobs))
		itemsEmb = nn.Add(nn.SpMM(g.User, usersEmb, lgn.jobs), nn.SpMM(g.VV, itemsEmb, lgn.jobs))
		embsUser = append(embsUser, usersEmb)
		embsItem = append(embsItem, itemsEmb)
	}
	users, items := nn.Average(embsUser...), nn.Average(embsItem...)
	PropagationSeconds.Observe(time.Since(start).Seconds())
	return users, items
}

// GetUsersRating returns sigmoid scores of users to all items on propagated embeddings.
func (lgn *LightGCN) GetUsersRating(users []int32) *nn.Tensor {
	allUsers, allItems := lgn.Computer()
	usersEmb := nn.Embedding(allUsers, users)
	return nn.Sigmoid(nn.MatMul(usersEmb, allItems, false, true))
}

// TripletEmbedding holds propagated and raw embeddings of a triplet batch.
type TripletEmbedding struct {
	Users  *nn.Tensor
	Pos    *nn.Tensor
	Neg    *nn.Tensor
	Users0 *nn.Tensor
	Pos0   *nn.Tensor
	Neg0   *nn.Tensor
}

// GetEmbedding returns propagated embeddings and raw embeddings of a triplet batch.
func (lgn *LightGCN) GetEmbedding(users, pos, neg []int32) TripletEmbedding {
	allUsers, allItems := lgn.Computer()
	return TripletEmbedding{
		Users:  nn.Embedding(allUsers, users),
		Pos:    nn.Embedding(allItems, pos),
		Neg:    nn.Embedding(allItems, neg),
		Users0: lgn.UserEmbedding.Forward(users),
		Pos0:   lgn.ItemEmbedding.Forward(pos),
		Neg0:   lgn.ItemEmbedding.Forward(neg),
	}
}

// BPRLoss computes the pairwise loss on propagated embeddings and the L2
// penalty on raw embeddings.
func (lgn *LightGCN) BPRLoss(users, pos, neg []int32) (*nn.Tensor, *nn.Tensor) {
	checkTriplets(users, pos, neg)
	e := lgn.GetEmbedding(users, pos, neg)
	loss, reg := bprLoss(e.Users, e.Pos, e.Neg, e.Users0, e.Pos0, e.Neg0)
	LossGaugeVec.WithLabelValues("lightgcn", LabelLoss).Set(float64(loss.Value()))
	LossGaugeVec.WithLabelValues("lightgcn", LabelReg).Set(float64(reg.Value()))
	return loss, reg
}

// Forward returns inner products of propagated embeddings.
func (lgn *LightGCN) Forward(users, items []int32) *nn.Tensor {
	allUsers, allItems := lgn.Computer()
	usersEmb := nn.Embedding(allUsers, users)
	itemsEmb := nn.Embedding(allItems, items)
	return nn.RowSum(nn.Mul(usersEmb, itemsEmb))
}

// Unmarshal model from byte stream. The graph must be attached by SetGraph.
func (lgn *LightGCN) Unmarshal(r io.Reader) error {
	if err := lgn.BaseEmbedding.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	lgn.graph = nil
	lgn.SetParams(lgn.Params)
	return nil
}
