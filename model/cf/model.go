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

package cf

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"reflect"

	"github.com/gorse-io/lightgcn/base/encoding"
	"github.com/gorse-io/lightgcn/base/log"
	"github.com/gorse-io/lightgcn/common/nn"
	"github.com/gorse-io/lightgcn/dataset"
	"github.com/gorse-io/lightgcn/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Model is a pairwise ranking model over users and items.
type Model interface {
	// SetParams sets hyper-parameters.
	SetParams(params model.Params)
	// GetParams returns hyper-parameters.
	GetParams() model.Params
	// Parameters returns tensors to be updated by an optimizer.
	Parameters() []*nn.Tensor
	// Embeddings returns the raw user and item embedding tables.
	Embeddings() (*nn.Tensor, *nn.Tensor)
	// SetPretrained overwrites embedding tables.
	SetPretrained(user, item [][]float32) error
	// GetUsersRating returns scores of users to all items in (0, 1).
	GetUsersRating(users []int32) *nn.Tensor
	// BPRLoss returns the pairwise ranking loss and the L2 penalty of a triplet batch.
	BPRLoss(users, pos, neg []int32) (*nn.Tensor, *nn.Tensor)
	// Forward returns scores of (users[k], items[k]) pairs.
	Forward(users, items []int32) *nn.Tensor
	NumUsers() int
	NumItems() int
	// GetUserFactor returns the raw embedding of a user.
	GetUserFactor(userIndex int32) []float32
	// GetItemFactor returns the raw embedding of an item.
	GetItemFactor(itemIndex int32) []float32
	// UserDict returns external identifiers of users.
	UserDict() *dataset.FreqDict
	// ItemDict returns external identifiers of items.
	ItemDict() *dataset.FreqDict
	// Marshal model into byte stream.
	Marshal(w io.Writer) error
	// Unmarshal model from byte stream.
	Unmarshal(r io.Reader) error
}

// BaseEmbedding holds user and item embedding tables shared by models.
type BaseEmbedding struct {
	model.BaseModel
	UserEmbedding *nn.EmbeddingLayer
	ItemEmbedding *nn.EmbeddingLayer
	userDict      *dataset.FreqDict
	itemDict      *dataset.FreqDict
	// Hyper parameters
	nFactors   int
	initMean   float32
	initStdDev float32
}

// setParams sets hyper-parameters. Default standard deviation of initial
// embeddings differs between models.
func (base *BaseEmbedding) setParams(params model.Params, defaultStdDev float32) {
	base.BaseModel.SetParams(params)
	base.nFactors = base.Params.GetInt(model.NFactors, 64)
	base.initMean = base.Params.GetFloat32(model.InitMean, 0)
	base.initStdDev = base.Params.GetFloat32(model.InitStdDev, defaultStdDev)
}

// init creates embedding tables for users and items of a dataset and keeps
// their identifiers if the dataset is named.
func (base *BaseEmbedding) init(ds dataset.Dataset) {
	rng := base.GetRandomGenerator()
	base.UserEmbedding = nn.NewEmbedding(ds.CountUsers(), base.nFactors, base.initMean, base.initStdDev, rng)
	base.ItemEmbedding = nn.NewEmbedding(ds.CountItems(), base.nFactors, base.initMean, base.initStdDev, rng)
	if named, ok := ds.(dataset.Named); ok {
		base.userDict, base.itemDict = named.UserDict(), named.ItemDict()
	} else {
		base.userDict, base.itemDict = dataset.NewFreqDict(), dataset.NewFreqDict()
	}
}

func (base *BaseEmbedding) Parameters() []*nn.Tensor {
	return append(base.UserEmbedding.Parameters(), base.ItemEmbedding.Parameters()...)
}

func (base *BaseEmbedding) Embeddings() (*nn.Tensor, *nn.Tensor) {
	return base.UserEmbedding.Weight(), base.ItemEmbedding.Weight()
}

func (base *BaseEmbedding) NumUsers() int {
	return base.UserEmbedding.Weight().Shape()[0]
}

func (base *BaseEmbedding) NumItems() int {
	return base.ItemEmbedding.Weight().Shape()[0]
}

// GetUserFactor returns the latent factor of a user.
func (base *BaseEmbedding) GetUserFactor(userIndex int32) []float32 {
	return base.UserEmbedding.Weight().Row(int(userIndex))
}

// GetItemFactor returns the latent factor of an item.
func (base *BaseEmbedding) GetItemFactor(itemIndex int32) []float32 {
	return base.ItemEmbedding.Weight().Row(int(itemIndex))
}

func (base *BaseEmbedding) UserDict() *dataset.FreqDict {
	return base.userDict
}

func (base *BaseEmbedding) ItemDict() *dataset.FreqDict {
	return base.itemDict
}

// SetPretrained overwrites embedding tables. Shapes of tables must not change.
func (base *BaseEmbedding) SetPretrained(user, item [][]float32) error {
	if err := base.UserEmbedding.Set(user); err != nil {
		return errors.Annotate(err, "user embedding")
	}
	if err := base.ItemEmbedding.Set(item); err != nil {
		return errors.Annotate(err, "item embedding")
	}
	log.Logger().Info("use pretrained embeddings",
		zap.Int("n_users", len(user)),
		zap.Int("n_items", len(item)))
	return nil
}

// Marshal model into byte stream.
func (base *BaseEmbedding) Marshal(w io.Writer) error {
	// write params
	if err := encoding.WriteGob(w, base.Params); err != nil {
		return errors.Trace(err)
	}
	// write shape
	userWeight, itemWeight := base.Embeddings()
	shape := []int64{int64(base.NumUsers()), int64(base.NumItems()), int64(userWeight.Shape()[1])}
	if err := binary.Write(w, binary.LittleEndian, shape); err != nil {
		return errors.Trace(err)
	}
	// write embeddings
	if err := encoding.WriteFloat32s(w, userWeight.Data()); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteFloat32s(w, itemWeight.Data()); err != nil {
		return errors.Trace(err)
	}
	// write identifiers
	if err := base.userDict.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	if err := base.itemDict.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Unmarshal model from byte stream.
func (base *BaseEmbedding) Unmarshal(r io.Reader) error {
	// read params
	var params model.Params
	if err := encoding.ReadGob(r, &params); err != nil {
		return errors.Trace(err)
	}
	base.BaseModel.SetParams(params)
	// read shape
	shape := make([]int64, 3)
	if err := binary.Read(r, binary.LittleEndian, shape); err != nil {
		return errors.Trace(err)
	}
	// read embeddings
	userData, err := encoding.ReadFloat32s(r)
	if err != nil {
		return errors.Trace(err)
	}
	if err = checkShape(shape[0], shape[2], len(userData)); err != nil {
		return errors.Annotate(err, "user embedding")
	}
	itemData, err := encoding.ReadFloat32s(r)
	if err != nil {
		return errors.Trace(err)
	}
	if err = checkShape(shape[1], shape[2], len(itemData)); err != nil {
		return errors.Annotate(err, "item embedding")
	}
	nUsers, nItems, nFactors := int(shape[0]), int(shape[1]), int(shape[2])
	base.UserEmbedding = &nn.EmbeddingLayer{W: nn.NewTensor(userData, nUsers, nFactors)}
	base.ItemEmbedding = &nn.EmbeddingLayer{W: nn.NewTensor(itemData, nItems, nFactors)}
	// read identifiers
	base.userDict, base.itemDict = dataset.NewFreqDict(), dataset.NewFreqDict()
	if err = base.userDict.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	if err = base.itemDict.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// checkShape checks that a rows x cols table read from a byte stream holds
// size values. The number of columns must be positive.
func checkShape(rows, cols int64, size int) error {
	if rows < 0 || rows > math.MaxInt32 || cols <= 0 || cols > math.MaxInt32 {
		return errors.NotValidf("shape (%d, %d)", rows, cols)
	}
	if rows*cols != int64(size) {
		return errors.NotValidf("%d values of shape (%d, %d)", size, rows, cols)
	}
	return nil
}

// bprLoss computes mean(softplus(neg - pos)) from propagated embeddings and
// ½(‖u₀‖² + ‖p₀‖² + ‖n₀‖²)/batch from raw embeddings.
func bprLoss(users, pos, neg, users0, pos0, neg0 *nn.Tensor) (*nn.Tensor, *nn.Tensor) {
	batchSize := users.Shape()[0]
	posScores := nn.RowSum(nn.Mul(users, pos))
	negScores := nn.RowSum(nn.Mul(users, neg))
	loss := nn.Mean(nn.Softplus(nn.Sub(negScores, posScores)))
	reg := nn.Mul(
		nn.Add(nn.Add(nn.Sum(nn.Square(users0)), nn.Sum(nn.Square(pos0))), nn.Sum(nn.Square(neg0))),
		nn.NewScalar(0.5/float32(batchSize)))
	return loss, reg
}

func checkTriplets(users, pos, neg []int32) {
	if len(users) == 0 {
		panic("cf: empty batch")
	}
	if len(users) != len(pos) || len(users) != len(neg) {
		panic(fmt.Sprintf("cf: batch sizes %d, %d and %d do not match", len(users), len(pos), len(neg)))
	}
}

// NewModel creates a model by name.
func NewModel(name string, ds dataset.Dataset, params model.Params) (Model, error) {
	switch name {
	case "mf":
		return NewPureMF(ds, params), nil
	case "lightgcn", "lgn":
		return NewLightGCN(ds, params)
	}
	return nil, errors.NotSupportedf("model %v", name)
}

func GetModelName(m Model) string {
	switch m.(type) {
	case *PureMF:
		return "mf"
	case *LightGCN:
		return "lightgcn"
	default:
		return reflect.TypeOf(m).String()
	}
}

func MarshalModel(w io.Writer, m Model) error {
	if err := encoding.WriteString(w, GetModelName(m)); err != nil {
		return errors.Trace(err)
	}
	if err := m.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// UnmarshalModel reads a model from byte stream. Graph models need a graph
// attached by SetGraph before propagation.
func UnmarshalModel(r io.Reader) (Model, error) {
	name, err := encoding.ReadString(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	switch name {
	case "mf":
		var mf PureMF
		if err := mf.Unmarshal(r); err != nil {
			return nil, errors.Trace(err)
		}
		return &mf, nil
	case "lightgcn":
		var lgn LightGCN
		if err := lgn.Unmarshal(r); err != nil {
			return nil, errors.Trace(err)
		}
		return &lgn, nil
	}
	return nil, fmt.Errorf("unknown model %v", name)
}
