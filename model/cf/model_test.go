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
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/chewxy/math32"
	"github.com/gorse-io/lightgcn/base/encoding"
	"github.com/gorse-io/lightgcn/common/floats"
	"github.com/gorse-io/lightgcn/common/nn"
	"github.com/gorse-io/lightgcn/config"
	"github.com/gorse-io/lightgcn/dataset"
	"github.com/gorse-io/lightgcn/model"
	"github.com/stretchr/testify/assert"
)

// newTestDataset creates a graph of 4 users and 5 items.
func newTestDataset(t *testing.T) *dataset.InteractionGraph {
	g := dataset.NewInteractionGraph(4, 5)
	for _, e := range [][2]int32{{0, 0}, {0, 1}, {1, 1}, {1, 2}, {2, 2}, {2, 3}, {3, 3}, {3, 4}, {0, 4}} {
		assert.NoError(t, g.AddInteraction(e[0], e[1]))
	}
	assert.NoError(t, g.AddUserLink(0, 1))
	assert.NoError(t, g.AddUserLink(2, 3))
	assert.NoError(t, g.AddItemLink(0, 1))
	assert.NoError(t, g.AddItemLink(3, 4))
	return g
}

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

func trainSteps(m Model, users, pos, neg []int32, steps int) []float32 {
	optimizer := nn.NewAdam(m.Parameters(), 0.01)
	var losses []float32
	for i := 0; i < steps; i++ {
		loss, _ := TrainBatch(m, optimizer, users, pos, neg, 1e-4)
		losses = append(losses, loss)
	}
	return losses
}

func TestPureMF(t *testing.T) {
	ds := newTestDataset(t)
	m := NewPureMF(ds, model.Params{model.NFactors: 4})
	assert.Equal(t, 4, m.NumUsers())
	assert.Equal(t, 5, m.NumItems())
	assert.Len(t, m.Parameters(), 2)
	assert.Len(t, m.GetUserFactor(0), 4)

	// rating
	rating := m.GetUsersRating([]int32{1, 3})
	assert.Equal(t, []int{2, 5}, rating.Shape())
	for k, u := range []int32{1, 3} {
		for i := int32(0); i < 5; i++ {
			expected := sigmoid(floats.Dot(m.GetUserFactor(u), m.GetItemFactor(i)))
			assert.InDelta(t, expected, rating.Row(k)[i], 1e-5)
		}
	}

	// forward
	scores := m.Forward([]int32{0, 2}, []int32{4, 1})
	assert.Equal(t, []int{2}, scores.Shape())
	assert.InDelta(t, sigmoid(floats.Dot(m.GetUserFactor(0), m.GetItemFactor(4))), scores.Data()[0], 1e-5)
	assert.InDelta(t, sigmoid(floats.Dot(m.GetUserFactor(2), m.GetItemFactor(1))), scores.Data()[1], 1e-5)

	// loss
	loss, reg := m.BPRLoss([]int32{0, 1}, []int32{0, 2}, []int32{3, 4})
	assert.GreaterOrEqual(t, loss.Value(), float32(0))
	expectedReg := (floats.Norm(m.GetUserFactor(0)) + floats.Norm(m.GetUserFactor(1)) +
		floats.Norm(m.GetItemFactor(0)) + floats.Norm(m.GetItemFactor(2)) +
		floats.Norm(m.GetItemFactor(3)) + floats.Norm(m.GetItemFactor(4))) / 2 / 2
	assert.InDelta(t, expectedReg, reg.Value(), 1e-4)

	assert.Panics(t, func() { m.BPRLoss(nil, nil, nil) })
	assert.Panics(t, func() { m.BPRLoss([]int32{0}, []int32{0, 1}, []int32{2}) })
}

func TestPureMF_Init(t *testing.T) {
	ds := dataset.NewInteractionGraph(1000, 10)
	m := NewPureMF(ds, model.Params{model.NFactors: 10})
	user, _ := m.Embeddings()
	mean := floats.Sum(user.Data()) / float32(len(user.Data()))
	variance := floats.Norm(user.Data())/float32(len(user.Data())) - mean*mean
	assert.InDelta(t, 0, mean, 0.05)
	assert.InDelta(t, 1, math32.Sqrt(variance), 0.05)
}

func TestBPRLoss_Monotone(t *testing.T) {
	ds := dataset.NewInteractionGraph(1, 2)
	m := NewPureMF(ds, model.Params{model.NFactors: 1})
	var last float32 = math32.MaxFloat32
	for _, margin := range []float32{-2, -1, 0, 1, 2, 4} {
		// pos - neg = margin
		assert.NoError(t, m.SetPretrained([][]float32{{1}}, [][]float32{{margin}, {0}}))
		loss, _ := m.BPRLoss([]int32{0}, []int32{0}, []int32{1})
		assert.GreaterOrEqual(t, loss.Value(), float32(0))
		assert.Less(t, loss.Value(), last)
		last = loss.Value()
	}
	assert.InDelta(t, math32.Ln2, func() float32 {
		assert.NoError(t, m.SetPretrained([][]float32{{1}}, [][]float32{{0}, {0}}))
		loss, _ := m.BPRLoss([]int32{0}, []int32{0}, []int32{1})
		return loss.Value()
	}(), 1e-5)
}

func TestPureMF_Train(t *testing.T) {
	m := NewPureMF(newTestDataset(t), model.Params{model.NFactors: 8, model.InitStdDev: 0.1})
	losses := trainSteps(m, []int32{0, 1, 2, 3}, []int32{0, 1, 2, 3}, []int32{3, 4, 0, 1}, 50)
	assert.Less(t, losses[len(losses)-1], losses[0])
}

func TestSetPretrained(t *testing.T) {
	m := NewPureMF(dataset.NewInteractionGraph(2, 1), model.Params{model.NFactors: 2})
	assert.NoError(t, m.SetPretrained([][]float32{{1, 2}, {3, 4}}, [][]float32{{5, 6}}))
	assert.Equal(t, []float32{3, 4}, m.GetUserFactor(1))
	assert.Equal(t, []float32{5, 6}, m.GetItemFactor(0))
	assert.Error(t, m.SetPretrained([][]float32{{1, 2}}, [][]float32{{5, 6}}))
	assert.Error(t, m.SetPretrained([][]float32{{1, 2}, {3, 4}}, [][]float32{{5, 6, 7}}))
}

func TestNewModel(t *testing.T) {
	ds := newTestDataset(t)
	m, err := NewModel("mf", ds, model.Params{})
	assert.NoError(t, err)
	assert.IsType(t, &PureMF{}, m)
	assert.Equal(t, "mf", GetModelName(m))
	m, err = NewModel("lightgcn", ds, model.Params{})
	assert.NoError(t, err)
	assert.IsType(t, &LightGCN{}, m)
	assert.Equal(t, "lightgcn", GetModelName(m))
	_, err = NewModel("svd", ds, model.Params{})
	assert.Error(t, err)
}

func TestMarshalModel(t *testing.T) {
	ds := newTestDataset(t)
	params := model.Params{model.NFactors: 4, model.NLayers: 2, model.RandomState: int64(7)}
	for _, name := range []string{"mf", "lightgcn"} {
		m, err := NewModel(name, ds, params)
		assert.NoError(t, err)
		buf := bytes.NewBuffer(nil)
		assert.NoError(t, MarshalModel(buf, m))
		copied, err := UnmarshalModel(buf)
		assert.NoError(t, err)
		assert.IsType(t, m, copied)
		assert.Equal(t, params, copied.GetParams())
		assert.Equal(t, m.NumUsers(), copied.NumUsers())
		assert.Equal(t, m.NumItems(), copied.NumItems())
		for u := int32(0); u < 4; u++ {
			assert.Equal(t, m.GetUserFactor(u), copied.GetUserFactor(u))
		}
		for i := int32(0); i < 5; i++ {
			assert.Equal(t, m.GetItemFactor(i), copied.GetItemFactor(i))
		}
		if lgn, ok := copied.(*LightGCN); ok {
			assert.Panics(t, func() { lgn.Computer() })
			assert.NoError(t, lgn.SetGraph(ds.SparseGraph()))
		}
		assert.Equal(t, m.GetUsersRating([]int32{0, 1}).Data(), copied.GetUsersRating([]int32{0, 1}).Data())
	}

	// unknown model
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, MarshalModel(buf, NewPureMF(ds, params)))
	data := buf.Bytes()
	_, err := UnmarshalModel(bytes.NewReader(data[:len(data)-4]))
	assert.Error(t, err)
}

func TestEmbeddings(t *testing.T) {
	ds := newTestDataset(t)
	mf := NewPureMF(ds, model.Params{model.NFactors: 4})
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteEmbeddings(buf, mf))
	user, item, err := ReadEmbeddings(bytes.NewReader(buf.Bytes()))
	assert.NoError(t, err)
	assert.Len(t, user, 4)
	assert.Len(t, item, 5)
	assert.Equal(t, mf.GetUserFactor(2), user[2])

	// pretrain LightGCN by PureMF
	path := filepath.Join(t.TempDir(), "embeddings.bin")
	assert.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	cfg := config.GetDefaultConfig().Model
	cfg.LatentDim = 4
	cfg.PretrainPath = path
	m, err := NewModelFromConfig(&cfg, ds)
	assert.NoError(t, err)
	assert.IsType(t, &LightGCN{}, m)
	for i := int32(0); i < 5; i++ {
		assert.Equal(t, mf.GetItemFactor(i), m.GetItemFactor(i))
	}

	// mismatched shape
	cfg.LatentDim = 8
	_, err = NewModelFromConfig(&cfg, ds)
	assert.Error(t, err)
	// missing file
	cfg.PretrainPath = filepath.Join(t.TempDir(), "not_exist.bin")
	_, err = NewModelFromConfig(&cfg, ds)
	assert.Error(t, err)
	// truncated file
	_, _, err = ReadEmbeddings(bytes.NewReader(buf.Bytes()[:20]))
	assert.Error(t, err)
}

func TestTrainBatch(t *testing.T) {
	m := NewPureMF(newTestDataset(t), model.Params{model.NFactors: 4, model.InitStdDev: 0.1})
	users, pos, neg := []int32{0, 1, 2}, []int32{0, 1, 2}, []int32{3, 4, 4}
	expectedLoss, expectedReg := m.BPRLoss(users, pos, neg)
	optimizer := nn.NewSGD(m.Parameters(), 0.1)
	loss, reg := TrainBatch(m, optimizer, users, pos, neg, 0.01)
	assert.Equal(t, expectedLoss.Value(), loss)
	assert.Equal(t, expectedReg.Value(), reg)
	nextLoss, _ := m.BPRLoss(users, pos, neg)
	assert.Less(t, nextLoss.Value(), loss)
}

func TestMarshalModel_ChangedParams(t *testing.T) {
	ds := newTestDataset(t)
	for _, name := range []string{"mf", "lightgcn"} {
		m, err := NewModel(name, ds, model.Params{model.NFactors: 4})
		assert.NoError(t, err)
		// tables keep their width
		m.SetParams(model.Params{model.NFactors: 8})
		buf := bytes.NewBuffer(nil)
		assert.NoError(t, MarshalModel(buf, m))
		copied, err := UnmarshalModel(buf)
		assert.NoError(t, err)
		assert.Equal(t, model.Params{model.NFactors: 8}, copied.GetParams())
		assert.Equal(t, m.GetUserFactor(3), copied.GetUserFactor(3))
		assert.Equal(t, m.GetItemFactor(4), copied.GetItemFactor(4))
	}
}

// writeModelHeader writes a PureMF stream with the given shape and tables.
func writeModelHeader(t *testing.T, shape []int64, user, item []float32) *bytes.Buffer {
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, encoding.WriteString(buf, "mf"))
	assert.NoError(t, encoding.WriteGob(buf, model.Params{}))
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, shape))
	assert.NoError(t, encoding.WriteFloat32s(buf, user))
	assert.NoError(t, encoding.WriteFloat32s(buf, item))
	assert.NoError(t, dataset.NewFreqDict().Marshal(buf))
	assert.NoError(t, dataset.NewFreqDict().Marshal(buf))
	return buf
}

func TestUnmarshalModel_Corrupted(t *testing.T) {
	six := make([]float32, 6)
	// valid
	_, err := UnmarshalModel(writeModelHeader(t, []int64{2, 3, 3}, six, make([]float32, 9)))
	assert.NoError(t, err)
	// negative dimensions
	_, err = UnmarshalModel(writeModelHeader(t, []int64{-2, 1, -3}, six, make([]float32, 3)))
	assert.Error(t, err)
	// zero factors
	_, err = UnmarshalModel(writeModelHeader(t, []int64{0, 0, 0}, nil, nil))
	assert.Error(t, err)
	// huge dimensions
	_, err = UnmarshalModel(writeModelHeader(t, []int64{1 << 40, 1, 1 << 40}, six, six))
	assert.Error(t, err)
	// mismatched size
	_, err = UnmarshalModel(writeModelHeader(t, []int64{2, 3, 3}, six, six))
	assert.Error(t, err)
}

func TestReadEmbeddings_Corrupted(t *testing.T) {
	write := func(shape []int64, data []float32) *bytes.Buffer {
		buf := bytes.NewBuffer(nil)
		for i := 0; i < 2; i++ {
			assert.NoError(t, binary.Write(buf, binary.LittleEndian, shape))
			assert.NoError(t, encoding.WriteFloat32s(buf, data))
		}
		return buf
	}
	user, item, err := ReadEmbeddings(write([]int64{2, 3}, make([]float32, 6)))
	assert.NoError(t, err)
	assert.Len(t, user, 2)
	assert.Len(t, item[1], 3)

	_, _, err = ReadEmbeddings(write([]int64{1 << 62, 1}, []float32{1}))
	assert.Error(t, err)
	_, _, err = ReadEmbeddings(write([]int64{-2, -3}, make([]float32, 6)))
	assert.Error(t, err)
	_, _, err = ReadEmbeddings(write([]int64{2, 0}, nil))
	assert.Error(t, err)
	_, _, err = ReadEmbeddings(write([]int64{2, 3}, make([]float32, 5)))
	assert.Error(t, err)

	// a corrupted file is reported by the factory
	path := filepath.Join(t.TempDir(), "corrupted.bin")
	assert.NoError(t, os.WriteFile(path, write([]int64{1 << 62, 1}, []float32{1}).Bytes(), 0644))
	cfg := config.GetDefaultConfig().Model
	cfg.PretrainPath = path
	_, err = NewModelFromConfig(&cfg, newTestDataset(t))
	assert.Error(t, err)
}

func TestMarshalModel_Names(t *testing.T) {
	g := dataset.NewInteractionGraph(0, 0)
	for _, e := range [][2]string{
		{"alice", "apple"}, {"alice", "banana"}, {"bob", "banana"},
		{"carol", "banana"}, {"carol", "cherry"}, {"bob", "cherry"},
	} {
		g.AddNamedInteraction(e[0], e[1])
	}
	m := NewPureMF(g, model.Params{model.NFactors: 2})
	assert.NoError(t, m.SetPretrained(
		[][]float32{{1, 0}, {0, 1}, {1, 1}},
		[][]float32{{2, 0}, {0, 0}, {-1, 1}}))

	buf := bytes.NewBuffer(nil)
	assert.NoError(t, MarshalModel(buf, m))
	copied, err := UnmarshalModel(buf)
	assert.NoError(t, err)
	bob, ok := copied.UserDict().Lookup("bob")
	assert.True(t, ok)
	assert.Equal(t, 1, bob)
	assert.Equal(t, 3, copied.ItemDict().Count())
	assert.Equal(t, 3, copied.ItemDict().Freq(1))

	// known user
	names, scores := RecommendByName(copied, "alice", 2)
	assert.Equal(t, []string{"apple", "banana"}, names)
	assert.InDelta(t, sigmoid(2), scores[0], 1e-6)
	assert.InDelta(t, sigmoid(0), scores[1], 1e-6)
	expectedNames, expectedScores := RecommendByName(m, "alice", 2)
	assert.Equal(t, expectedNames, names)
	assert.Equal(t, expectedScores, scores)

	// unknown user gets popular items
	names, scores = RecommendByName(copied, "dave", 2)
	assert.Equal(t, []string{"banana", "cherry"}, names)
	assert.Equal(t, []float32{3, 2}, scores)
}
