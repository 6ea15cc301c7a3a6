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
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/gorse-io/lightgcn/base/encoding"
	"github.com/gorse-io/lightgcn/base/log"
	"github.com/gorse-io/lightgcn/common/nn"
	"github.com/gorse-io/lightgcn/config"
	"github.com/gorse-io/lightgcn/dataset"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// WriteEmbeddings writes raw embedding tables of a model.
func WriteEmbeddings(w io.Writer, m Model) error {
	user, item := m.Embeddings()
	for _, table := range []*nn.Tensor{user, item} {
		shape := []int64{int64(table.Shape()[0]), int64(table.Shape()[1])}
		if err := binary.Write(w, binary.LittleEndian, shape); err != nil {
			return errors.Trace(err)
		}
		if err := encoding.WriteFloat32s(w, table.Data()); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// ReadEmbeddings reads embedding tables written by WriteEmbeddings.
func ReadEmbeddings(r io.Reader) (user, item [][]float32, err error) {
	tables := make([][][]float32, 2)
	for i := range tables {
		shape := make([]int64, 2)
		if err = binary.Read(r, binary.LittleEndian, shape); err != nil {
			return nil, nil, errors.Trace(err)
		}
		var data []float32
		if data, err = encoding.ReadFloat32s(r); err != nil {
			return nil, nil, errors.Trace(err)
		}
		if err = checkShape(shape[0], shape[1], len(data)); err != nil {
			return nil, nil, errors.Trace(err)
		}
		tables[i] = nn.NewTensor(data, int(shape[0]), int(shape[1])).Matrix()
	}
	return tables[0], tables[1], nil
}

// LoadEmbeddings reads embedding tables from a file.
func LoadEmbeddings(path string) (user, item [][]float32, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	defer f.Close()
	return ReadEmbeddings(bufio.NewReader(f))
}

// NewModelFromConfig creates a model from configuration. Pretrained
// embeddings are loaded if pretrain_path is set.
func NewModelFromConfig(cfg *config.ModelConfig, ds dataset.Dataset) (Model, error) {
	m, err := NewModel(cfg.Name, ds, cfg.Params())
	if err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.PretrainPath != "" {
		user, item, err := LoadEmbeddings(cfg.PretrainPath)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to load pretrained embeddings from %s", cfg.PretrainPath)
		}
		if err = m.SetPretrained(user, item); err != nil {
			return nil, errors.Trace(err)
		}
		log.Logger().Info("load pretrained embeddings", zap.String("path", cfg.PretrainPath))
	}
	return m, nil
}
