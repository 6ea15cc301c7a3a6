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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelModel  = "model"
	LabelTerm   = "term"
	LabelResult = "result"

	LabelLoss    = "loss"
	LabelReg     = "reg"
	LabelKept    = "kept"
	LabelDropped = "dropped"
)

var (
	PropagationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gorse",
		Subsystem: "lightgcn",
		Name:      "propagation_seconds",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
	DropoutEdgesTotalVec = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gorse",
		Subsystem: "lightgcn",
		Name:      "dropout_edges_total",
	}, []string{LabelResult})
	LossGaugeVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gorse",
		Subsystem: "cf",
		Name:      "bpr_loss",
	}, []string{LabelModel, LabelTerm})
)
