/*
 Copyright 2023 NanaFS Authors.

 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package tree

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	treeOperationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tree_operation_latency_seconds",
			Help:    "The latency of tree operation.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 5, 8),
		},
		[]string{"operation"},
	)
	treeOperationErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tree_operation_errors",
			Help: "This count of tree operation encountering errors",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		treeOperationLatency,
		treeOperationErrorCounter,
	)
}

func logOperationLatency(operation string, startAt time.Time) {
	treeOperationLatency.WithLabelValues(operation).Observe(time.Since(startAt).Seconds())
}

func logOperationError(operation string, err error) error {
	if err != nil && err != context.Canceled {
		treeOperationErrorCounter.WithLabelValues(operation).Inc()
	}
	return err
}
