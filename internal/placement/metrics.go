/*******************************************************************************
*
* Copyright 2024 SAP SE
*
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
*
*     http://www.apache.org/licenses/LICENSE-2.0
*
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
*
*******************************************************************************/

package placement

import "github.com/prometheus/client_golang/prometheus"

var queryDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "placement_allocation_candidates_duration_seconds",
		Help:    "Time spent computing allocation candidates for one query.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"path"}, // "single_provider" or "mixed"
)

var candidatesReturnedGauge = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "placement_allocation_candidates_count",
		Help:    "Number of allocation candidates returned by one query, after dedup and limit.",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
	},
	[]string{"path"},
)

var queryErrorsCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "placement_allocation_candidates_errors_total",
		Help: "Number of allocation candidate queries that failed, by error kind.",
	},
	[]string{"kind"},
)

func init() {
	prometheus.MustRegister(queryDuration)
	prometheus.MustRegister(candidatesReturnedGauge)
	prometheus.MustRegister(queryErrorsCounter)
}
