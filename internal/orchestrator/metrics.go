// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mcporch_tasks_in_flight",
		Help: "Orchestration tasks currently running",
	})

	plansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcporch_plans_total",
			Help: "Plans used by source (oracle or fallback)",
		},
		[]string{"source"},
	)
)
