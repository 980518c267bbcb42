// Copyright 2025 StreamNative, Inc.
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

// Package balancer watches the per-shard load distribution and advises
// when a shard carries a disproportionate share of the routed flow.
// Partition boundaries are immutable for the lifetime of a coordinator,
// so the advice is consumed by operators and capacity tooling rather
// than acted on in-process.
package balancer

import (
	"context"
	"io"
	"time"

	"github.com/streamnative/tranche/coordinator/model"
)

type Options struct {
	context.Context

	// LoadSupplier snapshots the current per-shard load of the active
	// shards.
	LoadSupplier func() []model.ShardLoad

	ScheduleInterval time.Duration
	CooldownTime     time.Duration
	SkewThreshold    float64
}

type Advisor interface {
	io.Closer

	// Actions is the stream of rebalance advice. A slow consumer drops
	// advice rather than blocking the advisor.
	Actions() <-chan Action

	// Trigger requests an immediate evaluation outside the schedule.
	Trigger()

	IsBalanced() bool
}
