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

package model

import (
	"github.com/shopspring/decimal"

	"github.com/streamnative/tranche/partition"
)

// EngineID is the opaque identity of one matching-engine instance. The
// registry compares it against the identity a caller supplies at placement
// time.
type EngineID string

// RoutingDecision is the ephemeral output of a routing query. It is
// computed per call and never persisted.
type RoutingDecision struct {
	// Target is the shard the order's nominal price maps to.
	Target partition.ShardID `json:"target" yaml:"target"`

	// RequiresCrossShard reports whether execution may need liquidity
	// from a neighboring shard.
	RequiresCrossShard bool `json:"requiresCrossShard" yaml:"requiresCrossShard"`

	// Fallbacks lists the active immediate neighbors of the target, lower
	// neighbor first, when RequiresCrossShard is set.
	Fallbacks []partition.ShardID `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty"`
}

// ShardLoad is one element of the load snapshot exposed for external
// rebalancing and observability.
type ShardLoad struct {
	Shard       partition.ShardID    `json:"shard" yaml:"shard"`
	OrderCount  uint64               `json:"orderCount" yaml:"orderCount"`
	TotalVolume decimal.Decimal      `json:"totalVolume" yaml:"totalVolume"`
	PriceRange  partition.PriceRange `json:"priceRange" yaml:"priceRange"`
}

// Placement is the result of a successful order placement.
type Placement struct {
	ShardUsed partition.ShardID `json:"shardUsed" yaml:"shardUsed"`
	OrderID   string            `json:"orderId" yaml:"orderId"`

	// CrossedShards declares that more than one shard was eligible by
	// routing. It is not evidence that multiple shards were executed
	// against: a single call touches a single engine.
	CrossedShards bool `json:"crossedShards" yaml:"crossedShards"`

	ExecutedQuantity  uint64 `json:"executedQuantity" yaml:"executedQuantity"`
	RemainingQuantity uint64 `json:"remainingQuantity" yaml:"remainingQuantity"`
}
