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

package coordinator

import (
	"time"

	"github.com/streamnative/tranche/coordinator/model"
	"github.com/streamnative/tranche/partition"
)

// PlacementEvent describes one successfully placed order.
type PlacementEvent struct {
	Shard   partition.ShardID `json:"shard"`
	OrderID string            `json:"orderId"`

	Side  model.Side      `json:"side"`
	Kind  model.OrderKind `json:"kind"`
	Price uint64          `json:"price,omitempty"`

	ExecutedQuantity  uint64 `json:"executedQuantity"`
	RemainingQuantity uint64 `json:"remainingQuantity"`
	CrossedShards     bool   `json:"crossedShards"`

	Timestamp time.Time `json:"timestamp"`
}

// PlacementListener observes placements after their statistics have been
// recorded. Implementations must not block: they are invoked on the
// placement path.
type PlacementListener interface {
	OrderPlaced(event PlacementEvent)
}
