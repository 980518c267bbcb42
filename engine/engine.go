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

// Package engine defines the matching-engine contract the coordinator
// delegates to. Engine internals, custody and settlement live behind it.
package engine

import (
	"context"

	"github.com/streamnative/tranche/coordinator/model"
	"github.com/streamnative/tranche/partition"
)

// OrderRequest carries the inputs of one placement. Price is ignored for
// market orders. Custody is an opaque proof of funds or asset custody:
// only the engine interprets it, the coordinator passes it through.
type OrderRequest struct {
	Side     model.Side
	Kind     model.OrderKind
	Price    uint64
	Quantity uint64
	Custody  any
}

// IsMarket reports whether the request is a market order.
func (r OrderRequest) IsMarket() bool {
	return r.Kind == model.OrderKindMarket
}

// Execution is what an engine reports back for one placement.
type Execution struct {
	OrderID          string
	ExecutedQuantity uint64
	OriginalQuantity uint64
}

// Engine is one shard's matching engine. Instances are supplied by the
// caller per coordinator call, not looked up by the coordinator: the
// registry only verifies that the supplied identity matches the routed
// shard's binding.
type Engine interface {
	// ID returns the engine identity compared against the registry's
	// bound identity.
	ID() model.EngineID

	// PlaceOrder executes or rests the order and reports the executed
	// and original quantities with the new order's identifier.
	PlaceOrder(ctx context.Context, req OrderRequest) (Execution, error)

	// CanPlace is a pure admissibility check with the same inputs as
	// PlaceOrder. It mutates nothing; nil means the order would be
	// accepted.
	CanPlace(ctx context.Context, req OrderRequest) error

	// MidPrice returns the midpoint between the best bid and best ask,
	// or false when the book cannot produce a positive mid.
	MidPrice(ctx context.Context) (uint64, bool)
}

// Provider resolves the engine currently serving a shard, for read paths
// that scan multiple shards. False means the shard has no resolvable
// engine right now.
type Provider interface {
	GetEngine(shard partition.ShardID) (Engine, bool)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(shard partition.ShardID) (Engine, bool)

func (f ProviderFunc) GetEngine(shard partition.ShardID) (Engine, bool) {
	return f(shard)
}
