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

package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/streamnative/tranche/coordinator/model"
	"github.com/streamnative/tranche/engine"
	"github.com/streamnative/tranche/partition"
)

func limit(side model.Side, price, quantity uint64) engine.OrderRequest {
	return engine.OrderRequest{Side: side, Kind: model.OrderKindLimit, Price: price, Quantity: quantity}
}

func market(side model.Side, quantity uint64) engine.OrderRequest {
	return engine.OrderRequest{Side: side, Kind: model.OrderKindMarket, Quantity: quantity}
}

func TestEngineRestAndMatch(t *testing.T) {
	e := NewEngine("test-engine")
	ctx := context.Background()

	execution, err := e.PlaceOrder(ctx, limit(model.SideSell, 100, 10))
	assert.NoError(t, err)
	assert.NotEmpty(t, execution.OrderID)
	assert.EqualValues(t, 0, execution.ExecutedQuantity)
	assert.EqualValues(t, 10, execution.OriginalQuantity)

	ask, ok := e.BestAsk()
	assert.True(t, ok)
	assert.EqualValues(t, 100, ask)

	// A bid below the best ask rests instead of matching.
	execution, err = e.PlaceOrder(ctx, limit(model.SideBuy, 99, 5))
	assert.NoError(t, err)
	assert.EqualValues(t, 0, execution.ExecutedQuantity)

	bid, ok := e.BestBid()
	assert.True(t, ok)
	assert.EqualValues(t, 99, bid)

	// A bid at the ask crosses.
	execution, err = e.PlaceOrder(ctx, limit(model.SideBuy, 100, 4))
	assert.NoError(t, err)
	assert.EqualValues(t, 4, execution.ExecutedQuantity)

	ask, ok = e.BestAsk()
	assert.True(t, ok)
	assert.EqualValues(t, 100, ask)
}

func TestEnginePriceTimePriority(t *testing.T) {
	e := NewEngine("test-engine")
	ctx := context.Background()

	_, err := e.PlaceOrder(ctx, limit(model.SideSell, 100, 10))
	assert.NoError(t, err)
	_, err = e.PlaceOrder(ctx, limit(model.SideSell, 99, 5))
	assert.NoError(t, err)
	_, err = e.PlaceOrder(ctx, limit(model.SideSell, 100, 7))
	assert.NoError(t, err)

	// Best price first: 5 at 99, then in arrival order at 100: all 10 of
	// the first order before any of the 7 behind it.
	execution, err := e.PlaceOrder(ctx, limit(model.SideBuy, 100, 20))
	assert.NoError(t, err)
	assert.EqualValues(t, 20, execution.ExecutedQuantity)

	// Only the tail of the later order at 100 is left.
	ask, ok := e.BestAsk()
	assert.True(t, ok)
	assert.EqualValues(t, 100, ask)

	execution, err = e.PlaceOrder(ctx, market(model.SideBuy, 10))
	assert.NoError(t, err)
	assert.EqualValues(t, 2, execution.ExecutedQuantity)
}

func TestEngineMarketNeverRests(t *testing.T) {
	e := NewEngine("test-engine")
	ctx := context.Background()

	// Market against an empty book executes nothing and leaves nothing.
	execution, err := e.PlaceOrder(ctx, market(model.SideBuy, 5))
	assert.NoError(t, err)
	assert.EqualValues(t, 0, execution.ExecutedQuantity)
	assert.EqualValues(t, 5, execution.OriginalQuantity)
	_, ok := e.BestBid()
	assert.False(t, ok)

	_, err = e.PlaceOrder(ctx, limit(model.SideSell, 100, 3))
	assert.NoError(t, err)

	// The unfilled remainder is dropped, never rested.
	execution, err = e.PlaceOrder(ctx, market(model.SideBuy, 10))
	assert.NoError(t, err)
	assert.EqualValues(t, 3, execution.ExecutedQuantity)

	_, ok = e.BestBid()
	assert.False(t, ok)
	_, ok = e.BestAsk()
	assert.False(t, ok)
}

func TestEngineMidPrice(t *testing.T) {
	e := NewEngine("test-engine")
	ctx := context.Background()

	_, ok := e.MidPrice(ctx)
	assert.False(t, ok)

	_, err := e.PlaceOrder(ctx, limit(model.SideBuy, 100, 1))
	assert.NoError(t, err)

	// One side alone has no mid.
	_, ok = e.MidPrice(ctx)
	assert.False(t, ok)

	_, err = e.PlaceOrder(ctx, limit(model.SideSell, 200, 1))
	assert.NoError(t, err)

	mid, ok := e.MidPrice(ctx)
	assert.True(t, ok)
	assert.EqualValues(t, 150, mid)
}

func TestEngineValidation(t *testing.T) {
	e := NewEngine("test-engine")
	ctx := context.Background()

	_, err := e.PlaceOrder(ctx, engine.OrderRequest{Kind: model.OrderKindLimit, Price: 100, Quantity: 1})
	assert.ErrorIs(t, err, ErrUnknownSide)

	_, err = e.PlaceOrder(ctx, limit(model.SideBuy, 100, 0))
	assert.ErrorIs(t, err, ErrZeroQuantity)

	_, err = e.PlaceOrder(ctx, limit(model.SideBuy, 0, 1))
	assert.ErrorIs(t, err, ErrPriceOutOfDomain)
	_, err = e.PlaceOrder(ctx, limit(model.SideBuy, partition.MaxPrice, 1))
	assert.ErrorIs(t, err, ErrPriceOutOfDomain)

	// Market orders carry no price, so none is validated.
	assert.NoError(t, e.CanPlace(ctx, limit(model.SideBuy, 100, 1)))
	assert.ErrorIs(t, e.CanPlace(ctx, market(model.SideBuy, 1)), ErrNoOpposingLiquidity)

	_, err = e.PlaceOrder(ctx, limit(model.SideSell, 100, 1))
	assert.NoError(t, err)
	assert.NoError(t, e.CanPlace(ctx, market(model.SideBuy, 1)))
}
