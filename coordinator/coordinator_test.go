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
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/streamnative/tranche/coordinator/model"
	"github.com/streamnative/tranche/coordinator/status"
	"github.com/streamnative/tranche/engine"
	"github.com/streamnative/tranche/partition"
)

type testEngine struct {
	id       model.EngineID
	err      error
	canPlace error
	mid      uint64
	hasMid   bool

	// executed and original shape the reported execution; a zero
	// original falls back to the request quantity.
	executed uint64
	original uint64

	placeCalls int
}

func newTestEngine(id model.EngineID) *testEngine {
	return &testEngine{id: id}
}

func (e *testEngine) ID() model.EngineID {
	return e.id
}

func (e *testEngine) PlaceOrder(_ context.Context, request engine.OrderRequest) (engine.Execution, error) {
	e.placeCalls++
	if e.err != nil {
		return engine.Execution{}, e.err
	}
	original := e.original
	if original == 0 {
		original = request.Quantity
	}
	return engine.Execution{
		OrderID:          "order-1",
		ExecutedQuantity: e.executed,
		OriginalQuantity: original,
	}, nil
}

func (e *testEngine) CanPlace(context.Context, engine.OrderRequest) error {
	return e.canPlace
}

func (e *testEngine) MidPrice(context.Context) (uint64, bool) {
	return e.mid, e.hasMid
}

type capturedEvents struct {
	events []PlacementEvent
}

func (l *capturedEvents) OrderPlaced(event PlacementEvent) {
	l.events = append(l.events, event)
}

func newTestCoordinator(t *testing.T, config Config, options ...Option) Coordinator {
	t.Helper()
	c, err := NewCoordinator(config, options...)
	assert.NoError(t, err)
	return c
}

func limitBuy(price, quantity uint64) engine.OrderRequest {
	return engine.OrderRequest{
		Side:     model.SideBuy,
		Kind:     model.OrderKindLimit,
		Price:    price,
		Quantity: quantity,
	}
}

func TestCoordinatorDisabled(t *testing.T) {
	config := NewConfig()
	config.Enabled = false
	config.ShardCount = 4
	c := newTestCoordinator(t, config)

	assert.False(t, c.IsEnabled())

	// Lifecycle operations are not gated on the routing switch.
	eng := newTestEngine("engine-0")
	assert.NoError(t, c.RegisterShard(0, eng.ID()))

	_, err := c.RouteLimitOrder(100, true)
	assert.ErrorIs(t, err, ErrCoordinatorDisabled)
	_, err = c.RouteMarketOrder(true)
	assert.ErrorIs(t, err, ErrCoordinatorDisabled)

	_, err = c.PlaceLimitOrder(context.Background(), eng, limitBuy(100, 10))
	assert.ErrorIs(t, err, ErrCoordinatorDisabled)

	market := engine.OrderRequest{Side: model.SideSell, Kind: model.OrderKindMarket, Quantity: 10}
	_, err = c.PlaceMarketOrder(context.Background(), eng, market)
	assert.ErrorIs(t, err, ErrCoordinatorDisabled)

	assert.False(t, c.CanPlaceOrder(context.Background(), eng, limitBuy(100, 10)))

	provider := engine.ProviderFunc(func(partition.ShardID) (engine.Engine, bool) {
		return eng, true
	})
	_, ok := c.BestPriceAcrossShards(context.Background(), provider, true)
	assert.False(t, ok)

	// Nothing reached the engine and nothing was recorded.
	assert.Equal(t, 0, eng.placeCalls)
	orders, _ := c.ShardStats(0)
	assert.EqualValues(t, 0, orders)

	// Observability is not gated either.
	assert.Len(t, c.ShardLoads(), 1)

	c.SetEnabled(true)
	assert.True(t, c.IsEnabled())
	_, err = c.RouteLimitOrder(100, true)
	assert.NoError(t, err)

	assert.NoError(t, c.Close())
}

func TestCoordinatorBasePartition(t *testing.T) {
	config := NewConfig()
	config.BasePartition = "book-BTC-USD"
	config.ShardCount = 4
	c := newTestCoordinator(t, config)

	assert.Equal(t, model.EngineID("book-BTC-USD"), c.BasePartition())
	assert.NoError(t, c.Close())
}

func TestCoordinatorPlaceLimit(t *testing.T) {
	config := NewConfig()
	config.ShardCount = 4
	listener := &capturedEvents{}
	c := newTestCoordinator(t, config, WithPlacementListener(listener))

	// Price 100 maps to shard 0.
	eng := newTestEngine("engine-0")
	eng.executed = 4
	assert.NoError(t, c.RegisterShard(0, eng.ID()))

	placement, err := c.PlaceLimitOrder(context.Background(), eng, limitBuy(100, 10))
	assert.NoError(t, err)
	assert.Equal(t, partition.ShardID(0), placement.ShardUsed)
	assert.Equal(t, "order-1", placement.OrderID)
	assert.False(t, placement.CrossedShards)
	assert.EqualValues(t, 4, placement.ExecutedQuantity)
	assert.EqualValues(t, 6, placement.RemainingQuantity)
	assert.Equal(t, 1, eng.placeCalls)

	orders, volume := c.ShardStats(0)
	assert.EqualValues(t, 1, orders)
	assert.True(t, volume.Equal(decimal.NewFromInt(4)))

	assert.Len(t, listener.events, 1)
	event := listener.events[0]
	assert.Equal(t, partition.ShardID(0), event.Shard)
	assert.Equal(t, "order-1", event.OrderID)
	assert.Equal(t, model.SideBuy, event.Side)
	assert.Equal(t, model.OrderKindLimit, event.Kind)
	assert.EqualValues(t, 100, event.Price)
	assert.EqualValues(t, 4, event.ExecutedQuantity)
	assert.EqualValues(t, 6, event.RemainingQuantity)
	assert.False(t, event.CrossedShards)
	assert.False(t, event.Timestamp.IsZero())

	assert.NoError(t, c.Close())
}

func TestCoordinatorBindingMismatch(t *testing.T) {
	config := NewConfig()
	config.ShardCount = 4
	c := newTestCoordinator(t, config)

	assert.NoError(t, c.RegisterShard(0, "engine-0"))

	// The supplied instance claims an identity the shard is not bound
	// to: the engine must not be touched.
	imposter := newTestEngine("engine-x")
	_, err := c.PlaceLimitOrder(context.Background(), imposter, limitBuy(100, 10))
	assert.ErrorIs(t, err, ErrShardBindingMismatch)
	assert.Equal(t, 0, imposter.placeCalls)

	orders, _ := c.ShardStats(0)
	assert.EqualValues(t, 0, orders)

	// A shard without an active engine fails the same way.
	assert.NoError(t, c.DeactivateShard(0))
	eng := newTestEngine("engine-0")
	_, err = c.PlaceLimitOrder(context.Background(), eng, limitBuy(100, 10))
	assert.ErrorIs(t, err, ErrShardBindingMismatch)
	assert.Equal(t, 0, eng.placeCalls)

	assert.NoError(t, c.Close())
}

func TestCoordinatorEngineFailure(t *testing.T) {
	config := NewConfig()
	config.ShardCount = 4
	c := newTestCoordinator(t, config)

	eng := newTestEngine("engine-0")
	eng.err = errors.New("book unavailable")
	assert.NoError(t, c.RegisterShard(0, eng.ID()))

	_, err := c.PlaceLimitOrder(context.Background(), eng, limitBuy(100, 10))
	assert.Error(t, err)

	// A failed delegation leaves no trace in the statistics.
	orders, _ := c.ShardStats(0)
	assert.EqualValues(t, 0, orders)

	assert.NoError(t, c.Close())
}

func TestCoordinatorEngineContractViolation(t *testing.T) {
	config := NewConfig()
	config.ShardCount = 4
	listener := &capturedEvents{}
	c := newTestCoordinator(t, config, WithPlacementListener(listener))

	// An engine claiming to execute more than it was given is a
	// contract violation, not a partial success.
	eng := newTestEngine("engine-0")
	eng.executed = 11
	eng.original = 10
	assert.NoError(t, c.RegisterShard(0, eng.ID()))

	_, err := c.PlaceLimitOrder(context.Background(), eng, limitBuy(100, 10))
	assert.Error(t, err)

	orders, _ := c.ShardStats(0)
	assert.EqualValues(t, 0, orders)
	assert.Empty(t, listener.events)

	assert.NoError(t, c.Close())
}

func TestCoordinatorCrossShardGate(t *testing.T) {
	config := NewConfig()
	config.ShardCount = 4
	c := newTestCoordinator(t, config)

	engines := make([]*testEngine, 4)
	for i := range engines {
		engines[i] = newTestEngine(model.EngineID(fmt.Sprintf("engine-%d", i)))
		assert.NoError(t, c.RegisterShard(partition.ShardID(i), engines[i].ID()))
	}

	// 4096 sits exactly on the boundary between shards 0 and 1.
	decision, err := c.RouteLimitOrder(1<<12, true)
	assert.NoError(t, err)
	assert.Equal(t, partition.ShardID(1), decision.Target)
	assert.True(t, decision.RequiresCrossShard)
	assert.Equal(t, []partition.ShardID{0, 2}, decision.Fallbacks)

	placement, err := c.PlaceLimitOrder(context.Background(), engines[1], limitBuy(1<<12, 10))
	assert.NoError(t, err)
	assert.True(t, placement.CrossedShards)

	// With the feature off the same price neither crosses nor carries
	// fallbacks.
	c.SetCrossShardMatching(false)
	assert.False(t, c.CrossShardMatching())

	decision, err = c.RouteLimitOrder(1<<12, true)
	assert.NoError(t, err)
	assert.Equal(t, partition.ShardID(1), decision.Target)
	assert.False(t, decision.RequiresCrossShard)
	assert.Empty(t, decision.Fallbacks)

	placement, err = c.PlaceLimitOrder(context.Background(), engines[1], limitBuy(1<<12, 10))
	assert.NoError(t, err)
	assert.False(t, placement.CrossedShards)

	c.SetCrossShardMatching(true)
	decision, err = c.RouteLimitOrder(1<<12, true)
	assert.NoError(t, err)
	assert.True(t, decision.RequiresCrossShard)

	assert.NoError(t, c.Close())
}

func TestCoordinatorPlaceMarket(t *testing.T) {
	config := NewConfig()
	config.ShardCount = 4
	c := newTestCoordinator(t, config)

	_, err := c.RouteMarketOrder(true)
	assert.ErrorIs(t, err, ErrNoActiveShards)

	engines := make([]*testEngine, 4)
	for i := range engines {
		engines[i] = newTestEngine(model.EngineID(fmt.Sprintf("engine-%d", i)))
		engines[i].executed = 5
		assert.NoError(t, c.RegisterShard(partition.ShardID(i), engines[i].ID()))
	}

	// A buy consults shards in ascending order, so shard 0 executes.
	buy := engine.OrderRequest{Side: model.SideBuy, Kind: model.OrderKindMarket, Quantity: 8}
	placement, err := c.PlaceMarketOrder(context.Background(), engines[0], buy)
	assert.NoError(t, err)
	assert.Equal(t, partition.ShardID(0), placement.ShardUsed)
	assert.True(t, placement.CrossedShards)
	assert.EqualValues(t, 5, placement.ExecutedQuantity)
	assert.EqualValues(t, 3, placement.RemainingQuantity)

	// A sell starts from the top shard.
	sell := engine.OrderRequest{Side: model.SideSell, Kind: model.OrderKindMarket, Quantity: 8}
	placement, err = c.PlaceMarketOrder(context.Background(), engines[3], sell)
	assert.NoError(t, err)
	assert.Equal(t, partition.ShardID(3), placement.ShardUsed)

	// Supplying an engine that is not first in priority is a mismatch,
	// never a silent reroute.
	_, err = c.PlaceMarketOrder(context.Background(), engines[2], buy)
	assert.ErrorIs(t, err, ErrShardBindingMismatch)
	assert.Equal(t, 0, engines[2].placeCalls)

	// With a single active shard there is nothing to cross into.
	for i := 1; i < 4; i++ {
		assert.NoError(t, c.DeactivateShard(partition.ShardID(i)))
	}
	placement, err = c.PlaceMarketOrder(context.Background(), engines[0], buy)
	assert.NoError(t, err)
	assert.False(t, placement.CrossedShards)

	assert.NoError(t, c.Close())
}

func TestCoordinatorCanPlaceOrder(t *testing.T) {
	config := NewConfig()
	config.ShardCount = 4
	c := newTestCoordinator(t, config)

	eng := newTestEngine("engine-0")

	// Nothing is registered yet.
	assert.False(t, c.CanPlaceOrder(context.Background(), eng, limitBuy(100, 10)))

	assert.NoError(t, c.RegisterShard(0, eng.ID()))
	assert.True(t, c.CanPlaceOrder(context.Background(), eng, limitBuy(100, 10)))

	// The engine's own admissibility check is consulted.
	eng.canPlace = errors.New("rejected")
	assert.False(t, c.CanPlaceOrder(context.Background(), eng, limitBuy(100, 10)))
	eng.canPlace = nil

	// Wrong engine for the routed shard.
	imposter := newTestEngine("engine-x")
	assert.False(t, c.CanPlaceOrder(context.Background(), imposter, limitBuy(100, 10)))

	// Market orders check the head of the priority list.
	market := engine.OrderRequest{Side: model.SideBuy, Kind: model.OrderKindMarket, Quantity: 10}
	assert.True(t, c.CanPlaceOrder(context.Background(), eng, market))

	// The check itself never mutates the book.
	assert.Equal(t, 0, eng.placeCalls)

	assert.NoError(t, c.Close())
}

func TestCoordinatorBestPrice(t *testing.T) {
	config := NewConfig()
	config.ShardCount = 4
	c := newTestCoordinator(t, config)

	engines := make(map[partition.ShardID]*testEngine)
	for i := 0; i < 4; i++ {
		shard := partition.ShardID(i)
		engines[shard] = newTestEngine(model.EngineID(fmt.Sprintf("engine-%d", i)))
		assert.NoError(t, c.RegisterShard(shard, engines[shard].ID()))
	}
	provider := engine.ProviderFunc(func(shard partition.ShardID) (engine.Engine, bool) {
		eng, ok := engines[shard]
		if !ok {
			return nil, false
		}
		return eng, true
	})

	// No shard produces a mid yet.
	_, ok := c.BestPriceAcrossShards(context.Background(), provider, true)
	assert.False(t, ok)

	engines[1].mid, engines[1].hasMid = 5000, true
	engines[2].mid, engines[2].hasMid = 70000, true

	// The bid side keeps the minimum, the ask side the maximum.
	price, ok := c.BestPriceAcrossShards(context.Background(), provider, true)
	assert.True(t, ok)
	assert.EqualValues(t, 5000, price)

	price, ok = c.BestPriceAcrossShards(context.Background(), provider, false)
	assert.True(t, ok)
	assert.EqualValues(t, 70000, price)

	// A zero mid is not a price.
	engines[3].mid, engines[3].hasMid = 0, true
	price, ok = c.BestPriceAcrossShards(context.Background(), provider, false)
	assert.True(t, ok)
	assert.EqualValues(t, 70000, price)

	assert.NoError(t, c.Close())
}

func TestCoordinatorStatusPersistence(t *testing.T) {
	provider := status.NewMemoryProvider()
	config := NewConfig()
	config.ShardCount = 4

	c, err := NewCoordinator(config, WithStatusProvider(provider))
	assert.NoError(t, err)

	eng := newTestEngine("engine-0")
	eng.executed = 10
	assert.NoError(t, c.RegisterShard(0, eng.ID()))
	_, err = c.PlaceLimitOrder(context.Background(), eng, limitBuy(100, 10))
	assert.NoError(t, err)
	assert.NoError(t, c.Close())

	restored, err := NewCoordinator(config, WithStatusProvider(provider))
	assert.NoError(t, err)

	orders, volume := restored.ShardStats(0)
	assert.EqualValues(t, 1, orders)
	assert.True(t, volume.Equal(decimal.NewFromInt(10)))

	engineID, ok := restored.BoundEngine(0)
	assert.True(t, ok)
	assert.Equal(t, model.EngineID("engine-0"), engineID)

	// Activation does not survive a restart; engines must re-register.
	assert.False(t, restored.IsShardActive(0))
	assert.Equal(t, 0, restored.ActiveShardCount())
	assert.NoError(t, restored.Close())

	// A snapshot taken under a different partition layout is refused.
	config.ShardCount = 8
	_, err = NewCoordinator(config, WithStatusProvider(provider))
	assert.ErrorIs(t, err, ErrStatusFingerprintMismatch)
}

type failingStore struct {
	status.Provider
}

func (f *failingStore) Store(*model.RegistryStatus, status.Version) (status.Version, error) {
	return status.StatusNotExists, errors.New("store unavailable")
}

func TestCoordinatorStoreFailureDoesNotFailRegistration(t *testing.T) {
	config := NewConfig()
	config.ShardCount = 4
	c, err := NewCoordinator(config, WithStatusProvider(&failingStore{status.NewMemoryProvider()}))
	assert.NoError(t, err)

	// Snapshot persistence is best effort on the lifecycle path.
	assert.NoError(t, c.RegisterShard(0, "engine-0"))
	assert.True(t, c.IsShardActive(0))

	// The final snapshot on close does surface the failure.
	assert.Error(t, c.Close())
}

func TestCoordinatorAutoRebalance(t *testing.T) {
	config := NewConfig()
	config.ShardCount = 4
	config.AutoRebalance = true
	c := newTestCoordinator(t, config)
	assert.True(t, c.AutoRebalance())

	for i := 0; i < 4; i++ {
		assert.NoError(t, c.RegisterShard(partition.ShardID(i), model.EngineID(fmt.Sprintf("engine-%d", i))))
	}

	// No flow at all is trivially balanced.
	assert.True(t, c.IsBalanced())

	eng := newTestEngine("engine-0")
	eng.executed = 10
	assert.NoError(t, c.RegisterShard(0, eng.ID()))
	for i := 0; i < 10; i++ {
		_, err := c.PlaceLimitOrder(context.Background(), eng, limitBuy(100, 10))
		assert.NoError(t, err)
	}

	// All flow on one of four shards exceeds twice the fair share.
	assert.False(t, c.IsBalanced())

	c.TriggerRebalance()
	assert.NoError(t, c.Close())
}

func TestCoordinatorWithoutAdvisor(t *testing.T) {
	config := NewConfig()
	config.ShardCount = 4
	c := newTestCoordinator(t, config)

	assert.False(t, c.AutoRebalance())
	assert.True(t, c.IsBalanced())
	c.TriggerRebalance()

	assert.NoError(t, c.Close())
}
