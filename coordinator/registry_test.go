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
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/streamnative/tranche/coordinator/model"
	"github.com/streamnative/tranche/partition"
)

func newTestRegistry(t *testing.T, shardCount uint32) *Registry {
	t.Helper()
	config, err := partition.NewConfig(shardCount)
	assert.NoError(t, err)
	return NewRegistry(config)
}

func registerAll(t *testing.T, r *Registry, shardCount uint32) {
	t.Helper()
	for i := uint32(0); i < shardCount; i++ {
		shard := partition.ShardID(i)
		assert.NoError(t, r.RegisterShard(shard, model.EngineID(fmt.Sprintf("engine-%d", i))))
	}
}

func TestRegistryOutOfRange(t *testing.T) {
	r := newTestRegistry(t, 4)

	assert.ErrorIs(t, r.RegisterShard(4, "engine-4"), ErrShardIndexOutOfRange)
	assert.ErrorIs(t, r.RegisterShard(100, "engine-100"), ErrShardIndexOutOfRange)
	assert.ErrorIs(t, r.DeactivateShard(4), ErrShardIndexOutOfRange)
	assert.Equal(t, 0, r.ActiveCount())

	// Reads stay safe for indexes that do not exist.
	assert.False(t, r.IsShardActive(99))
	_, ok := r.BoundEngine(99)
	assert.False(t, ok)
	_, ok = r.ActiveEngine(99)
	assert.False(t, ok)
}

func TestRegistryLifecycle(t *testing.T) {
	r := newTestRegistry(t, 4)

	assert.False(t, r.IsShardActive(1))
	_, ok := r.BoundEngine(1)
	assert.False(t, ok)

	assert.NoError(t, r.RegisterShard(1, "engine-a"))
	assert.True(t, r.IsShardActive(1))
	assert.Equal(t, 1, r.ActiveCount())

	engineID, ok := r.BoundEngine(1)
	assert.True(t, ok)
	assert.Equal(t, model.EngineID("engine-a"), engineID)

	// Re-registration swaps the identity without inflating the count.
	assert.NoError(t, r.RegisterShard(1, "engine-b"))
	assert.Equal(t, 1, r.ActiveCount())
	engineID, _ = r.BoundEngine(1)
	assert.Equal(t, model.EngineID("engine-b"), engineID)

	assert.NoError(t, r.DeactivateShard(1))
	assert.False(t, r.IsShardActive(1))
	assert.Equal(t, 0, r.ActiveCount())

	// The binding survives deactivation but is no longer active.
	engineID, ok = r.BoundEngine(1)
	assert.True(t, ok)
	assert.Equal(t, model.EngineID("engine-b"), engineID)
	_, ok = r.ActiveEngine(1)
	assert.False(t, ok)

	// Deactivating twice does not drive the count negative.
	assert.NoError(t, r.DeactivateShard(1))
	assert.Equal(t, 0, r.ActiveCount())

	assert.NoError(t, r.RegisterShard(1, "engine-b"))
	assert.Equal(t, 1, r.ActiveCount())
	engineID, ok = r.ActiveEngine(1)
	assert.True(t, ok)
	assert.Equal(t, model.EngineID("engine-b"), engineID)
}

func TestRegistryMarketPriority(t *testing.T) {
	r := newTestRegistry(t, 8)
	registerAll(t, r, 8)

	buys, err := r.RouteMarketOrder(true)
	assert.NoError(t, err)
	assert.Equal(t, []partition.ShardID{0, 1, 2, 3, 4, 5, 6, 7}, buys)

	sells, err := r.RouteMarketOrder(false)
	assert.NoError(t, err)
	assert.Equal(t, []partition.ShardID{7, 6, 5, 4, 3, 2, 1, 0}, sells)

	// Inactive shards drop out of the priority list.
	assert.NoError(t, r.DeactivateShard(3))
	buys, err = r.RouteMarketOrder(true)
	assert.NoError(t, err)
	assert.Equal(t, []partition.ShardID{0, 1, 2, 4, 5, 6, 7}, buys)

	for i := uint32(0); i < 8; i++ {
		assert.NoError(t, r.DeactivateShard(partition.ShardID(i)))
	}
	_, err = r.RouteMarketOrder(true)
	assert.ErrorIs(t, err, ErrNoActiveShards)
}

func TestRegistryLimitFallbacks(t *testing.T) {
	r := newTestRegistry(t, 8)
	registerAll(t, r, 8)

	// 262144 sits exactly on the boundary between shards 2 and 3: a bid
	// there may need asks resting just below.
	decision := r.RouteLimitOrder(1<<18, true)
	assert.Equal(t, partition.ShardID(3), decision.Target)
	assert.True(t, decision.RequiresCrossShard)
	assert.Equal(t, []partition.ShardID{2, 4}, decision.Fallbacks)

	// Fallbacks track shard liveness.
	assert.NoError(t, r.DeactivateShard(2))
	decision = r.RouteLimitOrder(1<<18, true)
	assert.True(t, decision.RequiresCrossShard)
	assert.Equal(t, []partition.ShardID{4}, decision.Fallbacks)

	assert.NoError(t, r.DeactivateShard(4))
	decision = r.RouteLimitOrder(1<<18, true)
	assert.True(t, decision.RequiresCrossShard)
	assert.Empty(t, decision.Fallbacks)

	// Away from any boundary there is nothing to cross into.
	decision = r.RouteLimitOrder(1000, true)
	assert.Equal(t, partition.ShardID(1), decision.Target)
	assert.False(t, decision.RequiresCrossShard)
	assert.Empty(t, decision.Fallbacks)
}

func TestRegistryRecordOrder(t *testing.T) {
	r := newTestRegistry(t, 4)
	registerAll(t, r, 4)

	orders, volume := r.ShardStats(2)
	assert.EqualValues(t, 0, orders)
	assert.True(t, volume.IsZero())

	r.RecordOrder(2, 100)
	r.RecordOrder(2, 150)
	orders, volume = r.ShardStats(2)
	assert.EqualValues(t, 2, orders)
	assert.True(t, volume.Equal(decimal.NewFromInt(250)))

	// Out of range is ignored, not failed.
	r.RecordOrder(100, 1000)
	orders, volume = r.ShardStats(100)
	assert.EqualValues(t, 0, orders)
	assert.True(t, volume.IsZero())
}

func TestRegistryLoads(t *testing.T) {
	r := newTestRegistry(t, 4)
	assert.Empty(t, r.Loads())

	assert.NoError(t, r.RegisterShard(0, "engine-0"))
	assert.NoError(t, r.RegisterShard(2, "engine-2"))
	r.RecordOrder(0, 42)

	loads := r.Loads()
	assert.Len(t, loads, 2)

	assert.Equal(t, partition.ShardID(0), loads[0].Shard)
	assert.EqualValues(t, 1, loads[0].OrderCount)
	assert.True(t, loads[0].TotalVolume.Equal(decimal.NewFromInt(42)))
	assert.Equal(t, r.Config().ShardRange(0), loads[0].PriceRange)

	assert.Equal(t, partition.ShardID(2), loads[1].Shard)
	assert.EqualValues(t, 0, loads[1].OrderCount)
	assert.Equal(t, r.Config().ShardRange(2), loads[1].PriceRange)
}

func TestRegistryStatusRoundTrip(t *testing.T) {
	r := newTestRegistry(t, 4)
	registerAll(t, r, 4)
	assert.NoError(t, r.DeactivateShard(3))
	r.RecordOrder(1, 100)
	r.RecordOrder(1, 100)

	snapshot := r.Status()
	assert.Equal(t, r.Config().Fingerprint(), snapshot.Fingerprint)
	assert.EqualValues(t, 4, snapshot.ShardCount)
	assert.Len(t, snapshot.Shards, 4)
	assert.True(t, snapshot.Shards[0].Active)
	assert.False(t, snapshot.Shards[3].Active)

	restored := newTestRegistry(t, 4)
	assert.NoError(t, restored.Restore(snapshot))

	// Counters and bindings come back; activation does not, engines are
	// expected to re-register.
	orders, volume := restored.ShardStats(1)
	assert.EqualValues(t, 2, orders)
	assert.True(t, volume.Equal(decimal.NewFromInt(200)))

	engineID, ok := restored.BoundEngine(1)
	assert.True(t, ok)
	assert.Equal(t, model.EngineID("engine-1"), engineID)
	assert.Equal(t, 0, restored.ActiveCount())
	assert.False(t, restored.IsShardActive(0))
}

func TestRegistryRestoreFingerprintMismatch(t *testing.T) {
	r := newTestRegistry(t, 4)

	snapshot := r.Status()
	snapshot.Fingerprint++
	assert.ErrorIs(t, r.Restore(snapshot), ErrStatusFingerprintMismatch)
}

func TestRegistryRestoreSkipsUnknownShards(t *testing.T) {
	r := newTestRegistry(t, 4)

	snapshot := r.Status()
	snapshot.Shards = append(snapshot.Shards, model.ShardState{
		Shard:       99,
		OrderCount:  7,
		TotalVolume: decimal.NewFromInt(7),
	})
	assert.NoError(t, r.Restore(snapshot))

	orders, _ := r.ShardStats(99)
	assert.EqualValues(t, 0, orders)
}
