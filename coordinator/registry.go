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
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/streamnative/tranche/coordinator/model"
	"github.com/streamnative/tranche/partition"
)

// Registry tracks the runtime state of every configured shard: the engine
// identity bound to it, whether it is active, and its order statistics. It
// also answers routing queries that depend on shard liveness, layering the
// active-neighbor and active-only filters on top of the pure partition
// arithmetic.
//
// Reads return safe defaults for out-of-range shards so stale references
// never abort a larger caller flow. Mutations fail hard instead, since a
// write against the wrong shard has correctness consequences.
type Registry struct {
	config *partition.Config

	mu          sync.RWMutex
	states      []model.ShardState
	activeCount int
}

// NewRegistry creates a registry with one inactive state per configured
// shard.
func NewRegistry(config *partition.Config) *Registry {
	states := make([]model.ShardState, config.Count())
	for i := range states {
		states[i] = model.ShardState{
			Shard:       partition.ShardID(i),
			TotalVolume: decimal.Zero,
		}
	}

	return &Registry{
		config: config,
		states: states,
	}
}

func (r *Registry) Config() *partition.Config {
	return r.config
}

// RegisterShard binds an engine identity to a shard and marks it active.
// Re-registering an already active shard only updates the identity, so the
// active count is never inflated.
func (r *Registry) RegisterShard(shard partition.ShardID, engine model.EngineID) error {
	if uint32(shard) >= r.config.Count() {
		return errors.Wrapf(ErrShardIndexOutOfRange, "register shard %d of %d", shard, r.config.Count())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state := &r.states[shard]
	if !state.Active {
		state.Active = true
		r.activeCount++
	}
	state.EngineID = engine
	return nil
}

// DeactivateShard marks a shard inactive, preserving its bound identity
// and counters for a later re-registration.
func (r *Registry) DeactivateShard(shard partition.ShardID) error {
	if uint32(shard) >= r.config.Count() {
		return errors.Wrapf(ErrShardIndexOutOfRange, "deactivate shard %d of %d", shard, r.config.Count())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state := &r.states[shard]
	if state.Active {
		state.Active = false
		r.activeCount--
	}
	return nil
}

// RouteLimitOrder resolves the primary shard for a limit order and, when
// the price sits in the boundary tolerance band, the active immediate
// neighbors that could hold matchable liquidity, lower neighbor first.
func (r *Registry) RouteLimitOrder(price uint64, isBid bool) model.RoutingDecision {
	primary, mayCross := r.config.RouteOrder(price, false, isBid)
	decision := model.RoutingDecision{
		Target:             primary,
		RequiresCrossShard: mayCross,
	}
	if !mayCross {
		return decision
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if primary > 0 && r.states[primary-1].Active {
		decision.Fallbacks = append(decision.Fallbacks, primary-1)
	}
	if uint32(primary)+1 < r.config.Count() && r.states[primary+1].Active {
		decision.Fallbacks = append(decision.Fallbacks, primary+1)
	}
	return decision
}

// RouteMarketOrder returns the active shards a market order should consult,
// in traversal priority for the opposing side.
func (r *Registry) RouteMarketOrder(isBid bool) ([]partition.ShardID, error) {
	priority := r.config.MatchingShards(isBid)

	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]partition.ShardID, 0, r.activeCount)
	for _, shard := range priority {
		if r.states[shard].Active {
			active = append(active, shard)
		}
	}
	if len(active) == 0 {
		return nil, ErrNoActiveShards
	}
	return active, nil
}

// RecordOrder accounts one executed order against a shard. An out-of-range
// shard is silently ignored, tolerating transient configuration drift
// between a routing decision and its accounting.
func (r *Registry) RecordOrder(shard partition.ShardID, volume uint64) {
	if uint32(shard) >= r.config.Count() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state := &r.states[shard]
	state.OrderCount++
	state.TotalVolume = state.TotalVolume.Add(decimal.NewFromUint64(volume))
}

// ShardStats returns the order count and accumulated volume of a shard, or
// zeros when the shard is out of range.
func (r *Registry) ShardStats(shard partition.ShardID) (orderCount uint64, totalVolume decimal.Decimal) {
	if uint32(shard) >= r.config.Count() {
		return 0, decimal.Zero
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	state := r.states[shard]
	return state.OrderCount, state.TotalVolume
}

func (r *Registry) IsShardActive(shard partition.ShardID) bool {
	if uint32(shard) >= r.config.Count() {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.states[shard].Active
}

// BoundEngine returns the engine identity last bound to a shard, whether or
// not the shard is currently active.
func (r *Registry) BoundEngine(shard partition.ShardID) (model.EngineID, bool) {
	if uint32(shard) >= r.config.Count() {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	engine := r.states[shard].EngineID
	return engine, engine != ""
}

// ActiveEngine returns the engine identity bound to a shard only when the
// shard is active and has a binding. Placement paths use it to resolve the
// identity they verify the caller-supplied engine against.
func (r *Registry) ActiveEngine(shard partition.ShardID) (model.EngineID, bool) {
	if uint32(shard) >= r.config.Count() {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	state := r.states[shard]
	if !state.Active || state.EngineID == "" {
		return "", false
	}
	return state.EngineID, true
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeCount
}

// Loads snapshots the per-shard statistics of every active shard together
// with the price range it serves.
func (r *Registry) Loads() []model.ShardLoad {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loads := make([]model.ShardLoad, 0, r.activeCount)
	for i := range r.states {
		state := &r.states[i]
		if !state.Active {
			continue
		}
		loads = append(loads, model.ShardLoad{
			Shard:       state.Shard,
			OrderCount:  state.OrderCount,
			TotalVolume: state.TotalVolume,
			PriceRange:  r.config.ShardRange(state.Shard),
		})
	}
	return loads
}

// Status snapshots the full registry state for persistence.
func (r *Registry) Status() *model.RegistryStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := model.NewRegistryStatus(r.config.Fingerprint(), r.config.Count())
	for i := range r.states {
		status.Shards = append(status.Shards, r.states[i].Clone())
	}
	return status
}

// Restore rehydrates counters and engine bindings from a persisted
// snapshot taken under the same partition geometry. Active flags are not
// restored: engines are expected to re-register after a restart, so every
// shard comes back inactive.
func (r *Registry) Restore(status *model.RegistryStatus) error {
	if status.Fingerprint != r.config.Fingerprint() {
		return errors.Wrapf(ErrStatusFingerprintMismatch,
			"snapshot fingerprint %d, partition fingerprint %d",
			status.Fingerprint, r.config.Fingerprint())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, snapshot := range status.Shards {
		if uint32(snapshot.Shard) >= r.config.Count() {
			continue
		}
		state := &r.states[snapshot.Shard]
		state.EngineID = snapshot.EngineID
		state.Active = false
		state.OrderCount = snapshot.OrderCount
		state.TotalVolume = snapshot.TotalVolume
	}
	r.activeCount = 0
	return nil
}
