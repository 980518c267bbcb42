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

// ShardState is the mutable runtime state of one configured shard. One
// instance exists per shard index, created inactive at registry
// construction; shards are never deleted, only flagged.
type ShardState struct {
	Shard partition.ShardID `json:"shard" yaml:"shard"`

	// EngineID is the identity bound by the most recent registration.
	// Deactivation preserves it.
	EngineID EngineID `json:"engineId,omitempty" yaml:"engineId,omitempty"`

	Active bool `json:"active" yaml:"active"`

	OrderCount uint64 `json:"orderCount" yaml:"orderCount"`

	// TotalVolume accumulates executed volume over the shard lifetime.
	// The decimal representation cannot silently wrap under sustained
	// load.
	TotalVolume decimal.Decimal `json:"totalVolume" yaml:"totalVolume"`
}

func (s ShardState) Clone() ShardState {
	return ShardState{
		Shard:       s.Shard,
		EngineID:    s.EngineID,
		Active:      s.Active,
		OrderCount:  s.OrderCount,
		TotalVolume: s.TotalVolume,
	}
}

// RegistryStatus is a point-in-time snapshot of the full registry state,
// persisted through a status.Provider so a restarted coordinator can
// rehydrate counters and bindings.
type RegistryStatus struct {
	// Fingerprint identifies the partition geometry the snapshot was
	// taken under.
	Fingerprint uint32 `json:"fingerprint" yaml:"fingerprint"`

	ShardCount uint32 `json:"shardCount" yaml:"shardCount"`

	Shards []ShardState `json:"shards" yaml:"shards"`
}

func NewRegistryStatus(fingerprint uint32, shardCount uint32) *RegistryStatus {
	return &RegistryStatus{
		Fingerprint: fingerprint,
		ShardCount:  shardCount,
		Shards:      make([]ShardState, 0, shardCount),
	}
}

func (r *RegistryStatus) Clone() *RegistryStatus {
	clone := &RegistryStatus{
		Fingerprint: r.Fingerprint,
		ShardCount:  r.ShardCount,
		Shards:      make([]ShardState, len(r.Shards)),
	}
	for i, s := range r.Shards {
		clone.Shards[i] = s.Clone()
	}
	return clone
}
