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
	"github.com/pkg/errors"
)

var (
	// ErrShardIndexOutOfRange indicates a shard index outside the configured partition range.
	ErrShardIndexOutOfRange = errors.New("tranche: shard index out of range")

	// ErrCoordinatorDisabled indicates the coordinator was asked to route or place
	// an order while routing is switched off.
	ErrCoordinatorDisabled = errors.New("tranche: coordinator is disabled")

	// ErrNoActiveShards indicates no shard has a live engine registered, so there
	// is no venue a market order could execute on.
	ErrNoActiveShards = errors.New("tranche: no active shards")

	// ErrShardBindingMismatch indicates the engine bound to a shard does not match
	// the engine the caller expects. Placements fail hard on it rather than fall
	// back, since executing on the wrong book would corrupt both shards.
	ErrShardBindingMismatch = errors.New("tranche: engine does not match shard binding")

	// ErrStatusFingerprintMismatch indicates a persisted registry snapshot was
	// produced under a different partition layout and cannot be restored.
	ErrStatusFingerprintMismatch = errors.New("tranche: status snapshot does not match partition layout")
)
