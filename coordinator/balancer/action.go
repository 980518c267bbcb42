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

package balancer

import (
	"fmt"

	"github.com/streamnative/tranche/partition"
)

type ActionType string

const (
	ShedLoad ActionType = "shed-load"
)

type Action interface {
	Type() ActionType
}

var _ Action = &ShedLoadAction{}

// ShedLoadAction advises that one shard exceeds its fair share of the
// routed flow by more than the configured skew threshold.
type ShedLoadAction struct {
	Shard partition.ShardID

	// OrderShare and VolumeShare are the shard's fraction of the total
	// order count and total executed volume across active shards.
	OrderShare  float64
	VolumeShare float64
}

func (a *ShedLoadAction) Type() ActionType {
	return ShedLoad
}

func (a *ShedLoadAction) String() string {
	return fmt.Sprintf("shed-load{shard=%d, orders=%.3f, volume=%.3f}", a.Shard, a.OrderShare, a.VolumeShare)
}
