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
	"github.com/shopspring/decimal"

	"github.com/streamnative/tranche/coordinator/model"
	"github.com/streamnative/tranche/partition"
)

type loadShare struct {
	shard       partition.ShardID
	orderShare  float64
	volumeShare float64
}

// loadShares normalizes a load snapshot into per-shard fractions of the
// total order count and total executed volume. Returns nil when no shard
// has seen any flow yet.
func loadShares(loads []model.ShardLoad) []loadShare {
	var totalOrders uint64
	totalVolume := decimal.Zero
	for i := range loads {
		totalOrders += loads[i].OrderCount
		totalVolume = totalVolume.Add(loads[i].TotalVolume)
	}
	if totalOrders == 0 && !totalVolume.IsPositive() {
		return nil
	}

	shares := make([]loadShare, 0, len(loads))
	for i := range loads {
		share := loadShare{shard: loads[i].Shard}
		if totalOrders > 0 {
			share.orderShare = float64(loads[i].OrderCount) / float64(totalOrders)
		}
		if totalVolume.IsPositive() {
			share.volumeShare, _ = loads[i].TotalVolume.Div(totalVolume).Float64()
		}
		shares = append(shares, share)
	}
	return shares
}

// Balanced reports whether no shard exceeds the fair per-shard share of
// orders or volume by more than the skew threshold. A snapshot with fewer
// than two loaded shards is trivially balanced.
func Balanced(loads []model.ShardLoad, skewThreshold float64) bool {
	shares := loadShares(loads)
	if len(shares) < 2 {
		return true
	}

	threshold := skewThreshold / float64(len(shares))
	for _, share := range shares {
		if share.orderShare > threshold || share.volumeShare > threshold {
			return false
		}
	}
	return true
}
