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

package partition

// Tolerance band for boundary proximity: 0.1% of the order price, in
// integer ticks.
const crossToleranceDivisor = 1000

// RouteOrder resolves the primary shard for an order and whether its
// execution may need to cross into a neighboring shard.
//
// Market orders may always cross: they can need liquidity from more than
// one partition. A limit order may cross only when its price sits within
// the tolerance band of the boundary facing the opposing book: bids check
// the boundary below their shard, asks the boundary above. Edge shards
// with no such boundary never cross.
func (c *Config) RouteOrder(price uint64, isMarket, isBid bool) (primary ShardID, mayCross bool) {
	primary = c.ShardForPrice(price)
	if isMarket {
		return primary, true
	}

	tolerance := price / crossToleranceDivisor
	if isBid {
		if primary == 0 {
			return primary, false
		}
		lower := c.boundaries[primary-1]
		return primary, price-lower <= tolerance
	}

	if uint32(primary) == c.count-1 {
		return primary, false
	}
	upper := c.boundaries[primary]
	return primary, upper-price <= tolerance
}

// MatchingShards returns every configured shard in traversal priority for
// a market order seeking the opposite side: ascending for a buy, since ask
// prices grow with the shard index, descending for a sell. The ordering is
// fixed partition geometry, not a re-derivation of price priority from
// live book state.
func (c *Config) MatchingShards(isBid bool) []ShardID {
	shards := make([]ShardID, c.count)
	for i := uint32(0); i < c.count; i++ {
		if isBid {
			shards[i] = ShardID(i)
		} else {
			shards[i] = ShardID(c.count - 1 - i)
		}
	}
	return shards
}
