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

// Package partition implements the price-domain partitioning math: how the
// admissible price range is split into contiguous shards, and how a price
// maps to the shard that owns it.
package partition

import (
	"encoding/binary"
	"math"
	"slices"
	"sort"

	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
)

const (
	// MinPrice is the lowest admissible price tick, inclusive.
	MinPrice uint64 = 1

	// MaxPrice is the upper bound of the price domain, exclusive.
	MaxPrice uint64 = 1 << 48

	MinShardCount uint32 = 2
	MaxShardCount uint32 = 16
)

var ErrInvalidShardCount = errors.New("tranche: shard count out of range")

// ShardID identifies one partition of the price domain. It carries no
// engine identity by itself.
type ShardID uint32

// PriceRange is the half-open interval [Min, Max) of prices owned by one
// shard.
type PriceRange struct {
	Min uint64 `json:"min" yaml:"min"`
	Max uint64 `json:"max" yaml:"max"`
}

// Config is an immutable description of a price partition: the shard count
// and the ordered boundary list. Shard i covers [boundaries[i-1],
// boundaries[i]), with shard 0 starting at MinPrice and the last shard
// extending to MaxPrice.
type Config struct {
	count      uint32
	boundaries []uint64
}

// NewConfig builds the partition for the given shard count. Boundaries are
// placed by logarithmic interpolation between MinPrice and MaxPrice, so
// shards covering lower price magnitudes are narrower, matching where order
// density is typically higher.
//
// Only monotonicity and determinism for a given count are contractual:
// boundary values are free to be approximations.
func NewConfig(shardCount uint32) (*Config, error) {
	if shardCount < MinShardCount || shardCount > MaxShardCount {
		return nil, errors.Wrapf(ErrInvalidShardCount,
			"shard count %d not in [%d, %d]", shardCount, MinShardCount, MaxShardCount)
	}

	lo := math.Log2(float64(MinPrice))
	hi := math.Log2(float64(MaxPrice))
	step := (hi - lo) / float64(shardCount)

	boundaries := make([]uint64, 0, shardCount-1)
	for i := uint32(1); i < shardCount; i++ {
		boundaries = append(boundaries, uint64(math.Exp2(lo+step*float64(i))))
	}

	prev := MinPrice
	for _, b := range boundaries {
		if b <= prev || b >= MaxPrice {
			return nil, errors.Wrapf(ErrInvalidShardCount,
				"degenerate boundaries for shard count %d", shardCount)
		}
		prev = b
	}

	return &Config{
		count:      shardCount,
		boundaries: boundaries,
	}, nil
}

func (c *Config) Count() uint32 {
	return c.count
}

// Boundaries returns a copy of the boundary list, len == Count()-1.
func (c *Config) Boundaries() []uint64 {
	return slices.Clone(c.boundaries)
}

// ShardForPrice maps a price to the shard that owns it: the smallest index
// i such that price < boundaries[i], or the last shard if there is none.
// It is total over all inputs and monotonic non-decreasing in price.
func (c *Config) ShardForPrice(price uint64) ShardID {
	idx := sort.Search(len(c.boundaries), func(i int) bool {
		return price < c.boundaries[i]
	})
	return ShardID(idx)
}

// ShardRange returns the price range owned by the shard. Edge shards extend
// to the domain MinPrice/MaxPrice. An out-of-range shard yields the zero
// range, never a failure.
func (c *Config) ShardRange(shard ShardID) PriceRange {
	if uint32(shard) >= c.count {
		return PriceRange{}
	}

	r := PriceRange{Min: MinPrice, Max: MaxPrice}
	if shard > 0 {
		r.Min = c.boundaries[shard-1]
	}
	if uint32(shard) < c.count-1 {
		r.Max = c.boundaries[shard]
	}
	return r
}

// Fingerprint is a deterministic hash of the partition geometry, used to
// cheap-check that two parties agree on the same configuration.
func (c *Config) Fingerprint() uint32 {
	buf := make([]byte, 0, 8*(len(c.boundaries)+1))
	buf = binary.BigEndian.AppendUint64(buf, uint64(c.count))
	for _, b := range c.boundaries {
		buf = binary.BigEndian.AppendUint64(buf, b)
	}
	return uint32(xxh3.Hash(buf))
}
