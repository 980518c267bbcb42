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

package standalone

import (
	"fmt"

	"github.com/streamnative/tranche/coordinator"
	"github.com/streamnative/tranche/coordinator/model"
	"github.com/streamnative/tranche/engine"
	"github.com/streamnative/tranche/engine/inmem"
	"github.com/streamnative/tranche/partition"
)

var _ engine.Provider = &engineSet{}

// engineSet owns one in-memory matching engine per configured shard and
// resolves them for the admin placement path.
type engineSet struct {
	engines map[partition.ShardID]*inmem.Engine
}

func newEngineSet(shardCount uint32) *engineSet {
	engines := make(map[partition.ShardID]*inmem.Engine, shardCount)
	for i := uint32(0); i < shardCount; i++ {
		shard := partition.ShardID(i)
		engines[shard] = inmem.NewEngine(model.EngineID(fmt.Sprintf("standalone-shard-%d", i)))
	}
	return &engineSet{engines: engines}
}

func (s *engineSet) registerAll(coord coordinator.Coordinator) error {
	for shard, eng := range s.engines {
		if err := coord.RegisterShard(shard, eng.ID()); err != nil {
			return err
		}
	}
	return nil
}

func (s *engineSet) GetEngine(shard partition.ShardID) (engine.Engine, bool) {
	eng, ok := s.engines[shard]
	if !ok {
		return nil, false
	}
	return eng, true
}
