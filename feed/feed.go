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

// Package feed publishes placement events to downstream consumers. The
// coordinator invokes the feed on its placement path, so implementations
// buffer and never block.
package feed

import (
	"io"

	"github.com/streamnative/tranche/coordinator"
)

// Feed receives placement events from a coordinator and forwards them to
// an external sink.
type Feed interface {
	coordinator.PlacementListener
	io.Closer
}

type noopFeed struct{}

// NewNoopFeed discards every event. Used when no downstream sink is
// configured.
func NewNoopFeed() Feed {
	return &noopFeed{}
}

func (*noopFeed) OrderPlaced(coordinator.PlacementEvent) {
}

func (*noopFeed) Close() error {
	return nil
}
