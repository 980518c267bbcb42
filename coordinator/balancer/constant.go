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

import "time"

const (
	// DefaultSkewThreshold is the multiple of the fair per-shard share a
	// shard must exceed before advice is emitted.
	DefaultSkewThreshold float64 = 2.0

	defaultScheduleInterval = time.Second * 30
	defaultCooldownTime     = time.Minute * 5

	actionBufferSize = 64
)

var triggerEvent = struct{}{}
