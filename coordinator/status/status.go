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

// Package status persists point-in-time snapshots of the shard registry,
// so a restarted coordinator can rehydrate per-shard counters and engine
// bindings instead of starting from zero.
package status

import (
	"io"

	"github.com/pkg/errors"

	"github.com/streamnative/tranche/coordinator/model"
)

// Version is an opaque compare-and-swap token attached to each stored
// snapshot.
type Version string

// StatusNotExists is the version of a snapshot that was never stored.
const StatusNotExists Version = "-1"

// ErrStatusBadVersion rejects a Store whose expected version is not the
// latest stored one.
var ErrStatusBadVersion = errors.New("tranche: status bad version")

// Provider stores and retrieves registry snapshots with optimistic
// concurrency: a Store only succeeds when the caller proves it has seen
// the latest stored version.
type Provider interface {
	io.Closer

	Get() (status *model.RegistryStatus, version Version, err error)

	Store(status *model.RegistryStatus, expectedVersion Version) (newVersion Version, err error)
}
