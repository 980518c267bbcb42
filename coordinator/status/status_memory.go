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

package status

import (
	"strconv"
	"sync"

	"github.com/streamnative/tranche/coordinator/model"
)

// memoryProvider keeps the registry status in memory. Used for unit tests
// and single-process deployments that can afford to lose counters on
// restart.
type memoryProvider struct {
	sync.Mutex

	status  *model.RegistryStatus
	version Version
}

func NewMemoryProvider() Provider {
	return &memoryProvider{
		status:  nil,
		version: StatusNotExists,
	}
}

func (m *memoryProvider) Close() error {
	return nil
}

func (m *memoryProvider) Get() (status *model.RegistryStatus, version Version, err error) {
	m.Lock()
	defer m.Unlock()
	return m.status, m.version, nil
}

func (m *memoryProvider) Store(status *model.RegistryStatus, expectedVersion Version) (newVersion Version, err error) {
	m.Lock()
	defer m.Unlock()

	if expectedVersion != m.version {
		return StatusNotExists, ErrStatusBadVersion
	}

	m.status = status.Clone()
	m.version = incrVersion(m.version)
	return m.version, nil
}

func incrVersion(version Version) Version {
	i, err := strconv.ParseInt(string(version), 10, 32)
	if err != nil {
		return ""
	}
	i++
	return Version(strconv.FormatInt(i, 10))
}
