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
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/juju/fslock"
	"github.com/pkg/errors"

	"github.com/streamnative/tranche/coordinator/model"
)

// fileProvider keeps the registry status in a local file, using a lock
// mechanism to prevent missing updates between concurrent processes.
type fileProvider struct {
	path     string
	fileLock *fslock.Lock
}

type StatusContainer struct {
	RegistryStatus *model.RegistryStatus `json:"registryStatus"`
	Version        Version               `json:"version"`
}

func NewFileProvider(path string) Provider {
	return &fileProvider{
		path:     path,
		fileLock: fslock.New(path),
	}
}

func (f *fileProvider) Close() error {
	return nil
}

func (f *fileProvider) Get() (status *model.RegistryStatus, version Version, err error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, StatusNotExists, nil
		}
		return nil, StatusNotExists, err
	}

	if len(content) == 0 {
		return nil, StatusNotExists, nil
	}

	sc := StatusContainer{}
	if err = json.Unmarshal(content, &sc); err != nil {
		return nil, StatusNotExists, err
	}

	return sc.RegistryStatus, sc.Version, nil
}

func (f *fileProvider) Store(status *model.RegistryStatus, expectedVersion Version) (newVersion Version, err error) {
	// Ensure directory exists
	parentDir := filepath.Dir(f.path)
	if _, err := os.Stat(parentDir); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(parentDir, 0755); err != nil {
				return StatusNotExists, err
			}
		} else {
			return StatusNotExists, err
		}
	}

	if err := f.fileLock.Lock(); err != nil {
		return "", errors.Wrap(err, "failed to acquire file lock")
	}
	defer func() {
		if err := f.fileLock.Unlock(); err != nil {
			slog.Warn(
				"Failed to release file lock on status",
				slog.Any("error", err),
			)
		}
	}()

	_, existingVersion, err := f.Get()
	if err != nil {
		return StatusNotExists, err
	}

	if expectedVersion != existingVersion {
		return StatusNotExists, ErrStatusBadVersion
	}

	newVersion = incrVersion(existingVersion)
	newContent, err := json.Marshal(StatusContainer{
		RegistryStatus: status,
		Version:        newVersion,
	})
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(f.path, newContent, 0640); err != nil {
		return StatusNotExists, err
	}

	return newVersion, nil
}
