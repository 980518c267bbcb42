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

// Package standalone runs a complete tranche deployment in one process: a
// coordinator, one in-memory matching engine per shard, an admin HTTP API,
// and optionally a Kafka placement feed and a Prometheus endpoint.
package standalone

import (
	"log/slog"

	"go.uber.org/multierr"

	"github.com/streamnative/tranche/common/metric"
	"github.com/streamnative/tranche/coordinator"
	"github.com/streamnative/tranche/coordinator/status"
	"github.com/streamnative/tranche/engine"
	"github.com/streamnative/tranche/feed"
)

type Config struct {
	coordinator.Config

	AdminServiceAddr   string
	MetricsServiceAddr string

	// StatusPath persists registry snapshots to a local file when set.
	// Empty keeps them in memory only.
	StatusPath string

	// KafkaBrokers and KafkaTopic enable the placement feed when both
	// are set.
	KafkaBrokers []string
	KafkaTopic   string
}

func NewTestConfig() Config {
	config := coordinator.NewConfig()
	config.BasePartition = "standalone"
	return Config{
		Config:             config,
		AdminServiceAddr:   "localhost:0",
		MetricsServiceAddr: "",
	}
}

type Standalone struct {
	config  Config
	coord   coordinator.Coordinator
	engines *engineSet
	feed    feed.Feed
	admin   *adminServer
	metrics *metric.PrometheusMetrics
}

func New(config Config) (*Standalone, error) {
	slog.Info(
		"Starting tranche standalone",
		slog.Any("config", config),
	)

	s := &Standalone{config: config}

	if len(config.KafkaBrokers) > 0 && config.KafkaTopic != "" {
		s.feed = feed.NewKafkaFeed(config.KafkaBrokers, config.KafkaTopic)
	} else {
		s.feed = feed.NewNoopFeed()
	}

	options := []coordinator.Option{
		coordinator.WithPlacementListener(s.feed),
	}
	if config.StatusPath != "" {
		options = append(options, coordinator.WithStatusProvider(status.NewFileProvider(config.StatusPath)))
	}

	var err error
	if s.coord, err = coordinator.NewCoordinator(config.Config, options...); err != nil {
		return nil, err
	}

	s.engines = newEngineSet(s.coord.PartitionConfig().Count())
	if err = s.engines.registerAll(s.coord); err != nil {
		return nil, err
	}

	if s.admin, err = newAdminServer(config.AdminServiceAddr, s.coord, s.engines); err != nil {
		return nil, err
	}

	if config.MetricsServiceAddr != "" {
		if s.metrics, err = metric.Start(config.MetricsServiceAddr); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Standalone) Coordinator() coordinator.Coordinator {
	return s.coord
}

func (s *Standalone) Engines() engine.Provider {
	return s.engines
}

func (s *Standalone) AdminPort() int {
	return s.admin.Port()
}

func (s *Standalone) Close() error {
	var err error
	if s.metrics != nil {
		err = s.metrics.Close()
	}

	return multierr.Combine(
		err,
		s.admin.Close(),
		s.coord.Close(),
		s.feed.Close(),
	)
}
