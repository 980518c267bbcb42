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
	"io"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/streamnative/tranche/cmd/flag"
	"github.com/streamnative/tranche/common/process"
	"github.com/streamnative/tranche/coordinator"
	"github.com/streamnative/tranche/standalone"
)

var (
	conf = standalone.Config{
		Config: coordinator.NewConfig(),
	}
	configFile string

	Cmd = &cobra.Command{
		Use:   "standalone",
		Short: "Start a standalone deployment",
		Long:  `Start a coordinator with one in-memory matching engine per shard, for development and testing`,
		RunE:  exec,
	}
)

func init() {
	flag.AdminAddr(Cmd, &conf.AdminServiceAddr)
	flag.MetricsAddr(Cmd, &conf.MetricsServiceAddr)
	Cmd.Flags().StringVar((*string)(&conf.BasePartition), "base-partition", "standalone", "Identity of the order book this deployment fronts")
	Cmd.Flags().Uint32VarP(&conf.ShardCount, "shards", "s", conf.ShardCount, "Number of price shards")
	Cmd.Flags().BoolVar(&conf.AutoRebalance, "auto-rebalance", false, "Advise when the shard load distribution skews")
	Cmd.Flags().StringVar(&conf.StatusPath, "status-path", "", "File where the registry status is persisted; kept in memory when empty")
	Cmd.Flags().StringSliceVar(&conf.KafkaBrokers, "kafka-brokers", nil, "Kafka brokers for the placement feed")
	Cmd.Flags().StringVar(&conf.KafkaTopic, "kafka-topic", "", "Kafka topic for the placement feed")
	Cmd.Flags().StringVarP(&configFile, "conf", "f", "", "Feature config file, watched for changes")
}

// featureConfig is the hot-reloadable subset of the coordinator
// configuration. Shard count and auto-rebalance are fixed for the process
// lifetime.
type featureConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	CrossShardMatching bool `mapstructure:"crossShardMatching"`
}

func loadFeatureConfig(v *viper.Viper) (featureConfig, error) {
	fc := featureConfig{
		Enabled:            true,
		CrossShardMatching: true,
	}
	if err := v.ReadInConfig(); err != nil {
		return fc, err
	}
	if err := v.Unmarshal(&fc, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return fc, errors.Wrap(err, "failed to load feature config")
	}
	return fc, nil
}

func exec(*cobra.Command, []string) error {
	if configFile == "" {
		process.RunProcess(func() (io.Closer, error) {
			return standalone.New(conf)
		})
		return nil
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)

	fc, err := loadFeatureConfig(v)
	if err != nil {
		return err
	}
	conf.Enabled = fc.Enabled
	conf.CrossShardMatching = fc.CrossShardMatching

	process.RunProcess(func() (io.Closer, error) {
		server, err := standalone.New(conf)
		if err != nil {
			return nil, err
		}

		v.OnConfigChange(func(_ fsnotify.Event) {
			fc, err := loadFeatureConfig(v)
			if err != nil {
				slog.Error("Failed to reload feature config", slog.Any("error", err))
				return
			}
			server.Coordinator().SetEnabled(fc.Enabled)
			server.Coordinator().SetCrossShardMatching(fc.CrossShardMatching)
		})
		v.WatchConfig()

		return server, nil
	})
	return nil
}
