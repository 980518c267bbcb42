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

package perf

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/streamnative/tranche/common/process"
	"github.com/streamnative/tranche/perf"
)

var (
	Cmd = &cobra.Command{
		Use:   "perf",
		Short: "Tranche perf client",
		Long:  `Tranche tool for basic performance tests`,
		Run:   exec,
	}

	config = perf.Config{}
)

func init() {
	Cmd.Flags().Uint32VarP(&config.ShardCount, "shards", "s", 8, "Number of price shards")
	Cmd.Flags().BoolVar(&config.AutoRebalance, "auto-rebalance", false, "Advise when the shard load distribution skews")

	Cmd.Flags().Float64VarP(&config.RequestRate, "rate", "r", 100.0, "Request rate, ops/s")
	Cmd.Flags().Float64VarP(&config.MarketPercentage, "market-percent", "p", 20.0, "Percentage of market orders, compared to total orders")
	Cmd.Flags().Uint32Var(&config.PriceCardinality, "price-cardinality", 1000, "Number of distinct prices to draw orders from")
	Cmd.Flags().Uint64Var(&config.MaxQuantity, "max-quantity", 1000, "Maximum quantity of a single order")
}

func exec(*cobra.Command, []string) {
	process.RunProcess(runPerf)
}

type closer struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newCloser(ctx context.Context) *closer {
	c := &closer{}
	c.ctx, c.cancel = context.WithCancel(ctx)
	return c
}

func (c *closer) Close() error {
	c.cancel()
	return nil
}

func runPerf() (io.Closer, error) {
	closer := newCloser(context.Background())
	go perf.New(config).Run(closer.ctx)
	return closer, nil
}
