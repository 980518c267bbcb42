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
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/bmizerany/perks/quantile"
	"golang.org/x/time/rate"

	"github.com/streamnative/tranche/coordinator"
	"github.com/streamnative/tranche/coordinator/model"
	"github.com/streamnative/tranche/engine"
	"github.com/streamnative/tranche/engine/inmem"
	"github.com/streamnative/tranche/partition"
)

type Config struct {
	ShardCount    uint32
	AutoRebalance bool

	RequestRate      float64
	MarketPercentage float64
	PriceCardinality uint32
	MaxQuantity      uint64
}

type Perf interface {
	Run(context.Context)
}

func New(config Config) Perf {
	return &perf{
		config: config,
	}
}

type perf struct {
	config    Config
	coord     coordinator.Coordinator
	engines   map[partition.ShardID]*inmem.Engine
	prices    []uint64
	failedOps atomic.Int64
}

func (p *perf) Run(ctx context.Context) {
	slog.Info("Starting tranche perf client", slog.Any("config", p.config))

	coord, err := coordinator.NewCoordinator(coordinator.Config{
		BasePartition:      "perf",
		Enabled:            true,
		CrossShardMatching: true,
		AutoRebalance:      p.config.AutoRebalance,
		ShardCount:         p.config.ShardCount,
	})
	if err != nil {
		slog.Error("Failed to create coordinator", slog.Any("error", err))
		os.Exit(1)
	}
	defer coord.Close()
	p.coord = coord

	p.engines = make(map[partition.ShardID]*inmem.Engine)
	for shard := partition.ShardID(0); shard < partition.ShardID(p.config.ShardCount); shard++ {
		eng := inmem.NewEngine(model.EngineID(fmt.Sprintf("perf-shard-%d", shard)))
		p.engines[shard] = eng
		if err := coord.RegisterShard(shard, eng.ID()); err != nil {
			slog.Error("Failed to register shard", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Prices are drawn log-uniformly so that every shard of the logarithmic
	// partition table sees comparable traffic.
	p.prices = make([]uint64, p.config.PriceCardinality)
	maxExp := math.Log2(float64(partition.MaxPrice))
	for i := range p.prices {
		price := uint64(math.Exp2(rand.Float64() * maxExp))
		if price < partition.MinPrice {
			price = partition.MinPrice
		}
		if price >= partition.MaxPrice {
			price = partition.MaxPrice - 1
		}
		p.prices[i] = price
	}

	limitLatencyCh := make(chan int64)
	go p.generateLimitTraffic(ctx, limitLatencyCh)

	marketLatencyCh := make(chan int64)
	go p.generateMarketTraffic(ctx, marketLatencyCh)

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	lq := quantile.NewTargeted(0.50, 0.95, 0.99, 0.999, 1.0)
	mq := quantile.NewTargeted(0.50, 0.95, 0.99, 0.999, 1.0)
	limitOps := 0
	marketOps := 0

	for {
		select {
		case <-ticker.C:
			limitRate := float64(limitOps) / float64(10)
			marketRate := float64(marketOps) / float64(10)
			failedOpsRate := float64(p.failedOps.Swap(0)) / float64(10)
			slog.Info(fmt.Sprintf(`Stats - Total ops: %6.1f ops/s - Failed ops: %6.1f ops/s
			Limit  ops %6.1f l/s  Latency ms: 50%% %5.1f - 95%% %5.1f - 99%% %5.1f - 99.9%% %5.1f - max %6.1f
			Market ops %6.1f m/s  Latency ms: 50%% %5.1f - 95%% %5.1f - 99%% %5.1f - 99.9%% %5.1f - max %6.1f`,
				limitRate+marketRate,
				failedOpsRate,
				limitRate,
				lq.Query(0.5),
				lq.Query(0.95),
				lq.Query(0.99),
				lq.Query(0.999),
				lq.Query(1.0),
				marketRate,
				mq.Query(0.5),
				mq.Query(0.95),
				mq.Query(0.99),
				mq.Query(0.999),
				mq.Query(1.0),
			))

			lq.Reset()
			mq.Reset()
			limitOps = 0
			marketOps = 0

		case ll := <-limitLatencyCh:
			limitOps++
			lq.Insert(float64(ll) / 1000.0) // Convert to millis

		case ml := <-marketLatencyCh:
			marketOps++
			mq.Insert(float64(ml) / 1000.0) // Convert to millis

		case <-ctx.Done():
			return
		}
	}
}

func (p *perf) generateLimitTraffic(ctx context.Context, latencyCh chan int64) {
	limitRate := p.config.RequestRate * (100.0 - p.config.MarketPercentage) / 100
	limiter := rate.NewLimiter(rate.Limit(limitRate), int(limitRate))

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		isBid := rand.Intn(2) == 0
		price := p.prices[rand.Intn(len(p.prices))]

		decision, err := p.coord.RouteLimitOrder(price, isBid)
		if err != nil {
			slog.Warn("Routing has failed",
				slog.Any("error", err),
				slog.Uint64("price", price))
			p.failedOps.Add(1)
			continue
		}

		request := engine.OrderRequest{
			Side:     sideOf(isBid),
			Kind:     model.OrderKindLimit,
			Price:    price,
			Quantity: uint64(rand.Int63n(int64(p.config.MaxQuantity))) + 1,
		}

		start := time.Now()
		if _, err := p.coord.PlaceLimitOrder(ctx, p.engines[decision.Target], request); err != nil {
			slog.Warn("Operation has failed",
				slog.Any("error", err),
				slog.Uint64("price", price))
			p.failedOps.Add(1)
		} else {
			latencyCh <- time.Since(start).Microseconds()
		}
	}
}

func (p *perf) generateMarketTraffic(ctx context.Context, latencyCh chan int64) {
	marketRate := p.config.RequestRate * p.config.MarketPercentage / 100
	limiter := rate.NewLimiter(rate.Limit(marketRate), int(marketRate))

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		isBid := rand.Intn(2) == 0

		priority, err := p.coord.RouteMarketOrder(isBid)
		if err != nil {
			slog.Warn("Routing has failed", slog.Any("error", err))
			p.failedOps.Add(1)
			continue
		}

		request := engine.OrderRequest{
			Side:     sideOf(isBid),
			Kind:     model.OrderKindMarket,
			Quantity: uint64(rand.Int63n(int64(p.config.MaxQuantity))) + 1,
		}

		start := time.Now()
		if _, err := p.coord.PlaceMarketOrder(ctx, p.engines[priority[0]], request); err != nil {
			slog.Warn("Operation has failed", slog.Any("error", err))
			p.failedOps.Add(1)
		} else {
			latencyCh <- time.Since(start).Microseconds()
		}
	}
}

func sideOf(isBid bool) model.Side {
	if isBid {
		return model.SideBuy
	}
	return model.SideSell
}
