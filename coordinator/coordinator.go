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

// Package coordinator fronts a set of independent order-matching engines
// with a single price-based routing surface. It owns the partition layout,
// tracks which engine serves each shard, and orchestrates order placement:
// resolve the target shard, verify the caller-supplied engine is the one
// bound to it, delegate execution, and account the result.
package coordinator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/streamnative/tranche/common/metric"
	"github.com/streamnative/tranche/common/process"
	time2 "github.com/streamnative/tranche/common/time"
	"github.com/streamnative/tranche/coordinator/balancer"
	"github.com/streamnative/tranche/coordinator/model"
	"github.com/streamnative/tranche/coordinator/status"
	"github.com/streamnative/tranche/engine"
	"github.com/streamnative/tranche/partition"
)

const defaultStatusFlushInterval = 1 * time.Minute

// Config carries the identity and feature toggles of one coordinator
// instance.
type Config struct {
	// BasePartition is the identity of the logical order book this
	// coordinator fronts. Shard engines partition that book; the identity
	// itself never routes.
	BasePartition model.EngineID `json:"basePartition" yaml:"basePartition"`

	// Enabled gates every routing and placement call. A disabled
	// coordinator rejects them with ErrCoordinatorDisabled until it is
	// explicitly re-enabled.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// AutoRebalance starts a background advisor that watches the load
	// distribution across shards. Fixed for the instance lifetime.
	AutoRebalance bool `json:"autoRebalance" yaml:"autoRebalance"`

	// CrossShardMatching lets limit orders near a partition boundary be
	// flagged for matching against the neighboring shard. When off,
	// routing decisions never carry the cross flag or fallbacks.
	CrossShardMatching bool `json:"crossShardMatching" yaml:"crossShardMatching"`

	// ShardCount is the number of price partitions, in [2, 16].
	ShardCount uint32 `json:"shardCount" yaml:"shardCount"`
}

func NewConfig() Config {
	return Config{
		Enabled:            true,
		CrossShardMatching: true,
		ShardCount:         8,
	}
}

type Coordinator interface {
	io.Closer

	BasePartition() model.EngineID

	SetEnabled(enabled bool)
	IsEnabled() bool
	SetCrossShardMatching(enabled bool)
	CrossShardMatching() bool
	AutoRebalance() bool

	RegisterShard(shard partition.ShardID, engineID model.EngineID) error
	DeactivateShard(shard partition.ShardID) error

	RouteLimitOrder(price uint64, isBid bool) (model.RoutingDecision, error)
	RouteMarketOrder(isBid bool) ([]partition.ShardID, error)

	PlaceLimitOrder(ctx context.Context, eng engine.Engine, request engine.OrderRequest) (model.Placement, error)
	PlaceMarketOrder(ctx context.Context, eng engine.Engine, request engine.OrderRequest) (model.Placement, error)
	CanPlaceOrder(ctx context.Context, eng engine.Engine, request engine.OrderRequest) bool
	BestPriceAcrossShards(ctx context.Context, engines engine.Provider, isBid bool) (price uint64, ok bool)

	ShardStats(shard partition.ShardID) (orderCount uint64, totalVolume decimal.Decimal)
	IsShardActive(shard partition.ShardID) bool
	BoundEngine(shard partition.ShardID) (model.EngineID, bool)
	ActiveShardCount() int
	ShardLoads() []model.ShardLoad
	Status() *model.RegistryStatus
	PartitionConfig() *partition.Config

	IsBalanced() bool
	TriggerRebalance()
}

type coordinator struct {
	sync.Mutex
	basePartition      model.EngineID
	enabled            bool
	crossShardMatching bool

	registry *Registry
	listener PlacementListener
	advisor  balancer.Advisor

	statusMu            sync.Mutex
	statusProvider      status.Provider
	statusVersion       status.Version
	statusFlushInterval time.Duration

	ordersPlaced     metric.Counter
	ordersRejected   metric.Counter
	rebalanceAdvised metric.Counter
	placementLatency metric.LatencyHistogram
	activeShards     metric.Gauge
	shardOrders      []metric.Gauge

	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type coordinatorOptions struct {
	statusProvider      status.Provider
	listener            PlacementListener
	statusFlushInterval time.Duration
}

type Option func(*coordinatorOptions)

// WithStatusProvider selects where registry snapshots are persisted. The
// coordinator takes ownership and closes the provider on Close.
func WithStatusProvider(provider status.Provider) Option {
	return func(o *coordinatorOptions) {
		o.statusProvider = provider
	}
}

// WithPlacementListener attaches an observer invoked after every
// successful placement.
func WithPlacementListener(listener PlacementListener) Option {
	return func(o *coordinatorOptions) {
		o.listener = listener
	}
}

func WithStatusFlushInterval(interval time.Duration) Option {
	return func(o *coordinatorOptions) {
		o.statusFlushInterval = interval
	}
}

func NewCoordinator(config Config, options ...Option) (Coordinator, error) {
	opts := coordinatorOptions{
		statusProvider:      status.NewMemoryProvider(),
		statusFlushInterval: defaultStatusFlushInterval,
	}
	for _, o := range options {
		o(&opts)
	}

	partitionConfig, err := partition.NewConfig(config.ShardCount)
	if err != nil {
		return nil, err
	}

	c := &coordinator{
		basePartition:       config.BasePartition,
		enabled:             config.Enabled,
		crossShardMatching:  config.CrossShardMatching,
		registry:            NewRegistry(partitionConfig),
		listener:            opts.listener,
		statusProvider:      opts.statusProvider,
		statusFlushInterval: opts.statusFlushInterval,
		log: slog.With(
			slog.String("component", "coordinator"),
			slog.String("base-partition", string(config.BasePartition)),
			slog.Int64("partition-fingerprint", int64(partitionConfig.Fingerprint())),
		),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	persisted, version, err := c.statusProvider.Get()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read persisted registry status")
	}
	c.statusVersion = version
	if persisted != nil {
		if err = c.registry.Restore(persisted); err != nil {
			return nil, err
		}
		c.log.Info(
			"Restored registry status",
			slog.String("version", string(version)),
			slog.Int("shards", len(persisted.Shards)),
		)
	}

	c.ordersPlaced = metric.NewCounter("tranche_coordinator_orders_placed",
		"The total number of orders placed through the coordinator", metric.Count, nil)
	c.ordersRejected = metric.NewCounter("tranche_coordinator_orders_rejected",
		"The total number of placements rejected before or during delegation", metric.Count, nil)
	c.rebalanceAdvised = metric.NewCounter("tranche_coordinator_rebalance_advised",
		"The total number of rebalance advisories emitted", metric.Count, nil)
	c.placementLatency = metric.NewLatencyHistogram("tranche_coordinator_placement_latency",
		"The latency of order placements, delegation included", nil)
	c.activeShards = metric.NewGauge("tranche_coordinator_active_shards",
		"The number of shards with a live engine registered", metric.Dimensionless, nil,
		func() int64 {
			return int64(c.registry.ActiveCount())
		})
	for i := uint32(0); i < partitionConfig.Count(); i++ {
		shard := partition.ShardID(i)
		c.shardOrders = append(c.shardOrders, metric.NewGauge("tranche_shard_orders",
			"The number of orders recorded against the shard", metric.Count,
			metric.LabelsForShard(int64(shard)),
			func() int64 {
				orderCount, _ := c.registry.ShardStats(shard)
				return int64(orderCount)
			}))
	}

	if config.AutoRebalance {
		c.advisor = balancer.NewAdvisor(balancer.Options{
			Context:      c.ctx,
			LoadSupplier: c.registry.Loads,
		})
		c.wg.Add(1)
		go process.DoWithLabels(c.ctx, map[string]string{
			"component": "rebalance-advice",
		}, c.consumeAdvice)
	}

	c.wg.Add(1)
	go process.DoWithLabels(c.ctx, map[string]string{
		"component": "status-flush",
	}, c.flushStatusLoop)

	return c, nil
}

func (c *coordinator) BasePartition() model.EngineID {
	return c.basePartition
}

func (c *coordinator) SetEnabled(enabled bool) {
	c.Lock()
	defer c.Unlock()
	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	c.log.Info("Coordinator routing toggled", slog.Bool("enabled", enabled))
}

func (c *coordinator) IsEnabled() bool {
	c.Lock()
	defer c.Unlock()
	return c.enabled
}

func (c *coordinator) SetCrossShardMatching(enabled bool) {
	c.Lock()
	defer c.Unlock()
	if c.crossShardMatching == enabled {
		return
	}
	c.crossShardMatching = enabled
	c.log.Info("Cross-shard matching toggled", slog.Bool("enabled", enabled))
}

func (c *coordinator) CrossShardMatching() bool {
	c.Lock()
	defer c.Unlock()
	return c.crossShardMatching
}

func (c *coordinator) AutoRebalance() bool {
	return c.advisor != nil
}

func (c *coordinator) RegisterShard(shard partition.ShardID, engineID model.EngineID) error {
	if err := c.registry.RegisterShard(shard, engineID); err != nil {
		return err
	}
	c.log.Info(
		"Registered shard engine",
		slog.Int64("shard", int64(shard)),
		slog.String("engine", string(engineID)),
	)
	if err := c.storeStatus(); err != nil {
		c.log.Warn("Failed to store registry status after registration", slog.Any("error", err))
	}
	return nil
}

func (c *coordinator) DeactivateShard(shard partition.ShardID) error {
	if err := c.registry.DeactivateShard(shard); err != nil {
		return err
	}
	c.log.Info("Deactivated shard", slog.Int64("shard", int64(shard)))
	if err := c.storeStatus(); err != nil {
		c.log.Warn("Failed to store registry status after deactivation", slog.Any("error", err))
	}
	return nil
}

func (c *coordinator) RouteLimitOrder(price uint64, isBid bool) (model.RoutingDecision, error) {
	if !c.IsEnabled() {
		return model.RoutingDecision{}, ErrCoordinatorDisabled
	}
	return c.routeLimit(price, isBid), nil
}

// routeLimit applies the cross-shard matching gate on top of the registry
// decision: with the feature off, orders never cross and never get
// fallbacks, whatever their boundary distance.
func (c *coordinator) routeLimit(price uint64, isBid bool) model.RoutingDecision {
	decision := c.registry.RouteLimitOrder(price, isBid)
	if !c.CrossShardMatching() {
		decision.RequiresCrossShard = false
		decision.Fallbacks = nil
	}
	return decision
}

func (c *coordinator) RouteMarketOrder(isBid bool) ([]partition.ShardID, error) {
	if !c.IsEnabled() {
		return nil, ErrCoordinatorDisabled
	}
	return c.registry.RouteMarketOrder(isBid)
}

// PlaceLimitOrder routes a limit order and delegates its execution to the
// caller-supplied engine. The routing, binding resolution, and identity
// verification are side-effect-free; only after they pass is the engine
// touched and the result accounted.
func (c *coordinator) PlaceLimitOrder(ctx context.Context, eng engine.Engine, request engine.OrderRequest) (model.Placement, error) {
	timer := c.placementLatency.Timer()
	defer timer.Done()

	if !c.IsEnabled() {
		c.ordersRejected.Inc()
		return model.Placement{}, ErrCoordinatorDisabled
	}

	decision := c.routeLimit(request.Price, request.Side.IsBid())
	if err := c.verifyBinding(decision.Target, eng); err != nil {
		c.ordersRejected.Inc()
		return model.Placement{}, err
	}

	// No coordinator lock is held across the delegated call: engines on
	// different shards stay independently mutable.
	execution, err := eng.PlaceOrder(ctx, request)
	if err != nil {
		c.ordersRejected.Inc()
		return model.Placement{}, err
	}

	return c.finishPlacement(decision.Target, decision.RequiresCrossShard, eng, request, execution)
}

// PlaceMarketOrder executes a market order against the best-priority
// active shard. Only that one engine is touched per invocation: a caller
// chasing residual quantity re-invokes with the next shard's engine and
// the remaining quantity. CrossedShards in the result declares that more
// than one shard was eligible, not that more than one was executed
// against.
func (c *coordinator) PlaceMarketOrder(ctx context.Context, eng engine.Engine, request engine.OrderRequest) (model.Placement, error) {
	timer := c.placementLatency.Timer()
	defer timer.Done()

	if !c.IsEnabled() {
		c.ordersRejected.Inc()
		return model.Placement{}, ErrCoordinatorDisabled
	}

	eligible, err := c.registry.RouteMarketOrder(request.Side.IsBid())
	if err != nil {
		c.ordersRejected.Inc()
		return model.Placement{}, err
	}

	primary := eligible[0]
	if err = c.verifyBinding(primary, eng); err != nil {
		c.ordersRejected.Inc()
		return model.Placement{}, err
	}

	execution, err := eng.PlaceOrder(ctx, request)
	if err != nil {
		c.ordersRejected.Inc()
		return model.Placement{}, err
	}

	return c.finishPlacement(primary, len(eligible) > 1, eng, request, execution)
}

// verifyBinding is the correctness guard of every placement: the engine
// instance is supplied per call rather than looked up, so it must be
// proven to be the engine bound to the routed shard before anything is
// executed. Failures are fatal to the call and never silently re-routed.
func (c *coordinator) verifyBinding(shard partition.ShardID, eng engine.Engine) error {
	bound, ok := c.registry.ActiveEngine(shard)
	if !ok {
		return errors.Wrapf(ErrShardBindingMismatch, "shard %d has no active engine", shard)
	}
	if bound != eng.ID() {
		return errors.Wrapf(ErrShardBindingMismatch,
			"shard %d is bound to %q, supplied engine is %q", shard, bound, eng.ID())
	}
	return nil
}

func (c *coordinator) finishPlacement(shard partition.ShardID, crossed bool,
	eng engine.Engine, request engine.OrderRequest, execution engine.Execution) (model.Placement, error) {
	if execution.ExecutedQuantity > execution.OriginalQuantity {
		c.ordersRejected.Inc()
		return model.Placement{}, errors.Errorf(
			"engine %q reported %d executed of an original %d",
			eng.ID(), execution.ExecutedQuantity, execution.OriginalQuantity)
	}

	c.registry.RecordOrder(shard, execution.ExecutedQuantity)
	c.ordersPlaced.Inc()

	placement := model.Placement{
		ShardUsed:         shard,
		OrderID:           execution.OrderID,
		CrossedShards:     crossed,
		ExecutedQuantity:  execution.ExecutedQuantity,
		RemainingQuantity: execution.OriginalQuantity - execution.ExecutedQuantity,
	}
	if c.listener != nil {
		c.listener.OrderPlaced(PlacementEvent{
			Shard:             shard,
			OrderID:           placement.OrderID,
			Side:              request.Side,
			Kind:              request.Kind,
			Price:             request.Price,
			ExecutedQuantity:  placement.ExecutedQuantity,
			RemainingQuantity: placement.RemainingQuantity,
			CrossedShards:     crossed,
			Timestamp:         time.Now(),
		})
	}
	return placement, nil
}

// CanPlaceOrder mirrors the routing and binding verification of a
// placement, plus the engine's own non-mutating admissibility check. It
// never fails: disabled, mismatched, or inadmissible all report false.
func (c *coordinator) CanPlaceOrder(ctx context.Context, eng engine.Engine, request engine.OrderRequest) bool {
	if !c.IsEnabled() {
		return false
	}

	var target partition.ShardID
	if request.IsMarket() {
		eligible, err := c.registry.RouteMarketOrder(request.Side.IsBid())
		if err != nil {
			return false
		}
		target = eligible[0]
	} else {
		target = c.registry.RouteLimitOrder(request.Price, request.Side.IsBid()).Target
	}

	if c.verifyBinding(target, eng) != nil {
		return false
	}
	return eng.CanPlace(ctx, request) == nil
}

// BestPriceAcrossShards walks the priority-ordered active shards and
// retains the best positive mid-price: the minimum for the bid side, the
// maximum for the ask side. Shards without a supplied engine or without a
// positive mid-price are skipped.
func (c *coordinator) BestPriceAcrossShards(ctx context.Context, engines engine.Provider, isBid bool) (uint64, bool) {
	if !c.IsEnabled() {
		return 0, false
	}
	eligible, err := c.registry.RouteMarketOrder(isBid)
	if err != nil {
		return 0, false
	}

	var best uint64
	found := false
	for _, shard := range eligible {
		eng, ok := engines.GetEngine(shard)
		if !ok {
			continue
		}
		mid, ok := eng.MidPrice(ctx)
		if !ok || mid == 0 {
			continue
		}
		if !found || (isBid && mid < best) || (!isBid && mid > best) {
			best = mid
			found = true
		}
	}
	return best, found
}

func (c *coordinator) ShardStats(shard partition.ShardID) (orderCount uint64, totalVolume decimal.Decimal) {
	return c.registry.ShardStats(shard)
}

func (c *coordinator) IsShardActive(shard partition.ShardID) bool {
	return c.registry.IsShardActive(shard)
}

func (c *coordinator) BoundEngine(shard partition.ShardID) (model.EngineID, bool) {
	return c.registry.BoundEngine(shard)
}

func (c *coordinator) ActiveShardCount() int {
	return c.registry.ActiveCount()
}

func (c *coordinator) ShardLoads() []model.ShardLoad {
	return c.registry.Loads()
}

func (c *coordinator) Status() *model.RegistryStatus {
	return c.registry.Status()
}

func (c *coordinator) PartitionConfig() *partition.Config {
	return c.registry.Config()
}

func (c *coordinator) IsBalanced() bool {
	if c.advisor != nil {
		return c.advisor.IsBalanced()
	}
	return balancer.Balanced(c.registry.Loads(), balancer.DefaultSkewThreshold)
}

func (c *coordinator) TriggerRebalance() {
	if c.advisor != nil {
		c.advisor.Trigger()
	}
}

func (c *coordinator) consumeAdvice() {
	defer c.wg.Done()
	for {
		select {
		case action, more := <-c.advisor.Actions():
			if !more {
				return
			}
			c.rebalanceAdvised.Inc()
			if shed, ok := action.(*balancer.ShedLoadAction); ok {
				c.log.Info(
					"Rebalance advised",
					slog.Int64("shard", int64(shed.Shard)),
					slog.Float64("order-share", shed.OrderShare),
					slog.Float64("volume-share", shed.VolumeShare),
				)
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *coordinator) flushStatusLoop() {
	defer c.wg.Done()

	b := time2.NewBackOff(c.ctx)
	ticker := time.NewTicker(c.statusFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := backoff.RetryNotify(c.storeStatus, b, func(err error, duration time.Duration) {
				c.log.Warn(
					"Failed to store registry status, retrying",
					slog.Any("error", err),
					slog.Duration("retry-after", duration),
				)
			}); err != nil {
				// Retries only give up when the context is cancelled.
				return
			}
			b.Reset()
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *coordinator) storeStatus() error {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()

	newVersion, err := c.statusProvider.Store(c.registry.Status(), c.statusVersion)
	if err != nil {
		if errors.Is(err, status.ErrStatusBadVersion) {
			// Another writer moved the version. Refresh it so the next
			// attempt can succeed.
			if _, version, getErr := c.statusProvider.Get(); getErr == nil {
				c.statusVersion = version
			}
		}
		return err
	}
	c.statusVersion = newVersion
	return nil
}

func (c *coordinator) Close() error {
	c.cancel()

	var err error
	if c.advisor != nil {
		err = multierr.Append(err, c.advisor.Close())
	}
	c.wg.Wait()

	// One final snapshot so the counters survive a clean shutdown.
	err = multierr.Append(err, c.storeStatus())
	err = multierr.Append(err, c.statusProvider.Close())

	c.activeShards.Unregister()
	for _, g := range c.shardOrders {
		g.Unregister()
	}
	return err
}
