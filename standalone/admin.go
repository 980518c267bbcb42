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
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/streamnative/tranche/common/process"
	"github.com/streamnative/tranche/coordinator"
	"github.com/streamnative/tranche/coordinator/model"
	"github.com/streamnative/tranche/engine"
	"github.com/streamnative/tranche/engine/inmem"
	"github.com/streamnative/tranche/partition"
)

// bestPriceTTL bounds how stale a cached cross-shard best price may be.
const bestPriceTTL = 500 * time.Millisecond

// adminServer exposes the coordinator over HTTP: status and partition
// introspection, routing queries, and order placement against the local
// engine set.
type adminServer struct {
	log *slog.Logger

	coord   coordinator.Coordinator
	engines engine.Provider

	// bestPrice memoizes cross-shard best-price lookups, which walk
	// every active shard's book.
	bestPrice *ristretto.Cache

	listener net.Listener
	server   *http.Server
}

func newAdminServer(bindAddress string, coord coordinator.Coordinator, engines engine.Provider) (*adminServer, error) {
	a := &adminServer{
		log:     slog.With(slog.String("component", "admin-server")),
		coord:   coord,
		engines: engines,
	}

	var err error
	a.bestPrice, err = ristretto.NewCache(&ristretto.Config{
		NumCounters: 1024,
		MaxCost:     1024,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(a.log), gin.Recovery())

	v1 := router.Group("/v1")
	v1.GET("/status", a.getStatus)
	v1.GET("/partitions", a.getPartitions)
	v1.GET("/loads", a.getLoads)
	v1.GET("/route", a.getRoute)
	v1.GET("/best-price", a.getBestPrice)
	v1.POST("/orders", a.placeOrder)
	v1.PUT("/enabled", a.putEnabled)
	v1.POST("/rebalance", a.postRebalance)

	if a.listener, err = net.Listen("tcp", bindAddress); err != nil {
		return nil, err
	}
	a.server = &http.Server{Handler: router}

	go process.DoWithLabels(context.Background(), map[string]string{
		"component": "admin-server",
	}, func() {
		a.log.Info("Serving admin API", slog.String("address", a.listener.Addr().String()))
		if serveErr := a.server.Serve(a.listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			a.log.Error("Admin server failed", slog.Any("error", serveErr))
		}
	})

	return a, nil
}

func (a *adminServer) Port() int {
	return a.listener.Addr().(*net.TCPAddr).Port
}

func (a *adminServer) Close() error {
	err := a.server.Close()
	a.bestPrice.Close()
	return err
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug(
			"Handled admin request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}

type statusResponse struct {
	BasePartition        model.EngineID `json:"basePartition"`
	Enabled              bool           `json:"enabled"`
	CrossShardMatching   bool           `json:"crossShardMatching"`
	AutoRebalance        bool           `json:"autoRebalance"`
	Balanced             bool           `json:"balanced"`
	ShardCount           uint32         `json:"shardCount"`
	ActiveShards         int            `json:"activeShards"`
	PartitionFingerprint uint32         `json:"partitionFingerprint"`
}

func (a *adminServer) getStatus(c *gin.Context) {
	config := a.coord.PartitionConfig()
	c.JSON(http.StatusOK, statusResponse{
		BasePartition:        a.coord.BasePartition(),
		Enabled:              a.coord.IsEnabled(),
		CrossShardMatching:   a.coord.CrossShardMatching(),
		AutoRebalance:        a.coord.AutoRebalance(),
		Balanced:             a.coord.IsBalanced(),
		ShardCount:           config.Count(),
		ActiveShards:         a.coord.ActiveShardCount(),
		PartitionFingerprint: config.Fingerprint(),
	})
}

type shardRange struct {
	Shard partition.ShardID    `json:"shard"`
	Range partition.PriceRange `json:"range"`
}

type partitionsResponse struct {
	ShardCount uint32       `json:"shardCount"`
	Boundaries []uint64     `json:"boundaries"`
	Ranges     []shardRange `json:"ranges"`
}

func (a *adminServer) getPartitions(c *gin.Context) {
	config := a.coord.PartitionConfig()
	response := partitionsResponse{
		ShardCount: config.Count(),
		Boundaries: config.Boundaries(),
	}
	for i := uint32(0); i < config.Count(); i++ {
		shard := partition.ShardID(i)
		response.Ranges = append(response.Ranges, shardRange{
			Shard: shard,
			Range: config.ShardRange(shard),
		})
	}
	c.JSON(http.StatusOK, response)
}

func (a *adminServer) getLoads(c *gin.Context) {
	c.JSON(http.StatusOK, a.coord.ShardLoads())
}

type routeResponse struct {
	Decision *model.RoutingDecision `json:"decision,omitempty"`
	Priority []partition.ShardID    `json:"priority,omitempty"`
}

func (a *adminServer) getRoute(c *gin.Context) {
	side, ok := parseSide(c.Query("side"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be buy or sell"})
		return
	}
	kind, ok := parseKind(c.Query("kind"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be limit or market"})
		return
	}

	if kind == model.OrderKindMarket {
		priority, err := a.coord.RouteMarketOrder(side.IsBid())
		if err != nil {
			c.JSON(httpStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, routeResponse{Priority: priority})
		return
	}

	price, err := strconv.ParseUint(c.Query("price"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must be an unsigned integer"})
		return
	}
	decision, err := a.coord.RouteLimitOrder(price, side.IsBid())
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, routeResponse{Decision: &decision})
}

type bestPriceResponse struct {
	Side   model.Side `json:"side"`
	Price  uint64     `json:"price"`
	Cached bool       `json:"cached,omitempty"`
}

func (a *adminServer) getBestPrice(c *gin.Context) {
	side, ok := parseSide(c.Query("side"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be buy or sell"})
		return
	}

	key := "ask"
	if side.IsBid() {
		key = "bid"
	}
	if cached, found := a.bestPrice.Get(key); found {
		c.JSON(http.StatusOK, bestPriceResponse{Side: side, Price: cached.(uint64), Cached: true})
		return
	}

	price, found := a.coord.BestPriceAcrossShards(c.Request.Context(), a.engines, side.IsBid())
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no positive mid-price available"})
		return
	}
	a.bestPrice.SetWithTTL(key, price, 1, bestPriceTTL)
	c.JSON(http.StatusOK, bestPriceResponse{Side: side, Price: price})
}

type placeOrderRequest struct {
	Side     model.Side      `json:"side"`
	Kind     model.OrderKind `json:"kind"`
	Price    uint64          `json:"price"`
	Quantity uint64          `json:"quantity"`
}

func (a *adminServer) placeOrder(c *gin.Context) {
	var request placeOrderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if request.Kind == model.OrderKindUnknown {
		request.Kind = model.OrderKindLimit
	}

	order := engine.OrderRequest{
		Side:     request.Side,
		Kind:     request.Kind,
		Price:    request.Price,
		Quantity: request.Quantity,
	}

	target, err := a.resolveTarget(order)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	eng, found := a.engines.GetEngine(target)
	if !found {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": fmt.Sprintf("no engine serving shard %d", target)})
		return
	}

	var placement model.Placement
	if order.IsMarket() {
		placement, err = a.coord.PlaceMarketOrder(c.Request.Context(), eng, order)
	} else {
		placement, err = a.coord.PlaceLimitOrder(c.Request.Context(), eng, order)
	}
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, placement)
}

func (a *adminServer) resolveTarget(order engine.OrderRequest) (partition.ShardID, error) {
	if order.IsMarket() {
		priority, err := a.coord.RouteMarketOrder(order.Side.IsBid())
		if err != nil {
			return 0, err
		}
		return priority[0], nil
	}
	decision, err := a.coord.RouteLimitOrder(order.Price, order.Side.IsBid())
	if err != nil {
		return 0, err
	}
	return decision.Target, nil
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (a *adminServer) putEnabled(c *gin.Context) {
	var request enabledRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.coord.SetEnabled(request.Enabled)
	c.JSON(http.StatusOK, gin.H{"enabled": request.Enabled})
}

func (a *adminServer) postRebalance(c *gin.Context) {
	if !a.coord.AutoRebalance() {
		c.JSON(http.StatusConflict, gin.H{"error": "auto-rebalance is not enabled"})
		return
	}
	a.coord.TriggerRebalance()
	c.Status(http.StatusAccepted)
}

func parseSide(value string) (model.Side, bool) {
	switch strings.ToLower(value) {
	case "buy", "bid":
		return model.SideBuy, true
	case "sell", "ask":
		return model.SideSell, true
	default:
		return model.SideUnknown, false
	}
}

func parseKind(value string) (model.OrderKind, bool) {
	switch strings.ToLower(value) {
	case "", "limit":
		return model.OrderKindLimit, true
	case "market":
		return model.OrderKindMarket, true
	default:
		return model.OrderKindUnknown, false
	}
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrCoordinatorDisabled),
		errors.Is(err, coordinator.ErrNoActiveShards):
		return http.StatusServiceUnavailable
	case errors.Is(err, coordinator.ErrShardBindingMismatch):
		return http.StatusConflict
	case errors.Is(err, coordinator.ErrShardIndexOutOfRange),
		errors.Is(err, inmem.ErrUnknownSide),
		errors.Is(err, inmem.ErrZeroQuantity),
		errors.Is(err, inmem.ErrPriceOutOfDomain),
		errors.Is(err, inmem.ErrNoOpposingLiquidity):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
