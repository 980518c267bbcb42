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

// Package inmem provides a price-time-priority matching engine backed by
// in-memory books. The standalone server runs one instance per shard; it
// is also the reference engine for coordinator tests.
package inmem

import (
	"context"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/streamnative/tranche/coordinator/model"
	"github.com/streamnative/tranche/engine"
	"github.com/streamnative/tranche/partition"
)

var (
	ErrUnknownSide         = errors.New("tranche: order side must be buy or sell")
	ErrZeroQuantity        = errors.New("tranche: order quantity must be positive")
	ErrPriceOutOfDomain    = errors.New("tranche: limit price outside the admissible domain")
	ErrNoOpposingLiquidity = errors.New("tranche: no opposing liquidity for a market order")
)

var _ engine.Engine = &Engine{}

// Engine is a single-shard order book. Both sides are levels keyed by
// price, each level a FIFO queue, so matching consumes the best price
// first and the oldest order within a price. Market orders never rest:
// whatever cannot be filled immediately is dropped.
type Engine struct {
	id model.EngineID

	mu sync.Mutex

	// bids uses a descending comparator and asks an ascending one, so
	// Min() yields the best price on either side.
	bids *treemap.Map
	asks *treemap.Map
}

func NewEngine(id model.EngineID) *Engine {
	return &Engine{
		id:   id,
		bids: treemap.NewWith(descendingUInt64),
		asks: treemap.NewWith(utils.UInt64Comparator),
	}
}

func descendingUInt64(a, b interface{}) int {
	return -utils.UInt64Comparator(a, b)
}

type restingOrder struct {
	id       string
	quantity uint64
}

type level struct {
	queue []*restingOrder
}

// consume fills from the head of the queue and returns the quantity still
// unfilled.
func (l *level) consume(quantity uint64) uint64 {
	for quantity > 0 && len(l.queue) > 0 {
		head := l.queue[0]
		if head.quantity > quantity {
			head.quantity -= quantity
			return 0
		}
		quantity -= head.quantity
		l.queue = l.queue[1:]
	}
	return quantity
}

func (e *Engine) ID() model.EngineID {
	return e.id
}

func (e *Engine) PlaceOrder(_ context.Context, request engine.OrderRequest) (engine.Execution, error) {
	if err := validate(request); err != nil {
		return engine.Execution{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	orderID := uuid.NewString()
	remaining := request.Quantity

	if request.Side.IsBid() {
		remaining = e.match(e.asks, request, remaining)
		if remaining > 0 && !request.IsMarket() {
			rest(e.bids, request.Price, orderID, remaining)
		}
	} else {
		remaining = e.match(e.bids, request, remaining)
		if remaining > 0 && !request.IsMarket() {
			rest(e.asks, request.Price, orderID, remaining)
		}
	}

	return engine.Execution{
		OrderID:          orderID,
		ExecutedQuantity: request.Quantity - remaining,
		OriginalQuantity: request.Quantity,
	}, nil
}

func (e *Engine) match(opposing *treemap.Map, request engine.OrderRequest, quantity uint64) uint64 {
	for quantity > 0 {
		key, value := opposing.Min()
		if key == nil {
			break
		}
		best := key.(uint64)
		if !request.IsMarket() && !crosses(request.Side.IsBid(), best, request.Price) {
			break
		}
		lvl := value.(*level)
		quantity = lvl.consume(quantity)
		if len(lvl.queue) == 0 {
			opposing.Remove(best)
		}
	}
	return quantity
}

func crosses(isBid bool, best, limit uint64) bool {
	if isBid {
		return best <= limit
	}
	return best >= limit
}

func rest(side *treemap.Map, price uint64, orderID string, quantity uint64) {
	var lvl *level
	if value, found := side.Get(price); found {
		lvl = value.(*level)
	} else {
		lvl = &level{}
		side.Put(price, lvl)
	}
	lvl.queue = append(lvl.queue, &restingOrder{id: orderID, quantity: quantity})
}

// CanPlace checks admissibility without mutating the book.
func (e *Engine) CanPlace(_ context.Context, request engine.OrderRequest) error {
	if err := validate(request); err != nil {
		return err
	}
	if !request.IsMarket() {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	opposing := e.asks
	if !request.Side.IsBid() {
		opposing = e.bids
	}
	if opposing.Empty() {
		return errors.Wrapf(ErrNoOpposingLiquidity, "engine %q", e.id)
	}
	return nil
}

func validate(request engine.OrderRequest) error {
	switch request.Side {
	case model.SideBuy, model.SideSell:
	default:
		return ErrUnknownSide
	}
	if request.Quantity == 0 {
		return ErrZeroQuantity
	}
	if !request.IsMarket() {
		if request.Price < partition.MinPrice || request.Price >= partition.MaxPrice {
			return errors.Wrapf(ErrPriceOutOfDomain, "price %d", request.Price)
		}
	}
	return nil
}

func (e *Engine) MidPrice(_ context.Context) (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bidKey, _ := e.bids.Min()
	askKey, _ := e.asks.Min()
	if bidKey == nil || askKey == nil {
		return 0, false
	}
	return (bidKey.(uint64) + askKey.(uint64)) / 2, true
}

func (e *Engine) BestBid() (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key, _ := e.bids.Min()
	if key == nil {
		return 0, false
	}
	return key.(uint64), true
}

func (e *Engine) BestAsk() (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key, _ := e.asks.Min()
	if key == nil {
		return 0, false
	}
	return key.(uint64), true
}
