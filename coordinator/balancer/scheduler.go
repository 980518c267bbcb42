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

package balancer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/exp/maps"

	"github.com/streamnative/tranche/common/channel"
	"github.com/streamnative/tranche/common/process"
	"github.com/streamnative/tranche/coordinator/model"
	"github.com/streamnative/tranche/partition"
)

var _ Advisor = &loadAdvisor{}

type loadAdvisor struct {
	*slog.Logger
	*sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	actionCh  chan Action
	triggerCh chan struct{}

	scheduleInterval time.Duration
	cooldownTime     time.Duration
	skewThreshold    float64

	loadSupplier func() []model.ShardLoad

	// cooldown records when a shard was last advised, so one hot shard
	// does not flood the action stream every evaluation.
	cooldown map[partition.ShardID]time.Time
}

func (a *loadAdvisor) Actions() <-chan Action {
	return a.actionCh
}

func (a *loadAdvisor) Close() error {
	a.cancel()
	a.Wait()
	return nil
}

func (a *loadAdvisor) Trigger() {
	a.Info("Manually triggered load evaluation")
	channel.PushNoBlock(a.triggerCh, triggerEvent)
}

func (a *loadAdvisor) IsBalanced() bool {
	return Balanced(a.loadSupplier(), a.skewThreshold)
}

func (a *loadAdvisor) advise() {
	loads := a.loadSupplier()
	shares := loadShares(loads)
	if len(shares) < 2 {
		return
	}

	a.sweepCooldown()

	threshold := a.skewThreshold / float64(len(shares))
	for _, share := range shares {
		if share.orderShare <= threshold && share.volumeShare <= threshold {
			continue
		}
		if _, held := a.cooldown[share.shard]; held {
			continue
		}
		a.cooldown[share.shard] = time.Now()

		action := &ShedLoadAction{
			Shard:       share.shard,
			OrderShare:  share.orderShare,
			VolumeShare: share.volumeShare,
		}
		if !channel.PushNoBlock(a.actionCh, Action(action)) {
			a.Warn("Dropping rebalance advice, consumer is not keeping up",
				slog.Int64("shard", int64(share.shard)))
			continue
		}
		a.Info("Shard exceeds its fair load share",
			slog.Int64("shard", int64(share.shard)),
			slog.Float64("order-share", share.orderShare),
			slog.Float64("volume-share", share.volumeShare),
			slog.Float64("threshold", threshold))
	}
}

func (a *loadAdvisor) sweepCooldown() {
	for _, shard := range maps.Keys(a.cooldown) {
		if time.Since(a.cooldown[shard]) >= a.cooldownTime {
			delete(a.cooldown, shard)
		}
	}
}

func (a *loadAdvisor) startBackgroundScheduler() {
	a.Add(1)
	go process.DoWithLabels(a.ctx, map[string]string{
		"component": "load-advisor-scheduler",
	}, func() {
		timer := time.NewTicker(a.scheduleInterval)
		defer timer.Stop()
		defer a.Done()
		for {
			select {
			case _, more := <-timer.C:
				if !more {
					return
				}
				channel.PushNoBlock(a.triggerCh, triggerEvent)
			case <-a.ctx.Done():
				return
			}
		}
	})
}

func (a *loadAdvisor) startBackgroundNotifier() {
	a.Add(1)
	go process.DoWithLabels(a.ctx, map[string]string{
		"component": "load-advisor-notifier",
	}, func() {
		defer a.Done()
		for {
			select {
			case _, more := <-a.triggerCh:
				if !more {
					return
				}
				a.advise()
			case <-a.ctx.Done():
				return
			}
		}
	})
}

func NewAdvisor(options Options) Advisor {
	ctx, cancel := context.WithCancel(options.Context)

	if options.ScheduleInterval == 0 {
		options.ScheduleInterval = defaultScheduleInterval
	}
	if options.CooldownTime == 0 {
		options.CooldownTime = defaultCooldownTime
	}
	if options.SkewThreshold == 0 {
		options.SkewThreshold = DefaultSkewThreshold
	}

	a := &loadAdvisor{
		Logger:           slog.With(slog.String("component", "load-advisor")),
		WaitGroup:        &sync.WaitGroup{},
		ctx:              ctx,
		cancel:           cancel,
		actionCh:         make(chan Action, actionBufferSize),
		triggerCh:        make(chan struct{}, 1),
		scheduleInterval: options.ScheduleInterval,
		cooldownTime:     options.CooldownTime,
		skewThreshold:    options.SkewThreshold,
		loadSupplier:     options.LoadSupplier,
		cooldown:         make(map[partition.ShardID]time.Time),
	}
	a.startBackgroundScheduler()
	a.startBackgroundNotifier()
	return a
}
