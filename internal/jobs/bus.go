// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package jobs

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/shelfwatch/shelfwatch/internal/config"
)

// PoisonTopic receives jobs that exhausted their retries.
const PoisonTopic = "jobs.poison"

// Bus publishes jobs onto the in-memory queues. Each queue is split into
// one topic per worker; publishing round-robins across them, which is what
// turns watermill's broadcast pub/sub into a worker pool.
type Bus struct {
	pubsub   *gochannel.GoChannel
	workers  map[Queue]int
	counters map[Queue]*atomic.Uint64
}

// NewBus builds the queue fabric from the configured worker counts. The
// single queue always has exactly one worker.
func NewBus(cfg *config.JobsConfig, logger watermill.LoggerAdapter) *Bus {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(cfg.QueueDepth),
	}, logger)
	workers := map[Queue]int{
		QueueLp:     max(1, cfg.LpWorkers),
		QueueMp:     max(1, cfg.MpWorkers),
		QueueHp:     max(1, cfg.HpWorkers),
		QueueSingle: 1,
	}
	counters := make(map[Queue]*atomic.Uint64, len(workers))
	for q := range workers {
		counters[q] = &atomic.Uint64{}
	}
	return &Bus{pubsub: pubsub, workers: workers, counters: counters}
}

func topicFor(q Queue, shard int) string {
	return fmt.Sprintf("jobs.%s.%d", q, shard)
}

// Enqueue publishes one job onto the lane its kind routes to.
func (b *Bus) Enqueue(ctx context.Context, kind Kind, userID string, payload any) error {
	job, err := NewJob(kind, userID, payload)
	if err != nil {
		return fmt.Errorf("jobs: encode %s payload: %w", kind, err)
	}
	return b.publish(ctx, job)
}

func (b *Bus) publish(_ context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobs: encode %s envelope: %w", job.Kind, err)
	}
	queue := QueueForKind(job.Kind)
	shard := int(b.counters[queue].Add(1)) % b.workers[queue]
	msg := message.NewMessage(job.ID, raw)
	if err := b.pubsub.Publish(topicFor(queue, shard), msg); err != nil {
		return fmt.Errorf("jobs: publish %s: %w", job.Kind, err)
	}
	jobsEnqueued.WithLabelValues(string(queue), string(job.Kind)).Inc()
	queueDepth.WithLabelValues(string(queue)).Inc()
	return nil
}

// Close shuts the underlying pub/sub down. Undelivered messages are lost;
// handlers are idempotent so the producing sweeps re-cover them.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
