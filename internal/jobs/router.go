// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"

	"github.com/shelfwatch/shelfwatch/internal/config"
)

// Router consumes the queue topics and feeds jobs through the mux with
// panic recovery, exponential-backoff retry, and a poison topic for
// messages that keep failing. It implements suture.Service.
type Router struct {
	router *message.Router
	bus    *Bus
	mux    *Mux

	// singleMu serializes the single queue across its handler invocations.
	// The queue has one worker, but retry middleware can overlap a retried
	// job with a fresh one without it.
	singleMu sync.Mutex
}

// NewRouter wires one consumer per worker topic.
func NewRouter(cfg *config.JobsConfig, bus *Bus, mux *Mux, logger watermill.LoggerAdapter) (*Router, error) {
	wmRouter, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: cfg.CloseTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("jobs: create router: %w", err)
	}

	r := &Router{router: wmRouter, bus: bus, mux: mux}

	// Outermost so the depth gauge drops once per delivery, whatever the
	// retry and poison layers do with it.
	wmRouter.AddMiddleware(depthMiddleware)
	wmRouter.AddMiddleware(middleware.Recoverer)
	retry := middleware.Retry{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.RetryInitial,
		MaxInterval:     cfg.RetryMax,
		Multiplier:      2.0,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)
	poison, err := middleware.PoisonQueue(bus.pubsub, PoisonTopic)
	if err != nil {
		return nil, fmt.Errorf("jobs: create poison queue: %w", err)
	}
	wmRouter.AddMiddleware(poison)

	for queue, workers := range bus.workers {
		for shard := 0; shard < workers; shard++ {
			wmRouter.AddConsumerHandler(
				fmt.Sprintf("jobs_%s_%d", queue, shard),
				topicFor(queue, shard),
				bus.pubsub,
				r.handlerFor(queue),
			)
		}
	}
	return r, nil
}

// depthMiddleware decrements the queue-depth gauge after a message leaves
// the pipeline, acked or poisoned.
func depthMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		msgs, err := h(msg)
		topic := message.SubscribeTopicFromCtx(msg.Context())
		if q := queueFromTopic(topic); q != "" {
			queueDepth.WithLabelValues(q).Dec()
		}
		return msgs, err
	}
}

// queueFromTopic recovers the lane name from a "jobs.{queue}.{shard}"
// worker topic.
func queueFromTopic(topic string) string {
	parts := strings.Split(topic, ".")
	if len(parts) != 3 || parts[0] != "jobs" {
		return ""
	}
	return parts[1]
}

func (r *Router) handlerFor(queue Queue) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		var job Job
		if err := json.Unmarshal(msg.Payload, &job); err != nil {
			// A malformed envelope can never succeed; ack and count it.
			jobsProcessed.WithLabelValues(string(queue), "unknown", "malformed").Inc()
			return nil
		}
		if queue == QueueSingle {
			r.singleMu.Lock()
			defer r.singleMu.Unlock()
		}
		return r.mux.dispatch(msg.Context(), queue, &job)
	}
}

// Serve runs the router until the context is cancelled, then drains
// in-flight handlers up to the close timeout.
func (r *Router) Serve(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running returns a channel that closes once all consumers are attached.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}
