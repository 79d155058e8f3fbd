// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/logging"
)

// HandlerFunc processes one job. Returning an error triggers the retry
// middleware; exhausted retries route the job to the poison topic.
type HandlerFunc func(ctx context.Context, job *Job) error

// Mux maps job kinds to handlers.
type Mux struct {
	mu       sync.RWMutex
	handlers map[Kind]HandlerFunc
}

// NewMux returns an empty mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[Kind]HandlerFunc)}
}

// Handle registers the handler for a kind, replacing any previous one.
func (m *Mux) Handle(kind Kind, fn HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = fn
}

// dispatch runs the registered handler. Jobs with no handler are dropped
// after a warning: retrying cannot help them.
func (m *Mux) dispatch(ctx context.Context, queue Queue, job *Job) error {
	m.mu.RLock()
	fn, ok := m.handlers[job.Kind]
	m.mu.RUnlock()
	if !ok {
		logging.Warn().Str("kind", string(job.Kind)).Str("job_id", job.ID).
			Msg("No handler registered for job kind, dropping")
		jobsProcessed.WithLabelValues(string(queue), string(job.Kind), "dropped").Inc()
		return nil
	}

	start := time.Now()
	err := fn(ctx, job)
	jobDuration.WithLabelValues(string(queue), string(job.Kind)).
		Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
		logging.Err(err).Str("kind", string(job.Kind)).Str("job_id", job.ID).
			Str("queue", string(queue)).Msg("Job handler failed")
	}
	jobsProcessed.WithLabelValues(string(queue), string(job.Kind), status).Inc()
	return err
}
