// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/shelfwatch/shelfwatch/internal/config"
)

func testJobsConfig() *config.JobsConfig {
	return &config.JobsConfig{
		LpWorkers:    1,
		MpWorkers:    2,
		HpWorkers:    1,
		QueueDepth:   16,
		MaxRetries:   2,
		RetryInitial: time.Millisecond,
		RetryMax:     10 * time.Millisecond,
		CloseTimeout: time.Second,
	}
}

func TestQueueForKind(t *testing.T) {
	cases := map[Kind]Queue{
		KindHandleOnSeenComplete:              QueueLp,
		KindHandleAfterExerciseDeleted:        QueueLp,
		KindUpdateMetadata:                    QueueMp,
		KindSyncIntegrationsData:              QueueMp,
		KindPerformExport:                     QueueMp,
		KindReviewPosted:                      QueueHp,
		KindBulkProgressUpdate:                QueueHp,
		KindPerformBackgroundTasks:            QueueSingle,
		KindCalculateUserActivitiesAndSummary: QueueSingle,
	}
	for kind, want := range cases {
		if got := QueueForKind(kind); got != want {
			t.Errorf("QueueForKind(%s) = %s, want %s", kind, got, want)
		}
	}
	if got := QueueForKind(Kind("never_heard_of_it")); got != QueueMp {
		t.Errorf("unknown kind routed to %s, want mp", got)
	}
}

func TestQueueFromTopic(t *testing.T) {
	cases := map[string]string{
		"jobs.mp.1":    "mp",
		"jobs.lp.0":    "lp",
		"jobs.hp.3":    "hp",
		"jobs.mp":      "",
		"other.mp.0":   "",
		"":             "",
		"jobs.mp.0.xx": "",
	}
	for topic, want := range cases {
		if got := queueFromTopic(topic); got != want {
			t.Errorf("queueFromTopic(%q) = %q, want %q", topic, got, want)
		}
	}
}

func TestDepthMiddlewarePassesThrough(t *testing.T) {
	var called bool
	h := depthMiddleware(func(msg *message.Message) ([]*message.Message, error) {
		called = true
		return []*message.Message{msg}, nil
	})

	msg := message.NewMessage("m1", []byte("{}"))
	msgs, err := h(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !called || len(msgs) != 1 {
		t.Fatalf("called=%v msgs=%d", called, len(msgs))
	}
}

func TestJobPayloadRoundTrip(t *testing.T) {
	job, err := NewJob(KindUpdateMetadata, "usr_a", MetadataPayload{MetadataID: "met_x"})
	if err != nil {
		t.Fatal(err)
	}
	if job.ID == "" || job.EnqueuedAt.IsZero() {
		t.Fatal("expected id and enqueue time to be set")
	}
	var payload MetadataPayload
	if err := job.DecodePayload(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.MetadataID != "met_x" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestBusDeliversToShardTopic(t *testing.T) {
	bus := NewBus(testJobsConfig(), NewWatermillLogger())
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Lp has one worker, so every lp job lands on shard 0.
	msgs, err := bus.pubsub.Subscribe(ctx, topicFor(QueueLp, 0))
	if err != nil {
		t.Fatal(err)
	}
	if err := bus.Enqueue(ctx, KindHandleOnSeenComplete, "usr_a", SeenPayload{SeenID: "see_1"}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-msgs:
		var job Job
		if err := json.Unmarshal(msg.Payload, &job); err != nil {
			t.Fatal(err)
		}
		msg.Ack()
		if job.Kind != KindHandleOnSeenComplete || job.UserID != "usr_a" {
			t.Errorf("job = %+v", job)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for the job")
	}
}

func TestMuxDispatch(t *testing.T) {
	mux := NewMux()
	var got *Job
	mux.Handle(KindReviewPosted, func(_ context.Context, job *Job) error {
		got = job
		return nil
	})

	job, _ := NewJob(KindReviewPosted, "usr_a", ReviewPayload{ReviewID: "rev_1"})
	if err := mux.dispatch(context.Background(), QueueHp, job); err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != job.ID {
		t.Fatal("handler did not receive the job")
	}

	// Unregistered kinds are dropped, not retried.
	orphan, _ := NewJob(KindPerformExport, "usr_a", nil)
	if err := mux.dispatch(context.Background(), QueueMp, orphan); err != nil {
		t.Errorf("expected orphan job to be dropped cleanly, got %v", err)
	}

	wantErr := errors.New("boom")
	mux.Handle(KindReviewPosted, func(context.Context, *Job) error { return wantErr })
	if err := mux.dispatch(context.Background(), QueueHp, job); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want handler error", err)
	}
}

type fakeMaintenance struct {
	staleIDs []string
	userIDs  []string
	cleanups int
}

func (f *fakeMaintenance) DeleteExpiredCacheEntries(context.Context) (int64, error) {
	f.cleanups++
	return 3, nil
}

func (f *fakeMaintenance) ListMetadataForRefresh(_ context.Context, _ time.Time, limit int) ([]string, error) {
	if len(f.staleIDs) > limit {
		return f.staleIDs[:limit], nil
	}
	return f.staleIDs, nil
}

func (f *fakeMaintenance) ListUserIDs(context.Context) ([]string, error) {
	return f.userIDs, nil
}

func TestSchedulerDue(t *testing.T) {
	s := NewScheduler(config.SchedulerConfig{}, nil, nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if !s.due("sweep", time.Hour) {
		t.Fatal("first check must be due")
	}
	if s.due("sweep", time.Hour) {
		t.Fatal("immediate recheck must not be due")
	}
	now = now.Add(30 * time.Minute)
	if s.due("sweep", time.Hour) {
		t.Fatal("half the interval must not be due")
	}
	now = now.Add(31 * time.Minute)
	if !s.due("sweep", time.Hour) {
		t.Fatal("a full interval later must be due")
	}
	if s.due("disabled", 0) {
		t.Fatal("a zero interval must never fire")
	}
}

func TestSchedulerTickEnqueues(t *testing.T) {
	bus := NewBus(testJobsConfig(), NewWatermillLogger())
	defer bus.Close()

	db := &fakeMaintenance{staleIDs: []string{"met_1", "met_2"}, userIDs: []string{"usr_a"}}
	s := NewScheduler(config.SchedulerConfig{
		Tick:                    time.Minute,
		IntegrationSyncInterval: 5 * time.Minute,
		MetadataRefreshInterval: 720 * time.Hour,
		CalendarRefreshInterval: 12 * time.Hour,
	}, bus, db)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	single, err := bus.pubsub.Subscribe(ctx, topicFor(QueueSingle, 0))
	if err != nil {
		t.Fatal(err)
	}

	s.tick(ctx)
	if db.cleanups != 1 {
		t.Errorf("cache cleanup ran %d times, want 1", db.cleanups)
	}

	// Every tick enqueues the background tasks job; the first tick also
	// fires the activity rollup, both on the single queue.
	kinds := map[Kind]bool{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-single:
			var job Job
			if err := json.Unmarshal(msg.Payload, &job); err != nil {
				t.Fatal(err)
			}
			msg.Ack()
			kinds[job.Kind] = true
		case <-ctx.Done():
			t.Fatal("timed out waiting for single-queue jobs")
		}
	}
	if !kinds[KindPerformBackgroundTasks] || !kinds[KindCalculateUserActivitiesAndSummary] {
		t.Errorf("single queue saw %v", kinds)
	}
}
