// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package jobs is the background work pipeline: four in-memory queues
// over watermill, a handler mux, and the periodic scheduler. Delivery is
// at-least-once; every handler must be idempotent.
package jobs

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/goccy/go-json"
)

// Queue is one of the four priority lanes.
type Queue string

const (
	// QueueLp runs cheap follow-up work triggered by other mutations.
	QueueLp Queue = "lp"
	// QueueMp runs the bulk of background work: refreshes, syncs, imports.
	QueueMp Queue = "mp"
	// QueueHp runs user-visible actions with side effects.
	QueueHp Queue = "hp"
	// QueueSingle runs process-wide singleton tasks, never concurrently.
	QueueSingle Queue = "single"
)

// Kind names a job. Values are stable wire strings.
type Kind string

const (
	KindHandleEntityAddedToCollection Kind = "handle_entity_added_to_collection_event"
	KindHandleOnSeenComplete          Kind = "handle_on_seen_complete"
	KindHandleAfterExerciseDeleted    Kind = "handle_after_exercise_deleted"

	KindUpdateMetadata            Kind = "update_metadata"
	KindUpdatePerson              Kind = "update_person"
	KindUpdateMetadataGroup       Kind = "update_metadata_group"
	KindSyncIntegrationsData      Kind = "sync_integrations_data"
	KindImportFromExternalSource  Kind = "import_from_external_source"
	KindUpdateExerciseLibrary     Kind = "update_exercise_library"
	KindPerformExport             Kind = "perform_export"
	KindRecalculateCalendarEvents Kind = "recalculate_calendar_events"
	KindReEvaluateUserWorkouts    Kind = "re_evaluate_user_workouts"

	KindReviewPosted       Kind = "review_posted"
	KindBulkProgressUpdate Kind = "bulk_progress_update"

	KindPerformBackgroundTasks            Kind = "perform_background_tasks"
	KindCalculateUserActivitiesAndSummary Kind = "calculate_user_activities_and_summary"
)

var kindQueues = map[Kind]Queue{
	KindHandleEntityAddedToCollection: QueueLp,
	KindHandleOnSeenComplete:          QueueLp,
	KindHandleAfterExerciseDeleted:    QueueLp,

	KindUpdateMetadata:            QueueMp,
	KindUpdatePerson:              QueueMp,
	KindUpdateMetadataGroup:       QueueMp,
	KindSyncIntegrationsData:      QueueMp,
	KindImportFromExternalSource:  QueueMp,
	KindUpdateExerciseLibrary:     QueueMp,
	KindPerformExport:             QueueMp,
	KindRecalculateCalendarEvents: QueueMp,
	KindReEvaluateUserWorkouts:    QueueMp,

	KindReviewPosted:       QueueHp,
	KindBulkProgressUpdate: QueueHp,

	KindPerformBackgroundTasks:            QueueSingle,
	KindCalculateUserActivitiesAndSummary: QueueSingle,
}

// QueueForKind returns the lane a job kind runs on. Unknown kinds land on
// the medium-priority lane.
func QueueForKind(kind Kind) Queue {
	if q, ok := kindQueues[kind]; ok {
		return q
	}
	return QueueMp
}

// Job is the wire envelope carried through the queues.
type Job struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	UserID     string          `json:"user_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// DecodePayload unmarshals the job payload into out.
func (j *Job) DecodePayload(out any) error {
	return json.Unmarshal(j.Payload, out)
}

// NewJob builds an envelope with a fresh id. The payload may be nil.
func NewJob(kind Kind, userID string, payload any) (*Job, error) {
	job := &Job{
		ID:         watermill.NewUUID(),
		Kind:       kind,
		UserID:     userID,
		EnqueuedAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		job.Payload = raw
	}
	return job, nil
}

// Payloads shared between producers and handlers. Kinds not listed here
// carry handler-owned payload types.

// MetadataPayload addresses one metadata row.
type MetadataPayload struct {
	MetadataID string `json:"metadata_id"`
}

// PersonPayload addresses one person row.
type PersonPayload struct {
	PersonID string `json:"person_id"`
}

// MetadataGroupPayload addresses one metadata group row.
type MetadataGroupPayload struct {
	MetadataGroupID string `json:"metadata_group_id"`
}

// SeenPayload addresses one seen row.
type SeenPayload struct {
	SeenID string `json:"seen_id"`
}

// ImportRequestPayload carries everything needed to build an import
// source adapter. Files are object-storage keys of uploaded exports, in
// the order the source documents (e.g. imdb: ratings then watchlist).
type ImportRequestPayload struct {
	Source     string   `json:"source"`
	Files      []string `json:"files,omitempty"`
	BaseURL    string   `json:"base_url,omitempty"`
	Username   string   `json:"username,omitempty"`
	Password   string   `json:"password,omitempty"`
	Token      string   `json:"token,omitempty"`
	ClientID   string   `json:"client_id,omitempty"`
	Collection string   `json:"collection,omitempty"`
}

// ReviewPayload addresses a freshly posted review.
type ReviewPayload struct {
	ReviewID string `json:"review_id"`
}

// CollectionEntityPayload addresses one collection membership change.
type CollectionEntityPayload struct {
	CollectionID string `json:"collection_id"`
	EntityID     string `json:"entity_id"`
}

// ActivitiesPayload parameterizes an analytics rollup.
type ActivitiesPayload struct {
	FromScratch bool `json:"from_scratch,omitempty"`
}
