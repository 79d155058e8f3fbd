// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrAmbiguousEntity is returned when a polymorphic edge does not name
// exactly one entity.
var ErrAmbiguousEntity = errors.New("models: exactly one entity reference must be set")

// CollectionExtraField is one typed field the collection requires per
// entry (the information_template).
type CollectionExtraField struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Lot         string `json:"lot"` // string, number, date, date_time, string_array, boolean
	Required    bool   `json:"required"`
}

// Collection is a named bucket of entities owned by one user.
type Collection struct {
	ID                  string                 `json:"id"`
	UserID              string                 `json:"user_id"`
	Name                string                 `json:"name"`
	Description         *string                `json:"description,omitempty"`
	InformationTemplate []CollectionExtraField `json:"information_template,omitempty"`
	CreatedOn           time.Time              `json:"created_on"`
	LastUpdatedOn       time.Time              `json:"last_updated_on"`
}

// IsDefault reports whether the collection carries engine-maintained
// semantics.
func (c *Collection) IsDefault() bool {
	for _, d := range DefaultCollections {
		if c.Name == string(d) {
			return true
		}
	}
	return false
}

// CollectionToEntity is the polymorphic membership edge. Exactly one of
// the six entity references is non-empty; EntityID and EntityLot are the
// computed accessors over whichever is set (generated columns in the
// database).
type CollectionToEntity struct {
	ID           string     `json:"id"`
	CollectionID string     `json:"collection_id"`

	MetadataID        *string `json:"metadata_id,omitempty"`
	MetadataGroupID   *string `json:"metadata_group_id,omitempty"`
	PersonID          *string `json:"person_id,omitempty"`
	ExerciseID        *string `json:"exercise_id,omitempty"`
	WorkoutID         *string `json:"workout_id,omitempty"`
	WorkoutTemplateID *string `json:"workout_template_id,omitempty"`

	// Rank is a fractional ordering key; reorder inserts between two
	// neighbours without rewriting the rest of the collection.
	Rank        decimal.Decimal        `json:"rank"`
	Information map[string]any         `json:"information,omitempty"`

	CreatedOn     time.Time `json:"created_on"`
	LastUpdatedOn time.Time `json:"last_updated_on"`
}

// NewCollectionToEntity builds an edge for the given entity id, inferring
// the target column from the id prefix. Enforces the single-reference
// invariant at construction.
func NewCollectionToEntity(collectionID, entityID string, rank decimal.Decimal) (*CollectionToEntity, error) {
	lot, ok := EntityLotForID(entityID)
	if !ok {
		return nil, ErrAmbiguousEntity
	}
	now := time.Now().UTC()
	cte := &CollectionToEntity{
		ID:           NewID(PrefixCollection + "e"),
		CollectionID: collectionID,
		Rank:         rank,
		CreatedOn:    now,
		LastUpdatedOn: now,
	}
	id := entityID
	switch lot {
	case EntityLotMetadata:
		cte.MetadataID = &id
	case EntityLotMetadataGroup:
		cte.MetadataGroupID = &id
	case EntityLotPerson:
		cte.PersonID = &id
	case EntityLotExercise:
		cte.ExerciseID = &id
	case EntityLotWorkout:
		cte.WorkoutID = &id
	case EntityLotWorkoutTemplate:
		cte.WorkoutTemplateID = &id
	default:
		return nil, ErrAmbiguousEntity
	}
	return cte, nil
}

// EntityID returns the single referenced entity id.
func (c *CollectionToEntity) EntityID() string {
	switch {
	case c.MetadataID != nil:
		return *c.MetadataID
	case c.MetadataGroupID != nil:
		return *c.MetadataGroupID
	case c.PersonID != nil:
		return *c.PersonID
	case c.ExerciseID != nil:
		return *c.ExerciseID
	case c.WorkoutID != nil:
		return *c.WorkoutID
	case c.WorkoutTemplateID != nil:
		return *c.WorkoutTemplateID
	}
	return ""
}

// EntityLot returns the lot of the single referenced entity.
func (c *CollectionToEntity) EntityLot() EntityLot {
	switch {
	case c.MetadataID != nil:
		return EntityLotMetadata
	case c.MetadataGroupID != nil:
		return EntityLotMetadataGroup
	case c.PersonID != nil:
		return EntityLotPerson
	case c.ExerciseID != nil:
		return EntityLotExercise
	case c.WorkoutID != nil:
		return EntityLotWorkout
	case c.WorkoutTemplateID != nil:
		return EntityLotWorkoutTemplate
	}
	return ""
}

// Validate enforces the exactly-one-reference CHECK.
func (c *CollectionToEntity) Validate() error {
	count := 0
	for _, p := range []*string{
		c.MetadataID, c.MetadataGroupID, c.PersonID,
		c.ExerciseID, c.WorkoutID, c.WorkoutTemplateID,
	} {
		if p != nil {
			count++
		}
	}
	if count != 1 {
		return ErrAmbiguousEntity
	}
	return nil
}

// MonitoredEntity marks a user subscription to change notifications for
// one entity, anchored to the Monitoring collection edge that created it.
type MonitoredEntity struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	EntityID             string    `json:"entity_id"`
	EntityLot            EntityLot `json:"entity_lot"`
	CollectionToEntityID string    `json:"collection_to_entity_id"`
	CreatedOn            time.Time `json:"created_on"`
}
