// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeRatingScales(t *testing.T) {
	cases := []struct {
		scale UserReviewScale
		in    string
		want  string
	}{
		{ReviewScaleOutOfHundred, "87.5", "87.5"},
		{ReviewScaleOutOfTen, "7.5", "75"},
		{ReviewScaleOutOfFive, "3.5", "70"},
		{ReviewScaleThreePointSmiley, "1", "33.33"},
		{ReviewScaleThreePointSmiley, "2", "66.67"},
		{ReviewScaleThreePointSmiley, "3", "100"},
	}
	for _, tc := range cases {
		got, err := NormalizeRating(decimal.RequireFromString(tc.in), tc.scale)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.scale, tc.in, err)
		}
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("%s %s = %s, want %s", tc.scale, tc.in, got, tc.want)
		}
	}
}

func TestNormalizeRatingRejectsOutOfRange(t *testing.T) {
	cases := []struct {
		scale UserReviewScale
		in    string
	}{
		{ReviewScaleOutOfHundred, "101"},
		{ReviewScaleOutOfHundred, "-1"},
		{ReviewScaleOutOfTen, "10.5"},
		{ReviewScaleOutOfFive, "6"},
		{ReviewScaleThreePointSmiley, "0"},
		{ReviewScaleThreePointSmiley, "1.5"},
		{ReviewScaleThreePointSmiley, "4"},
	}
	for _, tc := range cases {
		if _, err := NormalizeRating(decimal.RequireFromString(tc.in), tc.scale); !errors.Is(err, ErrRatingOutOfRange) {
			t.Errorf("%s %s: err = %v", tc.scale, tc.in, err)
		}
	}
}

func TestSmileyRatingsRoundTrip(t *testing.T) {
	for n := int64(1); n <= 3; n++ {
		in := decimal.NewFromInt(n)
		stored, err := NormalizeRating(in, ReviewScaleThreePointSmiley)
		if err != nil {
			t.Fatal(err)
		}
		if back := DisplayRating(stored, ReviewScaleThreePointSmiley); !back.Equal(in) {
			t.Errorf("smiley %d: stored %s displays as %s", n, stored, back)
		}
	}
}

func TestCollectionToEntitySetsExactlyOneReference(t *testing.T) {
	rank := decimal.NewFromInt(1)
	cases := []struct {
		entityID string
		lot      EntityLot
	}{
		{"met_abc", EntityLotMetadata},
		{"meg_abc", EntityLotMetadataGroup},
		{"per_abc", EntityLotPerson},
		{"ex_abc", EntityLotExercise},
		{"wor_abc", EntityLotWorkout},
		{"wtp_abc", EntityLotWorkoutTemplate},
	}
	for _, tc := range cases {
		edge, err := NewCollectionToEntity("col_1", tc.entityID, rank)
		if err != nil {
			t.Fatalf("%s: %v", tc.entityID, err)
		}
		if err := edge.Validate(); err != nil {
			t.Fatalf("%s: %v", tc.entityID, err)
		}
		if edge.EntityID() != tc.entityID || edge.EntityLot() != tc.lot {
			t.Errorf("%s: accessors returned %s/%s", tc.entityID, edge.EntityID(), edge.EntityLot())
		}
	}
}

func TestCollectionToEntityRejectsUnknownPrefix(t *testing.T) {
	if _, err := NewCollectionToEntity("col_1", "usr_abc", decimal.Zero); !errors.Is(err, ErrAmbiguousEntity) {
		t.Fatalf("err = %v", err)
	}
	if _, err := NewCollectionToEntity("col_1", "nonsense", decimal.Zero); !errors.Is(err, ErrAmbiguousEntity) {
		t.Fatalf("err = %v", err)
	}
}

func TestValidateCatchesDoubleReference(t *testing.T) {
	id1, id2 := "met_abc", "per_abc"
	edge := &CollectionToEntity{MetadataID: &id1, PersonID: &id2}
	if err := edge.Validate(); !errors.Is(err, ErrAmbiguousEntity) {
		t.Fatalf("err = %v", err)
	}
	if err := (&CollectionToEntity{}).Validate(); !errors.Is(err, ErrAmbiguousEntity) {
		t.Fatalf("empty edge err = %v", err)
	}
}
