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

// ErrRatingOutOfRange is returned when a rating falls outside the user's
// display scale.
var ErrRatingOutOfRange = errors.New("models: rating outside the allowed scale")

// ReviewComment is a threaded comment on a review.
type ReviewComment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	LikedBy   []string  `json:"liked_by,omitempty"`
	CreatedOn time.Time `json:"created_on"`
}

// ReviewShowExtraInformation scopes a review to an episode of a show.
type ReviewShowExtraInformation struct {
	Season  *int `json:"season,omitempty"`
	Episode *int `json:"episode,omitempty"`
}

// ReviewPodcastExtraInformation scopes a review to a podcast episode.
type ReviewPodcastExtraInformation struct {
	Episode *int `json:"episode,omitempty"`
}

// ReviewAnimeExtraInformation scopes a review to an anime episode.
type ReviewAnimeExtraInformation struct {
	Episode *int `json:"episode,omitempty"`
}

// ReviewMangaExtraInformation scopes a review to a manga chapter.
type ReviewMangaExtraInformation struct {
	Chapter *decimal.Decimal `json:"chapter,omitempty"`
}

// Review is a user's opinion of an entity. Rating is stored normalized to
// the 0..100 scale regardless of the user's display preference.
type Review struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	EntityID  string     `json:"entity_id"`
	EntityLot EntityLot  `json:"entity_lot"`

	Rating    *decimal.Decimal `json:"rating,omitempty"` // 0..100
	Text      *string          `json:"text,omitempty"`
	Visibility Visibility      `json:"visibility"`
	IsSpoiler  bool            `json:"is_spoiler"`
	Comments   []ReviewComment `json:"comments,omitempty"`

	ShowExtraInformation    *ReviewShowExtraInformation    `json:"show_extra_information,omitempty"`
	PodcastExtraInformation *ReviewPodcastExtraInformation `json:"podcast_extra_information,omitempty"`
	AnimeExtraInformation   *ReviewAnimeExtraInformation   `json:"anime_extra_information,omitempty"`
	MangaExtraInformation   *ReviewMangaExtraInformation   `json:"manga_extra_information,omitempty"`

	PostedOn time.Time `json:"posted_on"`
}

// smiley boundaries: 1 maps to 33.33, 2 to 66.67, 3 to 100. The mapping is
// bijective over the three discrete values.
var (
	hundred     = decimal.NewFromInt(100)
	smileyStep  = hundred.Div(decimal.NewFromInt(3))
)

// NormalizeRating converts a rating from the user's display scale to the
// canonical 0..100 storage scale. Conversion is exact for the numeric
// scales and bijective for the three-point smiley.
func NormalizeRating(value decimal.Decimal, scale UserReviewScale) (decimal.Decimal, error) {
	switch scale {
	case ReviewScaleOutOfHundred:
		if value.IsNegative() || value.GreaterThan(hundred) {
			return decimal.Zero, ErrRatingOutOfRange
		}
		return value, nil
	case ReviewScaleOutOfTen:
		if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(10)) {
			return decimal.Zero, ErrRatingOutOfRange
		}
		return value.Mul(decimal.NewFromInt(10)), nil
	case ReviewScaleOutOfFive:
		if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(5)) {
			return decimal.Zero, ErrRatingOutOfRange
		}
		return value.Mul(decimal.NewFromInt(20)), nil
	case ReviewScaleThreePointSmiley:
		n := value.IntPart()
		if !value.Equal(decimal.NewFromInt(n)) || n < 1 || n > 3 {
			return decimal.Zero, ErrRatingOutOfRange
		}
		return smileyStep.Mul(decimal.NewFromInt(n)).Round(2), nil
	default:
		return decimal.Zero, ErrRatingOutOfRange
	}
}

// DisplayRating converts a stored 0..100 rating back to the user's display
// scale.
func DisplayRating(stored decimal.Decimal, scale UserReviewScale) decimal.Decimal {
	switch scale {
	case ReviewScaleOutOfTen:
		return stored.Div(decimal.NewFromInt(10))
	case ReviewScaleOutOfFive:
		return stored.Div(decimal.NewFromInt(20))
	case ReviewScaleThreePointSmiley:
		// Round to the nearest smiley bucket.
		n := stored.Div(smileyStep).Round(0)
		if n.LessThan(decimal.NewFromInt(1)) {
			n = decimal.NewFromInt(1)
		}
		if n.GreaterThan(decimal.NewFromInt(3)) {
			n = decimal.NewFromInt(3)
		}
		return n
	default:
		return stored
	}
}
