// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ID prefixes. The prefix makes the entity kind recoverable from the bare
// identifier, which notification payloads and polymorphic edges rely on.
const (
	PrefixMetadata      = "met"
	PrefixMetadataGroup = "meg"
	PrefixPerson        = "per"
	PrefixCollection    = "col"
	PrefixWorkout       = "wor"
	PrefixTemplate      = "wtp"
	PrefixExercise      = "ex"
	PrefixUser          = "usr"
	PrefixReview        = "rev"
	PrefixSeen          = "see"
	PrefixImportReport  = "imr"
	PrefixIntegration   = "int"
	PrefixNotification  = "ntf"
	PrefixMeasurement   = "msr"
	PrefixCalendarEvent = "cal"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID returns a fresh prefixed identifier, e.g. "met_8f2k1q0zvb4n".
func NewID(prefix string) string {
	suffix, err := gonanoid.Generate(idAlphabet, 12)
	if err != nil {
		// gonanoid only fails when the system entropy source does; there is
		// no useful recovery at this level.
		panic(fmt.Sprintf("models: id generation failed: %v", err))
	}
	return prefix + "_" + suffix
}

// DeterministicID derives a stable prefixed identifier from its parts.
// Used for user-created custom exercises so re-imports resolve to the same
// row: ex_{hash(name, lot, user)}.
func DeterministicID(prefix string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return prefix + "_" + hex.EncodeToString(sum[:])[:12]
}

// IDPrefix returns the prefix of an identifier, or "" when the identifier
// is not in the prefixed form.
func IDPrefix(id string) string {
	idx := strings.IndexByte(id, '_')
	if idx <= 0 {
		return ""
	}
	return id[:idx]
}

// EntityLotForID infers the polymorphic entity lot from an identifier
// prefix. Returns false for unknown prefixes.
func EntityLotForID(id string) (EntityLot, bool) {
	switch IDPrefix(id) {
	case PrefixMetadata:
		return EntityLotMetadata, true
	case PrefixMetadataGroup:
		return EntityLotMetadataGroup, true
	case PrefixPerson:
		return EntityLotPerson, true
	case PrefixExercise:
		return EntityLotExercise, true
	case PrefixWorkout:
		return EntityLotWorkout, true
	case PrefixTemplate:
		return EntityLotWorkoutTemplate, true
	case PrefixCollection:
		return EntityLotCollection, true
	default:
		return "", false
	}
}
