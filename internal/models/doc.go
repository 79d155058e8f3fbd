// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package models defines the canonical entities Shelfwatch tracks: catalog
// metadata, people and groups, per-user consumption history (seen rows),
// collections, reviews, workouts, measurements and the derived analytics
// rows.
//
// Conventions shared by every entity:
//
//   - Identifiers are opaque prefixed strings (met_, per_, usr_, see_, ...)
//     so the entity kind can be inferred without a table lookup.
//   - Enumerations persist as snake_case strings, never integers, so DB
//     dumps stay readable and adding a variant is backwards compatible.
//   - Monetary and statistical quantities use fixed-point decimals
//     (shopspring/decimal), never floats, so exported data round-trips.
package models
