// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package providers

import (
	"strings"
	"time"
)

func ptr[T any](v T) *T { return &v }

// normalizePage clamps the 1-based page number.
func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// pageOffset converts a 1-based page to a row offset.
func pageOffset(page int) int {
	return (normalizePage(page) - 1) * PageSize
}

// nextPageFor computes the next page pointer given a total hit count.
func nextPageFor(page, total int) *int {
	page = normalizePage(page)
	if page*PageSize >= total {
		return nil
	}
	return ptr(page + 1)
}

// parseDate tries the usual provider date layouts.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{
		"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006", "Jan 2, 2006",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// yearOf extracts the publish year from a provider date string.
func yearOf(s string) *int {
	if t := parseDate(s); t != nil {
		return ptr(t.Year())
	}
	return nil
}

// emptyToNil maps "" to a nil pointer.
func emptyToNil(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
