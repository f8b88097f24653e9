// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package series

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// Epoch integers at or above these magnitudes are read as timestamps.
const (
	epochMillisFloor  = 1e11
	epochSecondsFloor = 1e9
	epochMillisCeil   = 1e14
)

// dateLayouts are tried in order for string x values.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"2006-01",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"Jan 2006",
	"January 2006",
}

var (
	numericDatePattern = regexp.MustCompile(`^\d{1,4}[-/.]\d{1,2}([-/.]\d{1,4})?([ T].*)?$`)
	monthNamePattern   = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\b.*\d{4}|\d{4}.*\b(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\b`)
)

// looksLikeDate reports whether s has the shape of a date, whether or not
// it parses.
func looksLikeDate(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return numericDatePattern.MatchString(s) || monthNamePattern.MatchString(s)
}

// parseDateString tries the known layouts against s.
func parseDateString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// epochToTime interprets an integral number as a Unix timestamp.
// Values below 1e9 are not treated as dates.
func epochToTime(v float64) (time.Time, bool) {
	if v != math.Trunc(v) || v < epochSecondsFloor || v >= epochMillisCeil {
		return time.Time{}, false
	}
	if v >= epochMillisFloor {
		return time.UnixMilli(int64(v)).UTC(), true
	}
	return time.Unix(int64(v), 0).UTC(), true
}

// formatDateLabel renders a parsed date, dropping the clock when it is midnight.
func formatDateLabel(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}
