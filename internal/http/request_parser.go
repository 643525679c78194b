// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating query
// parameters shared by the projection and calendar handlers.

package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"moneyflow/internal/core"
)

const (
	defaultUpcomingCount = 10
	maxUpcomingCount     = 366
)

// ParseDateParam reads a YYYY-MM-DD query parameter, falling back to def
// when it is absent.
func ParseDateParam(query url.Values, key string, def core.Date) (core.Date, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return def, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, fmt.Errorf("invalid %s %q: expected YYYY-MM-DD", key, v)
	}
	return d, nil
}

// ParseCountParam reads the number of occurrences to list: 1..366,
// default 10.
func ParseCountParam(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("count"))
	if v == "" {
		return defaultUpcomingCount, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > maxUpcomingCount {
		return 0, fmt.Errorf("invalid count %q: must be between 1 and %d", v, maxUpcomingCount)
	}
	return n, nil
}

// ParseUserParam reads the optional user filter of the calendar feed.
func ParseUserParam(query url.Values) (string, error) {
	v := strings.TrimSpace(query.Get("user"))
	if len(v) > 128 {
		return "", fmt.Errorf("invalid user: too long")
	}
	for _, r := range v {
		if r < 32 || r == 127 {
			return "", fmt.Errorf("invalid user: control characters")
		}
	}
	return v, nil
}
