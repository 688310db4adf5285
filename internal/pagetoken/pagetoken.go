// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package pagetoken encodes the keyset cursors used to page task listings.
//
// Listings are ordered by last update descending, then task ID descending. A
// cursor names the first task of the next page and is bound to the filter it
// was issued for.
package pagetoken

import (
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/go-a2a/a2a-runtime"
)

const (
	// DefaultPageSize applies when a listing does not ask for a size.
	DefaultPageSize = 50
	// MaxPageSize caps the size of one page.
	MaxPageSize = 100
)

// Cursor is the position of a task in listing order.
type Cursor struct {
	UpdatedAt int64  `json:"u"`
	TaskID    string `json:"id"`
	Filter    string `json:"f"`
}

// Before reports whether a task at (updatedAt, id) sorts before c, that is
// belongs to an earlier page.
func (c Cursor) Before(updatedAt int64, id string) bool {
	if updatedAt != c.UpdatedAt {
		return updatedAt > c.UpdatedAt
	}
	return id > c.TaskID
}

// Fingerprint identifies the filter part of params.
func Fingerprint(params *a2a.ListTasksParams) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00", params.ContextID, params.Status)
	if !params.LastUpdatedAfter.IsZero() {
		fmt.Fprint(h, params.LastUpdatedAfter.UnixNano())
	}
	return strconv.FormatUint(h.Sum64(), 36)
}

// Encode returns the opaque token for the task at (updatedAt, taskID).
func Encode(params *a2a.ListTasksParams, updatedAt time.Time, taskID string) string {
	b, err := json.Marshal(Cursor{
		UpdatedAt: updatedAt.UnixNano(),
		TaskID:    taskID,
		Filter:    Fingerprint(params),
	})
	if err != nil {
		// Cursor holds only strings and integers.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses params.PageToken. It returns ok=false when the listing starts
// at the beginning, and an error wrapping [a2a.ErrInvalidPageToken] when the
// token is malformed or was issued for a different filter.
func Decode(params *a2a.ListTasksParams) (cur Cursor, ok bool, err error) {
	if params.PageToken == "" {
		return Cursor{}, false, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(params.PageToken)
	if err != nil {
		return Cursor{}, false, fmt.Errorf("%w: %w", a2a.ErrInvalidPageToken, err)
	}
	if err := json.Unmarshal(b, &cur); err != nil {
		return Cursor{}, false, fmt.Errorf("%w: %w", a2a.ErrInvalidPageToken, err)
	}
	if cur.TaskID == "" || cur.Filter != Fingerprint(params) {
		return Cursor{}, false, fmt.Errorf("%w: token does not match the listing", a2a.ErrInvalidPageToken)
	}
	return cur, true, nil
}

// Size clamps a requested page size.
func Size(requested int) int {
	switch {
	case requested <= 0:
		return DefaultPageSize
	case requested > MaxPageSize:
		return MaxPageSize
	default:
		return requested
	}
}
