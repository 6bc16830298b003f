/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import "errors"

var (
	// ErrUnavailable marks transient failures of an external system (tracker, SMTP).
	// Callers may retry.
	ErrUnavailable = errors.New("external system unavailable")
	// ErrNotFound is an expected absence, never retried.
	ErrNotFound = errors.New("not found")
)
