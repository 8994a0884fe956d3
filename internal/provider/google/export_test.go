// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package google

// Exported internals for white-box testing from the google_test package.
var (
	ConvertMessages = convertMessages
	BuildRequest    = buildRequest
	WrapErr         = wrapErr
)
