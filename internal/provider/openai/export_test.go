// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package openai

// Exported internals for white-box testing from the openai_test package.
var (
	ConvertMessages = convertMessages
	ConvertTools    = convertTools
	BuildParams     = buildParams
	WrapErr         = wrapErr
)
