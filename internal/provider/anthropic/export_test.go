// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package anthropic

// Exported internals for white-box testing from the anthropic_test package.
var (
	ConvertMessages = convertMessages
	BuildParams     = buildParams
	ExtractSchema   = extractSchema
	WrapErr         = wrapErr
)
