// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package server

// StatusOf exposes the error to status mapping for tests.
var StatusOf = statusOf
