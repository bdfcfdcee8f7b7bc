// Copyright (c) FactFlow Authors.
// Licensed under the MIT License.

// Package api defines the wire types of the FactFlow HTTP API.
//
// # API Overview
//
// FactFlow exposes a small JSON API:
//   - POST /v1/verify verifies a single claim against the evidence corpus
//   - POST /v1/verify/batch verifies several claims concurrently
//   - GET /v1/results/{id} and GET /v1/results read recorded results
//   - GET /health, /healthz, /ready and /version for checks
//
// Prometheus metrics are served on a separate port at /metrics.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # Responses
//
// Every response uses the envelope defined in api/handlers:
//
//	{"success": true, "data": {...}, "timestamp": "...", "request_id": "..."}
//
// Errors carry a code from the types package (INVALID_REQUEST,
// PROVIDER_UNAVAILABLE, ...) and the HTTP status derived from it.
package api
