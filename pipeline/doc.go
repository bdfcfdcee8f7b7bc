// Copyright (c) FactFlow Authors.
// Licensed under the MIT License.

/*
Package pipeline orchestrates claim verification.

A Verifier runs each claim through a fixed sequence of stages:

	embedding → retrieval → scoring → aggregation → done

Embedding and entailment calls run on the bounded inference pool. A claim
has a wall-clock budget; when it runs out the Verifier stops waiting on
in-flight provider calls and aggregates whatever evidence has been scored,
noting BUDGET_EXCEEDED on the result.

Only three conditions end a claim with an error instead of a verdict:
invalid input, a caller that abandons the claim, and an embedding failure
that keyword-only retrieval cannot recover from. Every other failure is
recorded as a Degradation and the claim still gets a verdict, possibly
INSUFFICIENT.

Each claim gets one span with a child span per stage, Prometheus metrics
through MetricsRecorder, and an optional Recorder that persists the result.
*/
package pipeline
