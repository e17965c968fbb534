// Package embeddings generates embedding vectors for document chunks.
//
// A Service wraps any langchaingo embedder, usually the OpenAI-compatible
// client built by NewOpenAI. Inputs are split into batches which are dispatched
// through a bounded worker pool; the first failing batch fails the whole call.
// Duration, batch size and error counts are recorded as OpenTelemetry metrics.
package embeddings
