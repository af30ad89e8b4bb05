// Package embeddings wraps the external text-embedding capability.
//
// The Client enforces the pipeline's embedding contract on top of any
// Provider: empty input is rejected before any network call, returned vectors
// must have the configured fixed dimension, and transient failures are retried
// with linear backoff up to a ceiling before a typed error surfaces.
//
// The production Provider speaks the TEI (Text Embeddings Inference) HTTP
// protocol, which is also compatible with OpenAI-style embedding servers.
package embeddings
