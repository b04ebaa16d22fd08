// Package embeddings turns chunk text and questions into vectors.
//
// A Provider talks to one backend: a Text Embeddings Inference server (tei),
// an OpenAI-compatible embeddings API (openai, via langchaingo), or a local
// ONNX model (fastembed, cgo builds only). Embedder wraps a Provider with
// batching, the retry policy, unit normalization and metrics; it is the
// capability the ingestion and query pipelines depend on.
package embeddings
