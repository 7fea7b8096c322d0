// Package core provides the long-term vector memory of mscp.
//
// A VectorStore keeps an append-only sequence of (vector, text) chunks behind an
// exact flat index and persists them as a matched pair of files: a binary vector
// index and a JSON metadata array. Retrieval is a brute-force squared-Euclidean
// scan, which is fast enough for the low thousands of chunks a single-user
// memory accumulates.
//
// # Key Components
//
//   - VectorStore: insertion, k-nearest retrieval, persistence and bulk ingest.
//   - Embedder: the embedding port; see pkg/embed for implementations.
//   - ChunkText: overlapping fixed-size word windows for knowledge ingestion.
//   - Watcher: re-ingests the knowledge directory when its text files change.
//
// # Errors
//
// Load fails with ErrCorruptStore when the two artifacts disagree. Embedding port
// failures surface as ErrEmbeddingFailed. Operation context is attached with
// StoreError.
package core
