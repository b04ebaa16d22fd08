// Package vectorstore holds the similarity indexes that back retrieval.
//
// Three implementations satisfy Index:
//   - SQLIndex scans the embeddings stored next to each chunk in the content
//     store. It needs no extra service and is the default.
//   - ChromemIndex keeps vectors in an embedded chromem-go database,
//     optionally persisted to disk.
//   - QdrantIndex talks to a Qdrant server over gRPC.
//
// All indexes report cosine distance (1 - cosine similarity) and restrict
// every search to an explicit set of document ids.
package vectorstore
