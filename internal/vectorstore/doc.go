// Package vectorstore stores document chunk embeddings, one collection per
// project group.
//
// Two backends implement Store:
//   - QdrantStore: external Qdrant over gRPC (production)
//   - ChromemStore: embedded chromem-go, in-memory or persisted to disk
//
// Writes are append-only: every Upsert adds points under fresh IDs, so
// re-ingesting a file adds a second set of chunks. Every point carries its
// provenance (group, file name, chunk index, text) as payload.
package vectorstore
