// Package vectorstore persists embedded fragments and answers nearest
// neighbour queries.
//
// Two backends implement Store:
//
//   - QdrantStore talks to a Qdrant server over gRPC (the default).
//   - ChromemStore keeps an embedded, file-backed chromem-go database for
//     offline use.
//
// Both derive the point ID from the fragment ID (UUIDv5, OID namespace), so
// re-uploading a project overwrites its previous points instead of
// duplicating them. Each point carries the fragment id, document id, name,
// text, creation time and the JSON-encoded metadata map.
package vectorstore
