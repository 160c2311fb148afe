// Package pipeline wires the indexer, the embedding worker and a vector
// store into the vectorizer commands.
//
// A Runner is built once per process from validated Settings. Upload walks
// the project, embeds every fragment on the serial worker and upserts the
// result; Index stops after traversal; Search embeds a query and prints the
// nearest fragments; Test checks the store round trip on a scratch
// collection.
//
// Stage timings are logged at info level and, when performance reporting is
// enabled, recorded as Prometheus metrics and written to a textfile at the
// end of the run.
package pipeline
