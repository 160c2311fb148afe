// Package indexer turns a project directory (or a single file) into a
// DocumentSet: it compiles the ignore rules, walks the project, reads
// accepted files in parallel and fragments each into documents.
//
// Files that cannot be read or are not valid UTF-8 are skipped with a
// warning. An empty result is not an error.
package indexer
