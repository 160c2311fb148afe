// Package embeddings turns fragment text into vectors.
//
// A Worker owns exactly one Model on a dedicated goroutine and serves
// embedding requests in FIFO order. Models come from fastembed (in-process
// ONNX, requires cgo) or a text-embeddings-inference server.
package embeddings
