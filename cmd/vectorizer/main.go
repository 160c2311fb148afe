// Vectorizer indexes a project's text files into a vector database.
//
// It walks the project, filters files by extension and ignore rules, splits
// each file into fragments, embeds them with a local or remote sentence
// embedding model and upserts the vectors with their text and metadata.
//
// Usage:
//
//	# Index and upload a project
//	vectorizer -p ~/src/docs -e md,txt -c docs upload
//
//	# Search the uploaded fragments
//	vectorizer -p ~/src/docs -c docs search --term "retry policy"
//
//	# Check the database connection
//	vectorizer -p ~/src/docs -c docs test
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetOut(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
