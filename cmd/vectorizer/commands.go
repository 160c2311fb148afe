package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newUploadCmd(f *rootFlags) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Index, embed and upload the project",
		Long: `Index the project, embed every fragment and upsert the vectors into the
configured collection. With --path only that file is uploaded.

Examples:
  # Upload every markdown file of a project
  vectorizer -p ~/src/docs -e md -c docs upload

  # Upload one file
  vectorizer -p ~/src/docs -c docs upload --path ~/src/docs/README.md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := f.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			e.logger.Info(cmd.Context(), "uploading files")
			res, err := e.runner.Upload(cmd.Context(), path)
			if err != nil {
				e.logger.Error(cmd.Context(), "upload failed", zap.Error(err))
				return err
			}
			cmd.Printf("uploaded %d fragments from %d documents in %s\n",
				res.Points, res.Stats.Documents, res.Total.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "P", "", "upload only this file")
	return cmd
}

func newIndexCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Index the project without uploading",
		Long: `Walk the project and build its fragments without loading a model or
contacting the database. Useful to check extension and ignore settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := f.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			set, stats, err := e.runner.Index(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range set.Documents {
				cmd.Printf("%s\t%d fragments\n", d.Path, len(d.Fragments))
			}
			cmd.Printf("indexed %d documents, %d fragments (%d files, %d skipped) in %s\n",
				stats.Documents, stats.Fragments, stats.Files, stats.Skipped, stats.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func newTestCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test the connection to the vector database",
		Long: `List the database's collections and run a write and search round trip on
a scratch collection, which is removed afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := f.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			return e.runner.Test(cmd.Context())
		},
	}
}

func newSearchCmd(f *rootFlags) *cobra.Command {
	var (
		term  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the uploaded fragments",
		Long: `Embed the search term with the configured model and print the nearest
fragments of the collection.

Examples:
  vectorizer -p ~/src/docs -c docs search --term "connection pooling"
  vectorizer -p ~/src/docs -c docs search -T retries --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := f.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			_, err = e.runner.Search(cmd.Context(), term, limit)
			return err
		},
	}
	cmd.Flags().StringVarP(&term, "term", "T", "", "search term")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results (default 52)")
	_ = cmd.MarkFlagRequired("term")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("vectorizer %s\n", version)
			cmd.Printf("  commit: %s\n", gitCommit)
			cmd.Printf("  built:  %s\n", buildDate)
		},
	}
}

