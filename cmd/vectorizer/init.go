//go:build cgo

package main

import (
	"fmt"

	"github.com/fyrsmithlabs/vectorizer/internal/embeddings"
	"github.com/spf13/cobra"
)

func init() {
	extraCommands = append(extraCommands, newInitCmd)
}

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Download the ONNX runtime used by local models",
		Long: `Download the ONNX runtime library required by the fastembed model
provider. The library is installed to:
  ~/.config/vectorizer/lib/

If the ONNX_PATH environment variable is set, that path takes precedence.

Examples:
  vectorizer init
  vectorizer init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				if path := embeddings.GetONNXLibraryPath(); path != "" {
					cmd.Printf("ONNX runtime already installed at: %s\n", path)
					cmd.Println("Use --force to re-download.")
					return nil
				}
			}

			cmd.Printf("Downloading ONNX runtime v%s...\n", embeddings.DefaultONNXRuntimeVersion)
			if err := embeddings.DownloadONNXRuntime(cmd.Context(), ""); err != nil {
				return fmt.Errorf("failed to download ONNX runtime: %w", err)
			}
			path := embeddings.GetONNXLibraryPath()
			if path == "" {
				return fmt.Errorf("download completed but library not found")
			}
			cmd.Printf("Successfully installed ONNX runtime to: %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "re-download even if the runtime exists")
	return cmd
}
