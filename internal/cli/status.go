package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		ctx := cmd.Context()

		ks, closeIndex, err := OpenKnowledgeStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeIndex()

		info, err := ks.Stats(ctx)
		if err != nil {
			return err
		}

		fmt.Println("Knowledge base")
		fmt.Printf("  Index:       %s\n", cfg.VectorIndex.Provider)
		fmt.Printf("  Collection:  %s\n", info.Name)
		fmt.Printf("  Chunks:      %d\n", info.Count)
		fmt.Printf("  Dimension:   %d\n", info.Dimension)
		if info.Model != "" {
			fmt.Printf("  Built with:  %s\n", info.Model)
		}
		fmt.Printf("  Embedder:    %s\n", ks.ModelName())
		if info.Model != "" && info.Model != ks.ModelName() {
			fmt.Println("\n  Warning: the collection was built with a different model; re-ingest or reset it.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
