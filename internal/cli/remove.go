package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <source-id>",
	Short: "Delete every chunk of a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ks, closeIndex, err := OpenKnowledgeStore(ctx, GetConfig(), logger)
		if err != nil {
			return err
		}
		defer closeIndex()

		n, err := ks.Remove(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d chunks of %s\n", n, args[0])
		return nil
	},
}

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every chunk of the collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			return fmt.Errorf("reset deletes the whole collection; pass --yes to confirm")
		}
		ctx := cmd.Context()
		ks, closeIndex, err := OpenKnowledgeStore(ctx, GetConfig(), logger)
		if err != nil {
			return err
		}
		defer closeIndex()

		if err := ks.Reset(ctx); err != nil {
			return err
		}
		fmt.Printf("Collection %s reset\n", ks.Collection())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "confirm the reset")
}
