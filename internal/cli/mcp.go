package cli

import (
	"github.com/spf13/cobra"
	"voiceagent/internal/adapter/tool"
)

var mcpHTTPAddr string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose knowledge_base_search as an MCP server",
	Long: `Serve the knowledge_base_search tool to a voice agent over the Model
Context Protocol. Stdio is used by default; --http serves streamable HTTP.

Examples:
  voiceagent mcp
  voiceagent mcp --http :8765`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		ctx := cmd.Context()

		ks, closeIndex, err := OpenKnowledgeStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeIndex()

		kt := tool.NewKnowledgeTool(ks, cfg.Retrieve.ToolTopK, cfg.Retrieve.SearchTimeout, logger)
		server := tool.NewServer(kt, ks)

		if mcpHTTPAddr != "" {
			logger.Info("serving MCP over HTTP", "addr", mcpHTTPAddr, "collection", ks.Collection())
			return server.RunHTTP(ctx, mcpHTTPAddr)
		}
		return server.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpHTTPAddr, "http", "", "serve streamable HTTP on this address instead of stdio")
}
