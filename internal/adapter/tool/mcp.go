package tool

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"voiceagent/internal/port"
)

// Version is the MCP server version.
const Version = "0.1.0"

const collectionURI = "voiceagent://collection"

// SearchInput is the input schema of the knowledge_base_search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"The search query to find relevant information in the knowledge base"`
}

// InfoSource reports collection statistics.
type InfoSource interface {
	Stats(ctx context.Context) (port.CollectionInfo, error)
}

// Server serves the knowledge tool over the Model Context Protocol.
type Server struct {
	tool   *KnowledgeTool
	info   InfoSource
	server *mcp.Server
}

// NewServer registers the knowledge tool and, when info is not nil, a
// collection resource.
func NewServer(tool *KnowledgeTool, info InfoSource) *Server {
	s := &Server{
		tool: tool,
		info: info,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "voiceagent",
			Version: Version,
		}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        Name,
		Description: Description,
	}, s.handleSearch)

	if info != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         collectionURI,
			Name:        "collection",
			Description: "Knowledge base collection statistics",
			MIMEType:    "application/json",
		}, s.handleCollection)
	}
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, any, error) {
	text := s.tool.Call(ctx, input.Query)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

func (s *Server) handleCollection(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	info, err := s.info.Stats(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns a streamable HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// RunHTTP serves over streamable HTTP on addr until ctx is cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
