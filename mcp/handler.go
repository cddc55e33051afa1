package mcp

import (
	"context"

	"github.com/viant/jsonrpc/transport"
	protoclient "github.com/viant/mcp-protocol/client"
	"github.com/viant/mcp-protocol/logger"
	protoserver "github.com/viant/mcp-protocol/server"
)

// Handler serves one MCP session. The shared Service carries the process-wide
// auth and drive state; the embedded default handler owns the protocol
// plumbing.
type Handler struct {
	*protoserver.DefaultHandler
	service *Service
	ops     protoclient.Operations
}

// NewHandler returns the per-session factory the server calls for each
// connection. Tools register against the session's own registry.
func NewHandler(service *Service) protoserver.NewHandler {
	return func(_ context.Context, notifier transport.Notifier, logger logger.Logger, clientOperation protoclient.Operations) (protoserver.Handler, error) {
		base := protoserver.NewDefaultHandler(notifier, logger, clientOperation)
		handler := &Handler{DefaultHandler: base, service: service, ops: clientOperation}
		if err := registerTools(base, handler); err != nil {
			return nil, err
		}
		return handler, nil
	}
}
