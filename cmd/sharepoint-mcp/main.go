package main

import (
	"context"
	"io"
	"os"
	"strings"

	flags "github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
	"github.com/viant/mcp-protocol/authorization"
	oauthmeta "github.com/viant/mcp-protocol/oauth2/meta"
	"github.com/viant/mcp-protocol/schema"
	mcpsrv "github.com/viant/mcp/server"
	serverauth "github.com/viant/mcp/server/auth"
	"github.com/viant/scy"
	"github.com/viant/scy/auth/flow"
	"github.com/viant/scy/cred"
	_ "github.com/viant/scy/kms/blowfish"

	"github.com/PoOpOpO/kl-sharepoint-mcp/mcp"
)

// Options defines CLI flags for the SharePoint MCP server.
type Options struct {
	HTTPAddr       string `short:"a" long:"addr" description:"HTTP listen address" default:":7790"`
	ClientID       string `long:"client-id" description:"Azure AD application (client) ID"`
	TenantID       string `long:"tenant-id" description:"Tenant ID or 'common'/'organizations'"`
	Scopes         string `long:"scopes" description:"Comma-separated Graph scopes"`
	CachePath      string `long:"cache-path" description:"Token cache location (afs URL or local path)"`
	GraphBaseURL   string `long:"graph-base-url" description:"Microsoft Graph endpoint override"`
	DefaultDriveID string `long:"default-drive" description:"Drive preselected at startup"`
	AzureRef       string `long:"azure-ref" description:"scy EncodedResource for Azure cred (e.g., gcp://...|blowfish://default)"`
	Oauth2Config   string `short:"o" long:"oauth2config" description:"Path to JSON OAuth2 configuration file (scy EncodedResource)"`
	UseIdToken     bool   `short:"i" long:"use-id-token" description:"Use ID token (instead of access token) for identity scoping"`
	LogLevel       string `long:"log-level" description:"zerolog level (trace..error)"`
	LogFile        string `long:"log-file" description:"Also write logs to this file"`
	UseData        bool   `long:"use-data" description:"Return tool results in the data field instead of text"`
}

func main() {
	var opts Options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		os.Exit(2)
	}
	applyEnvFallbacks(&opts)

	logger := newLogger(opts.LogLevel, opts.LogFile)
	if opts.ClientID == "" && opts.AzureRef == "" {
		logger.Fatal().Msg("missing --client-id/MCP_GRAPH_CLIENT_ID (or provide --azure-ref)")
	}

	// Derive callback base URL from listen address.
	baseURL := "http://localhost"
	if opts.HTTPAddr != "" {
		hostport := opts.HTTPAddr
		if hostport[0] == ':' {
			hostport = "localhost" + hostport
		}
		baseURL = "http://" + hostport
	}

	svc, err := mcp.NewService(&mcp.Config{
		ClientID:        opts.ClientID,
		TenantID:        opts.TenantID,
		Scopes:          mcp.ParseScopes(opts.Scopes),
		CachePath:       opts.CachePath,
		GraphBaseURL:    opts.GraphBaseURL,
		DefaultDriveID:  opts.DefaultDriveID,
		CallbackBaseURL: baseURL,
		UseData:         opts.UseData,
		AzureRef:        scy.EncodedResource(opts.AzureRef),
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize service")
	}

	options := []mcpsrv.Option{
		mcpsrv.WithImplementation(schema.Implementation{Name: "mcp-sharepoint", Version: "0.1.0"}),
		mcpsrv.WithNewHandler(mcp.NewHandler(svc)),
		mcpsrv.WithEndpointAddress(opts.HTTPAddr),
		mcpsrv.WithRootRedirect(true),
		mcpsrv.WithStreamableURI("/mcp"),
		mcpsrv.WithCustomHTTPHandler("/sharepoint/auth/device/", svc.DeviceHandler()),
		mcpsrv.WithCustomHTTPHandler("/sharepoint/auth/pending", svc.PendingListHandler()),
		mcpsrv.WithCustomHTTPHandler("/sharepoint/auth/pending/clear", svc.PendingClearHandler()),
	}

	// Optional server-level OAuth2
	if v := strings.TrimSpace(opts.Oauth2Config); v != "" {
		res := scy.EncodedResource(v).Decode(context.Background(), cred.Oauth2Config{})
		sec, err := scy.New().Load(context.Background(), res)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load oauth2config")
		}
		oc, ok := sec.Target.(*cred.Oauth2Config)
		if !ok {
			logger.Fatal().Msg("invalid oauth2config secret type")
		}
		authPolicy := &authorization.Policy{
			Global: &authorization.Authorization{
				UseIdToken: opts.UseIdToken,
				ProtectedResourceMetadata: &oauthmeta.ProtectedResourceMetadata{
					AuthorizationServers: []string{oc.Config.Endpoint.AuthURL},
				}},
			ExcludeURI: "/sse,/sharepoint/auth/",
		}
		header := flow.AuthorizationExchangeHeader
		bff := &serverauth.BackendForFrontend{Client: &oc.Config, AuthorizationExchangeHeader: header}
		authSvc, err := serverauth.New(&serverauth.Config{Policy: authPolicy, BackendForFrontend: bff})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init auth service")
		}
		options = append(options,
			mcpsrv.WithAuthorizer(authSvc.Middleware),
			mcpsrv.WithProtectedResourcesHandler(authSvc.ProtectedResourcesHandler),
		)
	}

	server, err := mcpsrv.New(options...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create server")
	}
	logger.Info().Str("addr", opts.HTTPAddr).Msg("starting mcp-sharepoint")
	server.UseStreamableHTTP(true)
	if err := server.HTTP(context.Background(), opts.HTTPAddr).ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

// applyEnvFallbacks fills unset flags from the environment. Legacy SHP_*
// names are honored after the MCP_GRAPH_* ones.
func applyEnvFallbacks(opts *Options) {
	if opts.ClientID == "" {
		opts.ClientID = envOr("MCP_GRAPH_CLIENT_ID", os.Getenv("SHP_ID_APP"))
	}
	if opts.TenantID == "" {
		opts.TenantID = envOr("MCP_GRAPH_TENANT_ID", os.Getenv("SHP_TENANT_ID"))
	}
	if opts.Scopes == "" {
		opts.Scopes = os.Getenv("MCP_GRAPH_SCOPES")
	}
	if opts.CachePath == "" {
		opts.CachePath = os.Getenv("MCP_GRAPH_CACHE_PATH")
	}
	if opts.GraphBaseURL == "" {
		opts.GraphBaseURL = os.Getenv("MCP_GRAPH_BASE_URL")
	}
	if opts.DefaultDriveID == "" {
		opts.DefaultDriveID = os.Getenv("MCP_GRAPH_DEFAULT_DRIVE_ID")
	}
	if opts.AzureRef == "" {
		opts.AzureRef = os.Getenv("MCP_GRAPH_AZURE_REF")
	}
	if opts.LogLevel == "" {
		opts.LogLevel = os.Getenv("MCP_GRAPH_LOG_LEVEL")
	}
	if opts.LogFile == "" {
		opts.LogFile = os.Getenv("MCP_GRAPH_LOG_FILE")
	}
}

func newLogger(level, file string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
			lvl = parsed
		}
	}
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if file != "" {
		if f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = zerolog.MultiLevelWriter(out, f)
		}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
