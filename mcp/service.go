package mcp

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/viant/scy"
	"github.com/viant/scy/cred"

	"github.com/PoOpOpO/kl-sharepoint-mcp/auth"
	"github.com/PoOpOpO/kl-sharepoint-mcp/graph"
	"github.com/PoOpOpO/kl-sharepoint-mcp/identity"
)

// Service wires the authentication manager, Graph client and caller identity
// behind the tool surface.
type Service struct {
	authMgr  *auth.Manager
	graphCli *graph.Client
	identity *identity.Service
	logger   zerolog.Logger

	baseURL  string
	useText  bool
	clientID string
	tenantID string
}

// NewService builds the service from configuration. When cfg.AzureRef names a
// scy secret its client and tenant ids take precedence over the literal
// config values.
func NewService(cfg *Config, logger zerolog.Logger) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	clientID := cfg.ClientID
	tenantID := cfg.TenantID
	if cfg.AzureRef != "" {
		res := cfg.AzureRef.Decode(context.Background(), cred.Azure{})
		sec, err := scy.New().Load(context.Background(), res)
		if err != nil {
			return nil, fmt.Errorf("failed to load azure secret: %w", err)
		}
		if az, ok := sec.Target.(*cred.Azure); ok {
			if az.ClientID != "" {
				clientID = az.ClientID
			}
			if tenantID == "" && az.TenantID != "" {
				tenantID = az.TenantID
			}
		}
	}

	cachePath := cfg.CachePath
	if cachePath == "" {
		cachePath = DefaultCachePath()
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes()
	}

	store := auth.NewStore(cachePath, logger)
	store.Probe(context.Background())
	provider, err := auth.NewMSALProvider(clientID, tenantID, store)
	if err != nil {
		return nil, err
	}
	authMgr := auth.NewManager(provider, store, scopes, logger)
	graphCli := graph.NewClient(authMgr, cfg.GraphBaseURL, logger)
	if cfg.DefaultDriveID != "" {
		graphCli.PreselectDrive(cfg.DefaultDriveID)
	}

	return &Service{
		authMgr:  authMgr,
		graphCli: graphCli,
		identity: identity.New(),
		logger:   logger.With().Str("component", "mcp").Logger(),
		baseURL:  cfg.CallbackBaseURL,
		useText:  cfg.UseText || !cfg.UseData,
		clientID: clientID,
		tenantID: tenantID,
	}, nil
}

func (s *Service) Auth() *auth.Manager  { return s.authMgr }
func (s *Service) Graph() *graph.Client { return s.graphCli }
func (s *Service) UseTextField() bool   { return s.useText }
func (s *Service) BaseURL() string      { return s.baseURL }
func (s *Service) TenantID() string     { return s.tenantID }
func (s *Service) ClientID() string     { return s.clientID }

// caller resolves the request identity for audit logging; failures degrade to
// the anonymous default.
func (s *Service) caller(ctx context.Context) string {
	who, err := s.identity.Caller(ctx)
	if err != nil || who == "" {
		return s.identity.DefaultCaller
	}
	return who
}

func (s *Service) logCall(ctx context.Context, tool string) {
	s.logger.Debug().Str("tool", tool).Str("caller", s.caller(ctx)).Msg("tool call")
}
