package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AccountSummary is the serializable view of a cached Microsoft account.
type AccountSummary struct {
	Username      string `json:"username"`
	Name          string `json:"name,omitempty"`
	HomeAccountID string `json:"homeAccountId"`
	Environment   string `json:"environment,omitempty"`
	Tenant        string `json:"tenant,omitempty"`
	IsActive      bool   `json:"isActive"`
}

// DeviceLogin is returned by StartDeviceLogin: the flow handle plus the
// user-facing prompt. The flow context needed to finish the exchange stays
// inside the Manager and is never re-exposed.
type DeviceLogin struct {
	FlowID string `json:"flowId"`
	DevicePrompt
}

// LoginResult reports a completed device login. It carries token metadata but
// never the token itself.
type LoginResult struct {
	Success   bool            `json:"success"`
	Account   *AccountSummary `json:"account,omitempty"`
	ExpiresIn int             `json:"expiresIn,omitempty"`
	Scope     string          `json:"scope,omitempty"`
	TokenType string          `json:"tokenType,omitempty"`
}

// PendingLogin is the introspection view of a flow awaiting completion.
type PendingLogin struct {
	FlowID    string    `json:"flowId"`
	CreatedAt time.Time `json:"createdAt"`
	DevicePrompt
}

// Context is a diagnostic snapshot of the authentication session.
type Context struct {
	ActiveAccount     *AccountSummary  `json:"activeAccount,omitempty"`
	AvailableAccounts []AccountSummary `json:"availableAccounts"`
	Scopes            []string         `json:"scopes"`
	CacheURL          string           `json:"cacheUrl,omitempty"`
}

type pendingFlow struct {
	flow      DeviceFlow
	prompt    DevicePrompt
	createdAt time.Time
}

// Manager coordinates multi-account authentication for Microsoft Graph: it
// tracks which cached account is active, runs device-code logins, and hands
// out bearer tokens for outbound Graph calls. One mutex guards the
// active-account pointer and the pending-flow map so concurrent tool calls
// observe both atomically; provider calls happen outside the lock.
type Manager struct {
	provider Provider
	store    *Store
	scopes   []string
	logger   zerolog.Logger

	mu       sync.Mutex
	activeID string
	pending  map[string]*pendingFlow
}

// NewManager wires the account directory, device-flow coordinator and token
// acquisition over provider. store is only consulted for diagnostics; the
// provider owns the persistence hooks.
func NewManager(provider Provider, store *Store, scopes []string, logger zerolog.Logger) *Manager {
	return &Manager{
		provider: provider,
		store:    store,
		scopes:   scopes,
		logger:   logger.With().Str("component", "auth").Logger(),
		pending:  map[string]*pendingFlow{},
	}
}

// Scopes returns the scopes requested with every acquisition.
func (m *Manager) Scopes() []string { return m.scopes }

func summarize(a public.Account, active bool) *AccountSummary {
	return &AccountSummary{
		Username:      a.PreferredUsername,
		Name:          a.Name,
		HomeAccountID: a.HomeAccountID,
		Environment:   a.Environment,
		Tenant:        a.Realm,
		IsActive:      active,
	}
}

// ListAccounts enumerates every account in the credential cache. When no
// account is active and exactly one exists it is promoted to active, so a
// fresh session with an unambiguous cache needs no explicit selection.
func (m *Manager) ListAccounts(ctx context.Context) ([]AccountSummary, error) {
	accounts, err := m.provider.Accounts(ctx)
	if err != nil {
		return nil, &AuthError{Message: "unable to enumerate cached accounts", Detail: err.Error()}
	}
	m.mu.Lock()
	if m.activeID == "" && len(accounts) == 1 {
		m.activeID = accounts[0].HomeAccountID
		m.logger.Info().Str("account", accounts[0].PreferredUsername).Msg("auto-selected sole cached account")
	}
	active := m.activeID
	m.mu.Unlock()

	summaries := make([]AccountSummary, 0, len(accounts))
	for _, a := range accounts {
		summaries = append(summaries, *summarize(a, a.HomeAccountID == active))
	}
	return summaries, nil
}

// activeAccount resolves the active pointer against the current cache. A
// pointer to an account that no longer exists (cache cleared externally) is
// dropped rather than returned stale.
func (m *Manager) activeAccount(ctx context.Context) (public.Account, bool, error) {
	m.mu.Lock()
	id := m.activeID
	m.mu.Unlock()
	if id == "" {
		return public.Account{}, false, nil
	}
	accounts, err := m.provider.Accounts(ctx)
	if err != nil {
		return public.Account{}, false, &AuthError{Message: "unable to enumerate cached accounts", Detail: err.Error()}
	}
	for _, a := range accounts {
		if a.HomeAccountID == id {
			return a, true, nil
		}
	}
	m.mu.Lock()
	if m.activeID == id {
		m.activeID = ""
	}
	m.mu.Unlock()
	return public.Account{}, false, nil
}

// ActiveAccountSummary returns the active account, or nil when none is.
func (m *Manager) ActiveAccountSummary(ctx context.Context) (*AccountSummary, error) {
	account, ok, err := m.activeAccount(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return summarize(account, true), nil
}

// SetActiveAccount selects the account for subsequent Graph operations, by
// home account id or by username (case-insensitive). The active pointer is
// only mutated on a successful match.
func (m *Manager) SetActiveAccount(ctx context.Context, homeAccountID, username string) (*AccountSummary, error) {
	if homeAccountID == "" && username == "" {
		return nil, &AuthError{Message: "either homeAccountId or username must be provided"}
	}
	accounts, err := m.provider.Accounts(ctx)
	if err != nil {
		return nil, &AuthError{Message: "unable to enumerate cached accounts", Detail: err.Error()}
	}
	for _, a := range accounts {
		matched := (homeAccountID != "" && a.HomeAccountID == homeAccountID) ||
			(username != "" && strings.EqualFold(a.PreferredUsername, username))
		if !matched {
			continue
		}
		m.mu.Lock()
		m.activeID = a.HomeAccountID
		m.mu.Unlock()
		m.logger.Info().Str("account", a.PreferredUsername).Msg("active account changed")
		return summarize(a, true), nil
	}
	return nil, &AuthError{Message: "no cached account matches the provided identifier"}
}

// StartDeviceLogin initiates a device-code flow and registers it under a
// fresh flow id. The returned value is the only part of the flow a caller
// ever sees.
func (m *Manager) StartDeviceLogin(ctx context.Context) (*DeviceLogin, error) {
	flow, err := m.provider.InitiateDeviceFlow(ctx, m.scopes)
	if err != nil {
		return nil, &AuthError{Message: "failed to start the device login flow", Detail: err.Error()}
	}
	prompt := flow.Prompt()
	if prompt.UserCode == "" {
		return nil, &AuthError{Message: "failed to start the device login flow"}
	}
	flowID := uuid.New().String()
	m.mu.Lock()
	m.pending[flowID] = &pendingFlow{flow: flow, prompt: prompt, createdAt: time.Now()}
	m.mu.Unlock()
	m.logger.Info().Str("flowId", flowID).Msg("initiated device login flow")
	return &DeviceLogin{FlowID: flowID, DevicePrompt: prompt}, nil
}

// CompleteDeviceLogin finishes a flow started by StartDeviceLogin. The flow
// id is single-use: it is removed from the pending set before the exchange,
// so it is gone regardless of outcome. The exchange is bounded by timeout, or
// by the prompt's own expiry when timeout is zero.
func (m *Manager) CompleteDeviceLogin(ctx context.Context, flowID string, timeout time.Duration) (*LoginResult, error) {
	m.mu.Lock()
	pf, ok := m.pending[flowID]
	if ok {
		delete(m.pending, flowID)
	}
	m.mu.Unlock()
	if !ok {
		return nil, &FlowNotFoundError{FlowID: flowID}
	}

	if timeout <= 0 && pf.prompt.ExpiresIn > 0 {
		timeout = time.Duration(pf.prompt.ExpiresIn) * time.Second
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	result, err := pf.flow.Exchange(ctx)
	if err != nil {
		return nil, &AuthError{Message: "device login did not succeed", Detail: err.Error()}
	}

	summary := m.activateAuthenticated(ctx, result)
	username := "unknown"
	if summary != nil {
		username = summary.Username
	}
	m.logger.Info().Str("account", username).Msg("device login completed")

	expiresIn := int(time.Until(result.ExpiresOn).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return &LoginResult{
		Success:   true,
		Account:   summary,
		ExpiresIn: expiresIn,
		Scope:     strings.Join(result.GrantedScopes, " "),
		TokenType: "Bearer",
	}, nil
}

// activateAuthenticated determines which cached account the exchange just
// authenticated and marks it active: the username embedded in the result's
// identity claims wins, then the result account itself, then the most
// recently cached account.
func (m *Manager) activateAuthenticated(ctx context.Context, result public.AuthResult) *AccountSummary {
	preferred := result.Account.PreferredUsername
	if preferred == "" {
		preferred = result.IDToken.PreferredUsername
	}
	if preferred == "" {
		preferred = result.IDToken.Email
	}

	accounts, err := m.provider.Accounts(ctx)
	if err != nil {
		accounts = nil
	}
	var selected public.Account
	found := false
	if preferred != "" {
		for _, a := range accounts {
			if strings.EqualFold(a.PreferredUsername, preferred) {
				selected, found = a, true
				break
			}
		}
	}
	if !found && result.Account.HomeAccountID != "" {
		selected, found = result.Account, true
	}
	if !found && len(accounts) > 0 {
		selected, found = accounts[len(accounts)-1], true
	}
	if !found {
		return nil
	}
	m.mu.Lock()
	m.activeID = selected.HomeAccountID
	m.mu.Unlock()
	return summarize(selected, true)
}

// AcquireTokenSilent is the choke-point every outbound Graph operation passes
// through. It resolves the active account (auto-selecting a sole cached one)
// and asks the provider for a token with no user interaction. Refreshed
// credentials are persisted through the provider's cache hooks.
func (m *Manager) AcquireTokenSilent(ctx context.Context) (string, error) {
	account, ok, err := m.activeAccount(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		accounts, err := m.provider.Accounts(ctx)
		if err != nil {
			return "", &AuthError{Message: "unable to enumerate cached accounts", Detail: err.Error()}
		}
		if len(accounts) != 1 {
			return "", &AuthError{Message: "no active Microsoft account selected; use the authentication tools to sign in and select an account"}
		}
		account = accounts[0]
		m.mu.Lock()
		m.activeID = account.HomeAccountID
		m.mu.Unlock()
	}
	result, err := m.provider.AcquireSilent(ctx, m.scopes, account)
	if err != nil {
		return "", &AuthError{Message: "unable to acquire a token silently; complete the device login flow first", Detail: err.Error()}
	}
	if result.AccessToken == "" {
		return "", &AuthError{Message: "unable to acquire a token silently; complete the device login flow first"}
	}
	return result.AccessToken, nil
}

// Context returns a diagnostic snapshot of the authentication session.
func (m *Manager) Context(ctx context.Context) (*Context, error) {
	accounts, err := m.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	active, err := m.ActiveAccountSummary(ctx)
	if err != nil {
		return nil, err
	}
	out := &Context{ActiveAccount: active, AvailableAccounts: accounts, Scopes: m.scopes}
	if m.store != nil {
		out.CacheURL = m.store.URL()
	}
	return out, nil
}

// PendingPrompt returns the user-facing prompt of a pending flow without
// consuming it. Used by the device-login HTTP page.
func (m *Manager) PendingPrompt(flowID string) (DevicePrompt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pf, ok := m.pending[flowID]
	if !ok {
		return DevicePrompt{}, false
	}
	return pf.prompt, true
}

// PendingLogins snapshots flows awaiting completion. Abandoned flows are not
// swept automatically; ClearPendingLogins is the explicit eviction path.
func (m *Manager) PendingLogins() []PendingLogin {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PendingLogin, 0, len(m.pending))
	for id, pf := range m.pending {
		out = append(out, PendingLogin{FlowID: id, CreatedAt: pf.createdAt, DevicePrompt: pf.prompt})
	}
	return out
}

// ClearPendingLogins abandons every pending flow and returns the cleared ids.
func (m *Manager) ClearPendingLogins() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
		delete(m.pending, id)
	}
	return ids
}
