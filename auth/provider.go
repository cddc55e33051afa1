package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
)

// DevicePrompt is the user-facing subset of a device-code flow: everything a
// human needs to complete sign-in, nothing needed to finish the exchange.
type DevicePrompt struct {
	UserCode        string `json:"userCode"`
	VerificationURI string `json:"verificationUri"`
	ExpiresIn       int    `json:"expiresIn"`
	Interval        int    `json:"interval"`
	Message         string `json:"message"`
}

// DeviceFlow is an in-progress device-code login. Exchange blocks polling the
// identity provider until the user completes sign-in, the context expires, or
// the provider reports denial/expiry.
type DeviceFlow interface {
	Prompt() DevicePrompt
	Exchange(ctx context.Context) (public.AuthResult, error)
}

// Provider is the identity-provider boundary consumed by the Manager. The
// production implementation wraps the MSAL public client; tests substitute a
// fake.
type Provider interface {
	// Accounts enumerates identities known to the token cache.
	Accounts(ctx context.Context) ([]public.Account, error)
	// AcquireSilent obtains a token from cached/refresh material without
	// user interaction.
	AcquireSilent(ctx context.Context, scopes []string, account public.Account) (public.AuthResult, error)
	// InitiateDeviceFlow starts a device-code exchange.
	InitiateDeviceFlow(ctx context.Context, scopes []string) (DeviceFlow, error)
}

type msalProvider struct {
	client public.Client
}

// NewMSALProvider builds a Provider over the Microsoft identity platform.
// The store is wired in as the client's cache hooks so issued tokens are
// persisted and survive restarts.
func NewMSALProvider(clientID, tenantID string, store *Store) (Provider, error) {
	if clientID == "" {
		return nil, fmt.Errorf("clientID is required to authenticate against Microsoft Graph")
	}
	if tenantID == "" {
		tenantID = "common"
	}
	authority := "https://login.microsoftonline.com/" + tenantID
	opts := []public.Option{public.WithAuthority(authority)}
	if store != nil {
		opts = append(opts, public.WithCache(store))
	}
	client, err := public.New(clientID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create public client: %w", err)
	}
	return &msalProvider{client: client}, nil
}

func (p *msalProvider) Accounts(ctx context.Context) ([]public.Account, error) {
	return p.client.Accounts(ctx)
}

func (p *msalProvider) AcquireSilent(ctx context.Context, scopes []string, account public.Account) (public.AuthResult, error) {
	return p.client.AcquireTokenSilent(ctx, scopes, public.WithSilentAccount(account))
}

func (p *msalProvider) InitiateDeviceFlow(ctx context.Context, scopes []string) (DeviceFlow, error) {
	dc, err := p.client.AcquireTokenByDeviceCode(ctx, scopes)
	if err != nil {
		return nil, err
	}
	return &msalDeviceFlow{code: dc}, nil
}

type msalDeviceFlow struct {
	code public.DeviceCode
}

func (f *msalDeviceFlow) Prompt() DevicePrompt {
	r := f.code.Result
	expiresIn := int(time.Until(r.ExpiresOn).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return DevicePrompt{
		UserCode:        r.UserCode,
		VerificationURI: r.VerificationURL,
		ExpiresIn:       expiresIn,
		Interval:        r.Interval,
		Message:         r.Message,
	}
}

func (f *msalDeviceFlow) Exchange(ctx context.Context) (public.AuthResult, error) {
	return f.code.AuthenticationResult(ctx)
}
