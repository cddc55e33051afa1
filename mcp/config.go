package mcp

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/viant/scy"
)

// Config controls SharePoint MCP server behaviour and authentication.
type Config struct {
	// Azure AD application (client) ID for Microsoft Graph.
	ClientID string `json:"clientID"`
	// Tenant ID or "organizations"/"common".
	TenantID string `json:"tenantID"`
	// Scopes requested with every token acquisition; defaults to the
	// SharePoint file scopes plus offline_access.
	Scopes []string `json:"scopes,omitempty"`

	// CachePath is the afs URL or local path of the serialized token cache.
	CachePath string `json:"cachePath,omitempty"`

	// GraphBaseURL overrides the Microsoft Graph endpoint, mainly for tests.
	GraphBaseURL string `json:"graphBaseURL,omitempty"`

	// DefaultDriveID preselects the active drive at startup.
	DefaultDriveID string `json:"defaultDriveID,omitempty"`

	// CallbackBaseURL is used to generate absolute URLs for the device login
	// helper pages. Example: http://localhost:7790
	CallbackBaseURL string `json:"callbackBaseURL,omitempty"`

	// If true, return tool results in the `data` field instead of `text`.
	UseData bool `json:"useData,omitempty"`
	// Legacy flag to force using text field.
	UseText bool `json:"useText,omitempty"`

	// AzureRef optionally points to an Azure OAuth2 client config stored as a scy resource.
	// It uses EncodedResource syntax: "<URL>|<kmsKey>", where the key part is optional.
	// Examples:
	//  - file-based:    "~/.secret/azure.yaml|blowfish://default"
	//  - GCP secret:    "gcp://secretmanager/projects/myproj/secrets/azure-cred|blowfish://default"
	// The referenced content should unmarshal into github.com/viant/scy/cred.Azure.
	AzureRef scy.EncodedResource `json:"azureRef,omitempty"`
}

// DefaultScopes are requested when the configuration does not name any.
func DefaultScopes() []string {
	return []string{
		"Files.ReadWrite.All",
		"Sites.ReadWrite.All",
		"User.Read",
		"offline_access",
	}
}

// ParseScopes splits a comma-separated scope list, dropping blank entries.
func ParseScopes(raw string) []string {
	var out []string
	for _, scope := range strings.Split(raw, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			out = append(out, scope)
		}
	}
	return out
}

// DefaultCachePath places the token cache under the user cache directory.
func DefaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "mcp-sharepoint", "token_cache.bin")
}
