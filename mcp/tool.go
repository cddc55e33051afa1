package mcp

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/viant/jsonrpc"
	"github.com/viant/mcp-protocol/schema"
	protoserver "github.com/viant/mcp-protocol/server"

	"github.com/PoOpOpO/kl-sharepoint-mcp/auth"
	"github.com/PoOpOpO/kl-sharepoint-mcp/graph"
)

//go:embed tools/sharepointStartDeviceLogin.md
var startDeviceLoginDesc string

//go:embed tools/sharepointCompleteDeviceLogin.md
var completeDeviceLoginDesc string

//go:embed tools/sharepointListAccounts.md
var listAccountsDesc string

//go:embed tools/sharepointSetActiveAccount.md
var setActiveAccountDesc string

//go:embed tools/sharepointAuthContext.md
var authContextDesc string

//go:embed tools/sharepointListMyDrives.md
var listMyDrivesDesc string

//go:embed tools/sharepointSearchSites.md
var searchSitesDesc string

//go:embed tools/sharepointListSiteDrives.md
var listSiteDrivesDesc string

//go:embed tools/sharepointSetActiveDrive.md
var setActiveDriveDesc string

//go:embed tools/sharepointGraphContext.md
var graphContextDesc string

//go:embed tools/sharepointListItems.md
var listItemsDesc string

//go:embed tools/sharepointGetItemMetadata.md
var getItemMetadataDesc string

//go:embed tools/sharepointGetItemContent.md
var getItemContentDesc string

//go:embed tools/sharepointCreateFolder.md
var createFolderDesc string

//go:embed tools/sharepointUploadFile.md
var uploadFileDesc string

//go:embed tools/sharepointUpdateFile.md
var updateFileDesc string

//go:embed tools/sharepointDeleteItem.md
var deleteItemDesc string

//go:embed tools/sharepointSearchDriveItems.md
var searchDriveItemsDesc string

//go:embed tools/sharepointDeepSearch.md
var deepSearchDesc string

// Tool inputs and outputs. Outputs wrap slices so every tool result is a JSON
// object.

type StartDeviceLoginInput struct{}

type StartDeviceLoginOutput struct {
	auth.DeviceLogin
	// LoginPageURL points at the hosted helper page for this flow.
	LoginPageURL string `json:"loginPageUrl,omitempty"`
}

type CompleteDeviceLoginInput struct {
	FlowID string `json:"flowId"`
	// TimeoutSeconds caps the wait; the prompt expiry applies when zero.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
}

type ListAccountsInput struct{}

type AccountsOutput struct {
	Accounts []auth.AccountSummary `json:"accounts"`
}

type SetActiveAccountInput struct {
	HomeAccountID string `json:"homeAccountId,omitempty"`
	Username      string `json:"username,omitempty"`
}

type AuthContextInput struct{}

type ListMyDrivesInput struct{}

type DrivesOutput struct {
	Drives []graph.Drive `json:"drives"`
}

type SearchSitesInput struct {
	Query string `json:"query"`
}

type SitesOutput struct {
	Sites []graph.Site `json:"sites"`
}

type ListSiteDrivesInput struct {
	SiteID  string `json:"siteId,omitempty"`
	SiteURL string `json:"siteUrl,omitempty"`
}

type SetActiveDriveInput struct {
	DriveID string `json:"driveId"`
}

type GraphContextInput struct{}

type GraphContextOutput struct {
	ActiveDriveID string               `json:"activeDriveId,omitempty"`
	ActiveAccount *auth.AccountSummary `json:"activeAccount,omitempty"`
}

type ItemPathInput struct {
	DriveID string `json:"driveId,omitempty"`
	Path    string `json:"path,omitempty"`
}

type ItemsOutput struct {
	Items []graph.Item `json:"items"`
}

type SearchDriveItemsInput struct {
	DriveID string `json:"driveId,omitempty"`
	Query   string `json:"query"`
}

type DeepSearchInput struct {
	Query       string   `json:"query"`
	EntityTypes []string `json:"entityTypes,omitempty"`
	Size        int      `json:"size,omitempty"`
}

type HitsOutput struct {
	Hits []graph.SearchHit `json:"hits"`
}

func registerTools(base *protoserver.DefaultHandler, h *Handler) error {
	svc := h.service
	authMgr := svc.Auth()
	graphCli := svc.Graph()

	// Start device login
	if err := protoserver.RegisterTool[*StartDeviceLoginInput, *StartDeviceLoginOutput](base.Registry, "sharepointStartDeviceLogin", startDeviceLoginDesc, func(ctx context.Context, in *StartDeviceLoginInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointStartDeviceLogin")
		login, err := authMgr.StartDeviceLogin(ctx)
		if err != nil {
			return buildFailureResult(svc, "sharepointStartDeviceLogin", err)
		}
		out := &StartDeviceLoginOutput{DeviceLogin: *login}
		if root := strings.TrimRight(svc.BaseURL(), "/"); root != "" {
			out.LoginPageURL = root + "/sharepoint/auth/device/" + login.FlowID
		}
		return buildSuccessResult(svc, out)
	}); err != nil {
		return err
	}

	// Complete device login
	if err := protoserver.RegisterTool[*CompleteDeviceLoginInput, *auth.LoginResult](base.Registry, "sharepointCompleteDeviceLogin", completeDeviceLoginDesc, func(ctx context.Context, in *CompleteDeviceLoginInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointCompleteDeviceLogin")
		if in.FlowID == "" {
			return buildErrorResult("flowId is required")
		}
		result, err := authMgr.CompleteDeviceLogin(ctx, in.FlowID, time.Duration(in.TimeoutSeconds)*time.Second)
		if err != nil {
			return buildFailureResult(svc, "sharepointCompleteDeviceLogin", err)
		}
		return buildSuccessResult(svc, result)
	}); err != nil {
		return err
	}

	// List accounts
	if err := protoserver.RegisterTool[*ListAccountsInput, *AccountsOutput](base.Registry, "sharepointListAccounts", listAccountsDesc, func(ctx context.Context, in *ListAccountsInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointListAccounts")
		accounts, err := authMgr.ListAccounts(ctx)
		if err != nil {
			return buildFailureResult(svc, "sharepointListAccounts", err)
		}
		return buildSuccessResult(svc, &AccountsOutput{Accounts: accounts})
	}); err != nil {
		return err
	}

	// Set active account
	if err := protoserver.RegisterTool[*SetActiveAccountInput, *auth.AccountSummary](base.Registry, "sharepointSetActiveAccount", setActiveAccountDesc, func(ctx context.Context, in *SetActiveAccountInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointSetActiveAccount")
		if in.HomeAccountID == "" && in.Username == "" {
			return buildErrorResult("homeAccountId or username is required")
		}
		account, err := authMgr.SetActiveAccount(ctx, in.HomeAccountID, in.Username)
		if err != nil {
			return buildFailureResult(svc, "sharepointSetActiveAccount", err)
		}
		return buildSuccessResult(svc, account)
	}); err != nil {
		return err
	}

	// Auth context
	if err := protoserver.RegisterTool[*AuthContextInput, *auth.Context](base.Registry, "sharepointAuthContext", authContextDesc, func(ctx context.Context, in *AuthContextInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointAuthContext")
		authCtx, err := authMgr.Context(ctx)
		if err != nil {
			return buildFailureResult(svc, "sharepointAuthContext", err)
		}
		return buildSuccessResult(svc, authCtx)
	}); err != nil {
		return err
	}

	// List my drives
	if err := protoserver.RegisterTool[*ListMyDrivesInput, *DrivesOutput](base.Registry, "sharepointListMyDrives", listMyDrivesDesc, func(ctx context.Context, in *ListMyDrivesInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointListMyDrives")
		drives, err := graphCli.ListMyDrives(ctx)
		if err != nil {
			return buildFailureResult(svc, "sharepointListMyDrives", err)
		}
		return buildSuccessResult(svc, &DrivesOutput{Drives: drives})
	}); err != nil {
		return err
	}

	// Search sites
	if err := protoserver.RegisterTool[*SearchSitesInput, *SitesOutput](base.Registry, "sharepointSearchSites", searchSitesDesc, func(ctx context.Context, in *SearchSitesInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointSearchSites")
		if in.Query == "" {
			return buildErrorResult("query is required")
		}
		sites, err := graphCli.SearchSites(ctx, in.Query)
		if err != nil {
			return buildFailureResult(svc, "sharepointSearchSites", err)
		}
		return buildSuccessResult(svc, &SitesOutput{Sites: sites})
	}); err != nil {
		return err
	}

	// List site drives
	if err := protoserver.RegisterTool[*ListSiteDrivesInput, *DrivesOutput](base.Registry, "sharepointListSiteDrives", listSiteDrivesDesc, func(ctx context.Context, in *ListSiteDrivesInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointListSiteDrives")
		if in.SiteID == "" && in.SiteURL == "" {
			return buildErrorResult("siteId or siteUrl is required")
		}
		drives, err := graphCli.ListSiteDrives(ctx, in.SiteID, in.SiteURL)
		if err != nil {
			return buildFailureResult(svc, "sharepointListSiteDrives", err)
		}
		return buildSuccessResult(svc, &DrivesOutput{Drives: drives})
	}); err != nil {
		return err
	}

	// Set active drive
	if err := protoserver.RegisterTool[*SetActiveDriveInput, *graph.Drive](base.Registry, "sharepointSetActiveDrive", setActiveDriveDesc, func(ctx context.Context, in *SetActiveDriveInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointSetActiveDrive")
		if in.DriveID == "" {
			return buildErrorResult("driveId is required")
		}
		drive, err := graphCli.SetActiveDrive(ctx, in.DriveID)
		if err != nil {
			return buildFailureResult(svc, "sharepointSetActiveDrive", err)
		}
		return buildSuccessResult(svc, drive)
	}); err != nil {
		return err
	}

	// Graph context
	if err := protoserver.RegisterTool[*GraphContextInput, *GraphContextOutput](base.Registry, "sharepointGraphContext", graphContextDesc, func(ctx context.Context, in *GraphContextInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointGraphContext")
		out := &GraphContextOutput{ActiveDriveID: graphCli.ActiveDriveID()}
		if account, err := authMgr.ActiveAccountSummary(ctx); err == nil {
			out.ActiveAccount = account
		}
		return buildSuccessResult(svc, out)
	}); err != nil {
		return err
	}

	// List items
	if err := protoserver.RegisterTool[*ItemPathInput, *ItemsOutput](base.Registry, "sharepointListItems", listItemsDesc, func(ctx context.Context, in *ItemPathInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointListItems")
		items, err := graphCli.ListItems(ctx, in.DriveID, in.Path)
		if err != nil {
			return buildFailureResult(svc, "sharepointListItems", err)
		}
		return buildSuccessResult(svc, &ItemsOutput{Items: items})
	}); err != nil {
		return err
	}

	// Item metadata
	if err := protoserver.RegisterTool[*ItemPathInput, *graph.ItemDetail](base.Registry, "sharepointGetItemMetadata", getItemMetadataDesc, func(ctx context.Context, in *ItemPathInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointGetItemMetadata")
		detail, err := graphCli.GetItemMetadata(ctx, in.DriveID, in.Path)
		if err != nil {
			return buildFailureResult(svc, "sharepointGetItemMetadata", err)
		}
		return buildSuccessResult(svc, detail)
	}); err != nil {
		return err
	}

	// Item content
	if err := protoserver.RegisterTool[*ItemPathInput, *graph.FileContent](base.Registry, "sharepointGetItemContent", getItemContentDesc, func(ctx context.Context, in *ItemPathInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointGetItemContent")
		if strings.Trim(in.Path, "/") == "" {
			return buildErrorResult("path is required")
		}
		content, err := graphCli.GetItemContent(ctx, in.DriveID, in.Path)
		if err != nil {
			return buildFailureResult(svc, "sharepointGetItemContent", err)
		}
		return buildSuccessResult(svc, content)
	}); err != nil {
		return err
	}

	// Create folder
	if err := protoserver.RegisterTool[*graph.CreateFolderInput, *graph.Item](base.Registry, "sharepointCreateFolder", createFolderDesc, func(ctx context.Context, in *graph.CreateFolderInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointCreateFolder")
		if in.Name == "" {
			return buildErrorResult("name is required")
		}
		item, err := graphCli.CreateFolder(ctx, in)
		if err != nil {
			return buildFailureResult(svc, "sharepointCreateFolder", err)
		}
		return buildSuccessResult(svc, item)
	}); err != nil {
		return err
	}

	// Upload file
	if err := protoserver.RegisterTool[*graph.UploadInput, *graph.Item](base.Registry, "sharepointUploadFile", uploadFileDesc, func(ctx context.Context, in *graph.UploadInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointUploadFile")
		if strings.Trim(in.ItemPath, "/") == "" {
			return buildErrorResult("itemPath is required")
		}
		if in.ConflictBehavior == "" {
			in.ConflictBehavior = "fail"
		}
		item, err := graphCli.UploadFile(ctx, in)
		if err != nil {
			return buildFailureResult(svc, "sharepointUploadFile", err)
		}
		return buildSuccessResult(svc, item)
	}); err != nil {
		return err
	}

	// Update file
	if err := protoserver.RegisterTool[*graph.UploadInput, *graph.Item](base.Registry, "sharepointUpdateFile", updateFileDesc, func(ctx context.Context, in *graph.UploadInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointUpdateFile")
		if strings.Trim(in.ItemPath, "/") == "" {
			return buildErrorResult("itemPath is required")
		}
		in.ConflictBehavior = "replace"
		item, err := graphCli.UploadFile(ctx, in)
		if err != nil {
			return buildFailureResult(svc, "sharepointUpdateFile", err)
		}
		return buildSuccessResult(svc, item)
	}); err != nil {
		return err
	}

	// Delete item
	if err := protoserver.RegisterTool[*ItemPathInput, *graph.DeleteResult](base.Registry, "sharepointDeleteItem", deleteItemDesc, func(ctx context.Context, in *ItemPathInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointDeleteItem")
		if strings.Trim(in.Path, "/") == "" {
			return buildErrorResult("path is required; deleting the drive root is not supported")
		}
		result, err := graphCli.DeleteItem(ctx, in.DriveID, in.Path)
		if err != nil {
			return buildFailureResult(svc, "sharepointDeleteItem", err)
		}
		return buildSuccessResult(svc, result)
	}); err != nil {
		return err
	}

	// Search drive items
	if err := protoserver.RegisterTool[*SearchDriveItemsInput, *ItemsOutput](base.Registry, "sharepointSearchDriveItems", searchDriveItemsDesc, func(ctx context.Context, in *SearchDriveItemsInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointSearchDriveItems")
		if in.Query == "" {
			return buildErrorResult("query is required")
		}
		items, err := graphCli.SearchDriveItems(ctx, in.DriveID, in.Query)
		if err != nil {
			return buildFailureResult(svc, "sharepointSearchDriveItems", err)
		}
		return buildSuccessResult(svc, &ItemsOutput{Items: items})
	}); err != nil {
		return err
	}

	// Deep search
	if err := protoserver.RegisterTool[*DeepSearchInput, *HitsOutput](base.Registry, "sharepointDeepSearch", deepSearchDesc, func(ctx context.Context, in *DeepSearchInput) (*schema.CallToolResult, *jsonrpc.Error) {
		svc.logCall(ctx, "sharepointDeepSearch")
		if in.Query == "" {
			return buildErrorResult("query is required")
		}
		hits, err := graphCli.SearchEverywhere(ctx, in.Query, in.EntityTypes, in.Size)
		if err != nil {
			return buildFailureResult(svc, "sharepointDeepSearch", err)
		}
		return buildSuccessResult(svc, &HitsOutput{Hits: hits})
	}); err != nil {
		return err
	}

	return nil
}

// Helpers
func buildErrorResult(message string) (*schema.CallToolResult, *jsonrpc.Error) {
	return nil, jsonrpc.NewError(jsonrpc.InvalidParams, message, nil)
}

func buildSuccessResult(service *Service, payload any) (*schema.CallToolResult, *jsonrpc.Error) {
	if service.UseTextField() {
		b, _ := json.Marshal(payload)
		return &schema.CallToolResult{Content: []schema.CallToolResultContentElem{{Type: "text", Text: string(b)}}}, nil
	}
	return &schema.CallToolResult{StructuredContent: map[string]any{"result": payload}}, nil
}

// classifyError maps failures onto the stable taxonomy surfaced to tool
// callers.
func classifyError(err error) string {
	var flowErr *auth.FlowNotFoundError
	var authErr *auth.AuthError
	var apiErr *graph.APIError
	switch {
	case errors.As(err, &flowErr):
		return "AuthenticationFlowNotFound"
	case errors.As(err, &authErr):
		return "AuthenticationError"
	case errors.As(err, &apiErr):
		return "GraphAPIError"
	}
	return "InternalError"
}

// buildFailureResult wraps an operation failure in the error envelope all
// tools share.
func buildFailureResult(service *Service, operation string, err error) (*schema.CallToolResult, *jsonrpc.Error) {
	envelope := map[string]any{
		"success":   false,
		"operation": operation,
		"error":     classifyError(err),
		"message":   err.Error(),
	}
	isErr := true
	if service.UseTextField() {
		b, _ := json.Marshal(envelope)
		return &schema.CallToolResult{IsError: &isErr, Content: []schema.CallToolResultContentElem{{Type: "text", Text: string(b)}}}, nil
	}
	return &schema.CallToolResult{IsError: &isErr, StructuredContent: envelope}, nil
}
