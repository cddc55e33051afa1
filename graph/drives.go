package graph

import (
	"context"
	"net/http"
	neturl "net/url"
	"strings"
)

type listPayload[T any] struct {
	Value []T `json:"value"`
}

// ListMyDrives returns every drive available to the active account: the
// personal OneDrive plus shared document libraries.
func (c *Client) ListMyDrives(ctx context.Context) ([]Drive, error) {
	var payload listPayload[Drive]
	if err := c.request(ctx, http.MethodGet, "/me/drives", nil, nil, "", &payload); err != nil {
		return nil, err
	}
	return payload.Value, nil
}

// GetDrive fetches metadata for one drive.
func (c *Client) GetDrive(ctx context.Context, driveID string) (*Drive, error) {
	var drive Drive
	if err := c.request(ctx, http.MethodGet, "/drives/"+driveID, nil, nil, "", &drive); err != nil {
		return nil, err
	}
	return &drive, nil
}

// SearchSites finds SharePoint sites accessible to the active account.
func (c *Client) SearchSites(ctx context.Context, query string) ([]Site, error) {
	q := neturl.Values{}
	q.Set("search", query)
	var payload listPayload[Site]
	if err := c.request(ctx, http.MethodGet, "/sites", q, nil, "", &payload); err != nil {
		return nil, err
	}
	return payload.Value, nil
}

// GetSiteByURL resolves a site from its absolute URL, e.g.
// https://tenant.sharepoint.com/sites/Example.
func (c *Client) GetSiteByURL(ctx context.Context, siteURL string) (*Site, error) {
	trimmed := strings.TrimSpace(siteURL)
	if trimmed == "" {
		return nil, &APIError{Message: "siteUrl cannot be empty"}
	}
	parsed, err := neturl.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return nil, &APIError{Message: "siteUrl must be an absolute URL"}
	}
	relative := strings.Trim(parsed.Path, "/")
	endpoint := "/sites/" + parsed.Host + ":"
	if relative != "" {
		endpoint = "/sites/" + parsed.Host + ":/" + relative + ":"
	}
	var site Site
	if err := c.request(ctx, http.MethodGet, endpoint, nil, nil, "", &site); err != nil {
		return nil, err
	}
	return &site, nil
}

// ListSiteDrives returns the document libraries of a site, addressed by id or
// by URL.
func (c *Client) ListSiteDrives(ctx context.Context, siteID, siteURL string) ([]Drive, error) {
	if siteID == "" && siteURL == "" {
		return nil, &APIError{Message: "either siteId or siteUrl must be provided to list site drives"}
	}
	if siteID == "" {
		site, err := c.GetSiteByURL(ctx, siteURL)
		if err != nil {
			return nil, err
		}
		if site.ID == "" {
			return nil, &APIError{Message: "unable to resolve site id from the provided URL"}
		}
		siteID = site.ID
	}
	var payload listPayload[Drive]
	if err := c.request(ctx, http.MethodGet, "/sites/"+siteID+"/drives", nil, nil, "", &payload); err != nil {
		return nil, err
	}
	return payload.Value, nil
}
