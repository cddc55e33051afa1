package graph

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"unicode/utf8"
)

// resolveItemRaw fetches the raw drive item at path; an empty path addresses
// the drive root.
func (c *Client) resolveItemRaw(ctx context.Context, driveID, path string) (json.RawMessage, error) {
	normalized := strings.Trim(path, "/")
	endpoint := "/drives/" + driveID + "/root"
	if normalized != "" {
		endpoint = "/drives/" + driveID + "/root:/" + normalized
	}
	var raw json.RawMessage
	if err := c.request(ctx, http.MethodGet, endpoint, nil, nil, "", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) resolveItem(ctx context.Context, driveID, path string) (driveItem, error) {
	raw, err := c.resolveItemRaw(ctx, driveID, path)
	if err != nil {
		return driveItem{}, err
	}
	var item driveItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return driveItem{}, &APIError{Message: "unable to decode drive item", Details: err.Error()}
	}
	return item, nil
}

// ListItems lists the children of a folder in the given (or active) drive.
func (c *Client) ListItems(ctx context.Context, driveID, path string) ([]Item, error) {
	drive, err := c.resolveDriveID(driveID)
	if err != nil {
		return nil, err
	}
	normalized := strings.Trim(path, "/")
	endpoint := "/drives/" + drive + "/root/children"
	if normalized != "" {
		endpoint = "/drives/" + drive + "/root:/" + normalized + ":/children"
	}
	var payload listPayload[driveItem]
	if err := c.request(ctx, http.MethodGet, endpoint, nil, nil, "", &payload); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(payload.Value))
	for _, it := range payload.Value {
		items = append(items, simplify(it))
	}
	return items, nil
}

// GetItemMetadata returns the simplified projection of an item with the raw
// Graph payload attached.
func (c *Client) GetItemMetadata(ctx context.Context, driveID, path string) (*ItemDetail, error) {
	drive, err := c.resolveDriveID(driveID)
	if err != nil {
		return nil, err
	}
	raw, err := c.resolveItemRaw(ctx, drive, path)
	if err != nil {
		return nil, err
	}
	var item driveItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, &APIError{Message: "unable to decode drive item", Details: err.Error()}
	}
	return &ItemDetail{Item: simplify(item), Raw: raw}, nil
}

// GetItemContent downloads a file, returning UTF-8 text for textual MIME
// types and base64 otherwise.
func (c *Client) GetItemContent(ctx context.Context, driveID, path string) (*FileContent, error) {
	drive, err := c.resolveDriveID(driveID)
	if err != nil {
		return nil, err
	}
	item, err := c.resolveItem(ctx, drive, path)
	if err != nil {
		return nil, err
	}
	if item.DownloadURL == "" {
		// The path-addressed lookup does not always include the download
		// URL; re-fetch the item by id asking for it explicitly.
		q := neturl.Values{}
		q.Set("select", "name,webUrl,size,file,folder,lastModifiedDateTime,@microsoft.graph.downloadUrl")
		var refreshed driveItem
		if err := c.request(ctx, http.MethodGet, "/drives/"+drive+"/items/"+item.ID, q, nil, "", &refreshed); err != nil {
			return nil, err
		}
		item = refreshed
	}
	if item.DownloadURL == "" {
		return nil, &APIError{Message: "the requested item does not have downloadable content"}
	}

	// Download URLs are pre-authenticated; no bearer header is attached.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.DownloadURL, nil)
	if err != nil {
		return nil, &APIError{Message: "invalid download URL", Details: err.Error()}
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &APIError{Message: "network error while downloading file content", Details: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Message: "failed to download file content", StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Message: "network error while downloading file content", Details: err.Error()}
	}

	mimeType := resp.Header.Get("Content-Type")
	if item.File != nil && item.File.MimeType != "" {
		mimeType = item.File.MimeType
	}
	out := &FileContent{
		Name:                 item.Name,
		WebURL:               item.WebURL,
		Size:                 item.Size,
		LastModifiedDateTime: item.LastModifiedDateTime,
	}
	if isTextMIME(mimeType) && utf8.Valid(data) {
		out.ContentType = "text"
		out.Content = string(data)
	} else {
		out.ContentType = "binary"
		out.ContentBase64 = base64.StdEncoding.EncodeToString(data)
	}
	return out, nil
}

// CreateFolderInput names a folder to create under parentPath (drive root
// when empty).
type CreateFolderInput struct {
	Name             string `json:"name"`
	ParentPath       string `json:"parentPath,omitempty"`
	DriveID          string `json:"driveId,omitempty"`
	ConflictBehavior string `json:"conflictBehavior,omitempty"`
}

// CreateFolder creates a folder and returns its simplified projection.
func (c *Client) CreateFolder(ctx context.Context, in *CreateFolderInput) (*Item, error) {
	drive, err := c.resolveDriveID(in.DriveID)
	if err != nil {
		return nil, err
	}
	parent, err := c.resolveItem(ctx, drive, in.ParentPath)
	if err != nil {
		return nil, err
	}
	conflict := in.ConflictBehavior
	if conflict == "" {
		conflict = "fail"
	}
	payload := map[string]any{
		"name":                              in.Name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": conflict,
	}
	var created driveItem
	if err := c.requestJSON(ctx, http.MethodPost, "/drives/"+drive+"/items/"+parent.ID+"/children", payload, &created); err != nil {
		return nil, err
	}
	item := simplify(created)
	return &item, nil
}

// UploadInput carries file content addressed by a drive-relative path
// including the file name. Content is UTF-8 text, or base64 when IsBase64.
type UploadInput struct {
	ItemPath         string `json:"itemPath"`
	Content          string `json:"content"`
	DriveID          string `json:"driveId,omitempty"`
	IsBase64         bool   `json:"isBase64,omitempty"`
	ConflictBehavior string `json:"conflictBehavior,omitempty"`
}

// UploadFile creates or replaces a file. Updates use conflictBehavior
// "replace".
func (c *Client) UploadFile(ctx context.Context, in *UploadInput) (*Item, error) {
	drive, err := c.resolveDriveID(in.DriveID)
	if err != nil {
		return nil, err
	}
	normalized := strings.Trim(in.ItemPath, "/")
	if normalized == "" {
		return nil, &APIError{Message: "itemPath must include the file name"}
	}
	var data []byte
	if in.IsBase64 {
		decoded, err := base64.StdEncoding.DecodeString(in.Content)
		if err != nil {
			return nil, &APIError{Message: "content is not valid base64", Details: err.Error()}
		}
		data = decoded
	} else {
		data = []byte(in.Content)
	}
	conflict := in.ConflictBehavior
	if conflict == "" {
		conflict = "replace"
	}
	q := neturl.Values{}
	q.Set("@microsoft.graph.conflictBehavior", conflict)
	var uploaded driveItem
	endpoint := "/drives/" + drive + "/root:/" + normalized + ":/content"
	if err := c.request(ctx, http.MethodPut, endpoint, q, strings.NewReader(string(data)), "application/octet-stream", &uploaded); err != nil {
		return nil, err
	}
	item := simplify(uploaded)
	return &item, nil
}

// DeleteItem removes a file or folder addressed by path.
func (c *Client) DeleteItem(ctx context.Context, driveID, path string) (*DeleteResult, error) {
	drive, err := c.resolveDriveID(driveID)
	if err != nil {
		return nil, err
	}
	item, err := c.resolveItem(ctx, drive, path)
	if err != nil {
		return nil, err
	}
	if err := c.request(ctx, http.MethodDelete, "/drives/"+drive+"/items/"+item.ID, nil, nil, "", nil); err != nil {
		return nil, err
	}
	out := &DeleteResult{Success: true, ID: item.ID, Name: item.Name}
	if item.ParentReference != nil {
		out.Path = item.ParentReference.Path
	}
	return out, nil
}

// isTextMIME reports whether content with this MIME type is returned as text
// rather than base64.
func isTextMIME(mimeType string) bool {
	if mimeType == "" {
		return false
	}
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json",
		"application/xml",
		"application/x-javascript",
		"application/javascript",
		"application/x-httpd-php",
		"application/x-sh",
		"application/x-python",
		"application/sql":
		return true
	}
	return false
}
