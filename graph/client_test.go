package graph

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type stubTokens struct {
	token string
	err   error
}

func (s *stubTokens) AcquireTokenSilent(ctx context.Context) (string, error) {
	return s.token, s.err
}

type recordedRequest struct {
	method string
	path   string
	query  string
	auth   string
	body   []byte
}

// newTestClient starts a fake Graph endpoint whose responses come from the
// routes map keyed by "METHOD /path". Every request is recorded.
func newTestClient(t *testing.T, routes map[string]any) (*Client, *[]recordedRequest) {
	t.Helper()
	var seen []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen = append(seen, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			auth:   r.Header.Get("Authorization"),
			body:   body,
		})
		response, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"itemNotFound","message":"not found"}}`))
			return
		}
		switch v := response.(type) {
		case int:
			w.WriteHeader(v)
		case string:
			_, _ = w.Write([]byte(v))
		default:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(v)
		}
	}))
	t.Cleanup(server.Close)
	client := NewClient(&stubTokens{token: "test-token"}, server.URL, zerolog.Nop())
	return client, &seen
}

func TestClient_tokenFailurePropagates(t *testing.T) {
	wantErr := errors.New("not signed in")
	client := NewClient(&stubTokens{err: wantErr}, "http://127.0.0.1:1", zerolog.Nop())
	_, err := client.ListMyDrives(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected token error to pass through, got %v", err)
	}
}

func TestClient_bearerHeaderAttached(t *testing.T) {
	client, seen := newTestClient(t, map[string]any{
		"GET /me/drives": listPayload[Drive]{Value: []Drive{{ID: "d1", Name: "Documents"}}},
	})
	drives, err := client.ListMyDrives(context.Background())
	if err != nil {
		t.Fatalf("ListMyDrives: %v", err)
	}
	if len(drives) != 1 || drives[0].ID != "d1" {
		t.Fatalf("unexpected drives: %+v", drives)
	}
	if got := (*seen)[0].auth; got != "Bearer test-token" {
		t.Fatalf("unexpected Authorization header %q", got)
	}
}

func TestClient_errorResponseMapped(t *testing.T) {
	client, _ := newTestClient(t, nil)
	_, err := client.GetDrive(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", apiErr.StatusCode)
	}
	details, ok := apiErr.Details.(map[string]any)
	if !ok {
		t.Fatalf("expected decoded JSON details, got %T", apiErr.Details)
	}
	if _, ok := details["error"]; !ok {
		t.Fatalf("expected error payload in details: %v", details)
	}
}

func TestClient_noActiveDrive(t *testing.T) {
	client, _ := newTestClient(t, nil)
	_, err := client.ListItems(context.Background(), "", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if !strings.Contains(apiErr.Message, "no drive specified") {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
}

func TestClient_preselectedDriveFailsOnFirstUse(t *testing.T) {
	client, _ := newTestClient(t, nil)
	client.PreselectDrive("typo-drive")
	if got := client.ActiveDriveID(); got != "typo-drive" {
		t.Fatalf("expected preselected drive, got %q", got)
	}
	_, err := client.ListItems(context.Background(), "", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected a 404 APIError for the bogus drive, got %v", err)
	}
}

func TestClient_setActiveDriveValidates(t *testing.T) {
	client, _ := newTestClient(t, map[string]any{
		"GET /drives/d1": Drive{ID: "d1", Name: "Documents"},
	})
	if _, err := client.SetActiveDrive(context.Background(), "nope"); err == nil {
		t.Fatal("expected validation failure for unknown drive")
	}
	if got := client.ActiveDriveID(); got != "" {
		t.Fatalf("active drive should stay empty after failure, got %q", got)
	}
	drive, err := client.SetActiveDrive(context.Background(), "d1")
	if err != nil {
		t.Fatalf("SetActiveDrive: %v", err)
	}
	if drive.Name != "Documents" {
		t.Fatalf("unexpected drive %+v", drive)
	}
	if got := client.ActiveDriveID(); got != "d1" {
		t.Fatalf("expected active drive d1, got %q", got)
	}
}

func TestClient_getSiteByURL(t *testing.T) {
	client, seen := newTestClient(t, map[string]any{
		"GET /sites/tenant.sharepoint.com:/sites/Team:": Site{ID: "site1", DisplayName: "Team"},
		"GET /sites/tenant.sharepoint.com:":             Site{ID: "root", DisplayName: "Root"},
	})
	site, err := client.GetSiteByURL(context.Background(), "https://tenant.sharepoint.com/sites/Team")
	if err != nil {
		t.Fatalf("GetSiteByURL: %v", err)
	}
	if site.ID != "site1" {
		t.Fatalf("unexpected site %+v", site)
	}
	if site, err = client.GetSiteByURL(context.Background(), "https://tenant.sharepoint.com/"); err != nil || site.ID != "root" {
		t.Fatalf("root site lookup failed: site=%+v err=%v", site, err)
	}
	if _, err = client.GetSiteByURL(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty URL")
	}
	if _, err = client.GetSiteByURL(context.Background(), "/sites/Team"); err == nil {
		t.Fatal("expected error for relative URL")
	}
	if got := (*seen)[0].path; got != "/sites/tenant.sharepoint.com:/sites/Team:" {
		t.Fatalf("unexpected request path %q", got)
	}
}

func TestClient_listSiteDrivesByURL(t *testing.T) {
	client, _ := newTestClient(t, map[string]any{
		"GET /sites/tenant.sharepoint.com:/sites/Team:": Site{ID: "site1"},
		"GET /sites/site1/drives":                       listPayload[Drive]{Value: []Drive{{ID: "lib1", Name: "Shared Documents"}}},
	})
	drives, err := client.ListSiteDrives(context.Background(), "", "https://tenant.sharepoint.com/sites/Team")
	if err != nil {
		t.Fatalf("ListSiteDrives: %v", err)
	}
	if len(drives) != 1 || drives[0].ID != "lib1" {
		t.Fatalf("unexpected drives %+v", drives)
	}
	if _, err = client.ListSiteDrives(context.Background(), "", ""); err == nil {
		t.Fatal("expected error when neither siteId nor siteUrl is given")
	}
}

func TestClient_listItemsPathShaping(t *testing.T) {
	folder := driveItem{ID: "f1", Name: "Reports", Folder: &FolderFacet{ChildCount: 2}}
	client, seen := newTestClient(t, map[string]any{
		"GET /drives/d1/root/children":              listPayload[driveItem]{Value: []driveItem{folder}},
		"GET /drives/d1/root:/Reports/Q1:/children": listPayload[driveItem]{Value: nil},
	})
	items, err := client.ListItems(context.Background(), "d1", "")
	if err != nil {
		t.Fatalf("ListItems root: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Reports" || items[0].Folder == nil {
		t.Fatalf("unexpected items %+v", items)
	}
	if _, err = client.ListItems(context.Background(), "d1", "/Reports/Q1/"); err != nil {
		t.Fatalf("ListItems nested: %v", err)
	}
	if got := (*seen)[1].path; got != "/drives/d1/root:/Reports/Q1:/children" {
		t.Fatalf("unexpected nested path %q", got)
	}
}

func TestClient_getItemMetadata(t *testing.T) {
	client, _ := newTestClient(t, map[string]any{
		"GET /drives/d1/root:/notes.txt": driveItem{
			ID:   "i1",
			Name: "notes.txt",
			Size: 42,
			File: &FileFacet{MimeType: "text/plain"},
		},
	})
	detail, err := client.GetItemMetadata(context.Background(), "d1", "notes.txt")
	if err != nil {
		t.Fatalf("GetItemMetadata: %v", err)
	}
	if detail.Name != "notes.txt" || detail.Size != 42 {
		t.Fatalf("unexpected detail %+v", detail.Item)
	}
	if len(detail.Raw) == 0 {
		t.Fatal("expected raw payload to be retained")
	}
	var raw map[string]any
	if err := json.Unmarshal(detail.Raw, &raw); err != nil {
		t.Fatalf("raw payload is not JSON: %v", err)
	}
}

func TestClient_getItemContentText(t *testing.T) {
	download := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("download request must not carry the bearer token")
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("hello world"))
	}))
	defer download.Close()

	client, _ := newTestClient(t, map[string]any{
		"GET /drives/d1/root:/notes.txt": driveItem{
			ID:          "i1",
			Name:        "notes.txt",
			File:        &FileFacet{MimeType: "text/plain"},
			DownloadURL: download.URL + "/notes.txt",
		},
	})
	content, err := client.GetItemContent(context.Background(), "d1", "notes.txt")
	if err != nil {
		t.Fatalf("GetItemContent: %v", err)
	}
	if content.ContentType != "text" || content.Content != "hello world" {
		t.Fatalf("unexpected content %+v", content)
	}
	if content.ContentBase64 != "" {
		t.Fatal("text content must not carry a base64 body")
	}
}

func TestClient_getItemContentBinary(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4e, 0x47, 0x00}
	download := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(payload)
	}))
	defer download.Close()

	client, _ := newTestClient(t, map[string]any{
		"GET /drives/d1/root:/logo.png": driveItem{
			ID:          "i2",
			Name:        "logo.png",
			File:        &FileFacet{MimeType: "image/png"},
			DownloadURL: download.URL + "/logo.png",
		},
	})
	content, err := client.GetItemContent(context.Background(), "d1", "logo.png")
	if err != nil {
		t.Fatalf("GetItemContent: %v", err)
	}
	if content.ContentType != "binary" {
		t.Fatalf("expected binary content, got %q", content.ContentType)
	}
	decoded, err := base64.StdEncoding.DecodeString(content.ContentBase64)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	if string(decoded) != string(payload) {
		t.Fatal("decoded payload does not match the download body")
	}
}

func TestClient_getItemContentRefetchesDownloadURL(t *testing.T) {
	download := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer download.Close()

	client, _ := newTestClient(t, map[string]any{
		"GET /drives/d1/root:/data.json": driveItem{ID: "i3", Name: "data.json"},
		"GET /drives/d1/items/i3": driveItem{
			ID:          "i3",
			Name:        "data.json",
			File:        &FileFacet{MimeType: "application/json"},
			DownloadURL: download.URL,
		},
	})
	content, err := client.GetItemContent(context.Background(), "d1", "data.json")
	if err != nil {
		t.Fatalf("GetItemContent: %v", err)
	}
	if content.ContentType != "text" || content.Content != `{"ok":true}` {
		t.Fatalf("unexpected content %+v", content)
	}
}

func TestClient_createFolder(t *testing.T) {
	client, seen := newTestClient(t, map[string]any{
		"GET /drives/d1/root":                  driveItem{ID: "root1", Name: "root"},
		"POST /drives/d1/items/root1/children": driveItem{ID: "f1", Name: "Reports", Folder: &FolderFacet{}},
	})
	item, err := client.CreateFolder(context.Background(), &CreateFolderInput{Name: "Reports", DriveID: "d1"})
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if item.ID != "f1" || item.Folder == nil {
		t.Fatalf("unexpected item %+v", item)
	}
	var body map[string]any
	if err := json.Unmarshal((*seen)[1].body, &body); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if body["name"] != "Reports" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["@microsoft.graph.conflictBehavior"] != "fail" {
		t.Fatalf("expected conflictBehavior fail, got %v", body["@microsoft.graph.conflictBehavior"])
	}
}

func TestClient_uploadFile(t *testing.T) {
	client, seen := newTestClient(t, map[string]any{
		"PUT /drives/d1/root:/docs/readme.md:/content": driveItem{ID: "u1", Name: "readme.md", Size: 5},
	})
	item, err := client.UploadFile(context.Background(), &UploadInput{
		ItemPath: "/docs/readme.md",
		Content:  "hello",
		DriveID:  "d1",
	})
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if item.ID != "u1" {
		t.Fatalf("unexpected item %+v", item)
	}
	req := (*seen)[0]
	if string(req.body) != "hello" {
		t.Fatalf("unexpected upload body %q", req.body)
	}
	if !strings.Contains(req.query, "conflictBehavior") || !strings.Contains(req.query, "replace") {
		t.Fatalf("expected replace conflict behavior in query, got %q", req.query)
	}
}

func TestClient_uploadFileBase64(t *testing.T) {
	client, seen := newTestClient(t, map[string]any{
		"PUT /drives/d1/root:/bin/blob.dat:/content": driveItem{ID: "u2", Name: "blob.dat"},
	})
	_, err := client.UploadFile(context.Background(), &UploadInput{
		ItemPath: "bin/blob.dat",
		Content:  base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03}),
		DriveID:  "d1",
		IsBase64: true,
	})
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if got := (*seen)[0].body; string(got) != "\x01\x02\x03" {
		t.Fatalf("expected decoded payload, got %v", got)
	}
	if _, err = client.UploadFile(context.Background(), &UploadInput{
		ItemPath: "bin/other.dat",
		Content:  "not-base64!!!",
		DriveID:  "d1",
		IsBase64: true,
	}); err == nil {
		t.Fatal("expected base64 decode failure")
	}
	if _, err = client.UploadFile(context.Background(), &UploadInput{DriveID: "d1", Content: "x"}); err == nil {
		t.Fatal("expected error for missing file name")
	}
}

func TestClient_deleteItem(t *testing.T) {
	client, _ := newTestClient(t, map[string]any{
		"GET /drives/d1/root:/old.txt": driveItem{
			ID:              "i9",
			Name:            "old.txt",
			ParentReference: &ItemReference{Path: "/drive/root:"},
		},
		"DELETE /drives/d1/items/i9": http.StatusNoContent,
	})
	result, err := client.DeleteItem(context.Background(), "d1", "old.txt")
	if err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if !result.Success || result.ID != "i9" || result.Name != "old.txt" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestClient_searchDriveItems(t *testing.T) {
	client, seen := newTestClient(t, map[string]any{
		"GET /drives/d1/root/search(q='quarterly ''report''')": listPayload[driveItem]{
			Value: []driveItem{{ID: "s1", Name: "quarterly report.docx"}},
		},
	})
	items, err := client.SearchDriveItems(context.Background(), "d1", "quarterly 'report'")
	if err != nil {
		t.Fatalf("SearchDriveItems: %v", err)
	}
	if len(items) != 1 || items[0].ID != "s1" {
		t.Fatalf("unexpected items %+v", items)
	}
	if got := (*seen)[0].path; !strings.Contains(got, "''report''") {
		t.Fatalf("expected escaped quotes in path, got %q", got)
	}
	if _, err = client.SearchDriveItems(context.Background(), "d1", "  "); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestClient_searchEverywhere(t *testing.T) {
	response := map[string]any{
		"value": []any{
			map[string]any{
				"hitsContainers": []any{
					map[string]any{
						"hits": []any{
							map[string]any{
								"summary": "...budget...",
								"resource": map[string]any{
									"@odata.type":          "#microsoft.graph.driveItem",
									"name":                 "budget.xlsx",
									"webUrl":               "https://tenant.sharepoint.com/budget.xlsx",
									"lastModifiedDateTime": "2026-02-01T10:00:00Z",
									"size":                 1024,
								},
							},
							map[string]any{
								"resource": map[string]any{
									"@odata.type": "#microsoft.graph.site",
									"displayName": "Finance",
								},
							},
						},
					},
				},
			},
		},
	}
	client, seen := newTestClient(t, map[string]any{
		"POST /search/query": response,
	})
	hits, err := client.SearchEverywhere(context.Background(), "budget", nil, 0)
	if err != nil {
		t.Fatalf("SearchEverywhere: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Name != "budget.xlsx" || hits[0].ResourceType != "driveItem" || hits[0].Size != 1024 {
		t.Fatalf("unexpected first hit %+v", hits[0])
	}
	if hits[1].Name != "Finance" || hits[1].ResourceType != "site" {
		t.Fatalf("unexpected second hit %+v", hits[1])
	}
	var body searchRequest
	if err := json.Unmarshal((*seen)[0].body, &body); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if len(body.Requests) != 1 || body.Requests[0].Query.QueryString != "budget" {
		t.Fatalf("unexpected request body %+v", body)
	}
	wantTypes := []string{"driveItem", "list", "listItem", "site"}
	if got := body.Requests[0].EntityTypes; len(got) != len(wantTypes) {
		t.Fatalf("expected default entity types %v, got %v", wantTypes, got)
	} else {
		for i := range got {
			if got[i] != wantTypes[i] {
				t.Fatalf("expected default entity types %v, got %v", wantTypes, got)
			}
		}
	}
	if _, err = client.SearchEverywhere(context.Background(), " ", nil, 0); err == nil {
		t.Fatal("expected error for empty query")
	}
}
