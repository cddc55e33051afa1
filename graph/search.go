package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// SearchDriveItems searches file and folder names within one drive.
func (c *Client) SearchDriveItems(ctx context.Context, driveID, query string) ([]Item, error) {
	drive, err := c.resolveDriveID(driveID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, &APIError{Message: "search query must not be empty"}
	}
	escaped := strings.ReplaceAll(query, "'", "''")
	endpoint := "/drives/" + drive + "/root/search(q='" + escaped + "')"
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

type searchRequest struct {
	Requests []searchQuerySpec `json:"requests"`
}

type searchQuerySpec struct {
	EntityTypes []string       `json:"entityTypes"`
	Query       searchQueryStr `json:"query"`
	From        int            `json:"from"`
	Size        int            `json:"size"`
}

type searchQueryStr struct {
	QueryString string `json:"queryString"`
}

type searchResponse struct {
	Value []struct {
		HitsContainers []struct {
			Hits []searchResponseHit `json:"hits"`
		} `json:"hitsContainers"`
	} `json:"value"`
}

type searchResponseHit struct {
	Summary  string          `json:"summary"`
	Resource json.RawMessage `json:"resource"`
}

type searchResource struct {
	ODataType            string `json:"@odata.type"`
	Name                 string `json:"name"`
	Title                string `json:"title"`
	DisplayName          string `json:"displayName"`
	WebURL               string `json:"webUrl"`
	LastModifiedDateTime string `json:"lastModifiedDateTime"`
	Size                 int64  `json:"size"`
}

// SearchEverywhere runs a tenant-wide content search across drive items,
// lists, list items and sites via the Graph search endpoint.
func (c *Client) SearchEverywhere(ctx context.Context, query string, entityTypes []string, size int) ([]SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &APIError{Message: "search query must not be empty"}
	}
	if len(entityTypes) == 0 {
		entityTypes = []string{"driveItem", "list", "listItem", "site"}
	}
	if size <= 0 {
		size = 25
	}
	body := searchRequest{
		Requests: []searchQuerySpec{
			{
				EntityTypes: entityTypes,
				Query:       searchQueryStr{QueryString: query},
				From:        0,
				Size:        size,
			},
		},
	}
	var resp searchResponse
	if err := c.requestJSON(ctx, http.MethodPost, "/search/query", body, &resp); err != nil {
		return nil, err
	}
	var hits []SearchHit
	for _, value := range resp.Value {
		for _, container := range value.HitsContainers {
			for _, hit := range container.Hits {
				hits = append(hits, flattenHit(hit))
			}
		}
	}
	return hits, nil
}

func flattenHit(hit searchResponseHit) SearchHit {
	out := SearchHit{Summary: hit.Summary, Resource: hit.Resource}
	var res searchResource
	if err := json.Unmarshal(hit.Resource, &res); err != nil {
		return out
	}
	out.Name = res.Name
	if out.Name == "" {
		out.Name = res.Title
	}
	if out.Name == "" {
		out.Name = res.DisplayName
	}
	out.WebURL = res.WebURL
	out.LastModifiedDateTime = res.LastModifiedDateTime
	out.Size = res.Size
	out.ResourceType = strings.TrimPrefix(res.ODataType, "#microsoft.graph.")
	return out
}
