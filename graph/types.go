package graph

import "encoding/json"

// Drive is a OneDrive or SharePoint document library.
type Drive struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	DriveType   string `json:"driveType,omitempty"`
	WebURL      string `json:"webUrl,omitempty"`
}

// Site is a SharePoint site.
type Site struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
	WebURL      string `json:"webUrl,omitempty"`
}

// FolderFacet marks an item as a folder.
type FolderFacet struct {
	ChildCount int `json:"childCount,omitempty"`
}

// FileFacet marks an item as a file.
type FileFacet struct {
	MimeType string `json:"mimeType,omitempty"`
}

// ItemReference locates an item's parent.
type ItemReference struct {
	DriveID string `json:"driveId,omitempty"`
	ID      string `json:"id,omitempty"`
	Path    string `json:"path,omitempty"`
}

// driveItem is the wire shape of a Graph drive item; tools only ever see the
// simplified Item projection.
type driveItem struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	WebURL               string         `json:"webUrl"`
	Size                 int64          `json:"size"`
	CreatedDateTime      string         `json:"createdDateTime"`
	LastModifiedDateTime string         `json:"lastModifiedDateTime"`
	ParentReference      *ItemReference `json:"parentReference"`
	Folder               *FolderFacet   `json:"folder"`
	File                 *FileFacet     `json:"file"`
	DownloadURL          string         `json:"@microsoft.graph.downloadUrl"`
}

// Item is the stable, tool-friendly projection of a drive item.
type Item struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	DriveID              string       `json:"driveId,omitempty"`
	Path                 string       `json:"path,omitempty"`
	WebURL               string       `json:"webUrl,omitempty"`
	CreatedDateTime      string       `json:"createdDateTime,omitempty"`
	LastModifiedDateTime string       `json:"lastModifiedDateTime,omitempty"`
	Size                 int64        `json:"size"`
	Folder               *FolderFacet `json:"folder,omitempty"`
	File                 *FileFacet   `json:"file,omitempty"`
}

func simplify(it driveItem) Item {
	out := Item{
		ID:                   it.ID,
		Name:                 it.Name,
		WebURL:               it.WebURL,
		CreatedDateTime:      it.CreatedDateTime,
		LastModifiedDateTime: it.LastModifiedDateTime,
		Size:                 it.Size,
		Folder:               it.Folder,
		File:                 it.File,
	}
	if it.ParentReference != nil {
		out.DriveID = it.ParentReference.DriveID
		out.Path = it.ParentReference.Path
	}
	return out
}

// ItemDetail is the metadata projection with the raw Graph payload attached.
type ItemDetail struct {
	Item
	Raw json.RawMessage `json:"raw,omitempty"`
}

// FileContent is the downloaded content of a drive item. Exactly one of
// Content (UTF-8 text) or ContentBase64 is populated.
type FileContent struct {
	Name                 string `json:"name,omitempty"`
	WebURL               string `json:"webUrl,omitempty"`
	Size                 int64  `json:"size"`
	LastModifiedDateTime string `json:"lastModifiedDateTime,omitempty"`
	ContentType          string `json:"contentType"`
	Content              string `json:"content,omitempty"`
	ContentBase64        string `json:"contentBase64,omitempty"`
}

// DeleteResult reports a completed item deletion.
type DeleteResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Path    string `json:"path,omitempty"`
}

// SearchHit is one flattened result from the aggregate /search/query API.
type SearchHit struct {
	Name                 string          `json:"name,omitempty"`
	Summary              string          `json:"summary,omitempty"`
	WebURL               string          `json:"webUrl,omitempty"`
	LastModifiedDateTime string          `json:"lastModifiedDateTime,omitempty"`
	Size                 int64           `json:"size,omitempty"`
	ResourceType         string          `json:"resourceType,omitempty"`
	Resource             json.RawMessage `json:"resource,omitempty"`
}
