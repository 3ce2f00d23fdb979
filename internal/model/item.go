package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes folders from files.
type Kind int

const (
	KindFolder Kind = iota
	KindFile
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	if k == KindFolder {
		return "FOLDER"
	}
	return "FILE"
}

// MarshalJSON encodes the kind as "FOLDER" or "FILE".
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes "FOLDER" or "FILE".
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch strings.ToUpper(s) {
	case "FOLDER":
		*k = KindFolder
	case "FILE":
		*k = KindFile
	default:
		return fmt.Errorf("unknown item type %q", s)
	}
	return nil
}

// Item is a file or folder node in the item store.
type Item struct {
	ID        string    `json:"id"`
	ParentID  *string   `json:"parentId"` // nil = scope root
	Kind      Kind      `json:"type"`
	Name      string    `json:"name"`
	MimeType  *string   `json:"mimeType,omitempty"`
	SizeBytes *int64    `json:"sizeBytes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsFolder returns true if the item is a folder.
func (i Item) IsFolder() bool {
	return i.Kind == KindFolder
}

// IsImage returns true for files with an image/* mime type.
func (i Item) IsImage() bool {
	return i.Kind == KindFile && i.MimeType != nil && strings.HasPrefix(*i.MimeType, "image/")
}

// Mime returns the mime type or an empty string.
func (i Item) Mime() string {
	if i.MimeType == nil {
		return ""
	}
	return *i.MimeType
}

// Size returns the size in bytes, or -1 if unknown.
func (i Item) Size() int64 {
	if i.SizeBytes == nil {
		return -1
	}
	return *i.SizeBytes
}

// ImageIDs returns the ids of image files in items, keeping first-seen order
// and dropping duplicates.
func ImageIDs(items []Item) []string {
	seen := make(map[string]bool, len(items))
	var ids []string
	for _, it := range items {
		if !it.IsImage() || seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		ids = append(ids, it.ID)
	}
	return ids
}

// FindItem returns the item with the given id, or nil.
func FindItem(items []Item, id string) *Item {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}

// PtrEqual compares two optional ids.
func PtrEqual(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
