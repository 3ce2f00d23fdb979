package model_test

import (
	"encoding/json"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/nikbrunner/drive/internal/model"
)

// Helper functions for pointers
func stringPtr(s string) *string { return &s }
func int64Ptr(n int64) *int64    { return &n }

func TestItem_DecodeAPIPayload(t *testing.T) {
	payload := `[
		{"id":"f1","parentId":null,"type":"FOLDER","name":"Docs","createdAt":"2025-01-15T10:30:00Z","updatedAt":"2025-01-15T10:30:00Z"},
		{"id":"i1","parentId":"f1","type":"FILE","name":"cat.png","mimeType":"image/png","sizeBytes":2048,"createdAt":"2025-01-15T10:30:00Z","updatedAt":"2025-01-16T08:00:00Z"}
	]`

	var items []model.Item
	assert.NilError(t, json.Unmarshal([]byte(payload), &items))
	assert.Equal(t, len(items), 2)

	assert.Equal(t, items[0].Kind, model.KindFolder)
	assert.Assert(t, items[0].ParentID == nil)
	assert.Assert(t, items[0].IsFolder())

	assert.Equal(t, items[1].Kind, model.KindFile)
	assert.Equal(t, *items[1].ParentID, "f1")
	assert.Equal(t, items[1].Size(), int64(2048))
	assert.Assert(t, items[1].IsImage())
}

func TestKind_RejectsUnknown(t *testing.T) {
	var k model.Kind
	err := json.Unmarshal([]byte(`"LINK"`), &k)
	assert.ErrorContains(t, err, "unknown item type")
}

func TestItem_IsImage(t *testing.T) {
	tests := []struct {
		name string
		item model.Item
		want bool
	}{
		{"png file", model.Item{Kind: model.KindFile, MimeType: stringPtr("image/png")}, true},
		{"jpeg file", model.Item{Kind: model.KindFile, MimeType: stringPtr("image/jpeg")}, true},
		{"pdf file", model.Item{Kind: model.KindFile, MimeType: stringPtr("application/pdf")}, false},
		{"file without mime", model.Item{Kind: model.KindFile}, false},
		{"folder named like image", model.Item{Kind: model.KindFolder, MimeType: stringPtr("image/png")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.IsImage(); got != tt.want {
				t.Errorf("IsImage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestImageIDs(t *testing.T) {
	items := []model.Item{
		{ID: "a", Kind: model.KindFile, MimeType: stringPtr("image/png"), SizeBytes: int64Ptr(1)},
		{ID: "c", Kind: model.KindFolder},
		{ID: "b", Kind: model.KindFile, MimeType: stringPtr("image/gif")},
		{ID: "d", Kind: model.KindFile, MimeType: stringPtr("text/plain")},
		{ID: "a", Kind: model.KindFile, MimeType: stringPtr("image/png")},
	}

	assert.DeepEqual(t, model.ImageIDs(items), []string{"a", "b"})
	assert.Assert(t, model.ImageIDs(nil) == nil)
}

func TestParseShareRole(t *testing.T) {
	role, err := model.ParseShareRole("editor")
	assert.NilError(t, err)
	assert.Equal(t, role, model.RoleEditor)
	assert.Assert(t, role.CanWrite())

	role, err = model.ParseShareRole(" VIEWER ")
	assert.NilError(t, err)
	assert.Assert(t, !role.CanWrite())

	_, err = model.ParseShareRole("owner")
	assert.ErrorContains(t, err, "unknown share role")
}

func TestParseScope(t *testing.T) {
	s, err := model.ParseScope("shared")
	assert.NilError(t, err)
	assert.Equal(t, s, model.ScopeShared)

	s, err = model.ParseScope("")
	assert.NilError(t, err)
	assert.Equal(t, s, model.ScopeOwned)

	_, err = model.ParseScope("trash")
	assert.Assert(t, err != nil)
}

func TestCrumbFor(t *testing.T) {
	c := model.CrumbFor(model.Item{ID: "f9", Name: "2024", Kind: model.KindFolder})
	assert.Equal(t, *c.FolderID, "f9")
	assert.Equal(t, c.Name, "2024")
	assert.Assert(t, !c.IsRoot())
	assert.Assert(t, model.RootCrumb(model.ScopeOwned).IsRoot())
	assert.Equal(t, model.RootCrumb(model.ScopeShared).Name, "Shared")
}

func TestPtrEqual(t *testing.T) {
	assert.Assert(t, model.PtrEqual(nil, nil))
	assert.Assert(t, !model.PtrEqual(stringPtr("a"), nil))
	assert.Assert(t, model.PtrEqual(stringPtr("a"), stringPtr("a")))
	assert.Assert(t, !model.PtrEqual(stringPtr("a"), stringPtr("b")))
}
