package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mercatus/internal/core/entity"
	"mercatus/internal/core/id"
)

type mockCatalog struct {
	entity.Catalog
	Active  bool   `db:"active" json:"active"`
	Ignored string `db:"-" json:"-"`
}

type mockDocument struct {
	entity.BaseDocument
	Status string `db:"status" json:"status"`
}

func TestExtractDBColumns_EmbeddedCatalog(t *testing.T) {
	cols := ExtractDBColumns[mockCatalog]()

	expectedCols := []string{"id", "deletion_mark", "version", "code", "name", "active"}
	for _, expected := range expectedCols {
		assert.Contains(t, cols, expected)
	}
	assert.NotContains(t, cols, "-")
}

func TestExtractDBColumns_EmbeddedDocument(t *testing.T) {
	cols := ExtractDBColumns[mockDocument]()

	expectedCols := []string{"id", "version", "created_at", "updated_at", "created_by", "updated_by", "status"}
	for _, expected := range expectedCols {
		assert.Contains(t, cols, expected)
	}
}

func TestStructToMap_EmbeddedFields(t *testing.T) {
	cat := mockCatalog{
		Catalog: entity.Catalog{
			BaseEntity: entity.BaseEntity{
				ID:           id.New(),
				DeletionMark: true,
				Version:      5,
			},
			Code: "TEST",
			Name: "Test Name",
		},
		Active:  true,
		Ignored: "nope",
	}

	m := StructToMap(cat)

	assert.Equal(t, cat.ID, m["id"])
	assert.Equal(t, true, m["deletion_mark"])
	assert.Equal(t, 5, m["version"])
	assert.Equal(t, "TEST", m["code"])
	assert.Equal(t, "Test Name", m["name"])
	assert.Equal(t, true, m["active"])
	assert.NotContains(t, m, "-")
}

func TestStructToMap_PointerInput(t *testing.T) {
	now := time.Now().UTC()
	doc := &mockDocument{
		BaseDocument: entity.BaseDocument{
			BaseEntity: entity.NewBaseEntity(),
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		Status: "pending",
	}

	m := StructToMap(doc)

	assert.Equal(t, doc.ID, m["id"])
	assert.Equal(t, now, m["created_at"])
	assert.Equal(t, "pending", m["status"])
}
