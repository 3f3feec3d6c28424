package mapper

import (
	"testing"

	"smart-docqa-client/internal/dto"
	"smart-docqa-client/pkg/store"

	"github.com/stretchr/testify/assert"
)

func TestChunksToStore(t *testing.T) {
	m := NewQueryMapper()

	got := m.ChunksToStore([]dto.ChunkDTO{
		{Source: "a.pdf", Score: 0.1234, Text: "alpha"},
		{Source: "b.txt", Score: 0.9, Text: "beta"},
	})
	assert.Equal(t, []store.RetrievedChunk{
		{Source: "a.pdf", Score: 0.1234, Text: "alpha"},
		{Source: "b.txt", Score: 0.9, Text: "beta"},
	}, got)

	empty := m.ChunksToStore(nil)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestPathsToUploadFiles(t *testing.T) {
	got := NewQueryMapper().PathsToUploadFiles([]string{"/docs/b.txt", "a.pdf"})

	assert.Equal(t, []store.UploadFile{
		{Name: "b.txt", Path: "/docs/b.txt"},
		{Name: "a.pdf", Path: "a.pdf"},
	}, got)
}
