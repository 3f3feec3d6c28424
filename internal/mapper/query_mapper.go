package mapper

import (
	"path/filepath"

	"smart-docqa-client/internal/dto"
	"smart-docqa-client/pkg/store"
)

type QueryMapper struct{}

func NewQueryMapper() *QueryMapper {
	return &QueryMapper{}
}

// ChunksToStore always returns a non-nil slice so an empty result replaces the previous list
func (m *QueryMapper) ChunksToStore(chunks []dto.ChunkDTO) []store.RetrievedChunk {
	out := make([]store.RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, store.RetrievedChunk{
			Source: c.Source,
			Score:  c.Score,
			Text:   c.Text,
		})
	}
	return out
}

// PathsToUploadFiles keeps the order the user picked the files in
func (m *QueryMapper) PathsToUploadFiles(paths []string) []store.UploadFile {
	out := make([]store.UploadFile, 0, len(paths))
	for _, p := range paths {
		out = append(out, store.UploadFile{
			Name: filepath.Base(p),
			Path: p,
		})
	}
	return out
}
