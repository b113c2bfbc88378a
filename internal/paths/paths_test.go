package paths

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentKeyLayout(t *testing.T) {
	assert.Equal(t, "original/42.pdf", Document(42, StageOriginal))
	assert.Equal(t, "processing/42.pdf", Document(42, StageProcessing))
	assert.Equal(t, "production/42.pdf", Document(42, StageProduction))
	assert.Equal(t, "backup/42.pdf", Document(42, StageBackup))
}

func TestEveryStageMapsToDistinctKey(t *testing.T) {
	seen := map[string]Stage{}
	for _, s := range Stages {
		key := Document(7, s)
		prev, dup := seen[key]
		assert.False(t, dup, "stage %s collides with %s", s, prev)
		seen[key] = s
	}
}

func TestThumbnailNamespace(t *testing.T) {
	assert.Equal(t, "thumbnails/7.png", Thumbnail(7))
}
