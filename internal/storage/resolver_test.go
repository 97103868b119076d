package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/ema/internal/apperr"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jane Doe", "Jane_Doe"},
		{"  Jane   Doe ", "Jane___Doe"},
		{"a/b\\c", "a_b_c"},
		{"tab\there", "tab_here"},
		{"what?*", "what__"},
		{".hidden", "_hidden"},
		{"trailing.", "trailing"},
		{"Zoë", "Zoë"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SanitizeName(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeNameRejectsUnusable(t *testing.T) {
	for _, in := range []string{"", "   ", "///", "..", "\x00\x01"} {
		_, err := SanitizeName(in)
		assert.True(t, apperr.Is(err, apperr.InvalidName), "name %q", in)
	}
}

func TestResolveDisambiguatesCollisions(t *testing.T) {
	r := NewResolver(t.TempDir())

	first, err := r.Resolve(uuid.New(), "Jane Doe")
	require.NoError(t, err)
	second, err := r.Resolve(uuid.New(), "Jane Doe")
	require.NoError(t, err)
	third, err := r.Resolve(uuid.New(), "jane doe")
	require.NoError(t, err)

	assert.Equal(t, "Jane_Doe", first)
	assert.Equal(t, "Jane_Doe_2", second)
	assert.Equal(t, "jane_doe_3", third)
}

func TestResolveIsStableAcrossRenames(t *testing.T) {
	r := NewResolver(t.TempDir())
	id := uuid.New()

	folder, err := r.Resolve(id, "Jane Doe")
	require.NoError(t, err)
	again, err := r.Resolve(id, "Jane Smith")
	require.NoError(t, err)

	assert.Equal(t, folder, again)
}

func TestResolveAvoidsUnindexedFolders(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "Jane_Doe"), 0o755))
	r := NewResolver(root)

	folder, err := r.Resolve(uuid.New(), "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, "Jane_Doe_2", folder)
}

func TestReleaseFreesFolder(t *testing.T) {
	r := NewResolver(t.TempDir())
	id := uuid.New()
	_, err := r.Resolve(id, "Jane")
	require.NoError(t, err)

	r.Release(id)
	_, ok := r.Folder(id)
	assert.False(t, ok)

	folder, err := r.Resolve(uuid.New(), "Jane")
	require.NoError(t, err)
	assert.Equal(t, "Jane", folder)
}

func TestReserveBlocksFolder(t *testing.T) {
	r := NewResolver(t.TempDir())
	r.Reserve("Jane")

	folder, err := r.Resolve(uuid.New(), "Jane")
	require.NoError(t, err)
	assert.Equal(t, "Jane_2", folder)
}
