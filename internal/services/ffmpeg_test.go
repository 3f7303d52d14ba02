package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteConcatManifestOrderAndFormat(t *testing.T) {
	dir := t.TempDir()
	svc := NewFFmpegService()

	clips := []string{
		filepath.Join(dir, "scene_1.mp4"),
		filepath.Join(dir, "scene_2.mp4"),
		filepath.Join(dir, "scene_3.mp4"),
	}

	listPath, err := svc.WriteConcatManifest(dir, clips)
	require.NoError(t, err)

	data, err := os.ReadFile(listPath)
	require.NoError(t, err)

	expected := "file '" + clips[0] + "'\n" +
		"file '" + clips[1] + "'\n" +
		"file '" + clips[2] + "'\n"
	assert.Equal(t, expected, string(data))
}

func TestWriteConcatManifestEscapesQuotes(t *testing.T) {
	dir := t.TempDir()
	svc := NewFFmpegService()

	listPath, err := svc.WriteConcatManifest(dir, []string{"/tmp/it's a clip.mp4"})
	require.NoError(t, err)

	data, err := os.ReadFile(listPath)
	require.NoError(t, err)
	assert.Equal(t, `file '/tmp/it'\''s a clip.mp4'`+"\n", string(data))
}

func TestWriteConcatManifestRejectsEmptyList(t *testing.T) {
	svc := NewFFmpegService()
	_, err := svc.WriteConcatManifest(t.TempDir(), nil)
	require.Error(t, err)
}
