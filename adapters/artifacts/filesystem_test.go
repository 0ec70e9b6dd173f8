package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/aidoctor/domain"
	"github.com/satriahrh/aidoctor/domain/repositories"
)

func newStore(t *testing.T) *FilesystemStore {
	t.Helper()
	store, err := NewFilesystemStore(t.TempDir(), FileNames{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return store
}

func TestFilesystemStore_SaveLoadRemove(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	path, err := store.Save(ctx, "s1", repositories.ArtifactDoctorAudio, []byte("mp3"))
	require.NoError(t, err)
	assert.Equal(t, store.Path("s1", repositories.ArtifactDoctorAudio), path)
	assert.Equal(t, "doctor_response.mp3", filepath.Base(path))

	// Saving again overwrites
	_, err = store.Save(ctx, "s1", repositories.ArtifactDoctorAudio, []byte("mp3-v2"))
	require.NoError(t, err)

	data, err := store.Load(ctx, "s1", repositories.ArtifactDoctorAudio)
	require.NoError(t, err)
	assert.Equal(t, "mp3-v2", string(data))

	require.NoError(t, store.Remove(ctx, "s1", repositories.ArtifactDoctorAudio))
	require.NoError(t, store.Remove(ctx, "s1", repositories.ArtifactDoctorAudio), "removing twice is fine")

	_, err = store.Load(ctx, "s1", repositories.ArtifactDoctorAudio)
	assert.True(t, errors.Is(err, domain.ErrArtifactNotFound))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp files left behind")
}

func TestFilesystemStore_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	_, err := store.Save(ctx, "a", repositories.ArtifactImage, []byte("image-a"))
	require.NoError(t, err)
	_, err = store.Save(ctx, "b", repositories.ArtifactImage, []byte("image-b"))
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx, "a"))

	_, err = store.Load(ctx, "a", repositories.ArtifactImage)
	assert.True(t, errors.Is(err, domain.ErrArtifactNotFound))

	data, err := store.Load(ctx, "b", repositories.ArtifactImage)
	require.NoError(t, err)
	assert.Equal(t, "image-b", string(data))
}

func TestFilesystemStore_Validation(t *testing.T) {
	_, err := NewFilesystemStore("", FileNames{}, zaptest.NewLogger(t))
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	_, err = NewFilesystemStore(t.TempDir(), FileNames{Image: "../escape"}, zaptest.NewLogger(t))
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	store := newStore(t)
	_, err = store.Save(context.Background(), "../other", repositories.ArtifactImage, []byte("x"))
	assert.Error(t, err)
	assert.Error(t, store.Clear(context.Background(), ".."))
}

func TestFilesystemStore_CustomNames(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir(), FileNames{PatientAudio: "voice.wav"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "voice.wav", filepath.Base(store.Path("s", repositories.ArtifactPatientAudio)))
	assert.Equal(t, DefaultFileNames.Image, filepath.Base(store.Path("s", repositories.ArtifactImage)))
}
