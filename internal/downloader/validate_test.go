package downloader

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/wmd/internal/dump"
)

func TestValidate(t *testing.T) {
	f := newFixture(t)

	files, err := f.meta.ListFiles(context.Background(), testDump, testVersion, testJob, nil)
	require.NoError(t, err)

	result, err := f.dl.Validate(testJobRef, files)
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, 3, result.MissingFiles)
	require.Equal(t, int64(6000), result.TotalSize)

	_, err = Run(context.Background(), f.meta, f.dl, f.request())
	require.NoError(t, err)
	f.server.ResetRequests()

	result, err = f.dl.Validate(testJobRef, files)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, 3, result.PresentFiles)
	require.Empty(t, result.Errors)
	require.Empty(t, f.server.Requests())

	require.NoError(t, afero.WriteFile(f.fs, f.finalPath("b.xml.bz2"), []byte("short"), 0o644))
	result, err = f.dl.Validate(testJobRef, files)
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, 1, result.SizeMismatches)
	require.Equal(t, 2, result.PresentFiles)
	require.Equal(t, []string{"b.xml.bz2 size mismatch: expected 2000, got 5"}, result.Errors)
}

func TestValidateDirectoryIsNotAFile(t *testing.T) {
	f := newFixture(t)
	file := dump.FileMeta{Name: "x.bz2", Size: 10}
	require.NoError(t, f.fs.MkdirAll(filepath.Join(testJobRef.Dir(outDir), "x.bz2"), 0o755))

	result, err := f.dl.Validate(testJobRef, []dump.FileMeta{file})
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, 1, result.SizeMismatches)
}

func TestValidateNeedsNoClient(t *testing.T) {
	fs := afero.NewMemMapFs()
	dl := New(nil, Options{Fs: fs, OutDir: outDir})
	file := dump.FileMeta{Name: "a.xml.bz2", Size: 3}
	require.NoError(t, afero.WriteFile(fs, dl.FinalPath(testJobRef, file), []byte("abc"), 0o644))

	result, err := dl.Validate(testJobRef, []dump.FileMeta{file})
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, 1, result.PresentFiles)
}
