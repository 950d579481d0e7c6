package staging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/wmd/internal/dump"
)

func TestCreateAndDispose(t *testing.T) {
	fs := afero.NewMemMapFs()

	area, err := Create(fs, "/out", false, nil)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(area.Dir(), filepath.Join("/out", DirName)+string(filepath.Separator)))

	exists, err := afero.DirExists(fs, area.Dir())
	require.NoError(t, err)
	require.True(t, exists)

	p := area.PathFor("enwiki-20230301-pages-articles.xml.bz2")
	require.Equal(t, area.Dir(), filepath.Dir(p))
	require.NoError(t, afero.WriteFile(fs, p, []byte("partial"), 0o644))

	kept, err := area.Dispose()
	require.NoError(t, err)
	require.Empty(t, kept)

	exists, err = afero.Exists(fs, area.Dir())
	require.NoError(t, err)
	require.False(t, exists, "staging directory should be removed")

	exists, err = afero.Exists(fs, filepath.Join("/out", DirName))
	require.NoError(t, err)
	require.False(t, exists, "empty staging parent should be removed")

	// Second dispose is a no-op.
	_, err = area.Dispose()
	require.NoError(t, err)
}

func TestDisposeKeep(t *testing.T) {
	fs := afero.NewMemMapFs()

	area, err := Create(fs, "/out", true, nil)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, area.PathFor("f"), []byte("x"), 0o644))

	kept, err := area.Dispose()
	require.NoError(t, err)
	require.Equal(t, area.Dir(), kept)

	exists, err := afero.Exists(fs, area.PathFor("f"))
	require.NoError(t, err)
	require.True(t, exists, "kept staging directory should retain its files")
}

func TestConcurrentAreasAreDistinct(t *testing.T) {
	fs := afero.NewMemMapFs()

	a, err := Create(fs, "/out", false, nil)
	require.NoError(t, err)
	b, err := Create(fs, "/out", false, nil)
	require.NoError(t, err)
	require.NotEqual(t, a.Dir(), b.Dir())

	_, err = a.Dispose()
	require.NoError(t, err)

	exists, err := afero.DirExists(fs, b.Dir())
	require.NoError(t, err)
	require.True(t, exists, "disposing one area must not touch another")
}

func TestPathForStaysInside(t *testing.T) {
	area, err := Create(afero.NewMemMapFs(), "/out", false, nil)
	require.NoError(t, err)
	require.Equal(t, area.Dir(), filepath.Dir(area.PathFor("../../etc/passwd")))
}

func TestCreateFailure(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())

	_, err := Create(fs, "/out", false, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, dump.ErrStagingCreateFailed), "got %v", err)
}

func TestCreateOnDisk(t *testing.T) {
	root := t.TempDir()

	area, err := Create(afero.NewOsFs(), root, false, nil)
	require.NoError(t, err)

	_, err = os.Stat(area.Dir())
	require.NoError(t, err)

	_, err = area.Dispose()
	require.NoError(t, err)

	_, err = os.Stat(area.Dir())
	require.True(t, os.IsNotExist(err))
}

// vanishingParentFs removes the staging parent right before the first Mkdir,
// as a concurrent run disposing of the last other area would.
type vanishingParentFs struct {
	afero.Fs
	removed int
}

func (f *vanishingParentFs) Mkdir(name string, perm os.FileMode) error {
	if f.removed == 0 {
		f.removed++
		if err := f.Fs.Remove(filepath.Dir(name)); err != nil {
			return err
		}
	}
	return f.Fs.Mkdir(name, perm)
}

func TestCreateRetriesWhenParentVanishes(t *testing.T) {
	root := t.TempDir()
	fs := &vanishingParentFs{Fs: afero.NewOsFs()}

	area, err := Create(fs, root, false, nil)
	require.NoError(t, err)
	require.Equal(t, 1, fs.removed)

	info, err := os.Stat(area.Dir())
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
