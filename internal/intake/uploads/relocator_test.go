package uploads

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "formvault/pkg/domain-errors"
	"formvault/pkg/testutil"
)

func newRelocator(t *testing.T) *Relocator {
	t.Helper()
	r, err := New(t.TempDir())
	require.NoError(t, err)
	return r
}

func TestFinalName(t *testing.T) {
	assert.Equal(t, "ann-lee-2.jpg", FinalName("ann-lee", 2, ".jpg"))
	assert.Equal(t, "submission-1.png", FinalName("", 1, ".png"))
	assert.Equal(t, "ann-lee-3", FinalName("ann-lee", 3, ""))
}

func TestStageAndRelocate(t *testing.T) {
	r := newRelocator(t)

	tmp, err := r.Stage(strings.NewReader("jpeg-bytes"), "../../etc/photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root(), incomingDir), filepath.Dir(tmp))
	assert.NotContains(t, filepath.Base(tmp), "photo", "the client's name is not reused")
	assert.Equal(t, ".jpg", filepath.Ext(tmp))

	name, err := r.Relocate(tmp, "ann-lee", 1, ".jpg")
	require.NoError(t, err)
	assert.Equal(t, "ann-lee-1.jpg", name)
	assert.True(t, r.Exists(name))

	_, err = os.Stat(tmp)
	assert.True(t, os.IsNotExist(err), "staged file should be gone")

	data, err := os.ReadFile(filepath.Join(r.Root(), name))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestRelocateNeverOverwrites(t *testing.T) {
	r := newRelocator(t)

	first, err := r.Stage(strings.NewReader("first"), "a.jpg")
	require.NoError(t, err)
	_, err = r.Relocate(first, "ann-lee", 1, ".jpg")
	require.NoError(t, err)

	second, err := r.Stage(strings.NewReader("second"), "b.jpg")
	require.NoError(t, err)
	_, err = r.Relocate(second, "ann-lee", 1, ".jpg")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeFileMove))

	data, err := os.ReadFile(filepath.Join(r.Root(), "ann-lee-1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestRelocateMissingTempFile(t *testing.T) {
	r := newRelocator(t)
	_, err := r.Relocate(filepath.Join(r.Root(), incomingDir, "gone.jpg"), "ann-lee", 1, ".jpg")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeFileMove))
	assert.False(t, r.Exists("ann-lee-1.jpg"))
}

func TestResolveRejectsEscapes(t *testing.T) {
	r := newRelocator(t)
	for _, name := range []string{"", "..", "../x.jpg", "/etc/passwd", "a/../../x"} {
		_, err := r.resolve(name)
		assert.Error(t, err, name)
	}
	_, err := r.Open("../outside.jpg")
	assert.Error(t, err)
}

func TestStageLongFileName(t *testing.T) {
	r := newRelocator(t)

	tmp, err := r.Stage(strings.NewReader("jpeg-bytes"), strings.Repeat("a", 300)+".JPG")
	require.NoError(t, err)
	assert.Less(t, len(filepath.Base(tmp)), 64)
	assert.Equal(t, ".jpg", filepath.Ext(tmp))

	name, err := r.Relocate(tmp, "ann-lee", 1, ".jpg")
	require.NoError(t, err)
	assert.True(t, r.Exists(name))
}

func TestStagedExt(t *testing.T) {
	tests := map[string]string{
		"photo.PNG":           ".png",
		`C:\Users\me\id.jpeg`: ".jpeg",
		"noext":               "",
		"weird.j p g":         "",
		"x.abcdefghijklmnop":  "",
		"":                    "",
	}
	for in, want := range tests {
		assert.Equal(t, want, stagedExt(in), "stagedExt(%q)", in)
	}
}

func TestRemoveAndPurge(t *testing.T) {
	r := newRelocator(t)
	for i, slug := range []string{"ann-lee", "bo-kim", "cy-ng"} {
		tmp, err := r.Stage(strings.NewReader(slug), "x.png")
		require.NoError(t, err)
		_, err = r.Relocate(tmp, slug, i+1, ".png")
		require.NoError(t, err)
	}
	pending, err := r.Stage(strings.NewReader("pending"), "y.png")
	require.NoError(t, err)

	require.NoError(t, r.Remove("ann-lee-1.png"))
	assert.False(t, r.Exists("ann-lee-1.png"))

	removed, err := r.Purge(func() (map[string]bool, error) {
		return map[string]bool{"cy-ng-3.png": true}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.False(t, r.Exists("bo-kim-2.png"))
	assert.True(t, r.Exists("cy-ng-3.png"), "referenced files are kept")

	_, err = os.Stat(pending)
	assert.NoError(t, err, "in-flight staged uploads are kept")
}

// A file moved into place while a purge runs belongs to a submission the
// purge can already see, so it survives.
func TestPurgeKeepsFilesCommittedDuringPurge(t *testing.T) {
	r := newRelocator(t)
	tmp, err := r.Stage(strings.NewReader("old"), "x.png")
	require.NoError(t, err)
	_, err = r.Relocate(tmp, "ann-lee", 1, ".png")
	require.NoError(t, err)

	removed, err := r.Purge(func() (map[string]bool, error) {
		late, err := r.Stage(strings.NewReader("late"), "z.png")
		require.NoError(t, err)
		name, err := r.Relocate(late, "bo-kim", 1, ".png")
		require.NoError(t, err)
		return map[string]bool{name: true}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.False(t, r.Exists("ann-lee-1.png"))
	assert.True(t, r.Exists("bo-kim-1.png"))
}

func TestPurgeLeavesFilesWhenLookupFails(t *testing.T) {
	r := newRelocator(t)
	tmp, err := r.Stage(strings.NewReader("x"), "x.png")
	require.NoError(t, err)
	_, err = r.Relocate(tmp, "ann-lee", 1, ".png")
	require.NoError(t, err)

	_, err = r.Purge(func() (map[string]bool, error) {
		return nil, errors.New("store unavailable")
	})
	require.Error(t, err)
	assert.True(t, r.Exists("ann-lee-1.png"))
}

func TestDiscardStagedUpload(t *testing.T) {
	testutil.Given(t, "a staged upload whose submission failed", func(t *testing.T) {
		r := newRelocator(t)
		tmp, err := r.Stage(strings.NewReader("abandoned"), "id.jpg")
		require.NoError(t, err)

		testutil.When(t, "it is discarded", func(t *testing.T) {
			r.Discard(tmp)

			testutil.Then(t, "the staging file is gone", func(t *testing.T) {
				_, err := os.Stat(tmp)
				assert.ErrorIs(t, err, os.ErrNotExist)
			})
			testutil.Then(t, "discarding again is harmless", func(t *testing.T) {
				r.Discard(tmp)
				r.Discard("")
			})
		})
	})
}
