package imagestore

import (
	"bytes"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

// fileHeader builds a multipart.FileHeader the way an HTTP upload would.
func fileHeader(t *testing.T, filename, contentType string, data []byte) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader := multipart.NewReader(&buf, writer.Boundary())
	form, err := reader.ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })

	files := form.File["image"]
	require.Len(t, files, 1)
	return files[0]
}

func TestSaveGeneratesCollisionResistantName(t *testing.T) {
	store, err := New(t.TempDir(), 1024)
	require.NoError(t, err)

	fh := fileHeader(t, "照片.JPG", "image/jpeg", []byte("jpeg-bytes"))

	name, err := store.Save(fh, testNow)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^1704096000000-[0-9a-f]{12}\.jpg$`), name)

	data, err := os.ReadFile(filepath.Join(store.Dir(), name))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)

	// Same instant, different name
	other, err := store.Save(fh, testNow)
	require.NoError(t, err)
	assert.NotEqual(t, name, other)
}

func TestSaveRejectsNonImage(t *testing.T) {
	store, err := New(t.TempDir(), 1024)
	require.NoError(t, err)

	fh := fileHeader(t, "note.txt", "text/plain", []byte("hello"))
	_, err = store.Save(fh, testNow)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveRejectsOversized(t *testing.T) {
	store, err := New(t.TempDir(), 4)
	require.NoError(t, err)

	fh := fileHeader(t, "big.png", "image/png", []byte("too large"))
	_, err = store.Save(fh, testNow)
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemove(t *testing.T) {
	store, err := New(t.TempDir(), 1024)
	require.NoError(t, err)

	fh := fileHeader(t, "photo.png", "image/png", []byte("png"))
	name, err := store.Save(fh, testNow)
	require.NoError(t, err)

	require.NoError(t, store.Remove(name))
	_, err = os.Stat(filepath.Join(store.Dir(), name))
	assert.True(t, os.IsNotExist(err))

	// Already gone: not an error
	assert.NoError(t, store.Remove(name))

	// Path traversal is refused
	assert.Error(t, store.Remove("../escape.png"))
}
