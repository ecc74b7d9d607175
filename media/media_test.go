package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/surfaceinspect/logger"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	ls, err := NewLocalStorage(filepath.Join(t.TempDir(), "uploads"), logger.Nop())
	require.NoError(t, err)
	return ls
}

func TestLocalStorage_Lifecycle(t *testing.T) {
	ls := newTestStorage(t)

	name, err := ls.Save("20240101_120000_abcd1234_wall.png", bytes.NewReader([]byte("data")))
	require.NoError(t, err)

	ok, err := ls.Exists(name)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, info, err := ls.Open(name)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
	assert.Equal(t, int64(4), info.Size())

	require.NoError(t, ls.Delete(name))
	ok, err = ls.Exists(name)
	require.NoError(t, err)
	assert.False(t, ok)

	// deleting twice is fine
	require.NoError(t, ls.Delete(name))

	_, _, err = ls.Open(name)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	entries, err := os.ReadDir(ls.BasePath())
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp files left behind")
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	ls := newTestStorage(t)
	outside := filepath.Join(filepath.Dir(ls.BasePath()), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))

	for _, name := range []string{"../secret.txt", "..", "a/b.png", `..\secret.txt`, "", ".hidden", "x\x00.png"} {
		_, err := ls.GetFullPath(name)
		assert.ErrorIs(t, err, ErrInvalidFilename, name)

		_, _, err = ls.Open(name)
		assert.Error(t, err, name)

		assert.Error(t, ls.Delete(name), name)
	}

	_, err := os.Stat(outside)
	assert.NoError(t, err, "file outside the store must survive")
}

func TestUploadFilename(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	pattern := regexp.MustCompile(`^20240309_140507_[0-9a-f]{8}_(.+)$`)

	cases := map[string]struct {
		original, format, wantBase string
	}{
		"plain":           {"wall.jpg", "jpeg", "wall.jpg"},
		"path stripped":   {"../../etc/wall.png", "png", "wall.png"},
		"windows path":    {`C:\photos\north wall.JPG`, "jpeg", "north_wall.JPG"},
		"no extension":    {"snapshot", "png", "snapshot.png"},
		"empty":           {"", "jpeg", "image.jpg"},
		"dots only":       {"...", "gif", "image.gif"},
		"unicode":         {"fachada-ñ.jpeg", "jpeg", "fachada-_.jpeg"},
		"wrong extension": {"notes.txt", "png", "notes.txt.png"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := UploadFilename(tc.original, tc.format, now)
			require.NoError(t, err)
			m := pattern.FindStringSubmatch(got)
			require.NotNil(t, m, got)
			assert.Equal(t, tc.wantBase, m[1])
			assert.True(t, ValidFilename(got))
		})
	}

	a, _ := UploadFilename("wall.jpg", "jpeg", now)
	b, _ := UploadFilename("wall.jpg", "jpeg", now)
	assert.NotEqual(t, a, b, "same second and name still yields distinct files")

	long, err := UploadFilename(strings.Repeat("x", 300)+".png", "png", now)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(long), 255)
	assert.True(t, strings.HasSuffix(long, ".png"))
}

func TestImageURLRoundTrip(t *testing.T) {
	url := ImageURL("20240309_140507_abcd1234_wall.jpg")
	assert.Equal(t, "/api/images/20240309_140507_abcd1234_wall.jpg", url)

	name, err := FilenameFromURL(url)
	require.NoError(t, err)
	assert.Equal(t, "20240309_140507_abcd1234_wall.jpg", name)

	name, err = FilenameFromURL("https://inspect.example.com/api/images/x.png")
	require.NoError(t, err)
	assert.Equal(t, "x.png", name)

	for _, bad := range []string{"", "/api/images/..", "/api/images/"} {
		_, err := FilenameFromURL(bad)
		assert.ErrorIs(t, err, ErrInvalidFilename, bad)
	}
}

func TestDecodeUpload(t *testing.T) {
	info, err := DecodeUpload(pngBytes(t, 32, 16), 0)
	require.NoError(t, err)
	assert.Equal(t, UploadInfo{Format: "png", Width: 32, Height: 16}, info)

	_, err = DecodeUpload(nil, 0)
	assert.ErrorIs(t, err, ErrNotAnImage)

	_, err = DecodeUpload([]byte("%PDF-1.4 definitely not an image"), 0)
	assert.ErrorIs(t, err, ErrNotAnImage)

	truncated := pngBytes(t, 32, 16)
	_, err = DecodeUpload(truncated[:len(truncated)/2], 0)
	assert.ErrorIs(t, err, ErrNotAnImage)
}

// pngWithHeaderSize rewrites the IHDR dimensions of a tiny PNG so the header
// claims w x h while the file stays a few bytes.
func pngWithHeaderSize(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := pngBytes(t, 1, 1)
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc after 13 data bytes
	require.Equal(t, "IHDR", string(data[12:16]))
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestDecodeUpload_PixelLimit(t *testing.T) {
	huge := pngWithHeaderSize(t, 60000, 60000)
	require.Less(t, len(huge), 1024)

	_, err := DecodeUpload(huge, 0)
	assert.ErrorIs(t, err, ErrNotAnImage)
	assert.Contains(t, err.Error(), "pixel limit")

	_, err = DecodeUpload(pngBytes(t, 64, 64), 1000)
	assert.ErrorIs(t, err, ErrNotAnImage)

	info, err := DecodeUpload(pngBytes(t, 10, 10), 100)
	require.NoError(t, err)
	assert.Equal(t, 10, info.Width)
}

func TestReadCaptureTime_NoExif(t *testing.T) {
	assert.Nil(t, ReadCaptureTime(pngBytes(t, 4, 4)))
	assert.Nil(t, ReadCaptureTime(nil))
}

func TestIsRasterImage(t *testing.T) {
	assert.True(t, IsRasterImage("a.JPG"))
	assert.True(t, IsRasterImage("a.tiff"))
	assert.False(t, IsRasterImage("a.svg"))
	assert.False(t, IsRasterImage("a"))
}
