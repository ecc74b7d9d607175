// media/types.go
package media

// UploadInfo describes a decoded upload.
type UploadInfo struct {
	Format string // as reported by image.DecodeConfig
	Width  int    // after EXIF orientation is applied
	Height int
}

var supportedImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// formatExtensions maps decoder format names to the extension stored uploads get.
var formatExtensions = map[string]string{
	"jpeg": ".jpg",
	"png":  ".png",
	"gif":  ".gif",
	"bmp":  ".bmp",
	"tiff": ".tiff",
}
