package filetype

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	IsPDF       bool
	IsImage     bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// DetectBytes detects the actual file type using magic bytes, not filename
func (d *Detector) DetectBytes(content []byte) *FileTypeInfo {
	info := d.fromMIME(mimetype.Detect(content))
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Msg("detected file type")
	return info
}

func (d *Detector) fromMIME(mtype *mimetype.MIME) *FileTypeInfo {
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	d.classify(info)
	return info
}

// classify fills the kind flags and a human-readable description
func (d *Detector) classify(info *FileTypeInfo) {
	mimeType := info.MIMEType
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	switch mimeType {
	case "application/pdf":
		info.IsPDF = true
		info.Description = "PDF document"

	case "image/png":
		info.IsImage = true
		info.Description = "PNG image"

	case "image/jpeg":
		info.IsImage = true
		info.Description = "JPEG image"

	// accepted by the normalizer but not by the upload boundary
	case "image/bmp", "image/tiff":
		info.IsImage = true
		info.Description = "Bitmap image"

	default:
		info.Description = mimeType
	}
}

// Matches reports whether detected content agrees with a filename extension.
// .jpg and .jpeg are interchangeable.
func (info *FileTypeInfo) Matches(ext string) bool {
	ext = strings.ToLower(ext)
	switch ext {
	case ".pdf":
		return info.IsPDF
	case ".jpg", ".jpeg":
		return strings.HasPrefix(info.MIMEType, "image/jpeg")
	case ".png":
		return strings.HasPrefix(info.MIMEType, "image/png")
	case ".bmp":
		return strings.HasPrefix(info.MIMEType, "image/bmp")
	case ".tif", ".tiff":
		return strings.HasPrefix(info.MIMEType, "image/tiff")
	}
	return false
}

// ExtOf returns the lowercased extension of a filename, including the dot.
func ExtOf(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}
