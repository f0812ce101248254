package pipeline

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// lfsPointerPrefix starts every Git LFS pointer file.
var lfsPointerPrefix = []byte("version https://git-lfs.github.com/spec/v1")

// Real pointers are ~130 bytes; anything larger is content.
const maxPointerSize = 1024

// IsLFSPointer reports whether path holds a Git LFS pointer stub instead of
// the media bytes it stands for.
func IsLFSPointer(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head, err := io.ReadAll(io.LimitReader(f, maxPointerSize+1))
	if err != nil {
		return false, err
	}
	return isLFSPointer(head), nil
}

func isLFSPointer(data []byte) bool {
	if len(data) > maxPointerSize || !bytes.HasPrefix(data, lfsPointerPrefix) {
		return false
	}
	return mimetype.Detect(data).Is("text/plain")
}

// SniffFormat returns the format the file's bytes actually hold, using the
// same names as Source.Format. Unknown content yields "".
func SniffFormat(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	return sniffedName(mt), nil
}

func sniffedName(mt *mimetype.MIME) string {
	for m := mt; m != nil; m = m.Parent() {
		switch m.String() {
		case "image/jpeg":
			return "jpeg"
		case "image/png":
			return "png"
		case "image/gif":
			return "gif"
		case "image/bmp":
			return "bmp"
		case "image/tiff":
			return "tiff"
		case "image/webp":
			return "webp"
		case "image/svg+xml":
			return "svg"
		}
		if strings.HasPrefix(m.String(), "video/") {
			return strings.TrimPrefix(m.String(), "video/")
		}
	}
	return ""
}
