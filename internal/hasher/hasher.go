package hasher

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// DefaultLen is the hex length used for source hashes in the asset map and
// manifest: 16 hex chars (64 bits), collision-safe for practical asset counts.
const DefaultLen = 16

// ContentHash computes the xxHash64 of data and returns a hex string
// truncated to hexLen (0 = full).
func ContentHash(data []byte, hexLen int) string {
	return format(xxhash.Sum64(data), hexLen)
}

// FileHash streams a file through xxHash64.
func FileHash(path string, hexLen int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return format(h.Sum64(), hexLen), nil
}

// SameContent reports whether the file at path already holds exactly data.
// A missing file is never the same.
func SameContent(path string, data []byte) bool {
	info, err := os.Stat(path)
	if err != nil || info.Size() != int64(len(data)) {
		return false
	}
	existing, err := FileHash(path, 0)
	if err != nil {
		return false
	}
	return existing == ContentHash(data, 0)
}

func format(v uint64, hexLen int) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	full := hex.EncodeToString(b[:])
	if hexLen > 0 && hexLen < len(full) {
		return full[:hexLen]
	}
	return full
}
