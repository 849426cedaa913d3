package incremental

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// HashAsset computes xxHash64 of file contents followed by the asset's
// sidecar metadata fingerprint (if any), returns hex string.
func HashAsset(path string, meta []byte) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	if len(meta) > 0 {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(meta)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
