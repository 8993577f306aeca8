// Package md5 provides the content digests used for conditional uploads.
package md5

import (
	"crypto/md5" //nolint:gosec // object stores report MD5 etags; not used for security
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Hasher computes MD5 digests.
type Hasher struct{}

// New returns an MD5 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	//nolint:gosec // see import
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// Base64 converts a hex digest to the base64 form used by Content-MD5
// headers.
func Base64(hexDigest string) (string, error) {
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		return "", fmt.Errorf("decode md5 %q: %w", hexDigest, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
