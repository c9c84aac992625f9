package resource

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
)

// SHA256Hash returns the lowercase hex SHA-256 of content.
func SHA256Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// SHA256Reader hashes r to EOF and returns the digest and byte count.
func SHA256Reader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Base64Encode returns the standard padded base64 encoding of content.
func Base64Encode(content []byte) string {
	return base64.StdEncoding.EncodeToString(content)
}
