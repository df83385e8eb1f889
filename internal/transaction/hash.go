package transaction

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/mcdonaldj/updater/internal/ports"
)

// ComputeSHA256 calculates SHA256 hash of a file
func ComputeSHA256(fsys ports.FileSystem, filePath string) (string, error) {
	f, err := fsys.Open(filePath)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
