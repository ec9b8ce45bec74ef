package crypto

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
)

// SaveToKeystore writes the hex-encoded private key to path with owner-only
// permissions, creating the parent directory if needed. The write is
// atomic (temp file + rename) so a crash mid-write never leaves a partial
// key file behind.
func SaveToKeystore(path string, key *PrivateKey) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "keystore-")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	encoded := hex.EncodeToString(key.Bytes())
	if _, err := tmp.WriteString(encoded); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// LoadFromKeystore reads a hex-encoded private key previously written by
// SaveToKeystore.
func LoadFromKeystore(path string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decoded, err := hex.DecodeString(string(raw))
	if err != nil {
		return nil, err
	}
	return PrivateKeyFromBytes(decoded)
}
