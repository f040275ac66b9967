package keys

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadKeyfile reads an ed25519 seed, in hex, from a file.
func ReadKeyfile(path string) (*KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromSeedHex(strings.TrimSpace(string(raw)))
}

// WriteKeyfile writes the key pair's seed, in hex, to a file readable only by
// the owner.
func WriteKeyfile(path string, key *KeyPair) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	return os.WriteFile(path, []byte(key.SeedHex()+"\n"), 0600)
}
