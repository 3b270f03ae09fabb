// Package secret materializes the signing key on disk for tools that only
// accept a key file.
package secret

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
)

// KeyFile is a private key written once with 0600 permissions. It is never
// rewritten; Remove deletes it.
type KeyFile struct {
	path string
	once sync.Once
	err  error
}

// Materialize validates an unencrypted OpenSSH/PEM private key and writes it
// to a new temporary file under dir. The material may be given as PEM or as
// base64-encoded PEM.
func Materialize(material, dir string) (*KeyFile, error) {
	pemBytes, err := decode(material)
	if err != nil {
		return nil, err
	}

	if _, err := ssh.ParseRawPrivateKey(pemBytes); err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("signing key must not be passphrase protected")
		}
		return nil, fmt.Errorf("parse signing key: %w", err)
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create key directory: %w", err)
		}
	}

	f, err := os.CreateTemp(dir, "pgsentry-key-")
	if err != nil {
		return nil, fmt.Errorf("create key file: %w", err)
	}
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("restrict key file: %w", err)
	}
	if _, err := f.Write(pemBytes); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close key file: %w", err)
	}

	return &KeyFile{path: f.Name()}, nil
}

func decode(material string) ([]byte, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return nil, fmt.Errorf("signing key is empty")
	}
	if strings.HasPrefix(material, "-----BEGIN") {
		return []byte(material + "\n"), nil
	}

	decoded, err := base64.StdEncoding.DecodeString(material)
	if err != nil {
		return nil, fmt.Errorf("signing key is neither PEM nor base64: %w", err)
	}
	return decoded, nil
}

func (k *KeyFile) Path() string {
	return k.path
}

// Remove deletes the key file. Later calls return the first result.
func (k *KeyFile) Remove() error {
	k.once.Do(func() {
		if err := os.Remove(k.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			k.err = fmt.Errorf("remove key file: %w", err)
		}
	})
	return k.err
}
