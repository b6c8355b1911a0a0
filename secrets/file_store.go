package secrets

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32
)

// FileStore keeps secrets in a single secretbox-encrypted JSON file. The
// encryption key is derived from an operator passphrase with argon2id, the
// salt lives in the file header. Writes go through a temp file and rename.
type FileStore struct {
	path       string
	passphrase string
	mu         sync.Mutex
}

func NewFileStore(path, passphrase string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("secret store path is empty")
	}
	if passphrase == "" {
		return nil, errors.New("secret store passphrase is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "failed to create secret store directory")
	}
	s := &FileStore{path: path, passphrase: passphrase}
	// Validate the passphrase against an existing file up front.
	if _, err := os.Stat(path); err == nil {
		if _, err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

func (s *FileStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value
	return s.save(values)
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return s.save(values)
}

func (s *FileStore) deriveKey(salt []byte) *[keySize]byte {
	var key [keySize]byte
	derived := argon2.IDKey([]byte(s.passphrase), salt, 1, 64*1024, 4, keySize)
	copy(key[:], derived)
	return &key
}

func (s *FileStore) load() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read secret store")
	}
	if len(raw) < saltSize+nonceSize {
		return nil, errors.New("secret store file is truncated")
	}

	salt := raw[:saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], raw[saltSize:saltSize+nonceSize])

	plaintext, ok := secretbox.Open(nil, raw[saltSize+nonceSize:], &nonce, s.deriveKey(salt))
	if !ok {
		return nil, errors.New("failed to decrypt secret store: wrong passphrase or corrupt file")
	}

	values := map[string]string{}
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, errors.Wrap(err, "failed to parse secret store payload")
	}
	return values, nil
}

func (s *FileStore) save(values map[string]string) error {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}

	out := make([]byte, 0, saltSize+nonceSize+len(plaintext)+secretbox.Overhead)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, plaintext, &nonce, s.deriveKey(salt))

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return errors.Wrap(err, "failed to write secret store")
	}
	return os.Rename(tmp, s.path)
}

var _ Store = (*FileStore)(nil)
