package vigil

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// EncryptionNonceSize is the nonce size for AES-GCM
	EncryptionNonceSize = 12
	// EncryptionSaltSize is the salt size for key derivation
	EncryptionSaltSize = 32
	// EncryptionKeySize is the AES-256 key size
	EncryptionKeySize = 32
	// PBKDF2Iterations is the number of iterations for key derivation
	PBKDF2Iterations = 100000
)

// EncryptionConfig configures encryption at rest for exported datasets
// and persisted state.
type EncryptionConfig struct {
	// Enabled turns on encryption for stored payloads
	Enabled bool
	// Key is the encryption key (must be 32 bytes for AES-256)
	// If empty, KeyPassword is used to derive a key
	Key []byte
	// KeyPassword is used to derive the encryption key via PBKDF2
	KeyPassword string
}

// Encryptor provides encryption/decryption for stored payloads.
type Encryptor struct {
	gcm      cipher.AEAD
	salt     []byte
	password string
}

// NewEncryptor creates a new encryptor from a key or password.
// Returns (nil, nil) when encryption is disabled.
func NewEncryptor(cfg EncryptionConfig) (*Encryptor, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var key []byte
	var salt []byte

	if len(cfg.Key) > 0 {
		if len(cfg.Key) != EncryptionKeySize {
			return nil, errors.New("encryption key must be 32 bytes for AES-256")
		}
		key = cfg.Key
		salt = make([]byte, EncryptionSaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
	} else if cfg.KeyPassword != "" {
		salt = make([]byte, EncryptionSaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
		key = pbkdf2.Key([]byte(cfg.KeyPassword), salt, PBKDF2Iterations, EncryptionKeySize, sha256.New)
	} else {
		return nil, errors.New("encryption enabled but no key or password provided")
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &Encryptor{gcm: gcm, salt: salt, password: cfg.KeyPassword}, nil
}

// NewEncryptorWithSalt creates an encryptor using an existing salt
// (for decrypting payloads written by another process).
func NewEncryptorWithSalt(password string, salt []byte) (*Encryptor, error) {
	if len(salt) != EncryptionSaltSize {
		return nil, errors.New("invalid salt size")
	}

	key := pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, EncryptionKeySize, sha256.New)
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &Encryptor{gcm: gcm, salt: salt, password: password}, nil
}

// NewEncryptorWithKey creates an encryptor with a raw key.
func NewEncryptorWithKey(key []byte) (*Encryptor, error) {
	if len(key) != EncryptionKeySize {
		return nil, errors.New("encryption key must be 32 bytes")
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &Encryptor{gcm: gcm}, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Salt returns the salt used for key derivation.
func (e *Encryptor) Salt() []byte {
	return e.salt
}

// Encrypt encrypts plaintext and returns ciphertext with prepended nonce.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	// Fully random nonce for GCM security (nonces must never repeat)
	nonce := make([]byte, EncryptionNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return e.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext (with prepended nonce) and returns plaintext.
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < EncryptionNonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:EncryptionNonceSize]
	ciphertext = ciphertext[EncryptionNonceSize:]

	return e.gcm.Open(nil, nonce, ciphertext, nil)
}

// EncryptedHeader is written in front of encrypted payloads so the
// derivation salt travels with the data.
type EncryptedHeader struct {
	Magic   [4]byte // "VENC"
	Version byte
	Salt    [EncryptionSaltSize]byte
}

// MagicEncrypted is the magic bytes for encrypted payloads.
var MagicEncrypted = [4]byte{'V', 'E', 'N', 'C'}

// EncryptedHeaderSize is the size of the encrypted payload header.
const EncryptedHeaderSize = 4 + 1 + EncryptionSaltSize

// EncryptPayload seals data and prepends the salt header.
func (e *Encryptor) EncryptPayload(data []byte) ([]byte, error) {
	ciphertext, err := e.Encrypt(data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, EncryptedHeaderSize, EncryptedHeaderSize+len(ciphertext))
	copy(out[0:4], MagicEncrypted[:])
	out[4] = 1
	copy(out[5:], e.salt)
	return append(out, ciphertext...), nil
}

// DecryptPayload opens a payload produced by EncryptPayload. When the
// payload's salt differs from the encryptor's, a per-payload key is
// re-derived from the configured password.
func (e *Encryptor) DecryptPayload(data []byte) ([]byte, error) {
	if len(data) < EncryptedHeaderSize {
		return nil, errors.New("encrypted payload too short")
	}
	var magic [4]byte
	copy(magic[:], data[0:4])
	if magic != MagicEncrypted {
		return nil, errors.New("invalid encrypted payload magic")
	}

	salt := data[5:EncryptedHeaderSize]
	body := data[EncryptedHeaderSize:]

	if e.password != "" && !bytesEqual(salt, e.salt) {
		dec, err := NewEncryptorWithSalt(e.password, salt)
		if err != nil {
			return nil, err
		}
		return dec.Decrypt(body)
	}
	return e.Decrypt(body)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EncryptingBlobStore wraps a BlobStore and encrypts every payload at
// rest. Listed objects keep their original keys.
type EncryptingBlobStore struct {
	inner BlobStore
	enc   *Encryptor
}

// NewEncryptingBlobStore wraps inner with at-rest encryption.
func NewEncryptingBlobStore(inner BlobStore, enc *Encryptor) *EncryptingBlobStore {
	return &EncryptingBlobStore{inner: inner, enc: enc}
}

// Put encrypts data before storing it. The content type is replaced
// with application/octet-stream since the stored bytes are ciphertext.
func (s *EncryptingBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	sealed, err := s.enc.EncryptPayload(data)
	if err != nil {
		return newExportError("encrypt", key, err)
	}
	return s.inner.Put(ctx, key, sealed, ContentTypeBinary)
}

// Get fetches and decrypts a stored payload.
func (s *EncryptingBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	plain, err := s.enc.DecryptPayload(sealed)
	if err != nil {
		return nil, newExportError("decrypt", key, err)
	}
	return plain, nil
}

// List delegates to the wrapped store.
func (s *EncryptingBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Close closes the wrapped store.
func (s *EncryptingBlobStore) Close() error {
	return s.inner.Close()
}
