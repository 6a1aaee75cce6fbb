package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const masterKeySize = 32

// MasterKey is the AES-256 key wallet keys are sealed under. A sealed key is the base64 of
// nonce || ciphertext || tag.
type MasterKey []byte

// NewMasterKey returns a random master key.
func NewMasterKey() (MasterKey, error) {
	mk := make(MasterKey, masterKeySize)
	if _, err := rand.Read(mk); err != nil {
		return nil, fmt.Errorf("random master key: %w", err)
	}
	return mk, nil
}

// ParseMasterKey decodes the base64 form produced by String.
func ParseMasterKey(encoded string) (MasterKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	mk := MasterKey(raw)
	if err := mk.check(); err != nil {
		return nil, err
	}
	return mk, nil
}

func (mk MasterKey) String() string {
	return base64.StdEncoding.EncodeToString(mk)
}

func (mk MasterKey) check() error {
	if len(mk) != masterKeySize {
		return fmt.Errorf("master key is %d bytes, want %d", len(mk), masterKeySize)
	}
	return nil
}

func (mk MasterKey) aead() (cipher.AEAD, error) {
	if err := mk.check(); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(mk)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts a wallet key.
func (mk MasterKey) Seal(key []byte) (string, error) {
	if len(key) != KeySize {
		return "", fmt.Errorf("wallet key is %d bytes, want %d", len(key), KeySize)
	}
	gcm, err := mk.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize(), gcm.NonceSize()+len(key)+gcm.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, key, nil)), nil
}

// Open decrypts a key produced by Seal.
func (mk MasterKey) Open(sealed string) ([]byte, error) {
	gcm, err := mk.aead()
	if err != nil {
		return nil, err
	}
	box, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("sealed key: %w", err)
	}
	if len(box) < gcm.NonceSize() {
		return nil, errors.New("sealed key truncated")
	}
	key, err := gcm.Open(nil, box[:gcm.NonceSize()], box[gcm.NonceSize():], nil)
	if err != nil {
		return nil, errors.New("sealed key does not open under this master key")
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("sealed key is %d bytes, want %d", len(key), KeySize)
	}
	return key, nil
}
