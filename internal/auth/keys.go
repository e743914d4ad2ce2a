package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Key file names inside the keys directory.
const (
	PrivateKeyFile = "session_private.pem"
	PublicKeyFile  = "session_public.pem"
)

// KeyPair holds the ECDSA P-256 key pair that signs session tokens.
type KeyPair struct {
	PrivateKey *ecdsa.PrivateKey
	PublicKey  *ecdsa.PublicKey
}

// GenerateKeyPair creates a new ECDSA P-256 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}
	return &KeyPair{PrivateKey: privateKey, PublicKey: &privateKey.PublicKey}, nil
}

// Save writes both keys as PEM files into dir.
func (kp *KeyPair) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create keys directory: %w", err)
	}

	privDER, err := x509.MarshalECPrivateKey(kp.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := writePEM(filepath.Join(dir, PrivateKeyFile), "EC PRIVATE KEY", privDER, 0o600); err != nil {
		return err
	}

	pubDER, err := x509.MarshalPKIXPublicKey(kp.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}
	return writePEM(filepath.Join(dir, PublicKeyFile), "PUBLIC KEY", pubDER, 0o644)
}

// LoadKeyPair reads the key pair previously written by Save.
func LoadKeyPair(dir string) (*KeyPair, error) {
	block, err := readPEM(filepath.Join(dir, PrivateKeyFile), "EC PRIVATE KEY")
	if err != nil {
		return nil, err
	}
	privateKey, err := x509.ParseECPrivateKey(block)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	block, err = readPEM(filepath.Join(dir, PublicKeyFile), "PUBLIC KEY")
	if err != nil {
		return nil, err
	}
	pub, err := x509.ParsePKIXPublicKey(block)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	publicKey, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not an ECDSA public key")
	}

	return &KeyPair{PrivateKey: privateKey, PublicKey: publicKey}, nil
}

// LoadOrGenerateKeyPair loads the keys in dir, generating and saving a new
// pair when none exist yet. Unreadable or corrupt keys are an error.
func LoadOrGenerateKeyPair(dir string) (*KeyPair, error) {
	kp, err := LoadKeyPair(dir)
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	kp, err = GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := kp.Save(dir); err != nil {
		return nil, fmt.Errorf("failed to save key pair: %w", err)
	}
	return kp, nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readPEM(path, blockType string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block in %s", filepath.Base(path))
	}
	if block.Type != blockType {
		return nil, fmt.Errorf("unexpected key type: %s", block.Type)
	}
	return block.Bytes, nil
}
