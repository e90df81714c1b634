package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// KeySize is the raw key length in bytes for AES-256 (§3 Encryption Key).
const KeySize = 32

var zeroIV = make([]byte, aes.BlockSize)

// Cipher performs AES-256-CBC encryption with a fixed all-zero IV and
// PKCS#7 padding, mirroring the reference implementation's use of
// openssl's symm::encrypt/decrypt defaults (§4.3). The zero IV is a
// deliberate, documented weakness carried over from the source rather
// than a mistake here — see DESIGN.md.
type Cipher struct {
	block cipher.Block
}

// NewCipher builds a Cipher from a raw 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("crypto: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	return &Cipher{block: block}, nil
}

// GenerateKey returns KeySize cryptographically random bytes.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return key, nil
}

// Encrypt PKCS#7-pads plaintext to the AES block size and encrypts it
// under CBC mode with an all-zero IV.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(c.block, zeroIV)
	mode.CryptBlocks(out, padded)
	return out, nil
}

// Decrypt reverses Encrypt. ciphertext must be a non-zero multiple of the
// AES block size.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("crypto: ciphertext is not a multiple of the block size")
	}
	out := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(c.block, zeroIV)
	mode.CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte(nil), data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("crypto: empty plaintext")
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > n {
		return nil, fmt.Errorf("crypto: invalid padding")
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("crypto: invalid padding")
		}
	}
	return data[:n-padLen], nil
}
