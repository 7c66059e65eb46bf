package utils

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Supported encryption algorithm identifiers
const (
	AlgorithmAESGCM = "AES/GCM"
	AlgorithmAESCBC = "AES/CBC"
)

// CodecError reports a failure of the card number encryption subsystem
type CodecError struct {
	Op  string
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec %s: %v", e.Op, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

var (
	errEmptyInput     = errors.New("input data is empty")
	errMalformed      = errors.New("malformed ciphertext")
	errAuthentication = errors.New("ciphertext authentication failed")
)

// Codec encrypts and decrypts card numbers with a key fixed at construction.
// A Codec is immutable and safe for concurrent use.
type Codec struct {
	algorithm string
	block     cipher.Block
	aead      cipher.AEAD
	macKey    []byte // AES/CBC only
	rand      io.Reader
}

// NewCodec builds a codec for algorithm keyed by key. The key is accepted
// hex encoded or raw and must decode to 16, 24 or 32 bytes.
func NewCodec(algorithm, key string) (*Codec, error) {
	raw, err := parseKey(key)
	if err != nil {
		return nil, &CodecError{Op: "init", Err: err}
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, &CodecError{Op: "init", Err: fmt.Errorf("failed to create cipher: %w", err)}
	}

	c := &Codec{algorithm: normalizeAlgorithm(algorithm), block: block, rand: rand.Reader}
	switch c.algorithm {
	case AlgorithmAESGCM:
		c.aead, err = cipher.NewGCM(block)
		if err != nil {
			return nil, &CodecError{Op: "init", Err: fmt.Errorf("failed to create GCM: %w", err)}
		}
	case AlgorithmAESCBC:
		c.macKey = deriveMACKey(raw)
	default:
		return nil, &CodecError{Op: "init", Err: fmt.Errorf("unsupported algorithm %q", algorithm)}
	}
	return c, nil
}

// Algorithm returns the normalized algorithm identifier
func (c *Codec) Algorithm() string {
	return c.algorithm
}

// Encrypt returns the base64 encoded ciphertext of plaintext. A fresh nonce or IV
// is drawn for every call, so equal plaintexts do not produce equal ciphertexts.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if c == nil {
		return "", &CodecError{Op: "encrypt", Err: errors.New("codec is not configured")}
	}
	if plaintext == "" {
		return "", &CodecError{Op: "encrypt", Err: errEmptyInput}
	}

	var out []byte
	var err error
	if c.aead != nil {
		out, err = c.sealGCM([]byte(plaintext))
	} else {
		out, err = c.encryptCBC([]byte(plaintext))
	}
	if err != nil {
		return "", &CodecError{Op: "encrypt", Err: err}
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	if c == nil {
		return "", &CodecError{Op: "decrypt", Err: errors.New("codec is not configured")}
	}
	if ciphertext == "" {
		return "", &CodecError{Op: "decrypt", Err: errEmptyInput}
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", &CodecError{Op: "decrypt", Err: fmt.Errorf("failed to decode base64: %w", err)}
	}

	var plain []byte
	if c.aead != nil {
		plain, err = c.openGCM(data)
	} else {
		plain, err = c.decryptCBC(data)
	}
	if err != nil {
		return "", &CodecError{Op: "decrypt", Err: err}
	}
	return string(plain), nil
}

func (c *Codec) sealGCM(plain []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plain, nil), nil
}

func (c *Codec) openGCM(data []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(data) < ns+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: %d bytes", errMalformed, len(data))
	}
	plain, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, errAuthentication
	}
	return plain, nil
}

// deriveMACKey separates the HMAC key from the cipher key
func deriveMACKey(key []byte) []byte {
	sum := sha256.Sum256(append([]byte("card-number-mac:"), key...))
	return sum[:]
}

func (c *Codec) tag(data []byte) []byte {
	mac := hmac.New(sha256.New, c.macKey)
	mac.Write(data)
	return mac.Sum(nil)
}

// encryptCBC uses AES-CBC with PKCS#7 padding followed by HMAC-SHA256 over
// IV and ciphertext; output is IV || ciphertext || tag
func (c *Codec) encryptCBC(plain []byte) ([]byte, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	padding := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(append([]byte{}, plain...), bytes.Repeat([]byte{byte(padding)}, padding)...)

	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return append(out, c.tag(out)...), nil
}

func (c *Codec) decryptCBC(data []byte) ([]byte, error) {
	if len(data) < 2*aes.BlockSize+sha256.Size {
		return nil, fmt.Errorf("%w: %d bytes", errMalformed, len(data))
	}
	data, tag := data[:len(data)-sha256.Size], data[len(data)-sha256.Size:]
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", errMalformed, len(data))
	}
	if !hmac.Equal(tag, c.tag(data)) {
		return nil, errAuthentication
	}

	iv, body := data[:aes.BlockSize], data[aes.BlockSize:]
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, body)

	// Remove PKCS#7 padding
	padding := int(plain[len(plain)-1])
	if padding == 0 || padding > aes.BlockSize {
		return nil, fmt.Errorf("%w: invalid padding value %d", errMalformed, padding)
	}
	for _, b := range plain[len(plain)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("%w: invalid padding bytes", errMalformed)
		}
	}
	return plain[:len(plain)-padding], nil
}

func parseKey(key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("encryption key is empty")
	}
	if decoded, err := hex.DecodeString(key); err == nil && validKeyLen(len(decoded)) {
		return decoded, nil
	}
	if validKeyLen(len(key)) {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes (raw or hex), got %d characters", len(key))
}

func validKeyLen(n int) bool {
	return n == 16 || n == 24 || n == 32
}

func normalizeAlgorithm(algorithm string) string {
	switch strings.ToUpper(strings.TrimSpace(algorithm)) {
	case "", "AES", "AES/GCM", "AES-GCM", "AES/GCM/NOPADDING":
		return AlgorithmAESGCM
	case "AES/CBC", "AES-CBC", "AES/CBC/PKCS5PADDING":
		return AlgorithmAESCBC
	default:
		return algorithm
	}
}
