package wecom

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// encodedKeyLength is the mandated length of the base64 EncodingAESKey as
// configured in the WeCom admin console. Appending "=" yields a valid
// base64 string decoding to the 32-byte AES key.
const encodedKeyLength = 43

// pkcs7BlockSize is the padding block size used by the WeCom envelope
// format. It is deliberately larger than the AES block size.
const pkcs7BlockSize = 32

// randomPrefixLen is the number of random bytes prepended to every
// plaintext before encryption.
const randomPrefixLen = 16

// Cipher performs the symmetric encryption and decryption of WeCom
// message envelopes for a single tenant.
type Cipher struct {
	key    []byte
	corpID string
}

// NewCipher validates the EncodingAESKey and returns a Cipher bound to the
// given corp id. Key validation happens here, at construction, so a bad
// key surfaces at startup rather than on the first request.
func NewCipher(encodingAESKey, corpID string) (*Cipher, error) {
	if len(encodingAESKey) != encodedKeyLength {
		return nil, fmt.Errorf("%w: must be %d characters, got %d", ErrInvalidAESKey, encodedKeyLength, len(encodingAESKey))
	}
	key, err := base64.StdEncoding.DecodeString(encodingAESKey + "=")
	if err != nil {
		return nil, fmt.Errorf("%w: not valid base64", ErrInvalidAESKey)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: decodes to %d bytes, want 32", ErrInvalidAESKey, len(key))
	}
	return &Cipher{key: key, corpID: corpID}, nil
}

// Encrypt encrypts a plaintext message into the base64 ciphertext expected
// by the platform. Layout before padding: 16 random bytes, a 4-byte
// big-endian message length, the message, the corp id.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	buf := make([]byte, 0, randomPrefixLen+4+len(plaintext)+len(c.corpID)+pkcs7BlockSize)

	prefix := make([]byte, randomPrefixLen)
	if _, err := rand.Read(prefix); err != nil {
		return "", fmt.Errorf("random prefix: %w", err)
	}
	buf = append(buf, prefix...)

	var msgLen [4]byte
	binary.BigEndian.PutUint32(msgLen[:], uint32(len(plaintext)))
	buf = append(buf, msgLen[:]...)
	buf = append(buf, plaintext...)
	buf = append(buf, c.corpID...)
	buf = pkcs7Pad(buf)

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	out := make([]byte, len(buf))
	cipher.NewCBCEncrypter(block, c.key[:aes.BlockSize]).CryptBlocks(out, buf)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt decrypts a base64 ciphertext and returns the plaintext message
// and the tenant id embedded after it. The caller is responsible for
// comparing the tenant id against the configured corp id.
func (c *Cipher) Decrypt(ciphertextB64 string) (plaintext, receiverID string, err error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", "", fmt.Errorf("%w: invalid base64", ErrDecrypt)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", "", fmt.Errorf("%w: ciphertext length %d not a block multiple", ErrDecrypt, len(raw))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", "", err
	}
	buf := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, c.key[:aes.BlockSize]).CryptBlocks(buf, raw)

	buf, err = pkcs7Unpad(buf)
	if err != nil {
		return "", "", err
	}
	if len(buf) < randomPrefixLen+4 {
		return "", "", fmt.Errorf("%w: plaintext too short", ErrDecrypt)
	}

	msgLen := binary.BigEndian.Uint32(buf[randomPrefixLen : randomPrefixLen+4])
	rest := buf[randomPrefixLen+4:]
	if uint32(len(rest)) < msgLen {
		return "", "", fmt.Errorf("%w: declared length %d exceeds payload", ErrDecrypt, msgLen)
	}

	return string(rest[:msgLen]), string(rest[msgLen:]), nil
}

func pkcs7Pad(data []byte) []byte {
	pad := pkcs7BlockSize - len(data)%pkcs7BlockSize
	if pad == 0 {
		pad = pkcs7BlockSize
	}
	return append(data, bytes.Repeat([]byte{byte(pad)}, pad)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrDecrypt)
	}
	pad := int(data[len(data)-1])
	if pad < 1 || pad > pkcs7BlockSize || pad > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
		}
	}
	return data[:len(data)-pad], nil
}
