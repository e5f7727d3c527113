package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Web Push message encryption, RFC 8291 over the aes128gcm content coding of RFC 8188.
// Only single-record messages are produced and accepted, which covers every
// push service payload (they are capped at 4096 bytes).

const (
	saltLen        = 16
	authSecretLen  = 16
	headerFixedLen = saltLen + 4 + 1
	defaultRecord  = 4096
	lastRecord     = 0x02
)

var errMalformedPush = errors.New("malformed push message")

// PushKeys is the receiver side key material of a push subscription.
type PushKeys struct {
	Private    *ecdh.PrivateKey
	AuthSecret []byte
}

// GeneratePushKeys creates a P-256 key pair and a 16-byte auth secret.
func GeneratePushKeys() (*PushKeys, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	auth := make([]byte, authSecretLen)
	if _, err := io.ReadFull(rand.Reader, auth); err != nil {
		return nil, err
	}
	return &PushKeys{Private: priv, AuthSecret: auth}, nil
}

// ParseP256PublicKey validates an uncompressed P-256 point.
func ParseP256PublicKey(raw []byte) (*ecdh.PublicKey, error) {
	return ecdh.P256().NewPublicKey(raw)
}

// DecryptPush decrypts an aes128gcm push message addressed to keys.
func DecryptPush(body []byte, keys *PushKeys) ([]byte, error) {
	if len(body) < headerFixedLen {
		return nil, errMalformedPush
	}
	salt := body[:saltLen]
	rs := binary.BigEndian.Uint32(body[saltLen : saltLen+4])
	idLen := int(body[saltLen+4])
	if len(body) < headerFixedLen+idLen {
		return nil, errMalformedPush
	}
	keyID := body[headerFixedLen : headerFixedLen+idLen]
	ciphertext := body[headerFixedLen+idLen:]
	if uint32(len(ciphertext)) > rs {
		return nil, fmt.Errorf("%w: multi-record messages are not supported", errMalformedPush)
	}

	senderPub, err := ecdh.P256().NewPublicKey(keyID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad sender key: %v", errMalformedPush, err)
	}

	shared, err := keys.Private.ECDH(senderPub)
	if err != nil {
		return nil, err
	}
	cek, nonce, err := contentKeys(shared, keys.Private.PublicKey(), senderPub, keys.AuthSecret, salt)
	if err != nil {
		return nil, err
	}

	gcm, err := aesGCM(cek)
	if err != nil {
		return nil, err
	}
	record, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}

	// Padding is a delimiter byte followed by zeros.
	end := len(record) - 1
	for end >= 0 && record[end] == 0 {
		end--
	}
	if end < 0 || record[end] != lastRecord {
		return nil, fmt.Errorf("%w: bad padding", errMalformedPush)
	}
	return record[:end], nil
}

// EncryptPush encrypts plaintext for the subscriber identified by its public key and auth secret.
// It is what a push sender does; the client uses it in tests and the fake API.
func EncryptPush(plaintext []byte, receiver *ecdh.PublicKey, authSecret []byte) ([]byte, error) {
	sender, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	shared, err := sender.ECDH(receiver)
	if err != nil {
		return nil, err
	}
	cek, nonce, err := contentKeys(shared, receiver, sender.PublicKey(), authSecret, salt)
	if err != nil {
		return nil, err
	}

	record := append(append([]byte{}, plaintext...), lastRecord)
	if len(record)+16 > defaultRecord {
		return nil, fmt.Errorf("push payload too large: %d bytes", len(plaintext))
	}

	gcm, err := aesGCM(cek)
	if err != nil {
		return nil, err
	}

	senderPub := sender.PublicKey().Bytes()
	var buf bytes.Buffer
	buf.Write(salt)
	_ = binary.Write(&buf, binary.BigEndian, uint32(defaultRecord))
	buf.WriteByte(byte(len(senderPub)))
	buf.Write(senderPub)
	buf.Write(gcm.Seal(nil, nonce, record, nil))
	return buf.Bytes(), nil
}

// contentKeys derives the content encryption key and nonce from the ECDH secret.
func contentKeys(shared []byte, receiver, sender *ecdh.PublicKey, authSecret, salt []byte) ([]byte, []byte, error) {
	keyInfo := append([]byte("WebPush: info\x00"), receiver.Bytes()...)
	keyInfo = append(keyInfo, sender.Bytes()...)

	ikm, err := expand(hkdf.Extract(sha256.New, shared, authSecret), keyInfo, 32)
	if err != nil {
		return nil, nil, err
	}

	prk := hkdf.Extract(sha256.New, ikm, salt)
	cek, err := expand(prk, []byte("Content-Encoding: aes128gcm\x00"), 16)
	if err != nil {
		return nil, nil, err
	}
	nonce, err := expand(prk, []byte("Content-Encoding: nonce\x00"), 12)
	if err != nil {
		return nil, nil, err
	}
	return cek, nonce, nil
}

func expand(prk, info []byte, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), out); err != nil {
		return nil, err
	}
	return out, nil
}

func aesGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
