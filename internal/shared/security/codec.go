package security

import (
	"bytes"
	"errors"
	"io"

	"github.com/go-think/openssl"
	"github.com/klauspost/compress/gzip"
)

// ws 加密模式的帧格式：json -> AES-CBC(PKCS7, iv=key) -> gzip，走 BinaryMessage。

var ErrKeyLength = errors.New("aes key must be 16, 24 or 32 bytes")

// Zip gzip 压缩。
func Zip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnZip gzip 解压。
func UnZip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func checkKey(key []byte) error {
	switch len(key) {
	case 16, 24, 32:
		return nil
	default:
		return ErrKeyLength
	}
}

// Seal 加密后压缩。
func Seal(plain, key []byte) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	encrypted, err := openssl.AesCBCEncrypt(plain, key, key[:16], openssl.PKCS7_PADDING)
	if err != nil {
		return nil, err
	}
	return Zip(encrypted)
}

// Open 是 Seal 的逆过程。
func Open(sealed, key []byte) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	encrypted, err := UnZip(sealed)
	if err != nil {
		return nil, err
	}
	return openssl.AesCBCDecrypt(encrypted, key, key[:16], openssl.PKCS7_PADDING)
}
