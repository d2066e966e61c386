package security

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealOpen_加密压缩后可还原(t *testing.T) {
	key := []byte("0123456789abcdef")
	plain := []byte(`{"type":"join_room","payload":{"room_id":"land_3_-4"}}`)

	sealed, err := Seal(plain, key)
	if err != nil {
		t.Fatalf("Seal err=%v", err)
	}
	if bytes.Contains(sealed, []byte("join_room")) {
		t.Fatalf("期望密文里不出现明文")
	}
	got, err := Open(sealed, key)
	if err != nil {
		t.Fatalf("Open err=%v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("期望还原明文, got=%s", got)
	}
}

func TestSeal_非法密钥长度(t *testing.T) {
	if _, err := Seal([]byte("x"), []byte("short")); !errors.Is(err, ErrKeyLength) {
		t.Fatalf("期望 ErrKeyLength, got=%v", err)
	}
}
