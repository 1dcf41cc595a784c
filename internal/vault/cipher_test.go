package vault

import (
	"bytes"
	"testing"
)

func testCipherKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestNewCipher_KeyLength(t *testing.T) {
	tests := []struct {
		name string
		size int
		ok   bool
	}{
		{"empty", 0, false},
		{"too short", 16, false},
		{"exact", KeySize, true},
		{"too long", KeySize + 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCipher(make([]byte, tt.size))
			if tt.ok && err != nil {
				t.Errorf("NewCipher() error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Errorf("NewCipher() accepted %d-byte key", tt.size)
			}
		})
	}
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	c, err := NewCipher(testCipherKey())
	if err != nil {
		t.Fatalf("NewCipher() error: %v", err)
	}

	plaintext := []byte("pool signing key material")
	ciphertext, nonce, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	decrypted, err := c.Decrypt(ciphertext, nonce)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("decrypted = %q, want %q", decrypted, plaintext)
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	c, err := NewCipher(testCipherKey())
	if err != nil {
		t.Fatalf("NewCipher() error: %v", err)
	}

	_, nonce1, err := c.Encrypt([]byte("same input"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	_, nonce2, err := c.Encrypt([]byte("same input"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if bytes.Equal(nonce1, nonce2) {
		t.Error("nonce reused across Encrypt calls")
	}
}

func TestDecrypt_WrongNonce(t *testing.T) {
	c, err := NewCipher(testCipherKey())
	if err != nil {
		t.Fatalf("NewCipher() error: %v", err)
	}

	ciphertext, nonce, err := c.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	bad := append([]byte(nil), nonce...)
	bad[0] ^= 0xff
	if _, err := c.Decrypt(ciphertext, bad); err == nil {
		t.Error("Decrypt succeeded with a tampered nonce")
	}

	if _, err := c.Decrypt(ciphertext, nonce[:4]); err == nil {
		t.Error("Decrypt succeeded with a truncated nonce")
	}
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	c, err := NewCipher(testCipherKey())
	if err != nil {
		t.Fatalf("NewCipher() error: %v", err)
	}

	ciphertext, nonce, err := c.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	ciphertext[0] ^= 0xff
	if _, err := c.Decrypt(ciphertext, nonce); err == nil {
		t.Error("Decrypt succeeded with tampered ciphertext")
	}
}
