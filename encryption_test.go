package vigil

import (
	"bytes"
	"context"
	"testing"
)

func TestEncryptorRoundTrip(t *testing.T) {
	enc, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: "correct horse"})
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	plaintext := []byte("timestamp,rms,crest\n1000,1.2,3.4\n")
	sealed, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(sealed, []byte("rms")) {
		t.Error("ciphertext leaks plaintext")
	}

	got, err := enc.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip = %q, want %q", got, plaintext)
	}
}

func TestEncryptorDisabled(t *testing.T) {
	enc, err := NewEncryptor(EncryptionConfig{})
	if err != nil || enc != nil {
		t.Errorf("disabled config = (%v, %v), want (nil, nil)", enc, err)
	}
}

func TestEncryptorRequiresKeyMaterial(t *testing.T) {
	if _, err := NewEncryptor(EncryptionConfig{Enabled: true}); err == nil {
		t.Error("expected error with no key or password")
	}
	if _, err := NewEncryptor(EncryptionConfig{Enabled: true, Key: []byte("short")}); err == nil {
		t.Error("expected error with wrong key size")
	}
}

func TestEncryptPayloadCrossProcess(t *testing.T) {
	writer, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: "swordfish"})
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	payload := []byte(`{"x":[1,2,3],"y":"normal"}`)
	sealed, err := writer.EncryptPayload(payload)
	if err != nil {
		t.Fatalf("EncryptPayload: %v", err)
	}
	if sealed[0] != 'V' || sealed[1] != 'E' {
		t.Errorf("header magic = %q", sealed[0:4])
	}

	// A fresh encryptor with a different random salt still opens the
	// payload because the salt travels in the header.
	reader, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: "swordfish"})
	if err != nil {
		t.Fatalf("NewEncryptor reader: %v", err)
	}
	got, err := reader.DecryptPayload(sealed)
	if err != nil {
		t.Fatalf("DecryptPayload: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("cross-process round trip = %q", got)
	}

	wrong, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: "tuna"})
	if err != nil {
		t.Fatalf("NewEncryptor wrong: %v", err)
	}
	if _, err := wrong.DecryptPayload(sealed); err == nil {
		t.Error("wrong password decrypted payload")
	}
}

func TestDecryptPayloadRejectsMalformed(t *testing.T) {
	enc, err := NewEncryptorWithKey(make([]byte, EncryptionKeySize))
	if err != nil {
		t.Fatalf("NewEncryptorWithKey: %v", err)
	}
	if _, err := enc.DecryptPayload([]byte("tiny")); err == nil {
		t.Error("short payload accepted")
	}
	bad := make([]byte, EncryptedHeaderSize+20)
	copy(bad, "XXXX")
	if _, err := enc.DecryptPayload(bad); err == nil {
		t.Error("bad magic accepted")
	}
}

func TestEncryptingBlobStore(t *testing.T) {
	inner := NewMemoryBlobStore()
	enc, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: "at-rest"})
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	store := NewEncryptingBlobStore(inner, enc)
	ctx := context.Background()

	data := []byte("label,value\nnormal,1.0\n")
	if err := store.Put(ctx, "ds/train.csv", data, ContentTypeCSV); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// The inner store holds ciphertext, not the CSV.
	raw, err := inner.Get(ctx, "ds/train.csv")
	if err != nil {
		t.Fatalf("inner Get: %v", err)
	}
	if bytes.Contains(raw, []byte("normal")) {
		t.Error("stored payload is not encrypted")
	}
	if ct := inner.ContentType("ds/train.csv"); ct != ContentTypeBinary {
		t.Errorf("stored content type = %q, want %q", ct, ContentTypeBinary)
	}

	got, err := store.Get(ctx, "ds/train.csv")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get = %q, want %q", got, data)
	}

	keys, err := store.List(ctx, "ds/")
	if err != nil || len(keys) != 1 {
		t.Errorf("List = (%v, %v)", keys, err)
	}
}
