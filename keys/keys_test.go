package keys

import (
	"crypto/tls"
	"fmt"
	"testing"
)

func Test_GeneratesRSAKeys(t *testing.T) {
	tests := []struct {
		keySize int
		wantErr bool
	}{
		{2048, false},
		{3072, false},
		{4096, false},
		{1024, true},
	}

	for _, tt := range tests {
		t.Run("RSAKeySize"+fmt.Sprintf("%d", tt.keySize), func(t *testing.T) {
			privateKey, publicKey, err := GeneratesRSAKeys(tt.keySize)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for key size %d", tt.keySize)
				}
				return
			}
			if err != nil {
				t.Fatalf("GeneratesRSAKeys(%d): %v", tt.keySize, err)
			}
			if len(privateKey) == 0 || len(publicKey) == 0 {
				t.Fatal("expected non-empty PEM output")
			}
		})
	}
}

func Test_GeneratesECDSAKeys(t *testing.T) {
	tests := []struct {
		keySize int
		wantErr bool
	}{
		{224, false},
		{256, false},
		{384, false},
		{521, false},
		{100, true},
	}

	for _, tt := range tests {
		t.Run("ECDSAKeySize"+fmt.Sprintf("%d", tt.keySize), func(t *testing.T) {
			privateKey, publicKey, err := GeneratesECDSAKeys(tt.keySize)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for key size %d", tt.keySize)
				}
				return
			}
			if err != nil {
				t.Fatalf("GeneratesECDSAKeys(%d): %v", tt.keySize, err)
			}
			if len(privateKey) == 0 || len(publicKey) == 0 {
				t.Fatal("expected non-empty PEM output")
			}
		})
	}
}

func Test_GeneratesED25519Keys(t *testing.T) {
	privateKey, publicKey, err := GeneratesED25519Keys()
	if err != nil {
		t.Fatalf("GeneratesED25519Keys: %v", err)
	}
	if len(privateKey) == 0 || len(publicKey) == 0 {
		t.Fatal("expected non-empty PEM output")
	}
}

func Test_GenerateSelfSignedCert(t *testing.T) {
	certPEM, keyPEM, err := GenerateSelfSignedCert("localhost", "127.0.0.1")
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}
	if _, err := tls.X509KeyPair(certPEM, keyPEM); err != nil {
		t.Fatalf("generated pair does not load as a TLS certificate: %v", err)
	}
}
