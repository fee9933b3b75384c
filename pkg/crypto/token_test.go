package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
)

// Requirement: generated tokens decode to the requested byte length and are URL-safe.
func TestGenerateToken_Length(t *testing.T) {
	tests := []struct {
		name       string
		byteLength []int
		wantBytes  int
		wantErr    error
	}{
		{name: "default length", byteLength: nil, wantBytes: DefaultTokenLength},
		{name: "zero falls back to default", byteLength: []int{0}, wantBytes: DefaultTokenLength},
		{name: "explicit 16 bytes", byteLength: []int{16}, wantBytes: 16},
		{name: "explicit 64 bytes", byteLength: []int{64}, wantBytes: 64},
		{name: "too many arguments", byteLength: []int{16, 32}, wantErr: ErrTooManyArgs},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Act
			token, err := GenerateToken(test.byteLength...)

			// Assert
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("GenerateToken() error = %v, want %v", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GenerateToken() error = %v", err)
			}
			decoded, err := base64.RawURLEncoding.DecodeString(token)
			if err != nil {
				t.Fatalf("token is not raw URL base64: %v", err)
			}
			if len(decoded) != test.wantBytes {
				t.Errorf("decoded length = %d, want %d", len(decoded), test.wantBytes)
			}
			if strings.ContainsAny(token, "+/= ") {
				t.Errorf("token contains URL-unsafe characters: %q", token)
			}
		})
	}
}

// Requirement: concurrent generation never yields duplicates.
func TestGenerateToken_ConcurrentUnique(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := GenerateToken()
			if err != nil {
				t.Errorf("GenerateToken() error = %v", err)
				return
			}
			mu.Lock()
			seen[token] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 200 {
		t.Fatalf("got %d unique tokens, want 200", len(seen))
	}
}

// Requirement: VerifyToken accepts only the matching hash and rejects empty input.
func TestVerifyToken(t *testing.T) {
	token, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	hash := HashToken(token)

	tests := []struct {
		name    string
		token   string
		hash    string
		want    bool
		wantErr bool
	}{
		{name: "matching token", token: token, hash: hash, want: true},
		{name: "wrong token", token: token + "x", hash: hash, want: false},
		{name: "prefix of token", token: token[:8], hash: hash, want: false},
		{name: "raw token as hash", token: token, hash: token, want: false},
		{name: "empty token", token: "", hash: hash, wantErr: true},
		{name: "empty hash", token: token, hash: "", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := VerifyToken(test.token, test.hash)
			if (err != nil) != test.wantErr {
				t.Fatalf("VerifyToken() error = %v, wantErr %v", err, test.wantErr)
			}
			if got != test.want {
				t.Errorf("VerifyToken() = %v, want %v", got, test.want)
			}
		})
	}
}

// Requirement: fingerprints are short, stable and never contain the token itself.
func TestFingerprint(t *testing.T) {
	token := "eyJhbGciOiJIUzI1NiJ9.payload.signature"

	fp := Fingerprint(token)

	if len(fp) != fingerprintLength {
		t.Fatalf("len(Fingerprint) = %d, want %d", len(fp), fingerprintLength)
	}
	if fp != Fingerprint(token) {
		t.Error("Fingerprint is not stable")
	}
	if strings.Contains(token, fp) {
		t.Error("Fingerprint leaks token material")
	}
	if Fingerprint("") != "" {
		t.Error("Fingerprint of empty token should be empty")
	}
}
