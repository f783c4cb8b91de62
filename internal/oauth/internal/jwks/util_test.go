package jwks

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestBase64URLDecode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{"standard padded", base64.StdEncoding.EncodeToString([]byte("hello world")), "hello world", false},
		{"unpadded", "aGVsbG8gd29ybGQ", "hello world", false},
		{"url-safe chars", strings.TrimRight(base64.URLEncoding.EncodeToString([]byte("test>>??")), "="), "test>>??", false},
		{"empty string", "", "", false},
		{"single char", base64.StdEncoding.EncodeToString([]byte("a")), "a", false},
		{"needs one pad", "YWI", "ab", false},
		{"needs two pad", "YQ", "a", false},
		{"explicit padding", "aGVsbG8gd29ybGQ=", "hello world", false},
		{"invalid base64", "invalid!@#$%", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := base64URLDecode(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("base64URLDecode(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestBase64URLDecode_RoundTrip(t *testing.T) {
	allBytes := make([]byte, 256)
	for i := range allBytes {
		allBytes[i] = byte(i)
	}
	samples := [][]byte{[]byte("hello world"), []byte(""), []byte("a"), []byte("ab"), []byte("abc"), allBytes}
	for _, data := range samples {
		encoded := strings.TrimRight(base64.URLEncoding.EncodeToString(data), "=")
		decoded, err := base64URLDecode(encoded)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(decoded) != string(data) {
			t.Errorf("round trip on %d bytes failed", len(data))
		}
	}
}

func TestGetCurve(t *testing.T) {
	tests := []struct {
		name     string
		bitSize  int
		wantErr  bool
	}{
		{"P-256", 256, false},
		{"P-384", 384, false},
		{"P-521", 521, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			curve, err := getCurve(tt.name)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if curve.Params().BitSize != tt.bitSize {
				t.Errorf("BitSize = %d, want %d", curve.Params().BitSize, tt.bitSize)
			}
		})
	}

	for _, name := range []string{"P-224", "invalid-curve", "", "secp256k1"} {
		if _, err := getCurve(name); err == nil {
			t.Errorf("getCurve(%q) expected error, got nil", name)
		}
	}
}
