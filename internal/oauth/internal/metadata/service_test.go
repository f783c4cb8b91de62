// Package metadata provides OAuth 2.0 Protected Resource Metadata (RFC 9728)
// functionality for the MCP server.
// This test file tests the metadata service functionality.
package metadata

import (
	"context"
	"testing"
)

func TestNewService_GetMetadata(t *testing.T) {
	tests := []struct {
		name        string
		resource    string
		authServers []string
		scopes      []string
		wantResouce string
		wantURL     string
	}{
		{"no path", "https://example.com", []string{"https://auth.example.com"}, nil,
			"https://example.com", "https://example.com/.well-known/oauth-protected-resource"},
		{"with path", "https://example.com/mcp", []string{"https://auth.example.com"}, []string{"mcp:read"},
			"https://example.com/mcp", "https://example.com/mcp/.well-known/oauth-protected-resource"},
		{"trailing slash trimmed", "https://example.com/mcp/", []string{"https://auth.example.com"}, nil,
			"https://example.com/mcp", "https://example.com/mcp/.well-known/oauth-protected-resource"},
		{"multiple authorization servers", "https://example.com", []string{"https://auth1.example.com", "https://auth2.example.com"}, []string{"mcp:read"},
			"https://example.com", "https://example.com/.well-known/oauth-protected-resource"},
		{"with port", "https://example.com:8443/mcp", []string{"https://auth.example.com"}, nil,
			"https://example.com:8443/mcp", "https://example.com:8443/mcp/.well-known/oauth-protected-resource"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.resource, tt.authServers, tt.scopes)

			metadata, err := svc.GetMetadata(context.Background())
			if err != nil {
				t.Fatalf("GetMetadata: %v", err)
			}
			if metadata.Resource != tt.wantResouce {
				t.Errorf("Resource = %q, want %q", metadata.Resource, tt.wantResouce)
			}
			if len(metadata.AuthorizationServers) != len(tt.authServers) {
				t.Errorf("AuthorizationServers count = %d, want %d", len(metadata.AuthorizationServers), len(tt.authServers))
			}
			if len(metadata.ScopesSupported) != len(tt.scopes) {
				t.Errorf("ScopesSupported count = %d, want %d", len(metadata.ScopesSupported), len(tt.scopes))
			}
			if len(metadata.BearerMethodsSupported) != 1 || metadata.BearerMethodsSupported[0] != "header" {
				t.Errorf("BearerMethodsSupported = %v, want [header]", metadata.BearerMethodsSupported)
			}

			if got := svc.GetMetadataURL(); got != tt.wantURL {
				t.Errorf("GetMetadataURL() = %q, want %q", got, tt.wantURL)
			}
		})
	}
}

func TestValidateMetadata(t *testing.T) {
	tests := []struct {
		name    string
		md      *ProtectedResourceMetadata
		wantErr bool
	}{
		{"valid", &ProtectedResourceMetadata{Resource: "https://example.com/mcp", AuthorizationServers: []string{"https://auth.example.com"}}, false},
		{"missing resource", &ProtectedResourceMetadata{AuthorizationServers: []string{"https://auth.example.com"}}, true},
		{"no authorization servers", &ProtectedResourceMetadata{Resource: "https://example.com/mcp"}, true},
		{"empty server URL", &ProtectedResourceMetadata{Resource: "https://example.com/mcp", AuthorizationServers: []string{""}}, true},
		{"non-https server", &ProtectedResourceMetadata{Resource: "https://example.com/mcp", AuthorizationServers: []string{"http://auth.example.com"}}, true},
		{"localhost http allowed", &ProtectedResourceMetadata{Resource: "http://localhost:8080/mcp", AuthorizationServers: []string{"http://localhost:9090"}}, false},
		{"one of many invalid", &ProtectedResourceMetadata{Resource: "https://example.com/mcp", AuthorizationServers: []string{"https://auth1.example.com", "http://auth2.example.com"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMetadata(tt.md)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMetadata() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct{ input, want string }{
		{"https://example.com/mcp", "https://example.com/mcp"},
		{"https://example.com/mcp/", "https://example.com/mcp"},
		{"https://example.com/mcp///", "https://example.com/mcp"},
		{"https://example.com/", "https://example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeBaseURL(tt.input); got != tt.want {
			t.Errorf("normalizeBaseURL(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
