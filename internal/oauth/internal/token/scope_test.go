package token

import "testing"

func claimsWithScopes(scopes []string) *TokenClaims {
	return &TokenClaims{Scopes: scopes}
}

func TestScopeChecker_RequireScopes(t *testing.T) {
	checker := NewScopeChecker()
	tests := []struct {
		name     string
		claims   *TokenClaims
		required []string
		wantErr  bool
	}{
		{"has all required", claimsWithScopes([]string{"mcp:read", "mcp:write", "mcp:admin"}), []string{"mcp:read", "mcp:write"}, false},
		{"exact match", claimsWithScopes([]string{"mcp:read", "mcp:write"}), []string{"mcp:read", "mcp:write"}, false},
		{"missing one", claimsWithScopes([]string{"mcp:read"}), []string{"mcp:read", "mcp:write"}, true},
		{"missing all", claimsWithScopes([]string{"other:scope"}), []string{"mcp:read"}, true},
		{"empty token scopes", claimsWithScopes([]string{}), []string{"mcp:read"}, true},
		{"nil claims", nil, []string{"mcp:read"}, true},
		{"none required", claimsWithScopes([]string{"mcp:read"}), nil, false},
		{"case sensitive", claimsWithScopes([]string{"mcp:Read"}), []string{"mcp:read"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checker.RequireScopes(tt.claims, tt.required...)
			if (err != nil) != tt.wantErr {
				t.Errorf("RequireScopes() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScopeChecker_RequireAnyScope(t *testing.T) {
	checker := NewScopeChecker()
	tests := []struct {
		name    string
		claims  *TokenClaims
		scopes  []string
		wantErr bool
	}{
		{"has one of many", claimsWithScopes([]string{"mcp:read"}), []string{"mcp:read", "mcp:write"}, false},
		{"has none", claimsWithScopes([]string{"other:scope"}), []string{"mcp:read", "mcp:write"}, true},
		{"empty token scopes", claimsWithScopes([]string{}), []string{"mcp:read"}, true},
		{"nil claims", nil, []string{"mcp:read"}, true},
		{"no scopes asked for", claimsWithScopes([]string{"mcp:read"}), nil, true},
		{"case sensitive", claimsWithScopes([]string{"mcp:Read"}), []string{"mcp:read"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checker.RequireAnyScope(tt.claims, tt.scopes...)
			if (err != nil) != tt.wantErr {
				t.Errorf("RequireAnyScope() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenClaims_ScopePredicates(t *testing.T) {
	claims := claimsWithScopes([]string{"mcp:read", "mcp:write"})
	var nilClaims *TokenClaims

	if !claims.HasScope("mcp:read") {
		t.Error("HasScope(mcp:read) = false, want true")
	}
	if claims.HasScope("mcp:admin") {
		t.Error("HasScope(mcp:admin) = true, want false")
	}
	if nilClaims.HasScope("mcp:read") {
		t.Error("nil claims HasScope should be false")
	}

	if !claims.HasAnyScope("mcp:admin", "mcp:write") {
		t.Error("HasAnyScope should find mcp:write")
	}
	if claims.HasAnyScope("mcp:admin") {
		t.Error("HasAnyScope(mcp:admin) = true, want false")
	}
	if claims.HasAnyScope() {
		t.Error("HasAnyScope() with no args should be false")
	}

	if !claims.HasAllScopes("mcp:read", "mcp:write") {
		t.Error("HasAllScopes should match exact set")
	}
	if claims.HasAllScopes("mcp:read", "mcp:admin") {
		t.Error("HasAllScopes should fail when one scope is missing")
	}
	if !claims.HasAllScopes() {
		t.Error("HasAllScopes() with no required scopes should be true")
	}
	if !nilClaims.HasAllScopes() {
		t.Error("nil claims with no required scopes should be true")
	}
}

func TestScopeChecker_Integration(t *testing.T) {
	checker := NewScopeChecker()
	claims := claimsWithScopes([]string{"mcp:read", "mcp:write"})

	if err := checker.RequireScopes(claims, "mcp:read", "mcp:write"); err != nil {
		t.Errorf("RequireScopes(read, write) unexpected error: %v", err)
	}
	if err := checker.RequireScopes(claims, "mcp:admin"); err == nil {
		t.Error("RequireScopes(admin) expected error")
	}
	if err := checker.RequireAnyScope(claims, "mcp:read", "mcp:admin"); err != nil {
		t.Errorf("RequireAnyScope(read, admin) unexpected error: %v", err)
	}
	if err := checker.RequireAnyScope(claims, "mcp:admin", "mcp:delete"); err == nil {
		t.Error("RequireAnyScope(admin, delete) expected error")
	}
}
