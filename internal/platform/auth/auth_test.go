package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-32-bytes-long!!!")

func makeToken(subject, role string, exp time.Time) string {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, _ := tok.SignedString(testSecret)
	return signed
}

func newVerifier() JWTVerifier { return JWTVerifier{Secret: testSecret} }

func TestJWTVerifier_ValidToken(t *testing.T) {
	tok := makeToken("mod-1", "admin", time.Now().Add(time.Hour))
	claims, err := newVerifier().Parse(tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "mod-1" {
		t.Fatalf("expected subject 'mod-1', got %q", claims.Subject)
	}
	if !claims.IsAdmin() {
		t.Fatal("expected admin claims")
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	tok := makeToken("mod-1", "admin", time.Now().Add(-time.Hour))
	if _, err := newVerifier().Parse(tok); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	tok := makeToken("mod-1", "admin", time.Now().Add(time.Hour))
	if _, err := (JWTVerifier{Secret: []byte("wrong-secret")}).Parse(tok); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestJWTVerifier_EmptySecretRejectsEverything(t *testing.T) {
	tok := makeToken("mod-1", "admin", time.Now().Add(time.Hour))
	if _, err := (JWTVerifier{}).Parse(tok); err == nil {
		t.Fatal("expected error when no secret is configured")
	}
}

func TestJWTVerifier_TamperedPayload(t *testing.T) {
	tok := makeToken("mod-1", "user", time.Now().Add(time.Hour))
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatal("expected 3 JWT parts")
	}
	tampered := parts[0] + ".dGFtcGVyZWQ." + parts[2]
	if _, err := newVerifier().Parse(tampered); err == nil {
		t.Fatal("expected error for tampered token")
	}
}

func TestParseBearer(t *testing.T) {
	tok := makeToken("mod-1", "admin", time.Now().Add(time.Hour))

	if _, err := newVerifier().ParseBearer(""); err != ErrMissingToken {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if _, err := newVerifier().ParseBearer("Basic " + tok); err == nil {
		t.Fatal("expected error for non-bearer scheme")
	}
	if _, err := newVerifier().ParseBearer("bearer " + tok); err != nil {
		t.Fatalf("scheme should be case-insensitive: %v", err)
	}
}

func serveAdminChain(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h := RequireUser(newVerifier())(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, _ := UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(uid))
	})))
	h.ServeHTTP(rr, req)
	return rr
}

func TestAdminChain_Moderator(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+makeToken("mod-7", "admin", time.Now().Add(time.Hour)))

	rr := serveAdminChain(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "mod-7" {
		t.Fatalf("expected 'mod-7' in body, got %q", rr.Body.String())
	}
}

func TestAdminChain_MissingHeader(t *testing.T) {
	rr := serveAdminChain(httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestAdminChain_NonAdminRole(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+makeToken("user-1", "user", time.Now().Add(time.Hour)))

	rr := serveAdminChain(req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}
