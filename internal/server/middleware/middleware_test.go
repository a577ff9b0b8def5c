package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"chat-credential-engine/internal/session/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubValidator map[string]domain.Validation

func (s stubValidator) ValidateAccess(_ context.Context, token string) domain.Validation {
	if v, ok := s[token]; ok {
		return v
	}
	return domain.Invalid(domain.ReasonMalformed)
}

var validClaims = &domain.Claims{Subject: "u1", TokenID: "jti-1", TokenType: domain.TokenTypeAccess}

func newAuthRouter() *gin.Engine {
	r := gin.New()
	tokens := stubValidator{
		"good":    {Valid: true, Claims: validClaims},
		"expired": domain.Invalid(domain.ReasonExpired),
		"revoked": domain.Invalid(domain.ReasonRevoked),
	}
	r.GET("/me", Auth(tokens), func(c *gin.Context) {
		uid, _ := UserID(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user_id": uid, "claims_user": Claims(c).Subject})
	})
	return r
}

func TestAuth(t *testing.T) {
	testCases := []struct {
		name       string
		header     string
		wantStatus int
		wantMsg    string
	}{
		{"valid", "Bearer good", http.StatusOK, ""},
		{"lowercase scheme", "bearer good", http.StatusOK, ""},
		{"missing", "", http.StatusUnauthorized, "missing or invalid authorization"},
		{"wrong scheme", "Basic good", http.StatusUnauthorized, "missing or invalid authorization"},
		{"expired", "Bearer expired", http.StatusUnauthorized, "token expired"},
		{"revoked", "Bearer revoked", http.StatusUnauthorized, "invalid token"},
		{"tampered", "Bearer tampered", http.StatusUnauthorized, "invalid token"},
	}
	r := newAuthRouter()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			var body map[string]interface{}
			_ = json.Unmarshal(w.Body.Bytes(), &body)
			if tc.wantMsg != "" && body["message"] != tc.wantMsg {
				t.Errorf("message = %v, want %q", body["message"], tc.wantMsg)
			}
			if tc.wantStatus == http.StatusOK && (body["user_id"] != "u1" || body["claims_user"] != "u1") {
				t.Errorf("identity not propagated: %v", body)
			}
		})
	}
}

func TestExtractBearer(t *testing.T) {
	for header, want := range map[string]string{
		"Bearer abc":     "abc",
		"  BEARER  abc ": "abc",
		"Bearer":         "",
		"Token abc":      "",
		"":               "",
	} {
		if got := extractBearer(header); got != want {
			t.Errorf("extractBearer(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := UserID(ctx); ok {
		t.Error("empty context should have no user")
	}
	if ClientIP(ctx) != "unknown" {
		t.Errorf("ClientIP = %q, want unknown", ClientIP(ctx))
	}
	ctx = WithIdentity(WithClientIP(ctx, "10.0.0.1"), validClaims)
	if uid, ok := UserID(ctx); !ok || uid != "u1" {
		t.Errorf("UserID = %q, %v", uid, ok)
	}
	if ClientIP(ctx) != "10.0.0.1" {
		t.Errorf("ClientIP = %q", ClientIP(ctx))
	}
	if _, ok := ClaimsFrom(WithIdentity(context.Background(), nil)); ok {
		t.Error("nil claims should not count as identity")
	}
}

type recordingAudit struct {
	entries [][4]string
}

func (r *recordingAudit) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	r.entries = append(r.entries, [4]string{userID, action, resource, ClientIP(ctx)})
}

func TestAuditAndClientIP(t *testing.T) {
	rec := &recordingAudit{}
	r := gin.New()
	r.Use(ClientIPContext(), Audit(rec, map[string]bool{"/healthz": true}))
	tokens := stubValidator{"good": {Valid: true, Claims: validClaims}}
	r.GET("/healthz", Auth(tokens), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/v1/invites/:token", Auth(tokens), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/v1/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/healthz", "/v1/invites/abc"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer good")
		req.RemoteAddr = "10.1.2.3:5555"
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil))

	if len(rec.entries) != 1 {
		t.Fatalf("entries = %v, want one", rec.entries)
	}
	if got := rec.entries[0]; got != [4]string{"u1", "get", "invite", "10.1.2.3"} {
		t.Errorf("entry = %v", got)
	}
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok?token=secret", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))

	if logs.Len() != 2 {
		t.Fatalf("entries = %d, want 2", logs.Len())
	}
	first := logs.All()[0]
	if first.ContextMap()["path"] != "/ok" {
		t.Errorf("path = %v, query must not be logged", first.ContextMap()["path"])
	}
	if logs.All()[1].Level != zapcore.ErrorLevel {
		t.Error("5xx should log at error")
	}
}
