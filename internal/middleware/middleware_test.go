package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gracetrack-api/internal/models"
	"github.com/noah-isme/gracetrack-api/internal/service"
	appErrors "github.com/noah-isme/gracetrack-api/pkg/errors"
	"github.com/noah-isme/gracetrack-api/pkg/middleware/requestid"
)

type tokenStub map[string]*models.JWTClaims

func (s tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type auditRecorder struct {
	logs []*models.AuditLog
}

func (a *auditRecorder) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newRouter(audit *auditRecorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	tokens := tokenStub{
		"owner":  {UserID: "church-1", Email: "owner@grace.org"},
		"member": {UserID: "u-2", Email: "sub@grace.org", ChurchID: "church-1"},
	}
	r := gin.New()
	r.Use(JWT(tokens))
	r.GET("/me", func(c *gin.Context) { c.String(http.StatusOK, Claims(c).Church()) })
	r.PUT("/roles", RequireChurchOwner(), Audit(audit, models.AuditActionRolesUpdate, "church"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func perform(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTRequiresBearerToken(t *testing.T) {
	r := newRouter(&auditRecorder{})

	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/me", "forged").Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ok := perform(r, http.MethodGet, "/me", "member")
	require.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, "church-1", ok.Body.String())
}

func TestRequireChurchOwnerAndAudit(t *testing.T) {
	audit := &auditRecorder{}
	r := newRouter(audit)

	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodPut, "/roles", "member").Code)
	assert.Empty(t, audit.logs)

	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodPut, "/roles", "owner").Code)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "church-1", audit.logs[0].ChurchID)
	assert.Equal(t, models.AuditActionRolesUpdate, audit.logs[0].Action)
}

func TestResponseMetaCarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta map[string]interface{}
	r := gin.New()
	r.Use(requestid.Middleware(), WithResponseMeta())
	r.GET("/x", func(c *gin.Context) {
		SetCacheHit(c, true)
		SetMeta(c, "outcome", "recorded")
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "req-42")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "req-42", meta["request_id"])
	assert.Equal(t, true, meta["cache_hit"])
	assert.Equal(t, "recorded", meta["outcome"])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestMetricsSkipsConfiguredRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics, "/ws"))
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/records/:entity", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/ws", "/records/members", "/records/finance", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	paths := map[string]bool{}
	for _, family := range families {
		if family.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "path" {
					paths[label.GetValue()] = true
				}
			}
		}
	}
	assert.Equal(t, map[string]bool{"/records/:entity": true, "unmatched": true}, paths)
}
