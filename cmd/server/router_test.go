package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	jwttoken "refroute/internal/jwt_token"
	"refroute/internal/platform/logger"
	"refroute/internal/platform/metrics"
	"refroute/internal/reference/handler/mocks"
	"refroute/internal/reference/models"
	id "refroute/pkg/domain"
	"refroute/pkg/platform/middleware/request"
	"refroute/pkg/testutil"
)

func TestRouter(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	tokens := jwttoken.NewJWTService("test-key", "refroute")
	var down []string
	ready := func(context.Context) []string { return down }
	router := newRouter(svc, tokens, ready, metrics.NewWith(prometheus.NewRegistry()), logger.Discard())

	t.Run("health check needs no token", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/healthz", nil))
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.NotEmpty(t, rr.Header().Get(request.HeaderRequestID))
	})

	t.Run("readiness reports unreachable backends", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/readyz", nil))
		testutil.AssertStatus(t, rr, http.StatusOK)

		down = []string{"postgres", "redis"}
		defer func() { down = nil }()
		rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/readyz", nil))
		testutil.AssertStatusAndError(t, rr, http.StatusServiceUnavailable, "datastore_unavailable")
		assert.Contains(t, rr.Body.String(), "postgres, redis")
		assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	})

	t.Run("reference API rejects missing token", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/api/v1/local/references/", nil))
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("bearer token carries the actor to the engine", func(t *testing.T) {
		user := uuid.New()
		refID := id.NewReferenceID()
		token, err := tokens.GenerateAccessToken(user, "officer", time.Minute)
		require.NoError(t, err)

		svc.EXPECT().
			Get(gomock.Any(), models.Actor{ID: id.UserID(user), Role: "officer"}, id.ScopeGlobal, refID).
			Return(&models.Reference{ID: refID, RefID: "REF/GLB/2026/0a1b2c3d"}, nil)

		req := testutil.NewJSONRequest(t, http.MethodGet, "/api/v1/global/references/"+refID.String(), nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Equal(t, "REF/GLB/2026/0a1b2c3d", testutil.UnmarshalEnvelope[models.Reference](t, rr).Data.RefID)
	})
}
