package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"refroute/internal/identity"
	"refroute/internal/permission"
	"refroute/internal/platform/logger"
	"refroute/internal/reference/handler/mocks"
	"refroute/internal/reference/models"
	"refroute/internal/reference/service"
	"refroute/internal/reference/store"
	id "refroute/pkg/domain"
	dErrors "refroute/pkg/domain-errors"
	"refroute/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	svc    *mocks.MockService
	router chi.Router
	user   id.UserID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.svc = mocks.NewMockService(s.ctrl)
	s.router = chi.NewRouter()
	New(s.svc, logger.Discard()).Register(s.router)
	s.user = id.UserID(uuid.New())
}

func (s *HandlerSuite) as(req *http.Request) *http.Request {
	return testutil.WithActor(req, s.user.String(), "officer")
}

func (s *HandlerSuite) TestCreate() {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ref := &models.Reference{
		ID:               id.NewReferenceID(),
		RefID:            "REF/GLB/2026/0000ABCD",
		Status:           models.StatusOpen,
		PendingDivisions: []string{"Finance", "Audit"},
		CreatedAt:        created,
	}
	s.svc.EXPECT().Create(gomock.Any(), models.Actor{ID: s.user, Role: "officer"}, id.ScopeGlobal, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ models.Actor, _ id.Scope, req *models.CreateReferenceRequest) (*models.Reference, error) {
			s.Equal("Budget", req.Subject)
			return ref, nil
		})

	req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v1/global/references/", map[string]any{
		"subject":   "Budget",
		"marked_to": []string{uuid.NewString()},
	}))
	req = testutil.WithTime(req, created.Add(10*24*time.Hour+time.Hour))
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	env := testutil.UnmarshalEnvelope[models.ReferenceView](s.T(), rr)
	s.True(env.Success)
	s.Equal("REF/GLB/2026/0000ABCD", env.Data.RefID)
	s.Equal("Finance", env.Data.MarkedToDivision, "first holder's division")
	s.Equal(10, env.Data.DaysSinceCreated)
}

func (s *HandlerSuite) TestRejectsBeforeCallingService() {
	s.Run("unknown scope", func() {
		rr := testutil.DoRequest(s.router, s.as(testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/v1/branch/references/", nil)))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})
	s.Run("no actor", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/v1/local/references/", nil))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))
	})
	s.Run("malformed id", func() {
		rr := testutil.DoRequest(s.router, s.as(testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/v1/local/references/nope", nil)))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})
	s.Run("malformed body", func() {
		path := "/api/v1/local/references/" + id.NewReferenceID().String() + "/movements"
		rr := testutil.DoRequest(s.router, s.as(testutil.NewRequestWithBody(s.T(), http.MethodPost, path, "{")))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})
	s.Run("non-numeric page", func() {
		rr := testutil.DoRequest(s.router, s.as(testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/v1/local/references/?page=two", nil)))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})
}

func (s *HandlerSuite) TestDomainErrorsMapToStatus() {
	refID := id.NewReferenceID()
	path := "/api/v1/local/references/" + refID.String() + "/movements"
	cases := []struct {
		code   dErrors.Code
		status int
	}{
		{dErrors.CodeNotCurrentHolder, http.StatusForbidden},
		{dErrors.CodeInvalidTransition, http.StatusConflict},
		{dErrors.CodeConcurrentModification, http.StatusConflict},
		{dErrors.CodeEmptyHolderSet, http.StatusBadRequest},
		{dErrors.CodeNotFound, http.StatusNotFound},
		{dErrors.CodeTimeout, http.StatusServiceUnavailable},
		{dErrors.CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		s.Run(string(tc.code), func() {
			s.svc.EXPECT().ApplyMovement(gomock.Any(), gomock.Any(), id.ScopeLocal, refID, gomock.Any()).
				Return(nil, dErrors.New(tc.code, "nope"))
			req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"next_status": "InProgress"}))
			rr := testutil.DoRequest(s.router, req)
			testutil.AssertStatusAndError(s.T(), rr, tc.status, string(tc.code))
		})
	}
}

func (s *HandlerSuite) TestIdempotencyHeader() {
	refID := id.NewReferenceID()
	s.svc.EXPECT().ApplyMovement(gomock.Any(), gomock.Any(), id.ScopeLocal, refID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ models.Actor, _ id.Scope, _ id.ReferenceID, req *models.MovementRequest) (*models.Reference, error) {
			s.Equal("retry-7", req.IdempotencyKey)
			return &models.Reference{ID: refID}, nil
		})
	req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v1/local/references/"+refID.String()+"/movements",
		map[string]any{"next_status": "Closed"}))
	req.Header.Set(HeaderIdempotencyKey, "retry-7")
	testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusOK)
}

func (s *HandlerSuite) TestListQuery() {
	s.svc.EXPECT().List(gomock.Any(), gomock.Any(), id.ScopeGlobal, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ models.Actor, _ id.Scope, req models.ListRequest) (*models.Page, error) {
			s.Equal([]string{"Open", "InProgress", "Closed"}, req.Status)
			s.Equal("spectro", req.Subject)
			s.Equal(2, req.Page)
			s.Equal(10, req.Limit)
			s.Require().NotNil(req.PendingDays)
			s.Equal(7, *req.PendingDays)
			s.Equal("daysSinceCreated", req.SortBy)
			return &models.Page{Items: []*models.Reference{}, Page: 2, Limit: 10}, nil
		})
	req := s.as(testutil.NewJSONRequest(s.T(), http.MethodGet,
		"/api/v1/global/references/?status=Open,InProgress&status=Closed&subject=spectro&page=2&limit=10&pendingDays=7&sortBy=daysSinceCreated", nil))
	testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusOK)
}

func (s *HandlerSuite) TestBulkPartialFailureIsSuccess() {
	s.svc.EXPECT().BulkApply(gomock.Any(), gomock.Any(), id.ScopeGlobal, gomock.Any()).Return(&models.BulkResult{
		Succeeded: []string{"a"},
		Failed:    []models.BulkFailure{{ID: "b", Reason: dErrors.CodeNotCurrentHolder}},
	}, nil)
	req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v1/global/references/bulk", map[string]any{
		"ids": []string{"a", "b"}, "action": "close",
	}))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	env := testutil.UnmarshalEnvelope[models.BulkResult](s.T(), rr)
	s.True(env.Success)
	s.Equal("1 of 2 references were not updated", env.Message)
	s.Equal(dErrors.CodeNotCurrentHolder, env.Data.Failed[0].Reason)
}

// TestRoutesAgainstEngine drives the real engine and in-memory store through
// the router.
func TestRoutesAgainstEngine(t *testing.T) {
	alice := identity.Identity{UserID: id.UserID(uuid.New()), FullName: "Alice", LabName: "Optics Lab", Division: "Physics"}
	bob := identity.Identity{UserID: id.UserID(uuid.New()), FullName: "Bob", LabName: "Optics Lab", Division: "Physics"}
	svc := service.New(store.NewInMemory(), identity.NewInMemoryDirectory(alice, bob), permission.Static{
		"officer": {permission.ActionCreate, permission.ActionView, permission.ActionMove, permission.ActionDashboard},
	}, service.WithLogger(logger.Discard()))
	router := chi.NewRouter()
	New(svc, logger.Discard()).Register(router)
	as := func(req *http.Request, u identity.Identity) *http.Request {
		return testutil.WithActor(req, u.UserID.String(), "officer")
	}

	var ref models.Reference
	testutil.Given(t, "a local reference held by alice", func(t *testing.T) {
		rr := testutil.DoRequest(router, as(testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/local/references/", map[string]any{
			"subject":   "Spectrometer calibration",
			"marked_to": []string{alice.UserID.String()},
		}), alice))
		testutil.AssertStatus(t, rr, http.StatusCreated)
		ref = testutil.UnmarshalEnvelope[models.Reference](t, rr).Data
	})

	base := "/api/v1/local/references/" + ref.ID.String()
	testutil.When(t, "alice forwards it to bob", func(t *testing.T) {
		rr := testutil.DoRequest(router, as(testutil.NewJSONRequest(t, http.MethodPost, base+"/movements", map[string]any{
			"next_holders": []string{bob.UserID.String()},
			"next_status":  "InProgress",
			"remarks":      "fwd",
		}), alice))
		testutil.AssertStatus(t, rr, http.StatusOK)
	})

	testutil.Then(t, "the ledger and the dashboard agree", func(t *testing.T) {
		rr := testutil.DoRequest(router, as(testutil.NewJSONRequest(t, http.MethodGet, base+"/movements", nil), bob))
		testutil.AssertStatus(t, rr, http.StatusOK)
		movements := testutil.UnmarshalEnvelope[[]models.Movement](t, rr).Data
		if len(movements) != 2 {
			t.Fatalf("expected 2 movements, got %d", len(movements))
		}

		rr = testutil.DoRequest(router, as(testutil.NewJSONRequest(t, http.MethodGet, "/api/v1/local/references/dashboard", nil), bob))
		testutil.AssertStatus(t, rr, http.StatusOK)
		dash := testutil.UnmarshalEnvelope[models.Dashboard](t, rr).Data
		if dash.HeldByMe != 1 || dash.OpenCount != 1 {
			raw, _ := json.Marshal(dash)
			t.Fatalf("unexpected dashboard %s", raw)
		}
	})

	testutil.Then(t, "alice can no longer move it", func(t *testing.T) {
		rr := testutil.DoRequest(router, as(testutil.NewJSONRequest(t, http.MethodPost, base+"/movements", map[string]any{
			"next_holders": []string{alice.UserID.String()},
			"next_status":  "InProgress",
		}), alice))
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, string(dErrors.CodeNotCurrentHolder))
	})

}
