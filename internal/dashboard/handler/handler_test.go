package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"crummey/internal/dashboard/service"
	noticestore "crummey/internal/notice/store"
	trustmodels "crummey/internal/trust/models"
	trustservice "crummey/internal/trust/service"
	beneficiarystore "crummey/internal/trust/store/beneficiary"
	truststore "crummey/internal/trust/store/trust"
	"crummey/pkg/requestcontext"
	"crummey/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	router chi.Router
	trusts *trustservice.Service
	owner  uuid.UUID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	trusts := truststore.NewInMemory()
	beneficiaries := beneficiarystore.NewInMemory()
	s.trusts = trustservice.New(trusts, beneficiaries, trustservice.WithLogger(logger))
	s.owner = uuid.New()

	s.router = chi.NewRouter()
	s.router.Use(testutil.AuthAs(s.owner))
	New(service.New(trusts, beneficiaries, noticestore.NewInMemory(), service.WithLogger(logger)), logger).Register(s.router)
}

func (s *HandlerSuite) TestEmptyDashboard() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/dashboard"))
	testutil.AssertStatusOK(s.T(), rr)
	s.JSONEq(`{"data":{"active_trusts":0,"active_beneficiaries":0,"pending_notices":0,"upcoming_deadlines":[],"window_days":14},"error":null}`,
		rr.Body.String())
}

func (s *HandlerSuite) TestCountsOwnerRecords() {
	ctx := requestcontext.WithUserID(context.Background(), s.owner)
	trust, err := s.trusts.CreateTrust(ctx, &trustmodels.CreateTrustRequest{
		Name:         "Smith Family ILIT",
		TrustDate:    "2023-06-01",
		TrusteeName:  "Pat Trustee",
		TrusteeEmail: "pat@example.com",
	})
	s.Require().NoError(err)
	_, err = s.trusts.AddBeneficiary(ctx, trust.ID, &trustmodels.CreateBeneficiaryRequest{
		FullName: "Alex Smith",
		Email:    "alex@example.com",
	})
	s.Require().NoError(err)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/dashboard"))
	testutil.AssertStatusOK(s.T(), rr)
	summary := testutil.UnmarshalData[service.Summary](s.T(), rr)
	s.Equal(1, summary.ActiveTrusts)
	s.Equal(1, summary.ActiveBeneficiaries)
	s.Zero(summary.PendingNotices)
}

func (s *HandlerSuite) TestRequiresOwner() {
	router := chi.NewRouter()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	New(service.New(truststore.NewInMemory(), beneficiarystore.NewInMemory(), noticestore.NewInMemory()), logger).Register(router)

	rr := testutil.DoRequest(router, testutil.NewRequest(s.T(), http.MethodGet, "/dashboard"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}
