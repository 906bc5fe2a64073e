package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"crummey/internal/contribution/models"
	"crummey/internal/contribution/service"
	contributionstore "crummey/internal/contribution/store"
	noticestore "crummey/internal/notice/store"
	trusthandler "crummey/internal/trust/handler"
	trustmodels "crummey/internal/trust/models"
	trustservice "crummey/internal/trust/service"
	beneficiarystore "crummey/internal/trust/store/beneficiary"
	truststore "crummey/internal/trust/store/trust"
	"crummey/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	router  chi.Router
	asOther chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	trusts := truststore.NewInMemory()
	beneficiaries := beneficiarystore.NewInMemory()

	th := trusthandler.New(trustservice.New(trusts, beneficiaries, trustservice.WithLogger(logger)), logger)
	ch := New(service.New(contributionstore.NewInMemory(), trusts, beneficiaries, noticestore.NewInMemory(),
		service.WithLogger(logger)), logger)

	s.router = chi.NewRouter()
	s.router.Use(testutil.AuthAs(uuid.New()))
	th.Register(s.router)
	ch.Register(s.router)

	s.asOther = chi.NewRouter()
	s.asOther.Use(testutil.AuthAs(uuid.New()))
	ch.Register(s.asOther)
}

// createTrust creates a trust with the given beneficiary emails via the API.
func (s *HandlerSuite) createTrust(emails ...string) trustmodels.Trust {
	t := s.T()
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(t, http.MethodPost, "/trusts", map[string]any{
		"name":                   "Smith Family ILIT",
		"trust_date":             "2023-06-01",
		"withdrawal_period_days": 30,
		"trustee_name":           "Pat Trustee",
		"trustee_email":          "pat@example.com",
	}))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	tr := testutil.UnmarshalData[trustmodels.Trust](t, rr)

	for _, email := range emails {
		rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(t, http.MethodPost,
			"/trusts/"+tr.ID.String()+"/beneficiaries", map[string]any{
				"full_name": "Beneficiary " + email,
				"email":     email,
			}))
		testutil.AssertStatus(t, rr, http.StatusCreated)
	}
	return tr
}

func (s *HandlerSuite) postContribution(router chi.Router, trustID uuid.UUID, amount any) *service.Detail {
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/contributions", map[string]any{
		"trust_id":          trustID.String(),
		"amount":            amount,
		"contribution_date": "2024-01-15",
		"description":       "annual premium",
	}))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	detail := testutil.UnmarshalData[service.Detail](s.T(), rr)
	return &detail
}

func (s *HandlerSuite) TestCreate() {
	s.Run("returns the contribution and its notices", func() {
		tr := s.createTrust("a@example.com", "b@example.com")
		detail := s.postContribution(s.router, tr.ID, "18000.00")

		s.Equal(tr.ID, detail.Contribution.TrustID)
		s.True(detail.Contribution.NoticesGenerated)
		s.Equal("18000", detail.Contribution.Amount.String())
		s.Require().Len(detail.Notices, 2)
		for _, n := range detail.Notices {
			s.Equal("2024-02-14", n.WithdrawalDeadline.String())
			s.NotEmpty(n.AcknowledgmentToken)
		}
	})

	s.Run("numeric amounts are accepted", func() {
		tr := s.createTrust("c@example.com")
		detail := s.postContribution(s.router, tr.ID, 250.5)
		s.Equal("250.5", detail.Contribution.Amount.String())
	})

	s.Run("trust without beneficiaries is rejected", func() {
		tr := s.createTrust()
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/contributions", map[string]any{
			"trust_id":          tr.ID.String(),
			"amount":            "100",
			"contribution_date": "2024-01-15",
		}))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		code, _, fields := testutil.UnmarshalErrorResponse(s.T(), rr)
		s.Equal("validation_error", code)
		s.Contains(fields, "trust_id")

		rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/contributions?trust_id="+tr.ID.String()))
		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq(`{"data":[],"error":null}`, rr.Body.String())
	})

	s.Run("invalid amount names the field", func() {
		tr := s.createTrust("d@example.com")
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/contributions", map[string]any{
			"trust_id":          tr.ID.String(),
			"amount":            "-1",
			"contribution_date": "2024-01-15",
		}))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		_, _, fields := testutil.UnmarshalErrorResponse(s.T(), rr)
		s.Contains(fields, "amount")
	})

	s.Run("another user's trust is not found", func() {
		tr := s.createTrust("e@example.com")
		rr := testutil.DoRequest(s.asOther, testutil.NewJSONRequest(s.T(), http.MethodPost, "/contributions", map[string]any{
			"trust_id":          tr.ID.String(),
			"amount":            "100",
			"contribution_date": "2024-01-15",
		}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

func (s *HandlerSuite) TestGetListAndRedrive() {
	tr := s.createTrust("f@example.com")
	detail := s.postContribution(s.router, tr.ID, "100")
	path := "/contributions/" + detail.Contribution.ID.String()

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, path))
	testutil.AssertStatusOK(s.T(), rr)
	got := testutil.UnmarshalData[service.Detail](s.T(), rr)
	s.Len(got.Notices, 1)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/contributions"))
	testutil.AssertStatusOK(s.T(), rr)
	s.Len(testutil.UnmarshalData[[]models.Contribution](s.T(), rr), 1)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, path+"/generate-notices"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusPreconditionFailed, "precondition_failed")

	rr = testutil.DoRequest(s.asOther, testutil.NewRequest(s.T(), http.MethodGet, path))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/contributions?trust_id=bad"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}
