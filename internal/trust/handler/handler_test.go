package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"crummey/internal/trust/models"
	"crummey/internal/trust/service"
	beneficiarystore "crummey/internal/trust/store/beneficiary"
	truststore "crummey/internal/trust/store/trust"
	"crummey/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	owner   uuid.UUID
	other   uuid.UUID
	router  chi.Router
	asOther chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	svc := service.New(truststore.NewInMemory(), beneficiarystore.NewInMemory(), service.WithLogger(logger))
	h := New(svc, logger)

	s.owner = uuid.New()
	s.other = uuid.New()

	s.router = chi.NewRouter()
	s.router.Use(testutil.AuthAs(s.owner))
	h.Register(s.router)

	s.asOther = chi.NewRouter()
	s.asOther.Use(testutil.AuthAs(s.other))
	h.Register(s.asOther)
}

func (s *HandlerSuite) createTrust() models.Trust {
	t := s.T()
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(t, http.MethodPost, "/trusts", map[string]any{
		"name":          "Smith Family ILIT",
		"trust_date":    "2023-06-01",
		"trustee_name":  "Pat Trustee",
		"trustee_email": "pat@example.com",
	}))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	return testutil.UnmarshalData[models.Trust](t, rr)
}

func (s *HandlerSuite) TestCreateTrust() {
	s.Run("returns the created trust with defaults", func() {
		tr := s.createTrust()
		s.Equal(s.owner, tr.OwnerID)
		s.Equal(models.TrustTypeILIT, tr.TrustType)
		s.Equal(models.DefaultWithdrawalPeriodDays, tr.WithdrawalPeriodDays)
		s.Equal("2023-06-01", tr.TrustDate.String())
	})

	s.Run("reports invalid fields by name", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/trusts", map[string]any{
			"name":          "",
			"trust_date":    "2023-06-01",
			"trustee_name":  "Pat",
			"trustee_email": "not-an-email",
		}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("rejects malformed JSON", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/trusts", "{"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("rejects a bad trust date", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/trusts", map[string]any{
			"name":          "Trust",
			"trust_date":    "06/01/2023",
			"trustee_name":  "Pat",
			"trustee_email": "pat@example.com",
		}))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		_, _, fields := testutil.UnmarshalErrorResponse(s.T(), rr)
		s.Contains(fields, "trust_date")
	})
}

func (s *HandlerSuite) TestGetTrust() {
	tr := s.createTrust()

	s.Run("owner can read", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/trusts/"+tr.ID.String()))
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "name", "Smith Family ILIT")
	})

	s.Run("other users get not found", func() {
		rr := testutil.DoRequest(s.asOther, testutil.NewRequest(s.T(), http.MethodGet, "/trusts/"+tr.ID.String()))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("malformed id is a validation error", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/trusts/abc"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})
}

func (s *HandlerSuite) TestListTrusts() {
	s.Run("empty list is an array", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/trusts"))
		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq(`{"data":[],"error":null}`, rr.Body.String())
	})

	s.Run("lists only own trusts", func() {
		s.createTrust()
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/trusts"))
		s.Len(testutil.UnmarshalData[[]models.Trust](s.T(), rr), 1)

		rr = testutil.DoRequest(s.asOther, testutil.NewRequest(s.T(), http.MethodGet, "/trusts"))
		s.Empty(testutil.UnmarshalData[[]models.Trust](s.T(), rr))
	})
}

func (s *HandlerSuite) TestUpdateAndDeactivate() {
	tr := s.createTrust()
	path := "/trusts/" + tr.ID.String()

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, path, map[string]any{
		"withdrawal_period_days": 45,
	}))
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal(45, testutil.UnmarshalData[models.Trust](s.T(), rr).WithdrawalPeriodDays)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, path+"/deactivate"))
	testutil.AssertStatusOK(s.T(), rr)
	s.False(testutil.UnmarshalData[models.Trust](s.T(), rr).IsActive)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, path+"/deactivate"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
}

func (s *HandlerSuite) TestBeneficiaries() {
	tr := s.createTrust()
	path := "/trusts/" + tr.ID.String() + "/beneficiaries"

	s.Run("minor requires a guardian", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{
			"full_name": "Kid Smith",
			"email":     "kid@example.com",
			"is_minor":  true,
		}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	var created models.Beneficiary
	s.Run("creates a beneficiary", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{
			"full_name":        "Alex Smith",
			"email":            "alex@example.com",
			"share_percentage": "50",
		}))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		created = testutil.UnmarshalData[models.Beneficiary](s.T(), rr)
		s.Equal("50", created.SharePercentage.String())
		s.True(created.IsActive)
	})

	s.Run("lists beneficiaries", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, path))
		testutil.AssertStatusOK(s.T(), rr)
		s.Len(testutil.UnmarshalData[[]models.Beneficiary](s.T(), rr), 1)
	})

	s.Run("updates and deactivates", func() {
		bPath := path + "/" + created.ID.String()
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPatch, bPath, map[string]any{
			"full_name": "Alexandra Smith",
		}))
		testutil.AssertStatusOK(s.T(), rr)
		s.Equal("Alexandra Smith", testutil.UnmarshalData[models.Beneficiary](s.T(), rr).FullName)

		rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, bPath+"/deactivate"))
		testutil.AssertStatusOK(s.T(), rr)
		s.False(testutil.UnmarshalData[models.Beneficiary](s.T(), rr).IsActive)
	})

	s.Run("other users cannot add", func() {
		rr := testutil.DoRequest(s.asOther, testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{
			"full_name": "Mallory",
			"email":     "m@example.com",
		}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}
