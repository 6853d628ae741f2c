package httptransport

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"tranchebook/internal/approval"
	"tranchebook/internal/documents"
	"tranchebook/internal/events"
	"tranchebook/internal/executor"
	"tranchebook/internal/ledger"
	"tranchebook/internal/operator"
	"tranchebook/internal/restriction"
	"tranchebook/internal/tranche"
	"tranchebook/internal/validation"
)

const (
	controller = "controller"
	alice      = "alice"
	bob        = "bob"
)

type RouterSuite struct {
	suite.Suite

	store  *ledger.Memory
	sink   *events.MemorySink
	router http.Handler
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.buildRouter("")
}

// buildRouter assembles the full in-memory stack behind the router.
func (s *RouterSuite) buildRouter(adminToken string) {
	s.store = ledger.NewMemory()
	s.sink = events.NewMemorySink()

	logger := slog.New(slog.DiscardHandler)
	operators := operator.NewResolver(s.store)
	defaults := tranche.NewResolver(s.store)
	engine := validation.NewEngine(s.store, restriction.AllowAll{}, restriction.AllowAll{}, validation.NoMetadata{}, approval.None{})
	exec := executor.New(s.store, operators, defaults, engine, s.sink, controller, logger)
	docs := documents.NewService(documents.NewMemoryStore(), s.sink, logger)

	h := New(exec, s.store, operators, docs, logger, nil, adminToken)
	s.router = NewRouter(h)
}

// do issues a request with an optional caller identity and JSON body.
func (s *RouterSuite) do(method, path, who string, body any) *httptest.ResponseRecorder {
	s.T().Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.T(), json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if who != "" {
		req.Header.Set("X-Ledger-Caller", who)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.T().Helper()
	require.NoError(s.T(), json.NewDecoder(rec.Body).Decode(v))
}

func (s *RouterSuite) issue(holder, trancheName string, amount uint64) {
	s.T().Helper()
	rec := s.do(http.MethodPost, "/v1/issuances", controller, map[string]any{
		"holder":  holder,
		"tranche": trancheName,
		"amount":  amount,
	})
	require.Equal(s.T(), http.StatusNoContent, rec.Code, rec.Body.String())
}

func (s *RouterSuite) TestHealthz() {
	rec := s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("ok", rec.Body.String())
}

func (s *RouterSuite) TestBalancesAfterIssuance() {
	s.issue(alice, "senior", 100)
	s.issue(alice, "junior", 50)

	rec := s.do(http.MethodGet, "/v1/supply", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	var supply supplyResponse
	s.decode(rec, &supply)
	s.Equal(uint64(150), supply.TotalSupply)

	rec = s.do(http.MethodGet, "/v1/balances/alice", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	var bal balanceResponse
	s.decode(rec, &bal)
	s.Equal(uint64(150), bal.Balance)

	rec = s.do(http.MethodGet, "/v1/balances/alice/tranches", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	var tr tranchesResponse
	s.decode(rec, &tr)
	s.Require().Len(tr.Tranches, 2)
	s.Equal("senior", tr.Tranches[0].Tranche)
	s.Equal(uint64(100), tr.Tranches[0].Balance)
	s.Equal("junior", tr.Tranches[1].Tranche)

	rec = s.do(http.MethodGet, "/v1/balances/alice/tranches/junior", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	var one trancheBalance
	s.decode(rec, &one)
	s.Equal(uint64(50), one.Balance)
}

func (s *RouterSuite) TestTransferSingleLeg() {
	s.issue(alice, "senior", 100)

	rec := s.do(http.MethodPost, "/v1/transfers", alice, map[string]any{
		"legs": []map[string]any{{"to": bob, "tranche": "senior", "amount": 40}},
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp transferResponse
	s.decode(rec, &resp)
	s.Equal([]string{"senior"}, resp.Destinations)

	rec = s.do(http.MethodGet, "/v1/balances/bob", "", nil)
	var bal balanceResponse
	s.decode(rec, &bal)
	s.Equal(uint64(40), bal.Balance)
}

func (s *RouterSuite) TestTransferBatchIsAtomic() {
	s.issue(alice, "senior", 100)

	rec := s.do(http.MethodPost, "/v1/transfers", alice, map[string]any{
		"legs": []map[string]any{
			{"to": bob, "tranche": "senior", "amount": 60},
			{"to": bob, "tranche": "senior", "amount": 60},
		},
	})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodGet, "/v1/balances/alice", "", nil)
	var bal balanceResponse
	s.decode(rec, &bal)
	s.Equal(uint64(100), bal.Balance)
}

func (s *RouterSuite) TestSimpleTransferWalksDefaults() {
	s.issue(alice, "senior", 5)
	s.issue(alice, "junior", 7)

	rec := s.do(http.MethodPut, "/v1/accounts/alice/default-tranches", alice, map[string]any{
		"default_tranches": []string{"senior", "junior"},
	})
	s.Require().Equal(http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/v1/accounts/alice/default-tranches", "", nil)
	var seq defaultTranchesResponse
	s.decode(rec, &seq)
	s.Equal([]string{"senior", "junior"}, seq.DefaultTranches)

	rec = s.do(http.MethodPost, "/v1/transfers/simple", alice, map[string]any{
		"to": bob, "amount": 12,
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp simpleTransferResponse
	s.decode(rec, &resp)
	s.Require().Len(resp.Legs, 2)
	s.Equal(simpleTransferLeg{Tranche: "senior", Amount: 5}, resp.Legs[0])
	s.Equal(simpleTransferLeg{Tranche: "junior", Amount: 7}, resp.Legs[1])
}

func (s *RouterSuite) TestCheckTransferVerdicts() {
	s.issue(alice, "senior", 10)

	rec := s.do(http.MethodPost, "/v1/transfers/check", "", map[string]any{
		"checks": []map[string]any{
			{"from": alice, "to": bob, "tranche": "senior", "amount": 10},
			{"from": alice, "to": bob, "tranche": "senior", "amount": 11},
		},
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp checkResponse
	s.decode(rec, &resp)
	s.Require().Len(resp.Verdicts, 2)

	s.True(resp.Verdicts[0].Allowed)
	s.Equal("0xA0", resp.Verdicts[0].Status)
	s.Equal("senior", resp.Verdicts[0].Destination)

	s.False(resp.Verdicts[1].Allowed)
	s.Equal("0xA4", resp.Verdicts[1].Status)
	s.NotEmpty(resp.Verdicts[1].Reason)
}

func (s *RouterSuite) TestRedeem() {
	s.issue(alice, "senior", 100)

	rec := s.do(http.MethodPost, "/v1/redemptions", alice, map[string]any{
		"tranche": "senior", "amount": 30,
	})
	s.Require().Equal(http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/v1/supply", "", nil)
	var supply supplyResponse
	s.decode(rec, &supply)
	s.Equal(uint64(70), supply.TotalSupply)
}

func (s *RouterSuite) TestOperatorLifecycle() {
	rec := s.do(http.MethodPost, "/v1/operators", alice, map[string]any{"operator": bob})
	s.Require().Equal(http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/v1/operators/check?operator=bob&holder=alice", "", nil)
	var check operatorCheckResponse
	s.decode(rec, &check)
	s.True(check.Authorized)

	rec = s.do(http.MethodDelete, "/v1/operators/bob", alice, nil)
	s.Require().Equal(http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/v1/operators/check?operator=bob&holder=alice", "", nil)
	s.decode(rec, &check)
	s.False(check.Authorized)
}

func (s *RouterSuite) TestTrancheOperatorLifecycle() {
	rec := s.do(http.MethodPost, "/v1/operators/tranche", alice, map[string]any{
		"operator": bob, "tranche": "senior",
	})
	s.Require().Equal(http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/v1/operators/check?operator=bob&holder=alice&tranche=senior", "", nil)
	var check operatorCheckResponse
	s.decode(rec, &check)
	s.True(check.Authorized)

	rec = s.do(http.MethodGet, "/v1/operators/check?operator=bob&holder=alice&tranche=junior", "", nil)
	s.decode(rec, &check)
	s.False(check.Authorized)

	rec = s.do(http.MethodDelete, "/v1/operators/tranche/senior/bob", alice, nil)
	s.Require().Equal(http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/v1/operators/check?operator=bob&holder=alice&tranche=senior", "", nil)
	s.decode(rec, &check)
	s.False(check.Authorized)
}

func (s *RouterSuite) TestDocuments() {
	rec := s.do(http.MethodGet, "/v1/documents/prospectus", "", nil)
	s.Equal(http.StatusNotFound, rec.Code)

	hash := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	rec = s.do(http.MethodPut, "/v1/documents/prospectus", alice, map[string]any{
		"uri": "https://example.com/prospectus.pdf", "content_hash": hash,
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/v1/documents/prospectus", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var doc documentResponse
	s.decode(rec, &doc)
	s.Equal("prospectus", doc.Name)
	s.Equal(hash, doc.ContentHash)
	s.NotEmpty(doc.UpdatedAt)
}

func (s *RouterSuite) TestIssuanceLifecycle() {
	rec := s.do(http.MethodGet, "/v1/issuances/issuable", "", nil)
	var issuable issuableResponse
	s.decode(rec, &issuable)
	s.True(issuable.Issuable)

	rec = s.do(http.MethodPost, "/v1/issuances", alice, map[string]any{
		"holder": alice, "tranche": "senior", "amount": 10,
	})
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/v1/issuances/finalize", controller, nil)
	s.Require().Equal(http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/v1/issuances/issuable", "", nil)
	s.decode(rec, &issuable)
	s.False(issuable.Issuable)

	rec = s.do(http.MethodPost, "/v1/issuances", controller, map[string]any{
		"holder": alice, "tranche": "senior", "amount": 10,
	})
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *RouterSuite) TestMutationRequiresCaller() {
	rec := s.do(http.MethodPost, "/v1/transfers", "", map[string]any{
		"legs": []map[string]any{{"to": bob, "tranche": "senior", "amount": 1}},
	})
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), "unauthorized")
}

func (s *RouterSuite) TestMalformedBody() {
	req := httptest.NewRequest(http.MethodPost, "/v1/transfers", bytes.NewBufferString("{nope"))
	req.Header.Set("X-Ledger-Caller", alice)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "bad_request")
}

func (s *RouterSuite) TestAdminTokenGatesIssuance() {
	s.buildRouter("sesame")

	rec := s.do(http.MethodPost, "/v1/issuances", controller, map[string]any{
		"holder": alice, "tranche": "senior", "amount": 10,
	})
	s.Equal(http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/issuances", bytes.NewBufferString(
		`{"holder":"alice","tranche":"senior","amount":10}`))
	req.Header.Set("X-Ledger-Caller", controller)
	req.Header.Set("X-Admin-Token", "sesame")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusNoContent, rec.Code, rec.Body.String())
}
