package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
)

type sampleBody struct {
	Start  string `json:"start_date" validate:"required,date"`
	Amount string `json:"amount" validate:"omitempty,money"`
	Kind   string `json:"kind" validate:"required,oneof=pickup return"`
}

func TestDecodeJSONBody(t *testing.T) {
	var ok sampleBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"start_date":"2026-03-01","amount":"30.50","kind":"pickup"}`))
	require.NoError(t, DecodeJSONBody(req, &ok))
	require.Equal(t, "30.50", ok.Amount)

	var bad sampleBody
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"start_date":"03/01/2026","amount":"1.234","kind":"other"}`))
	err := DecodeJSONBody(req, &bad)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	details := pkgerrors.As(err).Details().(map[string]string)
	require.Contains(t, details, "start_date")
	require.Contains(t, details, "amount")
	require.Contains(t, details, "kind")

	require.Equal(t, "must be one of [pickup return]", details["kind"])
	require.Equal(t, "must be a date formatted YYYY-MM-DD", details["start_date"])

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"unexpected":1}`))
	require.Error(t, DecodeJSONBody(req, &bad))
}

func TestDecodeJSONBodyRejectsEmptyAndTrailingDocuments(t *testing.T) {
	var body sampleBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	err := DecodeJSONBody(req, &body)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Equal(t, "request body required", pkgerrors.As(err).Message())

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"start_date":"2026-03-01","kind":"pickup"} {"kind":"return"}`))
	err = DecodeJSONBody(req, &body)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Contains(t, pkgerrors.As(err).Message(), "single JSON object")
}

func TestParseUUIDParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("bookingID", "not-a-uuid")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	_, err := ParseUUIDParam(req, "bookingID")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeList(t *testing.T) {
	require.Equal(t, []string{"a", "bc"}, SanitizeList([]string{" a ", "", "  ", "bcd"}, 2))
}

func TestSanitizeStringKeepsRunesWhole(t *testing.T) {
	require.Equal(t, "caf", SanitizeString(" café ", 4))
	require.Equal(t, "café", SanitizeString("café", 5))
	require.Equal(t, "abc", SanitizeString(" abc ", 0))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=200&page=x", nil)

	n, err := ParseQueryInt(req, "missing", 20, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 20, n)

	_, err = ParseQueryInt(req, "limit", 20, 1, 100)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseQueryInt(req, "page", 1, 1, 100)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
