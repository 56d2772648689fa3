package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

type restockBody struct {
	Amount int    `json:"amount" validate:"gt=0"`
	Reason string `json:"reason" validate:"max=8"`
}

func jsonRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeJSONBody(t *testing.T) {
	var dest restockBody
	require.NoError(t, DecodeJSONBody(jsonRequest(`{"amount":3,"reason":"audit"}`), &dest))
	assert.Equal(t, 3, dest.Amount)

	cases := map[string]string{
		"unknown field": `{"amount":3,"extra":true}`,
		"trailing json": `{"amount":3}{"amount":4}`,
		"malformed":     `{"amount":`,
		"rule failure":  `{"amount":0}`,
	}
	for name, body := range cases {
		body := body
		t.Run(name, func(t *testing.T) {
			var dest restockBody
			err := DecodeJSONBody(jsonRequest(body), &dest)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestValidationDetailsUseJSONNames(t *testing.T) {
	err := Struct(restockBody{Amount: 0, Reason: "far too long"})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "amount")
	assert.Contains(t, details, "reason")
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "abc", Sanitize("  abc  ", 10))
	assert.Equal(t, "héé", Sanitize("hééllo", 3))
	assert.Equal(t, "hello", Sanitize("hello", 0))
}

func TestQueryParsing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=20&threshold=abc&location=%20east%20", nil)

	limit, err := ParseQueryInt(r, "limit", 50, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, 20, limit)

	def, err := ParseQueryInt(r, "missing", 50, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, 50, def)

	_, err = ParseQueryInt(r, "limit", 50, 1, 10)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseOptionalQueryInt(r, "threshold", 0, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	absent, err := ParseOptionalQueryInt(r, "other", 0, 100)
	require.NoError(t, err)
	assert.Nil(t, absent)

	location := ParseOptionalQueryString(r, "location")
	require.NotNil(t, location)
	assert.Equal(t, "east", *location)
	assert.Nil(t, ParseOptionalQueryString(r, "nothing"))
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	withParam := func(value string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("productID", value)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	}

	got, err := ParseUUIDParam(withParam(id.String()), "productID")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam(withParam("nope"), "productID")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
