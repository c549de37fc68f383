package jsoncodec

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Tags   []string        `json:"tags"`
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.JSONSerializer = Serializer{}
	return e
}

func TestSerializer_RoundTrip(t *testing.T) {
	e := newEcho()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	in := payload{ID: "P001", Amount: decimal.RequireFromString("1250.50"), Tags: []string{"diabetes"}}
	require.NoError(t, c.JSON(http.StatusOK, in))
	assert.JSONEq(t, `{"id":"P001","amount":"1250.5","tags":["diabetes"]}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(rec.Body.String()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c = e.NewContext(req, httptest.NewRecorder())

	var out payload
	require.NoError(t, c.Bind(&out))
	assert.Equal(t, "P001", out.ID)
	assert.True(t, in.Amount.Equal(out.Amount))
}

func TestSerializer_Indent(t *testing.T) {
	e := newEcho()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, c.JSONPretty(http.StatusOK, map[string]int{"a": 1}, "  "))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", rec.Body.String())
}

func TestSerializer_DeserializeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", `{"id": `},
		{"type", `{"id": 42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEcho()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			c := e.NewContext(req, httptest.NewRecorder())

			var out payload
			err := c.Bind(&out)
			var he *echo.HTTPError
			require.True(t, errors.As(err, &he), "got %v", err)
			assert.Equal(t, http.StatusBadRequest, he.Code)
		})
	}
}
