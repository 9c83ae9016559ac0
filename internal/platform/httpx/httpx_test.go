package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("wrap: %w", ErrValidation): http.StatusBadRequest,
		ErrNotFound:                           http.StatusNotFound,
		ErrTooLarge:                           http.StatusRequestEntityTooLarge,
		ErrUnavailable:                        http.StatusServiceUnavailable,
		ErrUnauthorized:                       http.StatusUnauthorized,
		errors.New("boom"):                    http.StatusInternalServerError,
	}
	for err, status := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, err)
		require.Equal(t, status, rr.Code, err.Error())
		var pd ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pd))
		require.Equal(t, status, pd.Status)
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}
	decode := func(raw string, limit int64) error {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
		var b body
		return DecodeJSON(httptest.NewRecorder(), req, limit, &b)
	}
	require.NoError(t, decode(`{"name":"x"}`, 1024))
	require.ErrorIs(t, decode(`{"name":"x","extra":1}`, 1024), ErrValidation)
	require.ErrorIs(t, decode(`{"name":"x"}{"name":"y"}`, 1024), ErrValidation)
	require.ErrorIs(t, decode(`{"name":"`+strings.Repeat("x", 100)+`"}`, 16), ErrTooLarge)
}
