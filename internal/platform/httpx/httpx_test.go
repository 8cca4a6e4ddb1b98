package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.NotFound("User not found"), http.StatusNotFound},
		{shared.Conflict("User is already assigned to this tenant"), http.StatusConflict},
		{shared.BadRequest("User must have at least one tenant"), http.StatusBadRequest},
		{shared.Unauthorized("User or password incorrect"), http.StatusUnauthorized},
		{shared.Forbidden("Insufficient permissions to access this resource"), http.StatusForbidden},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code)
		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Equal(t, tc.err.Error(), body.Detail)
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("users: insert user: connection refused"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "connection refused")
}

type sampleRequest struct {
	Username string   `json:"username" validate:"required,min=3"`
	Tenants  []string `json:"tenantIds" validate:"required,min=1"`
}

func TestBindValidatesWithJSONNames(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"ab","tenantIds":["t1"]}`))
	var body sampleRequest
	err := Bind(req, NewValidator(), &body)
	require.ErrorIs(t, err, shared.ErrBadRequest)
	require.EqualError(t, err, "username must be at least 3 characters long")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nope":1}`))
	var body sampleRequest
	require.ErrorIs(t, DecodeJSON(req, &body), shared.ErrBadRequest)
}
