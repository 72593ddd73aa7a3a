package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/dealdesk/internal/shared"
)

type missingRate struct{}

func (missingRate) Error() string           { return "no rate" }
func (missingRate) MissingDependency() bool { return true }

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.Invalid("amount", "must be greater than zero"), http.StatusBadRequest},
		{&shared.ReferentialError{Entity: "specification", ID: 9}, http.StatusUnprocessableEntity},
		{&shared.WorkflowViolationError{Entity: "invoice", ID: 1, From: "completed", Action: "complete_customs"}, http.StatusConflict},
		{&shared.ConflictError{Entity: "invoice", Detail: "metadata differs"}, http.StatusConflict},
		{shared.NotFound("offer", 3), http.StatusNotFound},
		{shared.ErrForbidden, http.StatusForbidden},
		{missingRate{}, http.StatusFailedDependency},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tc.status, body.Status)
	}
}

func TestDecodeJSONValidates(t *testing.T) {
	type payload struct {
		Reason string `json:"reason" validate:"required"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":""}`))
	var p payload
	err := DecodeJSON(req, &p)
	require.ErrorIs(t, err, shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"typo"}`))
	require.NoError(t, DecodeJSON(req, &p))
	require.Equal(t, "typo", p.Reason)
}
