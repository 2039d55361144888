package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", shared.Validation("ledger: entry is out of balance by 500"), http.StatusBadRequest},
		{"not found", shared.NotFound("ledger: journal entry not found"), http.StatusNotFound},
		{"conflict", shared.Conflict("periods: fiscal period 2026-03 is already CLOSED"), http.StatusConflict},
		{"period closed", shared.PeriodClosed("ledger: fiscal period 2026-03 is LOCKED"), http.StatusUnprocessableEntity},
		{"checklist", &shared.ChecklistError{Subject: "close of fiscal period 2026-03", Failures: []string{"2 draft journal entries remain in the period"}}, http.StatusConflict},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var problem ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			require.Equal(t, tc.status, problem.Status)
			if tc.status == http.StatusInternalServerError {
				require.Empty(t, problem.Detail, "internal errors never leak details")
			} else {
				require.Equal(t, tc.err.Error(), problem.Detail)
			}
		})
	}
}
