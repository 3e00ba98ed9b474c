package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/docflow/internal/shared"
)

func TestRespondErrorMapsDomainErrors(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
	}{
		"not found":  {fmt.Errorf("reports: %w", shared.ErrNotFound), http.StatusNotFound},
		"validation": {fmt.Errorf("mode: %w", ErrValidation), http.StatusBadRequest},
		"doc type":   {fmt.Errorf("x: %w", shared.ErrUnsupportedDocType), http.StatusBadRequest},
		"upstream":   {fmt.Errorf("x: %w", shared.ErrSourceUnavailable), http.StatusBadGateway},
		"timeout":    {fmt.Errorf("x: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		"unexpected": {errors.New("boom"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, tc.err)
			require.Equal(t, tc.status, rr.Code)
			assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

			var problem ProblemDetail
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
			assert.Equal(t, tc.status, problem.Status)
			assert.NotEmpty(t, problem.Title)
		})
	}
}

func TestInternalErrorsHideDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("secret dsn"))
	assert.NotContains(t, rr.Body.String(), "secret")
}

func TestAttachment(t *testing.T) {
	rr := httptest.NewRecorder()
	Attachment(rr, "text/csv", "lineage.csv", []byte("a,b\r\n"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `attachment; filename="lineage.csv"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "a,b\r\n", rr.Body.String())
}
