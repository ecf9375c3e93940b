package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Imaginaryverse/spending-habits/internal/auth"
	"github.com/Imaginaryverse/spending-habits/internal/core"
	applog "github.com/Imaginaryverse/spending-habits/internal/log"
	"github.com/Imaginaryverse/spending-habits/internal/services"
)

func TestResponseBuilder(t *testing.T) {
	rec := httptest.NewRecorder()
	NewResponse().Status(http.StatusAccepted).Header("X-Test", "1").Data(map[string]int{"n": 2}).Write(rec)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if rec.Header().Get("X-Test") != "1" {
		t.Fatalf("expected custom header")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rec.Body.String() != "{\"n\":2}\n" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	NewResponse().Status(http.StatusNoContent).Write(rec)
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Fatalf("expected empty 204, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{core.ErrTitleTooLong, http.StatusBadRequest, CodeValidation},
		{fmt.Errorf("%w: bad json", errBadBody), http.StatusBadRequest, CodeValidation},
		{services.ErrUnknownCategory, http.StatusBadRequest, CodeValidation},
		{auth.ErrWeakPassword, http.StatusBadRequest, CodeValidation},
		{fmt.Errorf("get item: %w", core.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{auth.ErrEmailExists, http.StatusConflict, CodeConflict},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized, CodeUnauthorized},
		{errors.New("database is on fire"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, httptest.NewRequest(http.MethodGet, "/api/items", nil), tc.err)

		if rec.Code != tc.status {
			t.Errorf("%v: expected status %d, got %d", tc.err, tc.status, rec.Code)
			continue
		}
		var body ErrorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%v: invalid error body: %v", tc.err, err)
		}
		if body.Code != tc.code || body.Status != tc.status {
			t.Errorf("%v: unexpected body %+v", tc.err, body)
		}
	}
}

func TestInternalErrorHidesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"))

	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.Message != "internal server error" {
		t.Fatalf("internal details leaked: %q", body.Message)
	}
}

func TestWriteErrorLogsErrorType(t *testing.T) {
	cases := []struct {
		err       error
		errorType string
		level     string
	}{
		{core.ErrTitleTooLong, applog.ErrorTypeValidation, "DEBUG"},
		{core.ErrNotFound, applog.ErrorTypeNotFound, "DEBUG"},
		{core.ErrConflict, applog.ErrorTypeConflict, "DEBUG"},
		{auth.ErrInvalidToken, applog.ErrorTypeAuth, "DEBUG"},
		{errors.New("disk full"), applog.ErrorTypeInternal, "ERROR"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		logger := applog.New(applog.Config{Format: "json", Output: &buf, Level: slog.LevelDebug})
		req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
		req = req.WithContext(applog.NewContext(req.Context(), logger))

		writeError(httptest.NewRecorder(), req, tc.err)

		var rec map[string]any
		if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
			t.Fatalf("%v: expected one json log line, got %q: %v", tc.err, buf.String(), err)
		}
		if rec[applog.FieldErrorType] != tc.errorType || rec["level"] != tc.level {
			t.Errorf("%v: unexpected log record %v", tc.err, rec)
		}
		if rec[applog.FieldError] != tc.err.Error() {
			t.Errorf("%v: error not logged: %v", tc.err, rec)
		}
	}
}
