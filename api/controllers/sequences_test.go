package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/outflowhq/outflow-backend/api/middleware"
	"github.com/outflowhq/outflow-backend/pkg/enums"
	pkgerrors "github.com/outflowhq/outflow-backend/pkg/errors"
	"github.com/outflowhq/outflow-backend/pkg/logger"
)

type testStopper struct {
	stopFn func(ctx context.Context, leadID uuid.UUID, reason enums.StopReason, nonce string) error
}

func (s *testStopper) Stop(ctx context.Context, leadID uuid.UUID, reason enums.StopReason, nonce string) error {
	if s.stopFn != nil {
		return s.stopFn(ctx, leadID, reason, nonce)
	}
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func leadRequest(method, target, leadID string, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("leadId", leadID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestStopSequenceDefaultsToManual(t *testing.T) {
	leadID := uuid.New()
	var gotReason enums.StopReason
	var gotNonce string
	svc := &testStopper{
		stopFn: func(_ context.Context, id uuid.UUID, reason enums.StopReason, nonce string) error {
			if id != leadID {
				t.Fatalf("unexpected lead %s", id)
			}
			gotReason = reason
			gotNonce = nonce
			return nil
		},
	}

	req := leadRequest(http.MethodPost, "/api/v1/leads/"+leadID.String()+"/sequence/stop", leadID.String(), "")
	req = req.WithContext(middleware.WithRequestID(req.Context(), "req-7"))

	resp := httptest.NewRecorder()
	StopSequence(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if gotReason != enums.StopReasonManual {
		t.Fatalf("reason = %s, want manual", gotReason)
	}
	if gotNonce != "req-7" {
		t.Fatalf("nonce = %q, want request id", gotNonce)
	}

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["stopped"] != true {
		t.Fatal("response missing stopped flag")
	}
}

func TestStopSequenceWithReasonBody(t *testing.T) {
	leadID := uuid.New()
	var gotReason enums.StopReason
	svc := &testStopper{
		stopFn: func(_ context.Context, _ uuid.UUID, reason enums.StopReason, _ string) error {
			gotReason = reason
			return nil
		},
	}

	req := leadRequest(http.MethodPost, "/stop", leadID.String(), `{"reason":"unsubscribe"}`)
	resp := httptest.NewRecorder()
	StopSequence(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if gotReason != enums.StopReasonUnsubscribe {
		t.Fatalf("reason = %s, want unsubscribe", gotReason)
	}
}

func TestStopSequenceRejectsUnknownReason(t *testing.T) {
	req := leadRequest(http.MethodPost, "/stop", uuid.NewString(), `{"reason":"vacation"}`)
	resp := httptest.NewRecorder()
	StopSequence(&testStopper{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestStopSequenceInvalidLeadID(t *testing.T) {
	req := leadRequest(http.MethodPost, "/stop", "not-a-uuid", "")
	resp := httptest.NewRecorder()
	StopSequence(&testStopper{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestStopSequencePropagatesNotFound(t *testing.T) {
	svc := &testStopper{
		stopFn: func(context.Context, uuid.UUID, enums.StopReason, string) error {
			return pkgerrors.New(pkgerrors.CodeNotFound, "lead not found")
		},
	}

	req := leadRequest(http.MethodPost, "/stop", uuid.NewString(), "")
	resp := httptest.NewRecorder()
	StopSequence(svc, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeNotFound) {
		t.Fatalf("unexpected error code %s", envelope.Error.Code)
	}
}
