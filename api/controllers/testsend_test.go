package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow-backend/api/middleware"
	"github.com/outflowhq/outflow-backend/internal/testsend"
	pkgerrors "github.com/outflowhq/outflow-backend/pkg/errors"
)

type testSendFake struct {
	sendFn func(ctx context.Context, leadID uuid.UUID, requestID string) (*testsend.Result, error)
}

func (s *testSendFake) Send(ctx context.Context, leadID uuid.UUID, requestID string) (*testsend.Result, error) {
	if s.sendFn != nil {
		return s.sendFn(ctx, leadID, requestID)
	}
	return &testsend.Result{}, nil
}

func TestTestSendReturnsResult(t *testing.T) {
	leadID := uuid.New()
	svc := &testSendFake{
		sendFn: func(_ context.Context, id uuid.UUID, requestID string) (*testsend.Result, error) {
			if id != leadID {
				t.Fatalf("unexpected lead %s", id)
			}
			if requestID != "req-9" {
				t.Fatalf("requestID = %q, want req-9", requestID)
			}
			return &testsend.Result{
				LeadID:            id,
				StepNumber:        2,
				ToEmail:           "ana@example.com",
				Subject:           "Hi Ana",
				ProviderMessageID: "sw-msg-1",
			}, nil
		},
	}

	req := leadRequest(http.MethodPost, "/test-send", leadID.String(), "")
	req = req.WithContext(middleware.WithRequestID(req.Context(), "req-9"))
	resp := httptest.NewRecorder()
	TestSend(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data testsend.Result `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.ProviderMessageID != "sw-msg-1" || envelope.Data.StepNumber != 2 {
		t.Fatalf("unexpected result %+v", envelope.Data)
	}
}

func TestTestSendStateConflict(t *testing.T) {
	svc := &testSendFake{
		sendFn: func(context.Context, uuid.UUID, string) (*testsend.Result, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no active step to send")
		},
	}

	req := leadRequest(http.MethodPost, "/test-send", uuid.NewString(), "")
	resp := httptest.NewRecorder()
	TestSend(svc, testLogger())(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestTestSendInvalidLeadID(t *testing.T) {
	req := leadRequest(http.MethodPost, "/test-send", "bogus", "")
	resp := httptest.NewRecorder()
	TestSend(&testSendFake{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}
