package responses

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"hello": "world"})

	if got := w.Code; got != http.StatusOK {
		t.Fatalf("expected status 200 but got %d", got)
	}

	var body types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode success envelope: %v", err)
	}
	if body.Data.(map[string]any)["hello"] != "world" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWritePage(t *testing.T) {
	w := httptest.NewRecorder()
	WritePage(w, []int{1, 2}, "next")

	var body types.PageEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode page envelope: %v", err)
	}
	if body.NextCursor != "next" {
		t.Fatalf("unexpected cursor %q", body.NextCursor)
	}
}

func TestWriteErrorMapsDomainCodes(t *testing.T) {
	cases := []struct {
		err    *pkgerrors.Error
		status int
	}{
		{pkgerrors.New(pkgerrors.CodeValidation, "bad input").WithDetails(map[string]string{"field": "quantityLitres"}), http.StatusBadRequest},
		{pkgerrors.New(pkgerrors.CodeInvalidTransition, "cannot move delivered to pending"), http.StatusBadRequest},
		{pkgerrors.New(pkgerrors.CodeOrderNoLongerAvailable, "order is no longer available"), http.StatusConflict},
		{pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet balance too low"), http.StatusBadRequest},
		{pkgerrors.New(pkgerrors.CodePaymentProvider, "card declined"), http.StatusBadGateway},
		{pkgerrors.New(pkgerrors.CodeNotFound, "order not found"), http.StatusNotFound},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		WriteError(nil, nil, w, tc.err)

		if got := w.Code; got != tc.status {
			t.Fatalf("%s: expected status %d but got %d", tc.err.Code(), tc.status, got)
		}
		var body types.ErrorEnvelope
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode error envelope: %v", err)
		}
		if body.Error.Code != string(tc.err.Code()) {
			t.Fatalf("unexpected code %s", body.Error.Code)
		}
		if body.Error.Message != tc.err.Message() {
			t.Fatalf("expected message %q surfaced, got %q", tc.err.Message(), body.Error.Message)
		}
	}
}

func TestWriteErrorDefaultsToInternalForUntrustedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(nil, nil, w, errors.New("boom"))

	if got := w.Code; got != http.StatusInternalServerError {
		t.Fatalf("expected status 500 but got %d", got)
	}

	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if body.Error.Message == "boom" {
		t.Fatalf("internal error message leaked")
	}
	if body.Error.Details != nil {
		t.Fatalf("internal errors must not expose details")
	}
}
