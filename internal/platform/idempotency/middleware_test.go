package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sauber-detailing/pos-api/internal/platform/auth"
)

var fixedTime = time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedTime }

func post(handler http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "cashier-1", Role: auth.RoleCashier}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	code, _ := payload["error"].(string)
	return code
}

func TestGuardReplaysCompletedResponse(t *testing.T) {
	calls := 0
	handler := Guard(NewMemoryStore(), WithClock(clock))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"o-1"}`))
	}))

	first := post(handler, "k-1", `{"total":100}`)
	second := post(handler, "k-1", `{"total":100}`)

	if calls != 1 {
		t.Fatalf("expected one handler call, got %d", calls)
	}
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("unexpected statuses %d/%d", first.Code, second.Code)
	}
	if second.Body.String() != `{"id":"o-1"}` {
		t.Fatalf("unexpected replay body %q", second.Body.String())
	}
	if second.Header().Get(ReplayHeader) != "true" {
		t.Fatal("expected replay header")
	}
	if first.Header().Get(ReplayHeader) != "" {
		t.Fatal("first response must not be marked as a replay")
	}
}

func TestGuardRejectsKeyReuseWithDifferentBody(t *testing.T) {
	handler := Guard(NewMemoryStore(), WithClock(clock))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	post(handler, "k-2", `{"total":100}`)
	rr := post(handler, "k-2", `{"total":999}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != "idempotency_key_conflict" {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestGuardPassesThroughWithoutKeyUnlessRequired(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	})
	store := NewMemoryStore()

	post(Guard(store)(next), "", `{}`)
	post(Guard(store)(next), "", `{}`)
	if calls != 2 {
		t.Fatalf("expected both keyless requests to run, got %d", calls)
	}

	rr := post(Guard(store, WithRequiredKey())(next), "", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != "idempotency_key_required" {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestGuardForgetsServerErrors(t *testing.T) {
	calls := 0
	handler := Guard(NewMemoryStore(), WithClock(clock))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	if rr := post(handler, "k-3", `{}`); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if rr := post(handler, "k-3", `{}`); rr.Code != http.StatusCreated {
		t.Fatalf("expected retry to run, got %d", rr.Code)
	}
	if calls != 2 {
		t.Fatalf("expected two calls, got %d", calls)
	}
}

func TestGuardSkipsForgottenResponses(t *testing.T) {
	calls := 0
	handler := Guard(NewMemoryStore(), WithClock(clock))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			Forget(w)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"submitted":false}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	first := post(handler, "k-4", `{}`)
	if first.Code != http.StatusOK || first.Body.String() != `{"submitted":false}` {
		t.Fatalf("expected forgotten response to reach the client, got %d %q", first.Code, first.Body.String())
	}
	second := post(handler, "k-4", `{}`)
	if second.Code != http.StatusCreated {
		t.Fatalf("expected retry to run, got %d", second.Code)
	}
	if second.Header().Get(ReplayHeader) != "" {
		t.Fatalf("retry after a forgotten response must not be a replay")
	}
	if calls != 2 {
		t.Fatalf("expected two calls, got %d", calls)
	}

	Forget(httptest.NewRecorder())
}

func TestMemoryStoreBusyAndPurge(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if outcome, _, err := store.Begin(ctx, "k", "fp", fixedTime, time.Minute); err != nil || outcome != OutcomeProceed {
		t.Fatalf("unexpected first begin %v %v", outcome, err)
	}
	if outcome, _, err := store.Begin(ctx, "k", "fp", fixedTime, time.Minute); err != nil || outcome != OutcomeBusy {
		t.Fatalf("expected busy, got %v %v", outcome, err)
	}
	removed, err := store.Purge(ctx, fixedTime.Add(2*time.Minute), 10)
	if err != nil || removed != 1 {
		t.Fatalf("expected one purged entry, got %d %v", removed, err)
	}
	if outcome, _, _ := store.Begin(ctx, "k", "other", fixedTime.Add(2*time.Minute), time.Minute); outcome != OutcomeProceed {
		t.Fatalf("expected purged key to be reusable, got %v", outcome)
	}
}
