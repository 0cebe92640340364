package utils

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendSSEEventFramesPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)

	if err := SendSSEEvent(rec, rec, "stage", map[string]string{"stage": "analyzing"}); err != nil {
		t.Fatalf("send event: %v", err)
	}

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}
	want := "event: stage\ndata: {\"stage\":\"analyzing\"}\n\n"
	if rec.Body.String() != want {
		t.Fatalf("unexpected frame %q", rec.Body.String())
	}
	if !rec.Flushed {
		t.Fatalf("expected recorder to be flushed")
	}
}

func TestSendSSEEventRejectsUnencodable(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := SendSSEEvent(rec, rec, "reply", make(chan int)); err == nil {
		t.Fatalf("expected marshal error")
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected nothing written, got %q", rec.Body.String())
	}
}

func TestDecodeJSONLimitsBody(t *testing.T) {
	body := `{"content":"` + strings.Repeat("a", 2<<20) + `"}`
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))
	rec := httptest.NewRecorder()

	var dst struct {
		Content string `json:"content"`
	}
	if err := DecodeJSON(rec, req, &dst); err == nil {
		t.Fatalf("expected oversized body to be rejected")
	}
}

func TestRespondErrorWritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, 404, "session not found")

	if rec.Code != 404 {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"session not found"}` {
		t.Fatalf("unexpected body %q", got)
	}
}
