package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type statusDoc struct {
	State  string `json:"state"`
	Frames int    `json:"frames"`
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONOK(w, statusDoc{State: "idle", Frames: 7})
	}))
	defer srv.Close()

	var got statusDoc
	if err := GetJSON(context.Background(), srv.Client(), srv.URL, &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got != (statusDoc{State: "idle", Frames: 7}) {
		t.Errorf("got %+v", got)
	}
}

func TestGetJSONErrorStatus(t *testing.T) {
	mock := NewMockClient().AddResponse(http.StatusServiceUnavailable, `{"error":"storage disabled"}`)

	var got statusDoc
	err := GetJSON(context.Background(), mock, "http://scanner/api/frames", &got)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "storage disabled") {
		t.Errorf("error %q does not carry the server message", err)
	}
	if n := len(mock.Requests()); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestGetJSONTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	mock := NewMockClient().AddError(boom)

	var got statusDoc
	if err := GetJSON(context.Background(), mock, "http://scanner/api/status", &got); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestGetJSONBadBody(t *testing.T) {
	mock := NewMockClient().AddResponse(http.StatusOK, "not json")

	var got statusDoc
	if err := GetJSON(context.Background(), mock, "http://scanner/api/status", &got); err == nil {
		t.Error("expected decode error")
	}
}

func TestMockClientDefault(t *testing.T) {
	mock := NewMockClient()
	var got map[string]any
	if err := GetJSON(context.Background(), mock, "http://scanner/health", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty object", got)
	}
	if r := mock.Requests()[0]; r.Method != http.MethodGet || r.URL.Path != "/health" {
		t.Errorf("request = %s %s", r.Method, r.URL.Path)
	}
}
