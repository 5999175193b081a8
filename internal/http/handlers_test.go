package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/pricing"
	"github.com/example/ride-dispatch/internal/rooms"
	"github.com/example/ride-dispatch/internal/storage"
)

func testServer() *Server {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := dispatch.NewEngine(storage.NewMemoryStore(), notify.NewMemoryBroker(), rooms.NewHub(log), pricing.DefaultRates(), time.Second, log)
	return NewServer(engine, log)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func createOrder(t *testing.T, s *Server) string {
	t.Helper()
	w := doJSON(t, s, "POST", "/api/v1/orders", map[string]any{
		"client_id":   "c1",
		"client_name": "alice",
		"origin":      map[string]float64{"lat": 48.81, "lon": 2.36},
		"destination": map[string]float64{"lat": 48.85, "lon": 2.30},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create order: status %d body %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp["order_id"]
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	s := testServer()
	id := createOrder(t, s)

	w := doJSON(t, s, "POST", "/api/v1/orders/"+id+"/details", map[string]any{
		"passenger_count": 2,
		"vehicle_type":    "car",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("details: status %d body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, "GET", "/api/v1/orders/pending?vehicle_type=car", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pending: status %d", w.Code)
	}
	var pending struct {
		Orders []models.PendingOrder `json:"orders"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &pending); err != nil {
		t.Fatalf("decode pending: %v", err)
	}
	if len(pending.Orders) != 1 || pending.Orders[0].ID != id {
		t.Fatalf("expected order %s pending, got %+v", id, pending.Orders)
	}
	if pending.Orders[0].Price <= 0 || pending.Orders[0].Distance <= 0 {
		t.Fatalf("pending order missing price/distance: %+v", pending.Orders[0])
	}

	w = doJSON(t, s, "POST", "/api/v1/orders/"+id+"/accept", map[string]string{
		"driver_id": "d1", "driver_name": "bob",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("accept: status %d body %s", w.Code, w.Body.String())
	}

	// losing claim gets a conflict, not a stale success
	w = doJSON(t, s, "POST", "/api/v1/orders/"+id+"/accept", map[string]string{
		"driver_id": "d2", "driver_name": "eve",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("second accept: status %d", w.Code)
	}

	w = doJSON(t, s, "GET", "/api/v1/orders/pending?vehicle_type=car", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &pending)
	if len(pending.Orders) != 0 {
		t.Fatalf("accepted order still pending: %+v", pending.Orders)
	}

	w = doJSON(t, s, "POST", "/api/v1/orders/"+id+"/complete", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("complete: status %d body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, "GET", "/api/v1/orders/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: status %d", w.Code)
	}
	var o models.Order
	if err := json.Unmarshal(w.Body.Bytes(), &o); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if o.Status != models.StatusCompleted || o.DriverName != "bob" || o.CompletedAt == nil {
		t.Fatalf("unexpected final order: %+v", o)
	}
}

func TestCancelThenAcceptConflicts(t *testing.T) {
	s := testServer()
	id := createOrder(t, s)

	w := doJSON(t, s, "POST", "/api/v1/orders/"+id+"/cancel", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("cancel: status %d", w.Code)
	}
	w = doJSON(t, s, "POST", "/api/v1/orders/"+id+"/accept", map[string]string{"driver_id": "d1"})
	if w.Code != http.StatusConflict && w.Code != http.StatusNotFound {
		t.Fatalf("accept after cancel: status %d", w.Code)
	}
}

func TestValidationErrors(t *testing.T) {
	s := testServer()
	id := createOrder(t, s)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown vehicle", "POST", "/api/v1/orders/" + id + "/details", map[string]any{"passenger_count": 1, "vehicle_type": "submarine"}, http.StatusBadRequest},
		{"zero passengers", "POST", "/api/v1/orders/" + id + "/details", map[string]any{"passenger_count": 0, "vehicle_type": "car"}, http.StatusBadRequest},
		{"missing coords", "POST", "/api/v1/orders", map[string]any{"client_id": "c9"}, http.StatusBadRequest},
		{"bad pending vehicle", "GET", "/api/v1/orders/pending?vehicle_type=rocket", nil, http.StatusBadRequest},
		{"accept unknown order", "POST", "/api/v1/orders/nope/accept", map[string]string{"driver_id": "d1"}, http.StatusNotFound},
		{"get unknown order", "GET", "/api/v1/orders/nope", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		w := doJSON(t, s, tc.method, tc.path, tc.body)
		if w.Code != tc.want {
			t.Errorf("%s: expected %d, got %d (%s)", tc.name, tc.want, w.Code, w.Body.String())
		}
	}
}

func TestStatusCheckAccepted(t *testing.T) {
	s := testServer()
	id := createOrder(t, s)
	w := doJSON(t, s, "POST", fmt.Sprintf("/api/v1/orders/%s/status-check", id), map[string]string{"client_id": "c1"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status-check: status %d", w.Code)
	}
	s.engine.Shutdown()
}
