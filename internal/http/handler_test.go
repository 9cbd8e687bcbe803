package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"scan-service/internal/config"
	"scan-service/internal/domain/scan"
	"scan-service/internal/engine"
	"scan-service/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router      *gin.Engine
	coordinator *service.Coordinator
}

func newTestServer(t *testing.T, devices []scan.CameraDevice, secret string) *testServer {
	t.Helper()
	log := zerolog.Nop()

	feed := engine.NewFeed(devices, 8)
	adapter := engine.NewAdapter(feed, feed, log)
	notifications := service.NewNotificationLog(10)
	enricher := service.NewStaticEnricher([]scan.EnrichedInfo{{Code: "ABC123", Name: "Ada Lovelace"}})
	coordinator := service.NewCoordinator(adapter, enricher, notifications, service.DefaultOptions(), log)
	t.Cleanup(func() {
		coordinator.StopScanning()
		coordinator.Wait()
	})

	cfg := &config.Config{}
	cfg.Auth.JWTSecret = secret

	h := NewHandler(coordinator, feed, adapter, notifications, log)
	return &testServer{router: NewRouter(h, cfg, log), coordinator: coordinator}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response %s: %v", w.Body.String(), err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("decode data %s: %v", envelope.Data, err)
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within 2s")
}

var handlerDevices = []scan.CameraDevice{
	{ID: "cam-front", Label: "Front Camera"},
	{ID: "cam-back", Label: "Back Camera"},
}

func TestHandler_ScanFlow(t *testing.T) {
	s := newTestServer(t, handlerDevices, "")

	w := s.do(t, http.MethodPost, "/api/v1/scanner/start", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", w.Code, w.Body.String())
	}
	var st service.Status
	decodeData(t, w, &st)
	if st.State != scan.StateActive || st.DeviceID != "cam-back" {
		t.Fatalf("status = %+v", st)
	}

	w = s.do(t, http.MethodPost, "/api/v1/devices/cam-back/attempts", gin.H{"payload": "ABC123", "format": "qr_code"}, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("push status = %d, body %s", w.Code, w.Body.String())
	}

	eventually(t, func() bool {
		events := s.coordinator.History()
		return len(events) == 1 && events[0].Enrichment != nil
	})

	w = s.do(t, http.MethodGet, "/api/v1/scanner/history", nil, nil)
	var events []scan.ScanEvent
	decodeData(t, w, &events)
	if len(events) != 1 || events[0].Payload != "ABC123" {
		t.Fatalf("history = %+v", events)
	}
	if events[0].Enrichment == nil || events[0].Enrichment.Name != "Ada Lovelace" {
		t.Errorf("enrichment = %+v", events[0].Enrichment)
	}

	w = s.do(t, http.MethodPost, "/api/v1/scanner/resume", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("resume status = %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/v1/scanner/stats", nil, nil)
	var stats service.Stats
	decodeData(t, w, &stats)
	if stats.Accepted != 1 {
		t.Errorf("stats = %+v", stats)
	}

	w = s.do(t, http.MethodPost, "/api/v1/scanner/stop", nil, nil)
	decodeData(t, w, &st)
	if st.State != scan.StateIdle {
		t.Errorf("state after stop = %q", st.State)
	}

	w = s.do(t, http.MethodPost, "/api/v1/devices/cam-back/attempts", gin.H{"payload": "XYZ"}, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("push after stop status = %d, want 409", w.Code)
	}

	w = s.do(t, http.MethodDelete, "/api/v1/scanner/history", nil, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("clear status = %d", w.Code)
	}
	if n := len(s.coordinator.History()); n != 0 {
		t.Errorf("history has %d events after clear", n)
	}

	w = s.do(t, http.MethodGet, "/api/v1/notifications", nil, nil)
	var notes []scan.Notification
	decodeData(t, w, &notes)
	if len(notes) == 0 || notes[0].Title != "History cleared" {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestHandler_StartWithExplicitDevice(t *testing.T) {
	s := newTestServer(t, handlerDevices, "")

	w := s.do(t, http.MethodPost, "/api/v1/scanner/start", gin.H{"device_id": "cam-front"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", w.Code, w.Body.String())
	}
	var st service.Status
	decodeData(t, w, &st)
	if st.DeviceID != "cam-front" {
		t.Errorf("device = %q, want cam-front", st.DeviceID)
	}

	s.do(t, http.MethodPost, "/api/v1/scanner/stop", nil, nil)
	w = s.do(t, http.MethodPost, "/api/v1/scanner/start", gin.H{"device_id": "cam-side"}, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", w.Code)
	}
}

func TestHandler_NotFoundAttemptIsAccepted(t *testing.T) {
	s := newTestServer(t, handlerDevices, "")
	s.do(t, http.MethodPost, "/api/v1/scanner/start", nil, nil)

	w := s.do(t, http.MethodPost, "/api/v1/devices/cam-back/attempts", gin.H{"found": false}, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	eventually(t, func() bool { return s.coordinator.Stats().NotFound == 1 })
	if n := len(s.coordinator.History()); n != 0 {
		t.Errorf("history has %d events", n)
	}
}

func TestHandler_Errors(t *testing.T) {
	s := newTestServer(t, handlerDevices, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"resume while idle", http.MethodPost, "/api/v1/scanner/resume", nil, http.StatusConflict},
		{"unknown device", http.MethodPost, "/api/v1/devices/cam-x/attempts", gin.H{"payload": "A"}, http.StatusNotFound},
		{"not streaming", http.MethodPost, "/api/v1/devices/cam-front/attempts", gin.H{"payload": "A"}, http.StatusConflict},
		{"found without payload", http.MethodPost, "/api/v1/devices/cam-front/attempts", gin.H{"found": true}, http.StatusBadRequest},
		{"found with blank payload", http.MethodPost, "/api/v1/devices/cam-front/attempts", gin.H{"found": true, "payload": "  \t "}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.body, nil)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandler_StartWithoutCameras(t *testing.T) {
	s := newTestServer(t, nil, "")

	w := s.do(t, http.MethodPost, "/api/v1/scanner/start", nil, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if st := s.coordinator.Status(); st.State != scan.StateIdle {
		t.Errorf("state = %q, want idle", st.State)
	}

	w = s.do(t, http.MethodGet, "/api/v1/devices", nil, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("devices status = %d, want 409", w.Code)
	}
}

func TestHandler_ListDevices(t *testing.T) {
	s := newTestServer(t, handlerDevices, "")

	w := s.do(t, http.MethodGet, "/api/v1/devices", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Data      []scan.CameraDevice `json:"data"`
		Preferred string              `json:"preferred"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 2 || body.Preferred != "cam-back" {
		t.Errorf("body = %+v", body)
	}
}

func TestHandler_Auth(t *testing.T) {
	const secret = "test-secret"
	s := newTestServer(t, handlerDevices, secret)

	w := s.do(t, http.MethodGet, "/api/v1/scanner", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}

	bad := http.Header{"Authorization": {"Bearer not-a-jwt"}}
	if w := s.do(t, http.MethodGet, "/api/v1/scanner", nil, bad); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", w.Code)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "operator-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	good := http.Header{"Authorization": {"Bearer " + signed}}
	if w := s.do(t, http.MethodGet, "/api/v1/scanner", nil, good); w.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", w.Code)
	}

	// The edge feed stays public.
	if w := s.do(t, http.MethodPost, "/api/v1/devices/cam-back/attempts", gin.H{"payload": "A"}, nil); w.Code == http.StatusUnauthorized {
		t.Errorf("feed endpoint required auth")
	}
}
