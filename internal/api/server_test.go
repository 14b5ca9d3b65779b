package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bryanchriswhite/CamStreamer/internal/acquire"
	"github.com/bryanchriswhite/CamStreamer/internal/config"
	"github.com/bryanchriswhite/CamStreamer/internal/device"
	"github.com/bryanchriswhite/CamStreamer/internal/registry"
)

type fakeHandle struct{}

func (fakeHandle) Read() (image.Image, error) {
	time.Sleep(time.Millisecond)
	return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
}

func (fakeHandle) Release() {}

type fakeOpener struct {
	down map[string]bool
}

func (o *fakeOpener) Open(source string) (device.Handle, error) {
	if o.down[source] {
		return nil, &device.OpenError{Source: source, Err: errors.New("no such device")}
	}
	return fakeHandle{}, nil
}

// newTestServer builds a server over a two-device registry: cam1 streams,
// cam2's device is down but serves a placeholder.
func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()

	cams := map[string]config.Camera{
		"cam1": {
			Source:         "0",
			FPS:            200,
			ReconnectDelay: 0.01,
			Buffer:         config.BufferLatest,
		},
		"cam2": {
			Source:         "1",
			FPS:            200,
			ReconnectDelay: 0.01,
			Buffer:         config.BufferLatest,
			Placeholder:    config.PlaceholderConfig{Enabled: true, Text: "offline"},
		},
	}

	reg, err := registry.New(cams, &fakeOpener{down: map[string]bool{"1": true}})
	if err != nil {
		t.Fatalf("registry.New failed: %v", err)
	}

	ts := httptest.NewServer(NewServer(reg).Handler())
	t.Cleanup(func() {
		ts.Close()
		reg.StopAll()
	})
	return ts, reg
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// TestHealth verifies the health endpoint reports the device count.
func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Status  string `json:"status"`
		Devices int    `json:"devices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.Status != "ok" || body.Devices != 2 {
		t.Errorf("Unexpected body: %+v", body)
	}
}

// TestListDevices verifies the device listing carries names, sources and
// states.
func TestListDevices(t *testing.T) {
	ts, reg := newTestServer(t)
	reg.StartAll()

	resp, err := http.Get(ts.URL + "/api/devices")
	if err != nil {
		t.Fatalf("GET /api/devices: %v", err)
	}
	defer resp.Body.Close()

	var statuses []struct {
		Name   string `json:"name"`
		Source string `json:"source"`
		State  string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(statuses))
	}
	// Names() sorts, so the listing order is stable
	if statuses[0].Name != "cam1" || statuses[1].Name != "cam2" {
		t.Errorf("Unexpected order: %+v", statuses)
	}
	if statuses[0].Source != "0" {
		t.Errorf("Unexpected source: %q", statuses[0].Source)
	}
}

// TestGetDevice verifies the single-device endpoint and its 404 path.
func TestGetDevice(t *testing.T) {
	ts, reg := newTestServer(t)
	reg.StartAll()

	waitFor(t, 2*time.Second, "cam1 streaming", func() bool {
		return reg.Device("cam1").State() == acquire.StateStreaming
	})

	resp, err := http.Get(ts.URL + "/api/devices/cam1")
	if err != nil {
		t.Fatalf("GET /api/devices/cam1: %v", err)
	}
	defer resp.Body.Close()

	var status struct {
		Name  string `json:"name"`
		State string `json:"state"`
		Stats struct {
			Frames uint64 `json:"frames"`
		} `json:"stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if status.Name != "cam1" || status.State != "streaming" {
		t.Errorf("Unexpected status: %+v", status)
	}

	resp, err = http.Get(ts.URL + "/api/devices/nope")
	if err != nil {
		t.Fatalf("GET /api/devices/nope: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown device, got %d", resp.StatusCode)
	}
}

// TestDeviceControl verifies the start/pause/resume/stop actions drive the
// loop state.
func TestDeviceControl(t *testing.T) {
	ts, reg := newTestServer(t)

	post := func(path string) int {
		t.Helper()
		resp, err := http.Post(ts.URL+path, "", nil)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := post("/api/devices/cam1/start"); code != http.StatusNoContent {
		t.Fatalf("start: expected 204, got %d", code)
	}
	waitFor(t, 2*time.Second, "cam1 streaming", func() bool {
		return reg.Device("cam1").State() == acquire.StateStreaming
	})

	if code := post("/api/devices/cam1/pause"); code != http.StatusNoContent {
		t.Fatalf("pause: expected 204, got %d", code)
	}
	if got := reg.Device("cam1").State(); got != acquire.StatePaused {
		t.Errorf("Expected paused, got %v", got)
	}

	if code := post("/api/devices/cam1/resume"); code != http.StatusNoContent {
		t.Fatalf("resume: expected 204, got %d", code)
	}
	waitFor(t, 2*time.Second, "cam1 streaming after resume", func() bool {
		return reg.Device("cam1").State() == acquire.StateStreaming
	})

	if code := post("/api/devices/cam1/stop"); code != http.StatusNoContent {
		t.Fatalf("stop: expected 204, got %d", code)
	}
	if got := reg.Device("cam1").State(); got != acquire.StateStopped {
		t.Errorf("Expected stopped, got %v", got)
	}

	if code := post("/api/devices/nope/start"); code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown device, got %d", code)
	}
}

// TestBulkControl verifies registry-wide actions.
func TestBulkControl(t *testing.T) {
	ts, reg := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/registry/start", "", nil)
	if err != nil {
		t.Fatalf("POST /api/registry/start: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", resp.StatusCode)
	}

	waitFor(t, 2*time.Second, "cam1 streaming", func() bool {
		return reg.Device("cam1").State() == acquire.StateStreaming
	})

	resp, err = http.Post(ts.URL+"/api/registry/stop", "", nil)
	if err != nil {
		t.Fatalf("POST /api/registry/stop: %v", err)
	}
	resp.Body.Close()
	for name, state := range reg.States() {
		if state != acquire.StateStopped {
			t.Errorf("Expected %s stopped, got %v", name, state)
		}
	}
}

// TestSetRate verifies the rate endpoint accepts a body and rejects garbage.
func TestSetRate(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/devices/cam1/rate",
		bytes.NewBufferString(`{"fps": 5}`))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT rate: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodPut, ts.URL+"/api/devices/cam1/rate",
		bytes.NewBufferString(`{`))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT rate: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", resp.StatusCode)
	}
}

// TestSnapshotPlaceholder verifies the frame endpoint serves a JPEG for an
// unavailable device with placeholders enabled.
func TestSnapshotPlaceholder(t *testing.T) {
	ts, reg := newTestServer(t)
	reg.StartAll()

	resp, err := http.Get(ts.URL + "/api/devices/cam2/frame")
	if err != nil {
		t.Fatalf("GET frame: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %q", ct)
	}
}

// TestSnapshotLive verifies the frame endpoint serves an acquired frame.
func TestSnapshotLive(t *testing.T) {
	ts, reg := newTestServer(t)
	reg.StartAll()

	waitFor(t, 2*time.Second, "cam1 frame", func() bool {
		_, ok := reg.FrameOf("cam1")
		return ok
	})

	resp, err := http.Get(ts.URL + "/api/devices/cam1/frame")
	if err != nil {
		t.Fatalf("GET frame: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %q", ct)
	}
}

// TestCORSPreflight verifies OPTIONS requests short-circuit with the CORS
// headers set.
func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/devices", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard origin, got %q", got)
	}
}
