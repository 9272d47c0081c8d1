package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"nestwatch/cmd/internal/emergency"
	"nestwatch/cmd/internal/session"
	"nestwatch/cmd/internal/verify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type seqIssuer struct {
	mu sync.Mutex
	n  int
}

func (f *seqIssuer) Issue(string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return fmt.Sprintf("tok-%d", f.n), nil
}

func (f *seqIssuer) Invalidate(string) {}

func newTestServer(t *testing.T) (*httptest.Server, *session.Registry) {
	t.Helper()

	registry := session.NewRegistry(testLogger(), &seqIssuer{}, session.NewEventLog(0), nil, nil)
	t.Cleanup(func() { _ = registry.Close() })

	verifier := verify.NewVerifier(verify.DefaultThreshold)
	dispatcher := emergency.NewDispatcher(testLogger(), registry, nil)

	mux := http.NewServeMux()
	NewHandler(testLogger(), registry, verifier, dispatcher).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, registry
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func startSession(t *testing.T, srv *httptest.Server) startResponse {
	t.Helper()
	resp := postJSON(t, srv.URL+"/sessions/start", `{"bookingId":"bk-1","intervalSec":60,"graceSec":10}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d", resp.StatusCode)
	}
	return decodeBody[startResponse](t, resp)
}

func TestStartCheckInStopFlow(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	started := startSession(t, srv)

	if started.SessionID == "" || started.Token == "" {
		t.Fatalf("start must return id and token: %+v", started)
	}
	if started.Status != session.StatusActive || started.IntervalSec != 60 {
		t.Fatalf("unexpected start response: %+v", started)
	}

	resp := postJSON(t, srv.URL+"/sessions/"+started.SessionID+"/check-in", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("check-in: expected 200, got %d", resp.StatusCode)
	}
	checkIn := decodeBody[checkInResponse](t, resp)
	if !checkIn.OK || checkIn.Status != session.StatusActive {
		t.Fatalf("unexpected check-in response: %+v", checkIn)
	}
	if checkIn.Token == "" || checkIn.Token == started.Token {
		t.Fatalf("check-in must rotate the token")
	}

	resp = postJSON(t, srv.URL+"/sessions/"+started.SessionID+"/stop", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d", resp.StatusCode)
	}
	stop := decodeBody[stopResponse](t, resp)
	if !stop.OK || stop.Status != session.StatusStopped {
		t.Fatalf("unexpected stop response: %+v", stop)
	}

	// Second stop conflicts.
	resp = postJSON(t, srv.URL+"/sessions/"+started.SessionID+"/stop", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second stop: expected 409, got %d", resp.StatusCode)
	}
	errResp := decodeBody[errorResponse](t, resp)
	if errResp.Error.Kind != kindAlreadyStopped {
		t.Fatalf("expected kind %q, got %q", kindAlreadyStopped, errResp.Error.Kind)
	}
}

func TestStartUsesDefaultsWithEmptyBody(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/sessions/start", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	started := decodeBody[startResponse](t, resp)
	if started.IntervalSec != int64(session.DefaultInterval.Seconds()) {
		t.Fatalf("expected default interval, got %d", started.IntervalSec)
	}
	if started.GraceSec != int64(session.DefaultGrace.Seconds()) {
		t.Fatalf("expected default grace, got %d", started.GraceSec)
	}
}

func TestStartRejectsBadInput(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{name: "interval too short", body: `{"intervalSec":1}`},
		{name: "grace too long", body: `{"intervalSec":60,"graceSec":999}`},
		{name: "unknown field", body: `{"cadence":60}`},
		{name: "trailing garbage", body: `{"intervalSec":60}{"x":1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/sessions/start", tc.body)
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestStatusAndEventsEndpoints(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	started := startSession(t, srv)

	resp, err := http.Get(srv.URL + "/sessions/" + started.SessionID + "/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", resp.StatusCode)
	}
	status := decodeBody[statusResponse](t, resp)
	if status.SessionID != started.SessionID || status.Status != session.StatusActive {
		t.Fatalf("unexpected status response: %+v", status)
	}
	if status.CountdownSec <= 0 || status.CountdownSec > 60 {
		t.Fatalf("countdown out of range: %d", status.CountdownSec)
	}

	resp, err = http.Get(srv.URL + "/sessions/" + started.SessionID + "/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("events: expected 200, got %d", resp.StatusCode)
	}
	events := decodeBody[eventsResponse](t, resp)
	if len(events.Events) != 1 || events.Events[0].Type != session.EventStart {
		t.Fatalf("expected single start event, got %+v", events.Events)
	}

	// Unknown session id.
	resp, err = http.Get(srv.URL + "/sessions/does-not-exist/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session: expected 404, got %d", resp.StatusCode)
	}
	errResp := decodeBody[errorResponse](t, resp)
	if errResp.Error.Kind != kindNotFound {
		t.Fatalf("expected kind %q, got %q", kindNotFound, errResp.Error.Kind)
	}
}

func TestShareAndGeoEndpoints(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	started := startSession(t, srv)

	resp := postJSON(t, srv.URL+"/sessions/"+started.SessionID+"/share", `{"contacts":["mom@example.com","dad@example.com"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("share: expected 200, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = postJSON(t, srv.URL+"/sessions/"+started.SessionID+"/geo", `{"enabled":true,"radius":150,"center":{"lat":52.52,"lng":13.405}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("geo: expected 200, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = postJSON(t, srv.URL+"/sessions/"+started.SessionID+"/geo", `{"enabled":true,"radius":150}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("geo without center: expected 400, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func encodePNG(t *testing.T, c color.RGBA) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestVerifyArrivalEndpoint(t *testing.T) {
	t.Parallel()

	srv, registry := newTestServer(t)
	started := startSession(t, srv)

	img := encodePNG(t, color.RGBA{R: 120, G: 80, B: 40, A: 255})

	resp, err := http.Post(srv.URL+"/verify/reference/child-1", "image/png", bytes.NewReader(img))
	if err != nil {
		t.Fatalf("store reference: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("store reference: expected 200, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	url := srv.URL + "/verify/arrival?subjectId=child-1&sessionId=" + started.SessionID
	resp, err = http.Post(url, "image/png", bytes.NewReader(img))
	if err != nil {
		t.Fatalf("verify arrival: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify arrival: expected 200, got %d", resp.StatusCode)
	}
	res := decodeBody[verifyResponse](t, resp)
	if !res.Verified || res.Score < 0.999 {
		t.Fatalf("identical image must verify, got %+v", res)
	}

	// The outcome lands in the session's event log when sessionId is given.
	events, err := registry.Events(started.SessionID)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if events[0].Type != session.EventArrival {
		t.Fatalf("expected arrival event, got %s", events[0].Type)
	}

	// Unknown subject yields 404 with its own kind.
	resp, err = http.Post(srv.URL+"/verify/arrival?subjectId=nobody", "image/png", bytes.NewReader(img))
	if err != nil {
		t.Fatalf("verify arrival: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown subject: expected 404, got %d", resp.StatusCode)
	}
	errResp := decodeBody[errorResponse](t, resp)
	if errResp.Error.Kind != kindNoReference {
		t.Fatalf("expected kind %q, got %q", kindNoReference, errResp.Error.Kind)
	}
}

func TestDeleteReferenceEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	img := encodePNG(t, color.RGBA{R: 90, G: 90, B: 90, A: 255})

	resp, err := http.Post(srv.URL+"/verify/reference/child-1", "image/png", bytes.NewReader(img))
	if err != nil {
		t.Fatalf("store reference: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("store reference: expected 200, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/verify/reference/child-1", nil)
	if err != nil {
		t.Fatalf("build delete: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete reference: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete reference: expected 200, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp, err = http.Post(srv.URL+"/verify/arrival?subjectId=child-1", "image/png", bytes.NewReader(img))
	if err != nil {
		t.Fatalf("verify arrival: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("after delete: expected 404, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestEmergencyTriggerEndpoint(t *testing.T) {
	t.Parallel()

	srv, registry := newTestServer(t)
	started := startSession(t, srv)

	body := `{"sessionId":"` + started.SessionID + `","contacts":["mom@example.com"],"message":"help"}`
	resp := postJSON(t, srv.URL+"/emergency/trigger", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("trigger: expected 200, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	events, err := registry.Events(started.SessionID)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if events[0].Type != session.EventPanic {
		t.Fatalf("expected panic event recorded, got %s", events[0].Type)
	}

	// Missing sessionId is a validation error, unknown session a 404.
	resp = postJSON(t, srv.URL+"/emergency/trigger", `{"contacts":["mom@example.com"]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing sessionId: expected 400, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = postJSON(t, srv.URL+"/emergency/trigger", `{"sessionId":"nope"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session: expected 404, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}
