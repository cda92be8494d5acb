package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/teslashibe/go-pilot/pkg/joystick"
)

type recordedCall struct {
	method string
	path   string
	body   string
	ctype  string
}

// fakeController records requests and answers with a per-path handler.
type fakeController struct {
	mu     sync.Mutex
	calls  []recordedCall
	status map[string]int
	reply  map[string]string
}

func (f *fakeController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{r.Method, r.URL.Path, string(body), r.Header.Get("Content-Type")})
	status, ok := f.status[r.URL.Path]
	reply := f.reply[r.URL.Path]
	f.mu.Unlock()
	if !ok {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	io.WriteString(w, reply)
}

func (f *fakeController) last() recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newTestClient(t *testing.T, f *fakeController) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL + "/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_RequiresURL(t *testing.T) {
	if _, err := New(""); !errors.Is(err, ErrNoBaseURL) {
		t.Errorf("New(\"\") err = %v, want ErrNoBaseURL", err)
	}
}

func TestSimpleCalls(t *testing.T) {
	f := &fakeController{}
	c := newTestClient(t, f)
	ctx := context.Background()

	calls := []struct {
		name string
		fn   func(context.Context) error
		path string
	}{
		{"connect", c.Connect, PathConnect},
		{"takeoff", c.Takeoff, PathTakeoff},
		{"land", c.Land, PathLand},
		{"video off", c.VideoOff, PathVideoOff},
		{"disconnect", c.Disconnect, PathDisconnect},
	}
	for _, tc := range calls {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.fn(ctx); err != nil {
				t.Fatalf("%s: %v", tc.name, err)
			}
			got := f.last()
			if got.method != http.MethodGet || got.path != tc.path {
				t.Errorf("request = %s %s, want GET %s", got.method, got.path, tc.path)
			}
			if got.body != "" {
				t.Errorf("simple call sent a body: %q", got.body)
			}
		})
	}
}

func TestMove(t *testing.T) {
	f := &fakeController{}
	c := newTestClient(t, f)

	if err := c.Move(context.Background(), joystick.ZR, joystick.Vector{X: -0.25, Y: 1}); err != nil {
		t.Fatalf("Move: %v", err)
	}

	got := f.last()
	if got.method != http.MethodPost || got.path != "/moveZr" {
		t.Errorf("request = %s %s", got.method, got.path)
	}
	if got.ctype != "application/json" {
		t.Errorf("content type = %q", got.ctype)
	}
	var body map[string]float64
	if err := json.Unmarshal([]byte(got.body), &body); err != nil {
		t.Fatalf("body not json: %v", err)
	}
	if body["r"] != -0.25 || body["z"] != 1 || len(body) != 2 {
		t.Errorf("body = %v, want r=-0.25 z=1", body)
	}
}

func TestNon2xxIsAPIError(t *testing.T) {
	f := &fakeController{status: map[string]int{PathTakeoff: 500, "/moveXy": 503}}
	c := newTestClient(t, f)

	err := c.Takeoff(context.Background())
	apiErr, ok := IsAPIError(err)
	if !ok {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != 500 || apiErr.Path != PathTakeoff || !apiErr.IsServerError() {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if apiErr.Message != "Internal Server Error" {
		t.Errorf("message = %q, want status text for empty body", apiErr.Message)
	}

	err = c.Move(context.Background(), joystick.XY, joystick.Vector{})
	if apiErr, ok := IsAPIError(err); !ok || apiErr.StatusCode != 503 {
		t.Errorf("move err = %v", err)
	}
}

func TestOffer(t *testing.T) {
	f := &fakeController{reply: map[string]string{PathOffer: `{"type":"answer","sdp":"v=0\r\n"}`}}
	c := newTestClient(t, f)

	answer, err := c.Offer(context.Background(), Description{SDP: "v=0 offer", Type: "offer"})
	if err != nil {
		t.Fatalf("Offer: %v", err)
	}
	if answer.Type != "answer" || answer.SDP != "v=0\r\n" {
		t.Errorf("answer = %+v", answer)
	}

	var sent Description
	if err := json.Unmarshal([]byte(f.last().body), &sent); err != nil {
		t.Fatalf("offer body: %v", err)
	}
	if sent.Type != "offer" || sent.SDP != "v=0 offer" {
		t.Errorf("sent = %+v", sent)
	}
}

func TestOffer_EmptyBodyIsEmptySuccess(t *testing.T) {
	f := &fakeController{}
	c := newTestClient(t, f)

	answer, err := c.Offer(context.Background(), Description{Type: "offer"})
	if err != nil {
		t.Fatalf("empty body should not be an error: %v", err)
	}
	if answer != (Description{}) {
		t.Errorf("answer = %+v, want empty", answer)
	}
}

func TestOffer_Malformed(t *testing.T) {
	f := &fakeController{reply: map[string]string{PathOffer: `{"sdp":`}}
	c := newTestClient(t, f)

	if _, err := c.Offer(context.Background(), Description{}); !errors.Is(err, ErrBadAnswer) {
		t.Errorf("err = %v, want ErrBadAnswer", err)
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := New(url)
	err := c.Connect(context.Background())
	if err == nil {
		t.Fatal("expected transport error")
	}
	if _, ok := IsAPIError(err); ok {
		t.Error("transport failure must not be an APIError")
	}
}
