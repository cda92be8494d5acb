package video_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-pilot/pkg/controller"
	"github.com/teslashibe/go-pilot/pkg/controller/controllertest"
	"github.com/teslashibe/go-pilot/pkg/video"
)

// fakeOfferer records offers and answers with a fixed result.
type fakeOfferer struct {
	mu     sync.Mutex
	offers []controller.Description
	answer controller.Description
	err    error
	block  bool
	called chan struct{}
}

func (f *fakeOfferer) Offer(ctx context.Context, desc controller.Description) (controller.Description, error) {
	f.mu.Lock()
	f.offers = append(f.offers, desc)
	block, called := f.block, f.called
	f.mu.Unlock()

	if called != nil {
		called <- struct{}{}
	}
	if block {
		<-ctx.Done()
		return controller.Description{}, ctx.Err()
	}
	return f.answer, f.err
}

func (f *fakeOfferer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.offers)
}

func TestTeardownWithoutSession(t *testing.T) {
	n := video.New(&fakeOfferer{}, nil)
	n.Teardown()
	n.Teardown()
	if n.Status().Active {
		t.Error("status active without a session")
	}
	if err := n.RequestKeyframe(); !errors.Is(err, video.ErrNoSession) {
		t.Errorf("RequestKeyframe() = %v, want ErrNoSession", err)
	}
}

func TestStartPostsGatheredOffer(t *testing.T) {
	off := &fakeOfferer{err: errors.New("controller down")}
	n := video.New(off, nil, video.WithKeyframeInterval(0))
	defer n.Teardown()

	err := n.Start(context.Background())
	if err == nil {
		t.Fatal("Start succeeded with failing controller")
	}
	if off.count() != 1 {
		t.Fatalf("offers = %d, want 1", off.count())
	}
	desc := off.offers[0]
	if desc.Type != "offer" || desc.SDP == "" {
		t.Errorf("offer = %q with %d bytes of sdp", desc.Type, len(desc.SDP))
	}

	// A failed negotiation keeps its session until teardown.
	st := n.Status()
	if !st.Active || st.Answered {
		t.Errorf("status = %+v, want active and unanswered", st)
	}
	if err := n.Start(context.Background()); !errors.Is(err, video.ErrSessionActive) {
		t.Errorf("second Start = %v, want ErrSessionActive", err)
	}

	n.Teardown()
	n.Teardown()
	if n.Status().Active {
		t.Error("session survived teardown")
	}
}

func TestStartRejectsEmptyAnswer(t *testing.T) {
	n := video.New(&fakeOfferer{}, nil, video.WithKeyframeInterval(0))
	defer n.Teardown()
	if err := n.Start(context.Background()); !errors.Is(err, video.ErrEmptyAnswer) {
		t.Errorf("Start = %v, want ErrEmptyAnswer", err)
	}
}

func TestTeardownDuringNegotiation(t *testing.T) {
	off := &fakeOfferer{block: true, called: make(chan struct{}, 1)}
	n := video.New(off, nil, video.WithKeyframeInterval(0))

	done := make(chan error, 1)
	go func() { done <- n.Start(context.Background()) }()

	select {
	case <-off.called:
	case <-time.After(5 * time.Second):
		t.Fatal("offer never posted")
	}
	n.Teardown()

	select {
	case err := <-done:
		if !errors.Is(err, video.ErrSessionClosed) {
			t.Errorf("Start = %v, want ErrSessionClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after teardown")
	}
	n.Teardown()
}

func TestNegotiateWithSimulator(t *testing.T) {
	api, err := controllertest.LoopbackAPI()
	if err != nil {
		t.Fatal(err)
	}
	sim := controllertest.New(controllertest.WithAPI(api), controllertest.WithWatchdog(0))
	defer sim.Close()
	srv := httptest.NewServer(sim.Handler())
	defer srv.Close()

	client, err := controller.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	display := &video.Display{}
	frames := video.NewFrameSink()
	n := video.New(client, video.MultiSink{display, frames},
		video.WithAPI(api),
		video.WithKeyframeInterval(50*time.Millisecond),
	)
	tracks := make(chan video.TrackInfo, 1)
	n.OnTrack(func(info video.TrackInfo) { tracks <- info })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := n.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	st := n.Status()
	if !st.Active || !st.Answered || st.SessionID == "" {
		t.Fatalf("status = %+v, want active and answered", st)
	}
	if sim.Count(controller.PathOffer) != 1 {
		t.Errorf("offers = %d, want 1", sim.Count(controller.PathOffer))
	}

	select {
	case info := <-tracks:
		if info.SessionID != st.SessionID {
			t.Errorf("track session = %q, want %q", info.SessionID, st.SessionID)
		}
		if _, _, ok := display.Populated(); !ok {
			t.Error("display empty after track attached")
		}
	case <-time.After(5 * time.Second):
		t.Log("no media path between local peers; skipping track checks")
	}

	n.Teardown()
	n.Teardown()
	if n.Status().Active {
		t.Error("session survived teardown")
	}
	if _, _, ok := display.Populated(); ok {
		t.Error("display populated after teardown")
	}
}

func TestStartWithDoneContextRegistersNothing(t *testing.T) {
	off := &fakeOfferer{}
	n := video.New(off, nil, video.WithKeyframeInterval(0))
	defer n.Teardown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Start(ctx); !errors.Is(err, video.ErrSessionClosed) {
		t.Fatalf("Start() = %v, want ErrSessionClosed", err)
	}
	if n.Status().Active {
		t.Error("session registered for a cancelled start")
	}
	if off.count() != 0 {
		t.Errorf("offers = %d, want 0", off.count())
	}
}
