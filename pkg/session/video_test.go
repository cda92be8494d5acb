package session

import (
	"context"
	"errors"
	"testing"

	"github.com/teslashibe/go-pilot/pkg/controller"
	"github.com/teslashibe/go-pilot/pkg/video"
)

// refusingOfferer fails every offer, leaving a failed session behind.
type refusingOfferer struct{}

func (refusingOfferer) Offer(context.Context, controller.Description) (controller.Description, error) {
	return controller.Description{}, errors.New("controller down")
}

func TestVideoOffRightAfterVideoOnLeavesNoSession(t *testing.T) {
	n := video.New(refusingOfferer{}, nil, video.WithKeyframeInterval(0))
	defer n.Teardown()
	m := New(&mockController{}, n)
	m.Connect()

	for i := 0; i < 10; i++ {
		if !m.VideoOn() {
			t.Fatalf("round %d: video-on rejected", i)
		}
		if !m.VideoOff() {
			t.Fatalf("round %d: video-off rejected", i)
		}
		m.Wait()
		if m.State() != Connected {
			t.Fatalf("round %d: state = %v, want connected", i, m.State())
		}
		if n.Status().Active {
			t.Fatalf("round %d: session still active after video-off", i)
		}
	}

	// The next negotiation gets a fresh session instead of ErrSessionActive.
	m.VideoOn()
	m.Wait()
	if !n.Status().Active {
		t.Error("no session after video-on following video-off")
	}
	m.VideoOff()
	m.Wait()
	if n.Status().Active {
		t.Error("session active after final video-off")
	}
}

func TestDisconnectRightAfterVideoOnLeavesNoSession(t *testing.T) {
	n := video.New(refusingOfferer{}, nil, video.WithKeyframeInterval(0))
	defer n.Teardown()
	m := New(&mockController{}, n)
	m.Connect()

	m.VideoOn()
	if !m.Disconnect() {
		t.Fatal("disconnect rejected")
	}
	m.Wait()
	if n.Status().Active {
		t.Error("session still active after disconnect")
	}
}
