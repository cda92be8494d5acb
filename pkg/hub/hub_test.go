package hub

import (
	"bytes"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	fws "github.com/gofiber/websocket/v2"
	"github.com/gorilla/websocket"
)

func TestBroadcastDropsWhenQueueFull(t *testing.T) {
	h := New("test")

	// Without Run nothing drains the queue.
	for i := 0; i < cap(h.broadcast)+3; i++ {
		h.BroadcastBinary([]byte{byte(i)})
	}
	if got := h.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", h.ClientCount())
	}
}

func TestBroadcastJSONRejectsUnencodable(t *testing.T) {
	h := New("test")
	if err := h.BroadcastJSON(make(chan int)); err == nil {
		t.Error("expected an encoding error")
	}
	if err := h.Retain(func() {}); err == nil {
		t.Error("expected an encoding error")
	}
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServeDeliversRetainedThenBroadcasts(t *testing.T) {
	h := New("status")
	go h.Run()
	defer h.Stop()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", fws.New(h.Serve))
	go app.Listen(":18096")
	defer app.Shutdown()

	if err := h.Retain(map[string]string{"state": "connected"}); err != nil {
		t.Fatalf("Retain: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18096/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	typ, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read retained: %v", err)
	}
	if typ != websocket.TextMessage || string(data) != `{"state":"connected"}` {
		t.Errorf("retained = %d %s", typ, data)
	}

	waitClients(t, h, 1)
	h.BroadcastBinary([]byte{0, 0, 0, 1, 0x65})

	typ, data, err = ws.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if typ != websocket.BinaryMessage || !bytes.Equal(data, []byte{0, 0, 0, 1, 0x65}) {
		t.Errorf("broadcast = %d %v", typ, data)
	}

	h.Stop()
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("expected the connection to close after Stop")
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	h := New("video")
	go h.Run()
	defer h.Stop()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", fws.New(h.Serve))
	go app.Listen(":18097")
	defer app.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18097/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitClients(t, h, 1)

	ws.Close()
	waitClients(t, h, 0)
}

func TestMessageFraming(t *testing.T) {
	msg := Text([]byte(`{"seq":1}`)).Followed(Binary([]byte{0, 0, 1, 0x65})).Synced(true)
	if len(msg.Parts) != 2 {
		t.Fatalf("parts = %d, want 2", len(msg.Parts))
	}
	if msg.Parts[0].Opcode != fws.TextMessage || msg.Parts[1].Opcode != fws.BinaryMessage {
		t.Errorf("opcodes = %d, %d", msg.Parts[0].Opcode, msg.Parts[1].Opcode)
	}
	if !msg.Sync || msg.Size() != 13 {
		t.Errorf("sync = %v size = %d, want true 13", msg.Sync, msg.Size())
	}
	if !msg.Synced(false).Sync {
		t.Error("Synced(false) cleared an existing sync mark")
	}

	// Followed never writes into the receiver's backing array.
	base := Text([]byte("a"))
	first := base.Followed(Binary([]byte("b")))
	second := base.Followed(Binary([]byte("c")))
	if string(first.Parts[1].Data) != "b" || string(second.Parts[1].Data) != "c" {
		t.Errorf("parts shared: %q %q", first.Parts[1].Data, second.Parts[1].Data)
	}
}

func TestDroppedSyncFrameStillRetained(t *testing.T) {
	h := New("video")
	for i := 0; i < cap(h.broadcast); i++ {
		h.BroadcastBinary([]byte{byte(i)})
	}
	if err := h.BroadcastFrame(map[string]int{"seq": 9}, []byte{0x65}, true); err != nil {
		t.Fatalf("BroadcastFrame: %v", err)
	}
	if h.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", h.Dropped())
	}
	h.mu.RLock()
	retained := h.retained
	h.mu.RUnlock()
	if retained == nil || len(retained.Parts) != 2 {
		t.Fatalf("retained = %+v, want the dropped keyframe", retained)
	}
}

func TestLateViewerStartsAtLastKeyframe(t *testing.T) {
	h := New("video")
	go h.Run()
	defer h.Stop()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", fws.New(h.Serve))
	go app.Listen(":18099")
	defer app.Shutdown()

	if err := h.BroadcastFrame(map[string]int{"seq": 1}, []byte{0x65}, true); err != nil {
		t.Fatalf("BroadcastFrame: %v", err)
	}
	if err := h.BroadcastFrame(map[string]int{"seq": 2}, []byte{0x41}, false); err != nil {
		t.Fatalf("BroadcastFrame: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18099/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	typ, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if typ != websocket.TextMessage || string(data) != `{"seq":1}` {
		t.Errorf("header = %d %s, want the keyframe header", typ, data)
	}
	typ, data, err = ws.ReadMessage()
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if typ != websocket.BinaryMessage || !bytes.Equal(data, []byte{0x65}) {
		t.Errorf("payload = %d %v, want the keyframe", typ, data)
	}
}
