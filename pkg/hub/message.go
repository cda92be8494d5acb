// Package hub fans messages out to websocket clients. One goroutine owns the
// client set; each client has its own write pump.
package hub

import (
	"slices"

	"github.com/gofiber/websocket/v2"
)

// Part is one websocket frame of a Message.
type Part struct {
	Opcode int
	Data   []byte
}

// Message is one or more frames written back to back to each client. A
// frame header and the access unit it describes go out as one Message so
// no other broadcast lands between them.
type Message struct {
	Parts []Part

	// Sync marks a point a client can start from, such as a status snapshot
	// or a keyframe. The hub replays the latest one to every new client.
	Sync bool
}

// Text wraps pre-encoded JSON as a single text frame.
func Text(data []byte) Message {
	return Message{Parts: []Part{{Opcode: websocket.TextMessage, Data: data}}}
}

// Binary wraps raw bytes as a single binary frame.
func Binary(data []byte) Message {
	return Message{Parts: []Part{{Opcode: websocket.BinaryMessage, Data: data}}}
}

// Followed appends the frames of next after those of m.
func (m Message) Followed(next Message) Message {
	m.Parts = append(slices.Clip(m.Parts), next.Parts...)
	return m
}

// Synced returns m marked as a replay point when sync is true.
func (m Message) Synced(sync bool) Message {
	m.Sync = m.Sync || sync
	return m
}

// Size is the payload byte count across all frames.
func (m Message) Size() int {
	n := 0
	for _, p := range m.Parts {
		n += len(p.Data)
	}
	return n
}
