// ABOUTME: Serialized message port between the host launcher and the embedded frame
// ABOUTME: Messages cross as JSON bytes; the only defined command is FOCUS

// Package bridge connects the launcher and the frame. Nothing but serialized
// bytes crosses it, so the two sides share no memory.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// DefaultBuffer is the port capacity used when NewPort is given zero.
const DefaultBuffer = 16

// ErrClosed is returned by Post and Receive after Close.
var ErrClosed = errors.New("port closed")

// MessageType names a cross-context command.
type MessageType string

// TypeFocus asks the frame to focus its primary input.
const TypeFocus MessageType = "FOCUS"

// Message is a cross-context command.
type Message struct {
	Type MessageType `json:"type"`
}

// Focus returns the FOCUS message.
func Focus() Message { return Message{Type: TypeFocus} }

// Encode serializes m.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses data. Unknown types decode successfully; receivers ignore them.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decoding port message: %w", err)
	}
	return m, nil
}

// Port is a one-way, buffered channel of serialized messages.
type Port struct {
	ch        chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewPort creates a port holding up to buffer pending messages.
func NewPort(buffer int) *Port {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Port{
		ch:   make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// Post serializes m and queues it. It blocks while the port is full.
func (p *Port) Post(ctx context.Context, m Message) error {
	data, err := Encode(m)
	if err != nil {
		return fmt.Errorf("encoding port message: %w", err)
	}
	return p.PostRaw(ctx, data)
}

// PostRaw queues already serialized bytes. The bytes are copied.
func (p *Port) PostRaw(ctx context.Context, data []byte) error {
	buf := append([]byte(nil), data...)
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.ch <- buf:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits for the next raw message.
func (p *Port) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-p.ch:
		return data, nil
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the port. Pending messages are discarded.
func (p *Port) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}
