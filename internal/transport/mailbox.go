// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package transport

import (
	"fmt"
	"sync"

	"github.com/vast-io/vast/internal/verrors"
)

// Mailbox is a one-way, FIFO message conduit between a sender and a
// receiver.
type Mailbox interface {
	Send(data []byte) error
	Receive() <-chan []byte
	Close() error
}

// ChanMailbox is the in-process Mailbox: a buffered channel with a
// close-once guard. Send after Close is a protocol violation, not a panic.
type ChanMailbox struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

// NewChanMailbox returns a ChanMailbox buffering up to depth messages.
func NewChanMailbox(depth int) *ChanMailbox {
	if depth <= 0 {
		depth = 64
	}
	return &ChanMailbox{ch: make(chan []byte, depth)}
}

func (m *ChanMailbox) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("%w: send on closed mailbox", verrors.ProtocolViolation)
	}
	m.ch <- data
	return nil
}

func (m *ChanMailbox) Receive() <-chan []byte { return m.ch }

func (m *ChanMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.ch)
	return nil
}

// NatsMailbox is a Mailbox over one NATS subject.
type NatsMailbox struct {
	client  *Client
	subject string
	ch      chan []byte
}

// NewNatsMailbox subscribes to subject on client and funnels incoming
// messages into the Receive channel. Send publishes to the same subject.
func NewNatsMailbox(client *Client, subject string, depth int) (*NatsMailbox, error) {
	if depth <= 0 {
		depth = 64
	}
	m := &NatsMailbox{client: client, subject: subject, ch: make(chan []byte, depth)}
	err := client.Subscribe(subject, func(_ string, data []byte) {
		m.ch <- data
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *NatsMailbox) Send(data []byte) error {
	return m.client.Publish(m.subject, data)
}

func (m *NatsMailbox) Receive() <-chan []byte { return m.ch }

func (m *NatsMailbox) Close() error {
	close(m.ch)
	return nil
}
