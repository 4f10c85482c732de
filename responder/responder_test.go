// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package responder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/dhbridge/lib/buffer"
	"github.com/bureau-foundation/dhbridge/lib/clock"
	"github.com/bureau-foundation/dhbridge/lib/envelope"
	"github.com/bureau-foundation/dhbridge/lib/testutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEnclave stamps the session id into its messages and echoes
// requests. Failures are switched on per call type.
type fakeEnclave struct {
	mu           sync.Mutex
	live         map[envelope.SessionID]bool
	ended        []envelope.SessionID
	startErr     error
	exchangeErr  error
	requestErr   error
	replyPadding int
}

func newFakeEnclave() *fakeEnclave {
	return &fakeEnclave{live: make(map[envelope.SessionID]bool)}
}

func (f *fakeEnclave) StartSession(id envelope.SessionID) (envelope.DHMsg1, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return envelope.DHMsg1{}, f.startErr
	}
	f.live[id] = true
	var msg1 envelope.DHMsg1
	msg1[0] = byte(id)
	return msg1, nil
}

func (f *fakeEnclave) ExchangeReport(id envelope.SessionID, msg2 *envelope.DHMsg2) (envelope.DHMsg3, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exchangeErr != nil {
		return envelope.DHMsg3{}, f.exchangeErr
	}
	var msg3 envelope.DHMsg3
	msg3[0] = msg2[0] + 1
	return msg3, nil
}

func (f *fakeEnclave) HandleRequest(_ context.Context, _ envelope.SessionID, request []byte, maxResponseSize uint64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return append(append([]byte(nil), request...), make([]byte, f.replyPadding)...), nil
}

func (f *fakeEnclave) EndSession(id envelope.SessionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, id)
	f.ended = append(f.ended, id)
}

func newResponder(t *testing.T, enclave Enclave, configure func(*Config)) *Responder {
	t.Helper()
	config := Config{Enclave: enclave, Logger: testLogger(), Clock: clock.Fake(epoch)}
	if configure != nil {
		configure(&config)
	}
	r, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

// exchange sends body and decodes the reply.
func exchange(t *testing.T, r *Responder, body envelope.Body) envelope.Body {
	t.Helper()
	reply, err := r.HandleEnvelope(context.Background(), envelope.Encode(body))
	if err != nil {
		t.Fatalf("HandleEnvelope(%s): %v", body.Kind(), err)
	}
	decoded, err := envelope.Decode(reply)
	if err != nil {
		t.Fatalf("decoding reply to %s: %v", body.Kind(), err)
	}
	return decoded.Body
}

func requireStatus(t *testing.T, body envelope.Body, want envelope.Status) {
	t.Helper()
	reply, ok := body.(envelope.ErrorReply)
	if !ok {
		t.Fatalf("reply %T, want ErrorReply{%s}", body, want)
	}
	if reply.Status != want {
		t.Fatalf("status = %s, want %s", reply.Status, want)
	}
}

// open runs the handshake and returns the session id.
func open(t *testing.T, r *Responder) envelope.SessionID {
	t.Helper()
	reply, ok := exchange(t, r, envelope.RequestMsg1{}).(envelope.ReplyMsg1)
	if !ok {
		t.Fatal("RequestMsg1 did not produce ReplyMsg1")
	}
	if _, ok := exchange(t, r, envelope.RequestMsg2{SessionID: reply.SessionID}).(envelope.ReplyMsg3); !ok {
		t.Fatal("RequestMsg2 did not produce ReplyMsg3")
	}
	return reply.SessionID
}

func TestSessionLifecycle(t *testing.T) {
	enclave := newFakeEnclave()
	r := newResponder(t, enclave, nil)

	msg1Reply, ok := exchange(t, r, envelope.RequestMsg1{}).(envelope.ReplyMsg1)
	if !ok {
		t.Fatal("expected ReplyMsg1")
	}
	id := msg1Reply.SessionID
	if id == 0 {
		t.Fatal("allocated session id 0")
	}
	if msg1Reply.DHMsg1[0] != byte(id) {
		t.Error("msg1 not produced by the enclave")
	}

	// A pending session accepts only msg2.
	requireStatus(t, exchange(t, r, envelope.EncryptedRequest{SessionID: id, MaxResponseSize: 64}), envelope.StatusInvalidSession)

	var msg2 envelope.DHMsg2
	msg2[0] = 41
	msg3Reply, ok := exchange(t, r, envelope.RequestMsg2{DHMsg2: msg2, SessionID: id}).(envelope.ReplyMsg3)
	if !ok {
		t.Fatal("expected ReplyMsg3")
	}
	if msg3Reply.DHMsg3[0] != 42 {
		t.Error("msg3 not produced by the enclave")
	}

	// An established session no longer accepts msg2.
	requireStatus(t, exchange(t, r, envelope.RequestMsg2{SessionID: id}), envelope.StatusInvalidSession)

	reply, ok := exchange(t, r, envelope.EncryptedRequest{SessionID: id, MaxResponseSize: 64, Request: []byte("ping")}).(envelope.EncryptedReply)
	if !ok {
		t.Fatal("expected EncryptedReply")
	}
	if !bytes.Equal(reply.Response, []byte("ping")) {
		t.Errorf("response = %q", reply.Response)
	}

	if _, ok := exchange(t, r, envelope.CloseRequest{SessionID: id}).(envelope.CloseReply); !ok {
		t.Fatal("expected CloseReply")
	}
	requireStatus(t, exchange(t, r, envelope.EncryptedRequest{SessionID: id, MaxResponseSize: 64}), envelope.StatusInvalidSession)
	requireStatus(t, exchange(t, r, envelope.CloseRequest{SessionID: id}), envelope.StatusInvalidSession)

	if len(enclave.live) != 0 {
		t.Errorf("enclave still holds %d sessions", len(enclave.live))
	}
	snapshot := r.Snapshot()
	if snapshot.Live != 0 || snapshot.Opened != 1 || snapshot.Closed != 1 {
		t.Errorf("snapshot = %+v", snapshot)
	}
}

func TestMalformedRequests(t *testing.T) {
	r := newResponder(t, newFakeEnclave(), nil)

	tests := []struct {
		name    string
		request []byte
	}{
		{"empty", nil},
		{"short header", []byte{0, 0, 0}},
		{"size mismatch", append(envelope.Encode(envelope.CloseRequest{SessionID: 1}), 0)},
		{"unknown kind", []byte{77, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
		{"reply kind", envelope.Encode(envelope.CloseReply{})},
		{"error reply kind", envelope.Encode(envelope.ErrorReply{Status: envelope.StatusBusy})},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			reply, err := r.HandleEnvelope(context.Background(), test.request)
			if err != nil {
				t.Fatalf("HandleEnvelope: %v", err)
			}
			decoded, err := envelope.Decode(reply)
			if err != nil {
				t.Fatalf("decoding reply: %v", err)
			}
			requireStatus(t, decoded.Body, envelope.StatusMalformed)
		})
	}
}

func TestIDAllocationSkipsZeroAndLiveIDs(t *testing.T) {
	r := newResponder(t, newFakeEnclave(), nil)

	first := open(t, r)
	if first != 1 {
		t.Fatalf("first id = %d, want 1", first)
	}

	// Wrap the counter so the next candidates are 0 and then 1, which
	// is still live.
	r.mu.Lock()
	r.lastID = ^uint32(0)
	r.mu.Unlock()

	next := open(t, r)
	if next != 2 {
		t.Fatalf("id after wrap = %d, want 2 (skipping 0 and live 1)", next)
	}
}

func TestIDsAreNotReusedWhileLive(t *testing.T) {
	r := newResponder(t, newFakeEnclave(), nil)
	seen := make(map[envelope.SessionID]bool)
	for range 100 {
		id := open(t, r)
		if seen[id] {
			t.Fatalf("id %d allocated twice", id)
		}
		seen[id] = true
	}
}

func TestMaxSessions(t *testing.T) {
	r := newResponder(t, newFakeEnclave(), func(c *Config) { c.MaxSessions = 2 })

	first := open(t, r)
	open(t, r)
	requireStatus(t, exchange(t, r, envelope.RequestMsg1{}), envelope.StatusBusy)

	exchange(t, r, envelope.CloseRequest{SessionID: first})
	open(t, r)

	if snapshot := r.Snapshot(); snapshot.Rejected != 1 || snapshot.Live != 2 {
		t.Errorf("snapshot = %+v", snapshot)
	}
}

func TestEnclaveFailures(t *testing.T) {
	t.Run("start", func(t *testing.T) {
		enclave := newFakeEnclave()
		enclave.startErr = errors.New("no entropy")
		r := newResponder(t, enclave, nil)
		requireStatus(t, exchange(t, r, envelope.RequestMsg1{}), envelope.StatusInternal)
		if r.Snapshot().Live != 0 {
			t.Error("failed start left a session behind")
		}
	})

	t.Run("exchange ends session", func(t *testing.T) {
		enclave := newFakeEnclave()
		r := newResponder(t, enclave, nil)
		reply := exchange(t, r, envelope.RequestMsg1{}).(envelope.ReplyMsg1)

		enclave.exchangeErr = errors.New("bad signature")
		requireStatus(t, exchange(t, r, envelope.RequestMsg2{SessionID: reply.SessionID}), envelope.StatusInvalidSession)

		snapshot := r.Snapshot()
		if snapshot.Live != 0 || snapshot.Failed != 1 {
			t.Errorf("snapshot = %+v, want no live sessions and one failure", snapshot)
		}
		if len(enclave.ended) != 1 || enclave.ended[0] != reply.SessionID {
			t.Errorf("enclave ended %v, want [%d]", enclave.ended, reply.SessionID)
		}

		// A retry on the same id is refused rather than served.
		enclave.exchangeErr = nil
		requireStatus(t, exchange(t, r, envelope.RequestMsg2{SessionID: reply.SessionID}), envelope.StatusInvalidSession)
	})

	tests := []struct {
		name  string
		err   error
		want  envelope.Status
		ended bool
	}{
		{"too large", fmt.Errorf("%w: sealed reply", ErrResponseTooLarge), envelope.StatusResponseTooLarge, false},
		{"service", fmt.Errorf("%w: backend down", ErrServiceFailure), envelope.StatusInternal, false},
		{"integrity", errors.New("record authentication failed"), envelope.StatusInvalidSession, true},
	}
	for _, test := range tests {
		t.Run("request "+test.name, func(t *testing.T) {
			enclave := newFakeEnclave()
			r := newResponder(t, enclave, nil)
			id := open(t, r)
			enclave.requestErr = test.err
			requireStatus(t, exchange(t, r, envelope.EncryptedRequest{SessionID: id, MaxResponseSize: 64}), test.want)

			enclave.requestErr = nil
			next := exchange(t, r, envelope.EncryptedRequest{SessionID: id, MaxResponseSize: 64, Request: []byte("again")})
			if test.ended {
				requireStatus(t, next, envelope.StatusInvalidSession)
				if live := r.Snapshot().Live; live != 0 {
					t.Errorf("live = %d after invalid-session reply", live)
				}
				return
			}
			if _, ok := next.(envelope.EncryptedReply); !ok {
				t.Fatalf("session unusable after %s: reply %T", test.name, next)
			}
		})
	}
}

func TestOversizedEnclaveReplyIsRefused(t *testing.T) {
	enclave := newFakeEnclave()
	enclave.replyPadding = 10
	r := newResponder(t, enclave, nil)
	id := open(t, r)

	requireStatus(t, exchange(t, r, envelope.EncryptedRequest{SessionID: id, MaxResponseSize: 13, Request: []byte("abcd")}), envelope.StatusResponseTooLarge)
	if _, ok := exchange(t, r, envelope.EncryptedRequest{SessionID: id, MaxResponseSize: 14, Request: []byte("abcd")}).(envelope.EncryptedReply); !ok {
		t.Fatal("reply at exactly the maximum was refused")
	}
}

func TestOperatorEndSession(t *testing.T) {
	enclave := newFakeEnclave()
	r := newResponder(t, enclave, nil)
	id := open(t, r)

	if err := r.EndSession(id); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if err := r.EndSession(id); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("second EndSession: expected ErrUnknownSession, got %v", err)
	}
	requireStatus(t, exchange(t, r, envelope.EncryptedRequest{SessionID: id, MaxResponseSize: 64}), envelope.StatusInvalidSession)
	if len(enclave.ended) != 1 || enclave.ended[0] != id {
		t.Errorf("enclave ended = %v", enclave.ended)
	}
}

func TestReap(t *testing.T) {
	fake := clock.Fake(epoch)
	enclave := newFakeEnclave()
	r := newResponder(t, enclave, func(c *Config) {
		c.Clock = fake
		c.IdleTimeout = time.Minute
	})

	idle := open(t, r)
	pending := exchange(t, r, envelope.RequestMsg1{}).(envelope.ReplyMsg1).SessionID

	fake.Advance(45 * time.Second)
	active := open(t, r)
	exchange(t, r, envelope.EncryptedRequest{SessionID: idle, MaxResponseSize: 64})

	if reaped := r.Reap(fake.Now()); reaped != 0 {
		t.Fatalf("reaped %d sessions before any timed out", reaped)
	}

	fake.Advance(30 * time.Second)
	if reaped := r.Reap(fake.Now()); reaped != 1 {
		t.Fatalf("reaped %d, want 1 (the abandoned pending session)", reaped)
	}
	requireStatus(t, exchange(t, r, envelope.RequestMsg2{SessionID: pending}), envelope.StatusInvalidSession)

	fake.Advance(time.Minute)
	if reaped := r.Reap(fake.Now()); reaped != 2 {
		t.Fatalf("reaped %d, want 2", reaped)
	}
	requireStatus(t, exchange(t, r, envelope.EncryptedRequest{SessionID: active, MaxResponseSize: 64}), envelope.StatusInvalidSession)

	if snapshot := r.Snapshot(); snapshot.Reaped != 3 || snapshot.Live != 0 {
		t.Errorf("snapshot = %+v", snapshot)
	}
	if len(enclave.live) != 0 {
		t.Errorf("enclave still holds %d sessions", len(enclave.live))
	}
}

func TestRunReapsOnTicker(t *testing.T) {
	fake := clock.Fake(epoch)
	r := newResponder(t, newFakeEnclave(), func(c *Config) {
		c.Clock = fake
		c.IdleTimeout = 10 * time.Second
	})
	open(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	fake.WaitForTimers(1)

	// Ticks that arrive while the reaper is busy are dropped, so keep
	// advancing until one lands past the idle timeout.
	deadline := time.Now().Add(5 * time.Second)
	for r.Snapshot().Live != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Run did not reap the idle session")
		}
		fake.Advance(5 * time.Second)
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "reaper exit"); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunWithoutTimeoutReturns(t *testing.T) {
	r := newResponder(t, newFakeEnclave(), nil)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestSnapshotAndSessions(t *testing.T) {
	fake := clock.Fake(epoch)
	tracker := buffer.NewTracker(buffer.Heap{})
	r := newResponder(t, newFakeEnclave(), func(c *Config) {
		c.Clock = fake
		c.Buffers = tracker
	})

	established := open(t, r)
	exchange(t, r, envelope.RequestMsg1{})
	fake.Advance(3 * time.Second)
	exchange(t, r, envelope.EncryptedRequest{SessionID: established, MaxResponseSize: 8, Request: []byte("x")})

	held, _ := tracker.Allocate(16)
	defer held.Release()

	snapshot := r.Snapshot()
	if snapshot.Live != 2 || snapshot.Pending != 1 || snapshot.Established != 1 {
		t.Errorf("snapshot = %+v", snapshot)
	}
	if snapshot.Buffers == nil || snapshot.Buffers.OutstandingBytes != 16 {
		t.Errorf("buffer stats = %+v", snapshot.Buffers)
	}

	sessions := r.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("Sessions() returned %d entries", len(sessions))
	}
	first := sessions[0]
	if first.ID != established || first.State != "established" || first.Requests != 1 {
		t.Errorf("first session = %+v", first)
	}
	if first.Age != 3*time.Second || first.Idle != 0 {
		t.Errorf("age=%v idle=%v, want 3s and 0", first.Age, first.Idle)
	}
	if sessions[1].State != "pending" || sessions[1].Idle != 3*time.Second {
		t.Errorf("second session = %+v", sessions[1])
	}
}

func TestConcurrentSessions(t *testing.T) {
	r := newResponder(t, newFakeEnclave(), nil)

	var wg sync.WaitGroup
	ids := make(chan envelope.SessionID, 32)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := r.HandleEnvelope(context.Background(), envelope.Encode(envelope.RequestMsg1{}))
			if err != nil {
				t.Errorf("HandleEnvelope: %v", err)
				return
			}
			decoded, err := envelope.Decode(reply)
			if err != nil {
				t.Errorf("Decode: %v", err)
				return
			}
			ids <- decoded.Body.(envelope.ReplyMsg1).SessionID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[envelope.SessionID]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("id %d handed to two sessions", id)
		}
		seen[id] = true
	}
	if len(seen) != 32 {
		t.Fatalf("%d distinct ids, want 32", len(seen))
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New accepted a config without an enclave")
	}
	if _, err := New(Config{Enclave: newFakeEnclave(), MaxSessions: -1}); err == nil {
		t.Error("New accepted a negative MaxSessions")
	}
}
