// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package enclave

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/bureau-foundation/dhbridge/initiator"
	"github.com/bureau-foundation/dhbridge/lib/buffer"
	"github.com/bureau-foundation/dhbridge/lib/envelope"
	"github.com/bureau-foundation/dhbridge/responder"
)

type keyPair struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

func generateKey(t *testing.T) keyPair {
	t.Helper()
	public, private, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return keyPair{public: public, private: private}
}

type fixture struct {
	initiator *Initiator
	responder *Responder
	tracker   *buffer.Tracker
}

func newFixture(t *testing.T, service Service) *fixture {
	t.Helper()
	initiatorKey, responderKey := generateKey(t), generateKey(t)
	tracker := buffer.NewTracker(buffer.Heap{})

	initiatorSide, err := NewInitiator(Config{
		Identity:     initiatorKey.private,
		Trusted:      []ed25519.PublicKey{responderKey.public},
		KeyAllocator: tracker,
	})
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}
	responderSide, err := NewResponder(Config{
		Identity:     responderKey.private,
		Trusted:      []ed25519.PublicKey{initiatorKey.public},
		KeyAllocator: tracker,
	}, service)
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}
	return &fixture{initiator: initiatorSide, responder: responderSide, tracker: tracker}
}

// handshake runs all three messages for id directly, without a bridge.
func (f *fixture) handshake(t *testing.T, id envelope.SessionID) initiator.Channel {
	t.Helper()
	msg1, err := f.responder.StartSession(id)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	var msg2 envelope.DHMsg2
	if err := f.initiator.ProcessMsg1(id, &msg1, &msg2); err != nil {
		t.Fatalf("ProcessMsg1: %v", err)
	}
	msg3, err := f.responder.ExchangeReport(id, &msg2)
	if err != nil {
		t.Fatalf("ExchangeReport: %v", err)
	}
	channel, err := f.initiator.ProcessMsg3(id, &msg3)
	if err != nil {
		t.Fatalf("ProcessMsg3: %v", err)
	}
	return channel
}

func TestHandshakeAndRequests(t *testing.T) {
	f := newFixture(t, func(_ context.Context, _ envelope.SessionID, request []byte) ([]byte, error) {
		return bytes.ToUpper(request), nil
	})
	channel := f.handshake(t, 11)

	for _, message := range []string{"hello", "", "third message"} {
		sealed, err := channel.Seal([]byte(message))
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}
		if len(sealed) != len(message)+channel.Overhead() {
			t.Errorf("sealed length %d, want %d", len(sealed), len(message)+channel.Overhead())
		}
		reply, err := f.responder.HandleRequest(context.Background(), 11, sealed, 1024)
		if err != nil {
			t.Fatalf("HandleRequest: %v", err)
		}
		opened, err := channel.Open(reply)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if want := bytes.ToUpper([]byte(message)); !bytes.Equal(opened, want) {
			t.Errorf("reply = %q, want %q", opened, want)
		}
	}

	channel.(*Channel).Close()
	f.responder.EndSession(11)
	if f.responder.Sessions() != 0 {
		t.Errorf("Sessions() = %d after EndSession", f.responder.Sessions())
	}
	if stats := f.tracker.Stats(); stats.Leaked() {
		t.Fatalf("key buffers leaked: %+v", stats)
	}
}

func TestUntrustedResponder(t *testing.T) {
	f := newFixture(t, Echo)
	stranger, err := NewResponder(Config{
		Identity: generateKey(t).private,
		Trusted:  f.responder.config.Trusted,
	}, Echo)
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}

	msg1, err := stranger.StartSession(1)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	var msg2 envelope.DHMsg2
	if err := f.initiator.ProcessMsg1(1, &msg1, &msg2); !errors.Is(err, ErrUntrustedPeer) {
		t.Fatalf("expected ErrUntrustedPeer, got %v", err)
	}
	if msg2 != (envelope.DHMsg2{}) {
		t.Error("msg2 written despite failure")
	}
}

func TestUntrustedInitiator(t *testing.T) {
	f := newFixture(t, Echo)
	stranger, err := NewInitiator(Config{
		Identity: generateKey(t).private,
		Trusted:  []ed25519.PublicKey{f.responder.config.publicIdentity()},
	})
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}

	msg1, _ := f.responder.StartSession(2)
	var msg2 envelope.DHMsg2
	if err := stranger.ProcessMsg1(2, &msg1, &msg2); err != nil {
		t.Fatalf("ProcessMsg1: %v", err)
	}
	if _, err := f.responder.ExchangeReport(2, &msg2); !errors.Is(err, ErrUntrustedPeer) {
		t.Fatalf("expected ErrUntrustedPeer, got %v", err)
	}
	stranger.Abandon(2)
}

func TestTamperedHandshake(t *testing.T) {
	t.Run("msg2 signature", func(t *testing.T) {
		f := newFixture(t, Echo)
		msg1, _ := f.responder.StartSession(3)
		var msg2 envelope.DHMsg2
		if err := f.initiator.ProcessMsg1(3, &msg1, &msg2); err != nil {
			t.Fatalf("ProcessMsg1: %v", err)
		}
		msg2[signatureOffset] ^= 1
		if _, err := f.responder.ExchangeReport(3, &msg2); !errors.Is(err, ErrBadSignature) {
			t.Fatalf("expected ErrBadSignature, got %v", err)
		}
	})

	t.Run("msg2 bound to another session", func(t *testing.T) {
		f := newFixture(t, Echo)
		msg1, _ := f.responder.StartSession(4)
		if _, err := f.responder.StartSession(5); err != nil {
			t.Fatalf("StartSession: %v", err)
		}
		var msg2 envelope.DHMsg2
		if err := f.initiator.ProcessMsg1(4, &msg1, &msg2); err != nil {
			t.Fatalf("ProcessMsg1: %v", err)
		}
		if _, err := f.responder.ExchangeReport(5, &msg2); !errors.Is(err, ErrBadSignature) {
			t.Fatalf("expected ErrBadSignature, got %v", err)
		}
	})

	t.Run("msg3 signature", func(t *testing.T) {
		f := newFixture(t, Echo)
		msg1, _ := f.responder.StartSession(6)
		var msg2 envelope.DHMsg2
		if err := f.initiator.ProcessMsg1(6, &msg1, &msg2); err != nil {
			t.Fatalf("ProcessMsg1: %v", err)
		}
		msg3, err := f.responder.ExchangeReport(6, &msg2)
		if err != nil {
			t.Fatalf("ExchangeReport: %v", err)
		}
		msg3[0] ^= 1
		if _, err := f.initiator.ProcessMsg3(6, &msg3); !errors.Is(err, ErrBadSignature) {
			t.Fatalf("expected ErrBadSignature, got %v", err)
		}
	})

	t.Run("msg1 padding", func(t *testing.T) {
		f := newFixture(t, Echo)
		msg1, _ := f.responder.StartSession(7)
		msg1[len(msg1)-1] = 1
		var msg2 envelope.DHMsg2
		if err := f.initiator.ProcessMsg1(7, &msg1, &msg2); !errors.Is(err, ErrMalformedMessage) {
			t.Fatalf("expected ErrMalformedMessage, got %v", err)
		}
	})
}

func TestProcessMsg3WithoutMsg1(t *testing.T) {
	f := newFixture(t, Echo)
	var msg3 envelope.DHMsg3
	if _, err := f.initiator.ProcessMsg3(99, &msg3); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
}

func TestResponderSessionPhases(t *testing.T) {
	f := newFixture(t, Echo)
	var msg2 envelope.DHMsg2
	if _, err := f.responder.ExchangeReport(1, &msg2); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("ExchangeReport before StartSession: %v", err)
	}
	if _, err := f.responder.StartSession(1); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := f.responder.StartSession(1); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("second StartSession: expected ErrSessionExists, got %v", err)
	}
	if _, err := f.responder.HandleRequest(context.Background(), 1, make([]byte, RecordOverhead), 1024); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("HandleRequest on pending session: expected ErrUnknownSession, got %v", err)
	}
	f.responder.EndSession(1)
	f.responder.EndSession(1)
	if stats := f.tracker.Stats(); stats.Leaked() {
		t.Fatalf("key buffers leaked: %+v", stats)
	}
}

func TestRecordTamperAndReplay(t *testing.T) {
	f := newFixture(t, Echo)
	channel := f.handshake(t, 21)

	first, _ := channel.Seal([]byte("first"))
	reply, err := f.responder.HandleRequest(context.Background(), 21, first, 1024)
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}

	if _, err := f.responder.HandleRequest(context.Background(), 21, first, 1024); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("replayed request: expected ErrOutOfOrder, got %v", err)
	}

	tampered := append([]byte(nil), reply...)
	tampered[len(tampered)-1] ^= 1
	if _, err := channel.Open(tampered); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("tampered reply: expected ErrIntegrity, got %v", err)
	}
	if _, err := channel.Open(reply[:len(reply)-1]); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("truncated reply: expected ErrIntegrity, got %v", err)
	}
	if _, err := channel.Open(reply[:RecordOverhead-1]); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("short reply: expected ErrMalformedRecord, got %v", err)
	}
	opened, err := channel.Open(reply)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(opened) != "first" {
		t.Errorf("reply = %q", opened)
	}
}

func TestChannelDirectionsAreDistinct(t *testing.T) {
	f := newFixture(t, Echo)
	channel := f.handshake(t, 31)

	// A record sealed by the initiator must not open as a reply.
	sealed, _ := channel.Seal([]byte("reflected"))
	if _, err := channel.Open(sealed); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("reflected record: expected ErrIntegrity, got %v", err)
	}
}

func TestResponseTooLarge(t *testing.T) {
	f := newFixture(t, func(context.Context, envelope.SessionID, []byte) ([]byte, error) {
		return make([]byte, 100), nil
	})
	channel := f.handshake(t, 41)

	sealed, _ := channel.Seal([]byte("q"))
	_, err := f.responder.HandleRequest(context.Background(), 41, sealed, 100+RecordOverhead-1)
	if !errors.Is(err, responder.ErrResponseTooLarge) {
		t.Fatalf("expected ErrResponseTooLarge, got %v", err)
	}

	// The refused reply was never sealed, so the next one still opens.
	sealed, _ = channel.Seal([]byte("q"))
	reply, err := f.responder.HandleRequest(context.Background(), 41, sealed, 100+RecordOverhead)
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if _, err := channel.Open(reply); err != nil {
		t.Fatalf("Open after refused reply: %v", err)
	}
}

func TestServiceFailure(t *testing.T) {
	f := newFixture(t, func(context.Context, envelope.SessionID, []byte) ([]byte, error) {
		return nil, errors.New("backend unavailable")
	})
	channel := f.handshake(t, 51)
	sealed, _ := channel.Seal([]byte("q"))
	if _, err := f.responder.HandleRequest(context.Background(), 51, sealed, 1024); !errors.Is(err, responder.ErrServiceFailure) {
		t.Fatalf("expected ErrServiceFailure, got %v", err)
	}
}

func TestClosedChannel(t *testing.T) {
	f := newFixture(t, Echo)
	channel := f.handshake(t, 61).(*Channel)
	channel.Close()
	if _, err := channel.Seal(nil); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Seal after Close: %v", err)
	}
	if _, err := channel.Open(make([]byte, RecordOverhead)); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Open after Close: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	key := generateKey(t)
	tests := []struct {
		name   string
		config Config
	}{
		{"no identity", Config{Trusted: []ed25519.PublicKey{key.public}}},
		{"no trusted keys", Config{Identity: key.private}},
		{"short trusted key", Config{Identity: key.private, Trusted: []ed25519.PublicKey{key.public[:16]}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := NewInitiator(test.config); err == nil {
				t.Error("NewInitiator accepted an invalid config")
			}
			if _, err := NewResponder(test.config, Echo); err == nil {
				t.Error("NewResponder accepted an invalid config")
			}
		})
	}
	if _, err := NewResponder(Config{Identity: key.private, Trusted: []ed25519.PublicKey{key.public}}, nil); err == nil {
		t.Error("NewResponder accepted a nil service")
	}
}
