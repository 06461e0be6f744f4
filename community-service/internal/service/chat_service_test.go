package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chys-app/chys-live/community-service/internal/domain"
	"github.com/chys-app/chys-live/community-service/internal/recording"
)

func TestSendPrivateMessageBlocked(t *testing.T) {
	e := newEnv(t, recording.Config{})
	ctx := context.Background()

	// x blocks y; both directions are rejected.
	if err := e.user.Block(ctx, "x", "y"); err != nil {
		t.Fatal(err)
	}
	xConn := &recordingConn{id: "x-1"}
	e.registry.Register("x", xConn)

	for _, tc := range []struct{ from, to string }{{"y", "x"}, {"x", "y"}} {
		_, err := e.chat.SendPrivateMessage(ctx, tc.from, &domain.PrivateMessageIn{ReceiverID: tc.to, Message: "hi"})
		if !errors.Is(err, ErrBlocked) {
			t.Errorf("%s -> %s: error = %v, want ErrBlocked", tc.from, tc.to, err)
		}
	}

	msgs, total, err := e.messages.ListBetween(ctx, "x", "y", 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 || len(msgs) != 0 {
		t.Errorf("stored messages = %d, want 0", total)
	}
	if n := e.notificationCount(t, "x") + e.notificationCount(t, "y"); n != 0 {
		t.Errorf("notifications = %d, want 0", n)
	}
	if got := len(xConn.messages()); got != 0 {
		t.Errorf("x received %d frames, want 0", got)
	}

	// Unblocking restores delivery.
	if err := e.user.Unblock(ctx, "x", "y"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.chat.SendPrivateMessage(ctx, "y", &domain.PrivateMessageIn{ReceiverID: "x", Message: "hi again"}); err != nil {
		t.Fatalf("after unblock: error = %v", err)
	}
}

func TestSendPrivateMessageDelivery(t *testing.T) {
	e := newEnv(t, recording.Config{})
	ctx := context.Background()

	sender := &recordingConn{id: "alice-1"}
	receiver := &recordingConn{id: "bob-1"}
	e.registry.Register("alice", sender)
	e.registry.Register("bob", receiver)

	msg, err := e.chat.SendPrivateMessage(ctx, "alice", &domain.PrivateMessageIn{ReceiverID: "bob", Message: "  walk at 5?  "})
	if err != nil {
		t.Fatalf("SendPrivateMessage() error = %v", err)
	}
	if msg.ID == "" || msg.Body != "walk at 5?" || msg.SenderID != "alice" || msg.ReceiverID != "bob" {
		t.Errorf("message = %+v", msg)
	}

	for name, conn := range map[string]*recordingConn{"sender": sender, "receiver": receiver} {
		frames := conn.messages()
		if len(frames) != 1 {
			t.Fatalf("%s frames = %d, want 1", name, len(frames))
		}
		out, ok := frames[0].(*domain.ReceiveMessageOut)
		if !ok {
			t.Fatalf("%s frame type = %T", name, frames[0])
		}
		if out.Type != domain.MsgTypeReceiveMessage || out.ID != msg.ID || out.Message != msg.Body {
			t.Errorf("%s frame = %+v", name, out)
		}
	}

	if n := e.notificationCount(t, "bob"); n != 1 {
		t.Errorf("receiver notifications = %d, want 1", n)
	}
	if n := e.notificationCount(t, "alice"); n != 0 {
		t.Errorf("sender notifications = %d, want 0", n)
	}

	history, total, err := e.chat.History(ctx, "bob", "alice", 1, 10)
	if err != nil || total != 1 || history[0].ID != msg.ID {
		t.Errorf("History() = %v, %d, %v", history, total, err)
	}
	convs, err := e.chat.Conversations(ctx, "bob")
	if err != nil || len(convs) != 1 || convs[0].PeerID != "alice" {
		t.Errorf("Conversations() = %+v, %v", convs, err)
	}
}

func TestSendPrivateMessageOfflineReceiver(t *testing.T) {
	e := newEnv(t, recording.Config{})
	ctx := context.Background()

	if _, err := e.chat.SendPrivateMessage(ctx, "alice", &domain.PrivateMessageIn{ReceiverID: "bob", Message: "hello"}); err != nil {
		t.Fatalf("SendPrivateMessage() error = %v", err)
	}
	if _, total, _ := e.messages.ListBetween(ctx, "alice", "bob", 1, 10); total != 1 {
		t.Errorf("stored messages = %d, want 1", total)
	}
	if n := e.notificationCount(t, "bob"); n != 1 {
		t.Errorf("receiver notifications = %d, want 1", n)
	}
}

func TestSendPrivateMessageValidation(t *testing.T) {
	e := newEnv(t, recording.Config{})

	tests := []struct {
		name string
		in   domain.PrivateMessageIn
	}{
		{"missing receiver", domain.PrivateMessageIn{Message: "hi"}},
		{"empty message", domain.PrivateMessageIn{ReceiverID: "bob", Message: "   "}},
		{"to self", domain.PrivateMessageIn{ReceiverID: "alice", Message: "hi"}},
		{"too long", domain.PrivateMessageIn{ReceiverID: "bob", Message: strings.Repeat("a", maxMessageLength+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.chat.SendPrivateMessage(context.Background(), "alice", &tt.in)
			if !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("error = %v, want ErrInvalidMessage", err)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	if got := preview("short"); got != "short" {
		t.Errorf("preview(short) = %q", got)
	}
	long := strings.Repeat("é", previewLength+5)
	if got := preview(long); len([]rune(got)) != previewLength+1 {
		t.Errorf("preview(long) has %d runes", len([]rune(got)))
	}
	if conversationKey("b", "a") != conversationKey("a", "b") {
		t.Error("conversationKey is not symmetric")
	}
}
