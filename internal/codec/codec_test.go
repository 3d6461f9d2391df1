package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/cristalhq/base64"

	"github.com/five82/unreadbell/internal/snapshot"
)

func sample() snapshot.Snapshot {
	return snapshot.NewBuilder().
		DirectMessage("u2", snapshot.DirectMessage{ChannelID: "c2", UnreadCount: 1, LastMessageID: "m2", DisplayName: "bo"}).
		DirectMessage("u1", snapshot.DirectMessage{ChannelID: "c1", UnreadCount: 3, LastMessageID: "m1", DisplayName: "ana"}).
		Group("g1", snapshot.Group{UnreadCount: 2, Name: "crew", Members: []snapshot.User{{ID: "9", Username: "z"}, {ID: "1", Username: "a"}}}).
		Container("s1", snapshot.Container{UnreadCount: 4, MentionCount: 1, Name: "server"}).
		Build()
}

func TestEncode_RoundTrip(t *testing.T) {
	first, err := Encode(sample())
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	decoded, err := Decode(first)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	second, err := Encode(decoded)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("round trip changed encoding:\n%s\n%s", first, second)
	}
}

func TestEncode_IndependentOfInsertionOrder(t *testing.T) {
	a := snapshot.NewBuilder().
		Container("x", snapshot.Container{UnreadCount: 1}).
		Container("a", snapshot.Container{UnreadCount: 2}).
		Group("g", snapshot.Group{Members: []snapshot.User{{ID: "2"}, {ID: "1"}}}).
		Build()
	b := snapshot.NewBuilder().
		Group("g", snapshot.Group{Members: []snapshot.User{{ID: "1"}, {ID: "2"}}}).
		Container("a", snapshot.Container{UnreadCount: 2}).
		Container("x", snapshot.Container{UnreadCount: 1}).
		Build()

	ea, err := Encode(a)
	if err != nil {
		t.Fatalf("Encode(a): %v", err)
	}
	eb, err := Encode(b)
	if err != nil {
		t.Fatalf("Encode(b): %v", err)
	}
	if !bytes.Equal(ea, eb) {
		t.Fatalf("encodings differ:\n%s\n%s", ea, eb)
	}
}

func TestEncodePacket_WireShape(t *testing.T) {
	text, err := EncodePacket(NewUpdate(sample(), true))
	if err != nil {
		t.Fatalf("EncodePacket returned error: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		t.Fatalf("packet is not base64: %v", err)
	}
	doc := string(raw)
	for _, want := range []string{`"type":"Update"`, `"revive":true`, `"payload":{"dms":`, `"guilds":`} {
		if !strings.Contains(doc, want) {
			t.Fatalf("packet %s missing %s", doc, want)
		}
	}
}

func TestDecodePacket(t *testing.T) {
	text, err := EncodePacket(NewUpdate(sample(), false))
	if err != nil {
		t.Fatalf("EncodePacket returned error: %v", err)
	}
	p, err := DecodePacket(Frame(FrameStream, text))
	if err != nil {
		t.Fatalf("DecodePacket returned error: %v", err)
	}
	if p.Revive {
		t.Fatal("Revive = true, want false")
	}
	if p.Payload.DirectMessages["u1"].UnreadCount != 3 {
		t.Fatalf("payload = %#v, want u1 unread=3", p.Payload)
	}

	if _, err := DecodePacket([]byte("%%%")); !errors.Is(err, ErrDecode) {
		t.Fatalf("DecodePacket(garbage) error = %v, want ErrDecode", err)
	}

	other := base64.StdEncoding.EncodeToString([]byte(`{"type":"Ping"}`))
	if _, err := DecodePacket([]byte(other)); !errors.Is(err, ErrUnknownPacket) {
		t.Fatalf("DecodePacket(Ping) error = %v, want ErrUnknownPacket", err)
	}
}

func TestFrame(t *testing.T) {
	if got := string(Frame(FrameStream, "abc")); got != "abc\n" {
		t.Fatalf("Frame(stream) = %q, want %q", got, "abc\n")
	}
	if got := string(Frame(FrameMessage, "abc")); got != "abc" {
		t.Fatalf("Frame(message) = %q, want %q", got, "abc")
	}
}
