package frame

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		in Frame
		id uint32
		ok bool
	}{
		{
			in: New(Echo{Text: "hi"}),
			id: 0,
			ok: false,
		},
		{
			in: New(Echo{Text: "hi"}).WithTopic(7),
			id: 7,
			ok: true,
		},
		{
			in: New(Echo{Text: ""}).WithTopic(0),
			id: 0,
			ok: true,
		},
		{
			in: New(Echo{Text: strings.Repeat("x", MaxEchoLen)}).WithTopic(1 << 31),
			id: 1 << 31,
			ok: true,
		},
		{
			in: New(Close{}).WithTopic(3),
			id: 3,
			ok: true,
		},
	}
	for _, test := range tests {
		buf := make([]byte, 256)
		n, err := Encode(test.in, buf)
		if err != nil {
			t.Fatal(err)
		}
		f, err := Decode(buf[:n])
		if err != nil {
			t.Fatal(err)
		}
		id, ok := f.TopicID()
		if id != test.id {
			t.Fatal("id not equal")
		}
		if ok != test.ok {
			t.Fatal("ok not equal")
		}
		if f.Verb != test.in.Verb {
			t.Fatalf("verb not equal: %v != %v", f.Verb, test.in.Verb)
		}
		if f.String() == "" {
			t.Fatal("empty string representation")
		}
	}
}

func TestEchoCapacity(t *testing.T) {
	buf := make([]byte, 256)
	if _, err := Encode(New(Echo{Text: strings.Repeat("a", MaxEchoLen)}), buf); err != nil {
		t.Fatal("24 byte echo should encode:", err)
	}
	_, err := Encode(New(Echo{Text: strings.Repeat("a", MaxEchoLen+1)}), buf)
	if !errors.Is(err, ErrEchoTooLong) {
		t.Fatal("expected ErrEchoTooLong, got:", err)
	}
	if err := Validate(New(Echo{Text: strings.Repeat("a", MaxEchoLen+1)})); !errors.Is(err, ErrEchoTooLong) {
		t.Fatal("expected Validate to reject long echo, got:", err)
	}
}

func TestEchoInvalidUTF8(t *testing.T) {
	f := New(Echo{Text: "\xff\xfe"}).WithTopic(1)
	if err := Validate(f); !errors.Is(err, ErrEchoInvalid) {
		t.Fatal("expected Validate to reject invalid text, got:", err)
	}
	if _, err := Marshal(f); !errors.Is(err, ErrEchoInvalid) {
		t.Fatal("expected Marshal to reject invalid text, got:", err)
	}
	// multi-byte text at capacity still round trips
	text := strings.Repeat("\u00e9", MaxEchoLen/2)
	b, err := Marshal(New(Echo{Text: text}).WithTopic(1))
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.Verb != (Echo{Text: text}) {
		t.Fatalf("verb not equal: %v", got.Verb)
	}
}

func TestDecodeRejectsLongEcho(t *testing.T) {
	// hand build [null, 0, "25 bytes"] since the encoder refuses to
	b := []byte{0x83, 0xf6, 0x00, 0x78, MaxEchoLen + 1}
	b = append(b, bytes.Repeat([]byte("a"), MaxEchoLen+1)...)
	if _, err := Decode(b); !errors.Is(err, ErrEchoTooLong) {
		t.Fatal("expected ErrEchoTooLong, got:", err)
	}
}

func TestEncodeBufferTooSmall(t *testing.T) {
	buf := make([]byte, 4)
	_, err := Encode(New(Echo{Text: "hello"}).WithTopic(1), buf)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatal("expected ErrTooLarge, got:", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, b := range [][]byte{
		nil,
		{0xff},
		{0x82, 0xf6, 0x00},
		{0x83, 0xf6, 0x00, 0x62, 'h', 'i', 0x00},
	} {
		if _, err := Decode(b); err == nil {
			t.Fatalf("expected error decoding %x", b)
		}
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	f := New(Echo{Text: "hi"}).WithTopic(42)
	a, err := Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("%x != %x", a, b)
	}
	g, err := Decode(a)
	if err != nil {
		t.Fatal(err)
	}
	c, err := Marshal(g)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, c) {
		t.Fatalf("re-encoding differs: %x != %x", a, c)
	}
}

func TestUnknownVerbPassesThrough(t *testing.T) {
	// [5, 9, [1, 2]]: a verb tag this build does not know
	b := []byte{0x83, 0x05, 0x09, 0x82, 0x01, 0x02}
	f, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	u, ok := f.Verb.(Unknown)
	if !ok {
		t.Fatalf("expected Unknown verb, got %T", f.Verb)
	}
	if u.Type() != 9 || f.Topic != 5 || !f.HasTopic {
		t.Fatal("unexpected frame:", f)
	}
	out, err := Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, b) {
		t.Fatalf("unknown verb not preserved: %x != %x", out, b)
	}
}

func TestReplyAndNew(t *testing.T) {
	req := New(Echo{Text: "hi"})
	if _, ok := req.TopicID(); ok {
		t.Fatal("New must leave topic unset")
	}
	req = req.WithTopic(9)
	resp := req.Reply(Echo{Text: "hi"})
	if id, ok := resp.TopicID(); !ok || id != 9 {
		t.Fatal("Reply must keep topic:", resp)
	}
	unrouted := New(Echo{Text: "x"}).Reply(Close{})
	if _, ok := unrouted.TopicID(); ok {
		t.Fatal("Reply of an unrouted frame must stay unrouted")
	}
}

func TestMissingVerb(t *testing.T) {
	if _, err := Marshal(Frame{}); !errors.Is(err, ErrNoVerb) {
		t.Fatal("expected ErrNoVerb, got:", err)
	}
}

func TestDebug(t *testing.T) {
	var buf bytes.Buffer
	Debug = &buf
	defer func() { Debug = nil }()

	b, err := Marshal(New(Echo{Text: "hi"}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(b); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "<<ENC") || !strings.Contains(buf.String(), ">>DEC") {
		t.Fatalf("unexpected debug output: %q", buf.String())
	}
}

func TestParseVerbType(t *testing.T) {
	for _, vt := range []VerbType{VerbEcho, VerbClose} {
		got, err := ParseVerbType(vt.String())
		if err != nil || got != vt {
			t.Fatalf("round trip of %v failed: %v %v", vt, got, err)
		}
	}
	if _, err := ParseVerbType("nope"); err == nil {
		t.Fatal("expected error")
	}
}
