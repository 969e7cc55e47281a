package mux

import (
	"context"
	"errors"
	"testing"

	"github.com/plein/meterlink/frame"
)

type topicCall struct {
	f  frame.Frame
	ch Channel
}

func recordingDispatcher(alloc Allocator, capacity int) (*Dispatcher, *[]topicCall) {
	var calls []topicCall
	d := NewDispatcher(FallbackFunc(func(ctx context.Context, f frame.Frame, ch Channel) {
		calls = append(calls, topicCall{f, ch})
	}), alloc, capacity)
	return d, &calls
}

func TestMakeAssignsSequentialTopics(t *testing.T) {
	d, _ := recordingDispatcher(QueueAllocator{}, 100)
	for want := uint32(0); want < 100; want++ {
		f := echo("hi")
		ch, err := d.Make(&f)
		fatal(err, t)
		id, ok := f.TopicID()
		if !ok || id != want {
			t.Fatalf("got topic %d (%v), want %d", id, ok, want)
		}
		if ch.Topic() != want {
			t.Fatalf("channel topic %d, want %d", ch.Topic(), want)
		}
	}
	if d.Len() != 100 {
		t.Fatal("unexpected table size:", d.Len())
	}
}

func TestMakeFollowsLargestTopic(t *testing.T) {
	d, _ := recordingDispatcher(QueueAllocator{}, 8)
	ctx := context.Background()
	fatal(d.Process(ctx, echo("remote").WithTopic(41)), t)

	f := echo("local")
	_, err := d.Make(&f)
	fatal(err, t)
	if f.Topic != 42 {
		t.Fatal("expected topic after the largest bound id, got:", f.Topic)
	}
}

func TestProcessUnroutedIsNoop(t *testing.T) {
	d, calls := recordingDispatcher(QueueAllocator{}, 8)
	err := d.Process(context.Background(), echo("nowhere"))
	fatal(err, t)
	if len(*calls) != 0 || d.Len() != 0 {
		t.Fatal("unrouted frame must not bind a topic")
	}
	if d.Stats().Unrouted != 1 {
		t.Fatal("unrouted frame not counted:", d.Stats())
	}
}

func TestProcessBindsIncomingTopic(t *testing.T) {
	d, calls := recordingDispatcher(QueueAllocator{}, 8)
	ctx := context.Background()

	fatal(d.Process(ctx, echo("first").WithTopic(17)), t)
	if len(*calls) != 1 {
		t.Fatal("fallback not invoked once:", len(*calls))
	}
	call := (*calls)[0]
	if call.f.Topic != 17 || call.ch.Topic() != 17 {
		t.Fatal("topic not bound under the incoming id:", call.f, call.ch.Topic())
	}
	if topics := d.Topics(); len(topics) != 1 || topics[0] != 17 {
		t.Fatal("unexpected topics:", topics)
	}

	fatal(d.Process(ctx, echo("second").WithTopic(17)), t)
	fatal(d.Process(ctx, echo("third").WithTopic(17)), t)
	if len(*calls) != 1 {
		t.Fatal("fallback invoked again for a bound topic")
	}
	for _, want := range []string{"second", "third"} {
		f, err := call.ch.Receive(ctx)
		fatal(err, t)
		if f.Verb.(frame.Echo).Text != want {
			t.Fatalf("got %v, want %q", f, want)
		}
	}
}

func TestProcessKeepsPerTopicOrder(t *testing.T) {
	d, calls := recordingDispatcher(QueueAllocator{Limit: 16}, 8)
	ctx := context.Background()
	fatal(d.Process(ctx, echo("open a").WithTopic(1)), t)
	fatal(d.Process(ctx, echo("open b").WithTopic(2)), t)

	for _, s := range []string{"a1", "b1", "a2", "a3", "b2", "b3"} {
		topic := uint32(1)
		if s[0] == 'b' {
			topic = 2
		}
		fatal(d.Process(ctx, echo(s).WithTopic(topic)), t)
	}

	for i, want := range [][]string{{"a1", "a2", "a3"}, {"b1", "b2", "b3"}} {
		ch := (*calls)[i].ch
		for _, w := range want {
			f, err := ch.Receive(ctx)
			fatal(err, t)
			if f.Verb.(frame.Echo).Text != w {
				t.Fatalf("got %v, want %q", f, w)
			}
		}
	}
}

func TestCapacity(t *testing.T) {
	d, _ := recordingDispatcher(NewArena(DefaultCapacity), DefaultCapacity)
	ctx := context.Background()
	for i := 0; i < DefaultCapacity; i++ {
		f := echo("x")
		_, err := d.Make(&f)
		fatal(err, t)
	}
	f := echo("x")
	if _, err := d.Make(&f); !errors.Is(err, ErrTableFull) {
		t.Fatal("expected ErrTableFull from Make, got:", err)
	}
	if _, ok := f.TopicID(); ok {
		t.Fatal("failed Make must not assign a topic")
	}
	if err := d.Process(ctx, echo("x").WithTopic(1000)); !errors.Is(err, ErrTableFull) {
		t.Fatal("expected ErrTableFull from Process, got:", err)
	}
}

func TestAllocatorFailureIsReported(t *testing.T) {
	d, _ := recordingDispatcher(NewArena(1), 4)
	f := echo("x")
	_, err := d.Make(&f)
	fatal(err, t)
	f = echo("y")
	if _, err := d.Make(&f); !errors.Is(err, ErrArenaFull) {
		t.Fatal("expected ErrArenaFull, got:", err)
	}
}

func TestCloseReleasesTopic(t *testing.T) {
	arena := NewArena(4)
	d, calls := recordingDispatcher(arena, 4)
	ctx := context.Background()

	fatal(d.Process(ctx, echo("open").WithTopic(3)), t)
	ch := (*calls)[0].ch
	fatal(d.Process(ctx, frame.New(frame.Close{}).WithTopic(3)), t)

	if d.Len() != 0 {
		t.Fatal("close did not release topic")
	}
	if arena.Available() != 4 {
		t.Fatal("close did not free the slot")
	}
	if _, err := ch.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatal("expected ErrClosed after release, got:", err)
	}

	// close for an unknown topic is ignored and does not bind it
	fatal(d.Process(ctx, frame.New(frame.Close{}).WithTopic(9)), t)
	if d.Len() != 0 || len(*calls) != 1 {
		t.Fatal("close on unknown topic must be ignored")
	}
}

func TestReleaseAllowsReuse(t *testing.T) {
	d, _ := recordingDispatcher(QueueAllocator{}, 4)
	for i := 0; i < 3; i++ {
		f := echo("x")
		_, err := d.Make(&f)
		fatal(err, t)
	}
	if !d.Release(2) {
		t.Fatal("release of bound topic reported false")
	}
	if d.Release(2) {
		t.Fatal("double release reported true")
	}
	f := echo("x")
	_, err := d.Make(&f)
	fatal(err, t)
	if f.Topic != 2 {
		t.Fatal("expected freed largest id to be reused, got:", f.Topic)
	}
}

func TestProcessToLocallyClosedChannel(t *testing.T) {
	d, calls := recordingDispatcher(QueueAllocator{}, 4)
	ctx := context.Background()
	fatal(d.Process(ctx, echo("open").WithTopic(5)), t)
	fatal((*calls)[0].ch.Close(), t)

	err := d.Process(ctx, echo("late").WithTopic(5))
	if !errors.Is(err, ErrClosed) {
		t.Fatal("expected ErrClosed, got:", err)
	}
	if d.Len() != 0 {
		t.Fatal("closed channel should be released")
	}
}

func TestReset(t *testing.T) {
	arena := NewArena(4)
	d, _ := recordingDispatcher(arena, 4)
	var chans []Channel
	for i := 0; i < 4; i++ {
		f := echo("x")
		ch, err := d.Make(&f)
		fatal(err, t)
		chans = append(chans, ch)
	}
	d.Reset()
	if d.Len() != 0 || arena.Available() != 4 {
		t.Fatal("reset left topics bound")
	}
	for _, ch := range chans {
		if _, err := ch.Receive(context.Background()); !errors.Is(err, ErrClosed) {
			t.Fatal("expected ErrClosed after reset, got:", err)
		}
	}
	if d.Stats().Released != 4 {
		t.Fatal("unexpected stats:", d.Stats())
	}
}

func TestOfferDoesNotWait(t *testing.T) {
	d, calls := recordingDispatcher(NewArena(2), 2)
	ctx := context.Background()
	fatal(d.Offer(ctx, echo("open").WithTopic(7)), t)
	for i := 0; i < RingSize; i++ {
		fatal(d.Offer(ctx, echo("fill").WithTopic(7)), t)
	}
	err := d.Offer(ctx, echo("over").WithTopic(7))
	if !errors.Is(err, ErrFull) {
		t.Fatal("expected ErrFull, got:", err)
	}
	if d.Len() != 1 || d.Stats().Routed != RingSize {
		t.Fatal("full channel should stay bound, stats:", d.Stats())
	}

	// the frame that did not fit can still be sent on the looked up channel
	ch, ok := d.Lookup(7)
	if !ok {
		t.Fatal("topic 7 not bound")
	}
	sent := make(chan error, 1)
	go func() {
		sent <- ch.Send(ctx, echo("over").WithTopic(7))
	}()
	rx := (*calls)[0].ch
	for i := 0; i < RingSize; i++ {
		f, err := rx.Receive(ctx)
		fatal(err, t)
		if f.Verb != (frame.Echo{Text: "fill"}) {
			t.Fatal("unexpected frame:", f)
		}
	}
	fatal(<-sent, t)
	f, err := rx.Receive(ctx)
	fatal(err, t)
	if f.Verb != (frame.Echo{Text: "over"}) {
		t.Fatal("unexpected frame:", f)
	}
}

func TestAbortCarriesCause(t *testing.T) {
	d, _ := recordingDispatcher(QueueAllocator{}, 4)
	f := echo("x")
	ch, err := d.Make(&f)
	fatal(err, t)

	cause := errors.New("transport gone")
	d.Abort(cause)
	if d.Len() != 0 {
		t.Fatal("abort left topics bound")
	}
	_, err = ch.Receive(context.Background())
	if !errors.Is(err, ErrClosed) || !errors.Is(err, cause) {
		t.Fatal("expected ErrClosed carrying the cause, got:", err)
	}
}
