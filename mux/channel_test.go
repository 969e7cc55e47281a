package mux

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/plein/meterlink/frame"
)

func fatal(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func echo(s string) frame.Frame {
	return frame.New(frame.Echo{Text: s})
}

func channelShapes(t *testing.T) map[string]func() Channel {
	return map[string]func() Channel{
		"ring": func() Channel {
			ch, err := NewArena(2).Alloc(1)
			fatal(err, t)
			return ch
		},
		"queue": func() Channel {
			return NewQueue(1, RingSize)
		},
	}
}

func TestChannelFIFO(t *testing.T) {
	for name, mk := range channelShapes(t) {
		t.Run(name, func(t *testing.T) {
			ch := mk()
			ctx := context.Background()
			done := make(chan error, 1)
			go func() {
				for _, s := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
					if err := ch.Send(ctx, echo(s)); err != nil {
						done <- err
						return
					}
				}
				done <- nil
			}()
			rx := ch.Clone()
			for _, want := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
				f, err := rx.Receive(ctx)
				fatal(err, t)
				if got := f.Verb.(frame.Echo).Text; got != want {
					t.Fatalf("got %q, want %q", got, want)
				}
			}
			fatal(<-done, t)
		})
	}
}

func TestChannelBackpressure(t *testing.T) {
	for name, mk := range channelShapes(t) {
		t.Run(name, func(t *testing.T) {
			ch := mk()
			ctx := context.Background()
			for i := 0; i < RingSize; i++ {
				fatal(ch.Send(ctx, echo("x")), t)
			}

			sent := make(chan error, 1)
			go func() {
				sent <- ch.Send(ctx, echo("last"))
			}()
			select {
			case err := <-sent:
				t.Fatal("send on full channel returned early:", err)
			case <-time.After(20 * time.Millisecond):
			}

			_, err := ch.Receive(ctx)
			fatal(err, t)
			select {
			case err := <-sent:
				fatal(err, t)
			case <-time.After(time.Second):
				t.Fatal("send did not resume after receive")
			}
		})
	}
}

func TestChannelTrySend(t *testing.T) {
	for name, mk := range channelShapes(t) {
		t.Run(name, func(t *testing.T) {
			ch := mk()
			for i := 0; i < RingSize; i++ {
				fatal(ch.TrySend(echo("x")), t)
			}
			if err := ch.TrySend(echo("over")); !errors.Is(err, ErrFull) {
				t.Fatal("expected ErrFull, got:", err)
			}
			_, err := ch.Receive(context.Background())
			fatal(err, t)
			fatal(ch.TrySend(echo("fits")), t)

			fatal(ch.Close(), t)
			if err := ch.TrySend(echo("late")); !errors.Is(err, ErrClosed) {
				t.Fatal("expected ErrClosed, got:", err)
			}
		})
	}
}

func TestQueueCloseWithError(t *testing.T) {
	cause := errors.New("line dropped")
	q := NewQueue(1, 4)
	ctx := context.Background()
	fatal(q.Send(ctx, echo("queued")), t)
	fatal(q.CloseWithError(cause), t)
	// a later Close keeps the first cause
	fatal(q.Close(), t)

	f, err := q.Receive(ctx)
	fatal(err, t)
	if f.Verb != (frame.Echo{Text: "queued"}) {
		t.Fatal("unexpected frame:", f)
	}
	_, err = q.Receive(ctx)
	if !errors.Is(err, ErrClosed) || !errors.Is(err, cause) {
		t.Fatal("expected ErrClosed carrying the cause, got:", err)
	}
	if err := q.Send(ctx, echo("late")); !errors.Is(err, cause) {
		t.Fatal("expected the cause from Send, got:", err)
	}
}

func TestChannelContext(t *testing.T) {
	for name, mk := range channelShapes(t) {
		t.Run(name, func(t *testing.T) {
			ch := mk()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			if _, err := ch.Receive(ctx); err != context.DeadlineExceeded {
				t.Fatalf("expected DeadlineExceeded, but got: %v", err)
			}
		})
	}
}

func TestChannelCloseDrains(t *testing.T) {
	for name, mk := range channelShapes(t) {
		t.Run(name, func(t *testing.T) {
			ch := mk()
			ctx := context.Background()
			fatal(ch.Send(ctx, echo("queued")), t)
			fatal(ch.Close(), t)

			if err := ch.Send(ctx, echo("late")); !errors.Is(err, ErrClosed) {
				t.Fatal("expected ErrClosed on send after close, got:", err)
			}
			f, err := ch.Receive(ctx)
			fatal(err, t)
			if f.Verb.(frame.Echo).Text != "queued" {
				t.Fatal("unexpected frame:", f)
			}
			if _, err := ch.Receive(ctx); !errors.Is(err, ErrClosed) {
				t.Fatal("expected ErrClosed after drain, got:", err)
			}
		})
	}
}

func TestChannelCloseWakesReceiver(t *testing.T) {
	for name, mk := range channelShapes(t) {
		t.Run(name, func(t *testing.T) {
			ch := mk()
			errs := make(chan error, 2)
			for i := 0; i < 2; i++ {
				go func() {
					_, err := ch.Receive(context.Background())
					errs <- err
				}()
			}
			time.Sleep(10 * time.Millisecond)
			fatal(ch.Close(), t)
			for i := 0; i < 2; i++ {
				select {
				case err := <-errs:
					if !errors.Is(err, ErrClosed) {
						t.Fatal("expected ErrClosed, got:", err)
					}
				case <-time.After(time.Second):
					t.Fatal("receiver not woken by close")
				}
			}
		})
	}
}

func TestArenaSlotsAreIndependent(t *testing.T) {
	a := NewArena(2)
	ctx := context.Background()
	c0, err := a.Alloc(0)
	fatal(err, t)
	c1, err := a.Alloc(1)
	fatal(err, t)

	fatal(c0.Send(ctx, echo("zero")), t)
	fatal(c1.Send(ctx, echo("one")), t)

	f, err := c1.Receive(ctx)
	fatal(err, t)
	if f.Verb.(frame.Echo).Text != "one" {
		t.Fatal("slots share storage:", f)
	}
	f, err = c0.Receive(ctx)
	fatal(err, t)
	if f.Verb.(frame.Echo).Text != "zero" {
		t.Fatal("slots share storage:", f)
	}
}

func TestArenaExhaustion(t *testing.T) {
	a := NewArena(2)
	_, err := a.Alloc(0)
	fatal(err, t)
	c1, err := a.Alloc(1)
	fatal(err, t)
	if _, err := a.Alloc(2); !errors.Is(err, ErrArenaFull) {
		t.Fatal("expected ErrArenaFull, got:", err)
	}
	a.Free(c1)
	if a.Available() != 1 {
		t.Fatal("slot not returned:", a.Available())
	}
	_, err = a.Alloc(2)
	fatal(err, t)
}

func TestArenaStaleHandle(t *testing.T) {
	a := NewArena(1)
	ctx := context.Background()
	old, err := a.Alloc(0)
	fatal(err, t)
	fatal(old.Send(ctx, echo("dropped")), t)
	a.Free(old)

	fresh, err := a.Alloc(1)
	fatal(err, t)
	if err := old.Send(ctx, echo("stale")); !errors.Is(err, ErrClosed) {
		t.Fatal("expected ErrClosed from stale handle, got:", err)
	}
	if _, err := old.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatal("expected ErrClosed from stale handle, got:", err)
	}
	fatal(old.Close(), t)

	fatal(fresh.Send(ctx, echo("fresh")), t)
	f, err := fresh.Receive(ctx)
	fatal(err, t)
	if f.Verb.(frame.Echo).Text != "fresh" {
		t.Fatal("unexpected frame in reused slot:", f)
	}
	// freeing a stale handle twice must not return the slot twice
	a.Free(old)
	if a.Available() != 0 {
		t.Fatal("stale free released a live slot")
	}
}
