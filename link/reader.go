package link

import (
	"context"
	"io"
)

// Chunk is one transport read. The final chunk of a stream carries the
// read error.
type Chunk struct {
	Data []byte
	Err  error
}

// ReadChunks reads r in a goroutine and delivers the reads in order.
// Two buffers of size bytes are used in turn: Data of a chunk stays valid
// until the next chunk has been received. The channel is closed after the
// chunk carrying an error, or when ctx ends.
func ReadChunks(ctx context.Context, r io.Reader, size int) <-chan Chunk {
	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		bufs := [2][]byte{make([]byte, size), make([]byte, size)}
		i := 0
		for {
			n, err := r.Read(bufs[i])
			if n > 0 {
				select {
				case ch <- Chunk{Data: bufs[i][:n]}:
				case <-ctx.Done():
					return
				}
				i ^= 1
			}
			if err != nil {
				select {
				case ch <- Chunk{Err: err}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return ch
}
