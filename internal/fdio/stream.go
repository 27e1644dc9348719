package fdio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// DefaultChunkSize is the largest slice Stream moves per iteration when no
// chunk size is given.
const DefaultChunkSize = 2048

var chunkPool = sync.Pool{
	New: func() any {
		b := make([]byte, DefaultChunkSize)
		return &b
	},
}

// ReadWaiter is implemented by sources that can park until readable.
type ReadWaiter interface {
	WaitReadable() error
}

// WriteWaiter is implemented by sinks that can park until writable.
type WriteWaiter interface {
	WaitWritable() error
}

// Stream copies exactly length bytes from src to dst, moving at most chunk
// bytes per iteration.
//
// When src returns ErrWouldBlock and implements ReadWaiter, Stream waits for
// readability and retries; dst is handled the same way through WriteWaiter.
// It never reads more than length bytes from src. If src ends early the
// returned error wraps ErrShortTransfer. ctx is checked between chunks.
func Stream(ctx context.Context, dst io.Writer, src io.Reader, length int64, chunk int) (int64, error) {
	if length <= 0 {
		return 0, nil
	}

	var buf []byte
	if chunk <= 0 || chunk == DefaultChunkSize {
		bp := chunkPool.Get().(*[]byte)
		defer chunkPool.Put(bp)
		buf = *bp
	} else {
		buf = make([]byte, chunk)
	}

	var total int64
	for total < length {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		want := min(int64(len(buf)), length-total)
		n, err := readSome(src, buf[:want])
		if n > 0 {
			if werr := WriteFull(dst, buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				if total < length {
					return total, fmt.Errorf("%w: got %d of %d bytes", ErrShortTransfer, total, length)
				}
				break
			}
			return total, err
		}
	}
	return total, nil
}

// readSome reads into p, waiting out ErrWouldBlock when src supports it.
func readSome(src io.Reader, p []byte) (int, error) {
	for {
		n, err := src.Read(p)
		if n == 0 && errors.Is(err, ErrWouldBlock) {
			w, ok := src.(ReadWaiter)
			if !ok {
				return 0, err
			}
			if werr := w.WaitReadable(); werr != nil {
				return 0, werr
			}
			continue
		}
		if n == 0 && err == nil {
			// 0, nil counts as end of source.
			return 0, io.EOF
		}
		return n, err
	}
}

// WriteFull writes all of p to dst. Partial writes are continued and
// ErrWouldBlock is waited out when dst implements WriteWaiter.
func WriteFull(dst io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := dst.Write(p)
		if n > 0 {
			p = p[n:]
		}
		if err != nil {
			if errors.Is(err, ErrWouldBlock) {
				if w, ok := dst.(WriteWaiter); ok {
					if werr := w.WaitWritable(); werr != nil {
						return werr
					}
					continue
				}
			}
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}
