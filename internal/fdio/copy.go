package fdio

import (
	"io"
	"os"
)

func copyBuffered(dst, src *os.File, srcOffset, count int64) (int64, error) {
	n, err := io.Copy(dst, io.NewSectionReader(src, srcOffset, count))
	if err == nil && n < count {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}
