// Package mbox reads the individual messages of an mbox archive.
package mbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	mboxlib "github.com/emersion/go-mbox"
)

// MessageFunc receives the position of a message in the archive and its raw bytes.
// raw is owned by the callee.
type MessageFunc func(index int, raw []byte) error

// Each calls fn for every message of the archive read from r, in order. It stops at
// the first error returned by fn or by the reader, and when ctx is cancelled.
func Each(ctx context.Context, r io.Reader, fn MessageFunc) error {
	reader := mboxlib.NewReader(r)

	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("message %d read: %w", idx, err)
		}

		if err := fn(idx, raw); err != nil {
			return err
		}
	}
}

// EachFile opens path and calls Each on it.
func EachFile(ctx context.Context, path string, fn MessageFunc) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	return Each(ctx, file, fn)
}

// ErrNoMessage is returned by MessageAt when the archive is shorter than the index.
var ErrNoMessage = errors.New("no such message in archive")

var errFound = errors.New("found")

// MessageAt returns the raw bytes of the message at index in the archive at path.
func MessageAt(ctx context.Context, path string, index int) ([]byte, error) {
	var raw []byte
	err := EachFile(ctx, path, func(i int, b []byte) error {
		if i == index {
			raw = b
			return errFound
		}
		return nil
	})
	if errors.Is(err, errFound) {
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("message %d: %w", index, ErrNoMessage)
}
