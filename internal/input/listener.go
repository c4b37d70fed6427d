package input

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadEvents parses one event per line from r until EOF:
//
//	k [n]   keystrokes
//	c [n]   clicks
//	s [n]   scroll notches
//
// n defaults to 1. Unknown lines are skipped.
func ReadEvents(r io.Reader, c *Counters) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		var kind Kind
		switch fields[0] {
		case "k":
			kind = Key
		case "c":
			kind = Click
		case "s":
			kind = Scroll
		default:
			continue
		}
		n := uint64(1)
		if len(fields) > 1 {
			v, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				continue
			}
			n = v
		}
		c.Add(kind, n)
	}
	return sc.Err()
}

// FileListener returns a listen func for Supervise that reads events from a
// FIFO or pipe at path. Opening a FIFO blocks until a writer connects; the
// listener returns when the writer closes.
func FileListener(path string, c *Counters) func(context.Context) error {
	return func(ctx context.Context) error {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input source: %w", err)
		}
		defer f.Close()
		stop := context.AfterFunc(ctx, func() { _ = f.Close() })
		defer stop()
		if err := ReadEvents(f, c); err != nil && ctx.Err() == nil {
			return fmt.Errorf("read input source: %w", err)
		}
		return nil
	}
}
