package tracefile

import (
	"context"
	"fmt"

	"github.com/nxadm/tail"

	"symtrace/internal/analysis"
)

// Follow reads the text trace at path from the start and keeps waiting for
// appended lines, calling fn for every entry. It returns when ctx is done,
// when fn fails or on a malformed line.
func Follow(ctx context.Context, path string, fn func(analysis.Entry) error) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("follow %s: %w", path, err)
	}
	defer t.Cleanup()
	defer t.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				return fmt.Errorf("follow %s: %w", path, line.Err)
			}
			n++
			e, ok, err := ParseLine(line.Text)
			if err != nil {
				return &ParseError{Line: n, Text: line.Text, Err: err}
			}
			if !ok {
				continue
			}
			if err := fn(e); err != nil {
				return err
			}
		}
	}
}
