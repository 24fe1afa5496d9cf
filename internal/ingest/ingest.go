package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hpcloud/tail"

	"github.com/vibhavm/logsage/internal/types"
)

// ErrEmptyInput is reported for a zero-byte input artifact. This is the
// only unrecoverable input condition; everything else degrades.
var ErrEmptyInput = errors.New("ingest: input is empty")

// maxLineSize bounds a single log line. Lines are occasionally huge when
// whole payloads get logged; anything past the bound is truncated and the
// rest of the input keeps flowing.
const maxLineSize = 1024 * 1024

// ReadFile loads one log artifact into memory as numbered lines.
func ReadFile(path string) ([]types.RawLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()
	return ReadAll(f)
}

// ReadAll reads every line from r. Content is assumed UTF-8; invalid byte
// sequences are replaced rather than rejected. Line numbers are 1-based
// and include blank lines so they stay stable for auditing.
func ReadAll(r io.Reader) ([]types.RawLine, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	var lines []types.RawLine
	n := 0
	for {
		text, err := readLine(br)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		if err == io.EOF && text == "" {
			break
		}
		n++
		lines = append(lines, types.RawLine{
			Number: n,
			Text:   strings.ToValidUTF8(text, "�"),
		})
		if err == io.EOF {
			break
		}
	}
	if len(lines) == 0 {
		return nil, ErrEmptyInput
	}
	return lines, nil
}

// readLine returns the next line, truncated at maxLineSize. Bytes past the
// bound are consumed and dropped so the following line starts clean.
func readLine(br *bufio.Reader) (string, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		if room := maxLineSize - len(buf); len(chunk) > room {
			chunk = chunk[:room]
		}
		buf = append(buf, chunk...)
		if err != nil {
			return string(buf), err
		}
		if !isPrefix {
			return string(buf), nil
		}
	}
}

// Follower tails a growing file and emits each appended line. Used by
// watch mode, which accumulates the lines and re-runs the full analysis
// on a timer.
type Follower struct {
	FilePath    string
	FromStart   bool
	maxSeenLine int
}

// NewFollower creates a Follower. With fromStart the existing content is
// replayed before new appends.
func NewFollower(path string, fromStart bool) *Follower {
	return &Follower{FilePath: path, FromStart: fromStart}
}

// Follow starts tailing and returns a channel of numbered lines. The
// channel closes when ctx is done or the tail fails.
func (f *Follower) Follow(ctx context.Context) (<-chan types.RawLine, error) {
	cfg := tail.Config{
		Follow: true,
		ReOpen: true,
	}
	if !f.FromStart {
		cfg.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}
	t, err := tail.TailFile(f.FilePath, cfg)
	if err != nil {
		return nil, fmt.Errorf("tailing %s: %w", f.FilePath, err)
	}

	lines := make(chan types.RawLine, 1000)
	go func() {
		defer close(lines)
		for {
			select {
			case line, ok := <-t.Lines:
				if !ok {
					return
				}
				if line == nil {
					continue
				}
				f.maxSeenLine++
				out := types.RawLine{
					Number: f.maxSeenLine,
					Text:   strings.ToValidUTF8(line.Text, "�"),
				}
				select {
				case lines <- out:
				case <-ctx.Done():
					t.Stop()
					return
				}
			case <-ctx.Done():
				t.Stop()
				return
			}
		}
	}()
	return lines, nil
}
