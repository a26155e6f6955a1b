package procio

import (
	"errors"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"github.com/banksean/orchestra/orcherr"
)

// recorderConfig bundles everything one stream's drain goroutine needs.
type recorderConfig struct {
	pipe            io.ReadCloser
	rb              *ringBuffer
	cfg             StreamConfig
	readLoopTimeout time.Duration
	defaultPrefix   string
}

// writeLines splits data into LF-terminated lines (keeping the
// terminator) and writes each to w, prepending prefix whenever the
// previous write ended in a newline or nothing has been written yet.
// prevEndedNewline is threaded across calls so partial lines spanning
// reads are not re-prefixed mid-line.
func writeLines(w io.Writer, prefix string, data []byte, prevEndedNewline *bool) error {
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] != '\n' {
			continue
		}
		line := data[start : i+1]
		if *prevEndedNewline {
			if _, err := io.WriteString(w, prefix); err != nil {
				return err
			}
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
		*prevEndedNewline = true
		start = i + 1
	}
	if start < len(data) {
		line := data[start:]
		if *prevEndedNewline {
			if _, err := io.WriteString(w, prefix); err != nil {
				return err
			}
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
		*prevEndedNewline = false
	}
	return nil
}

// appendLogTail mirrors the ring buffer's evict-from-head policy for the
// on-disk log file: once the combined (tail+chunk) would exceed limit,
// the file is truncated to zero and rewritten with only the kept tail.
// limit <= 0 means unbounded: append forever.
func appendLogTail(f *os.File, tail, chunk []byte, limit int) []byte {
	if limit <= 0 {
		f.Write(chunk)
		return nil
	}
	combined := make([]byte, 0, len(tail)+len(chunk))
	combined = append(combined, tail...)
	combined = append(combined, chunk...)
	if len(combined) <= limit {
		f.Write(chunk)
		return combined
	}
	kept := combined[len(combined)-limit:]
	f.Truncate(0)
	f.Seek(0, 0)
	f.Write(kept)
	return kept
}

type deadlineReader interface {
	SetReadDeadline(time.Time) error
}

// runRecorder drains one child stream into (ring buffer, log file,
// prefixed parent stream) until EOF, honoring byte caps and carrying
// incomplete UTF-8 sequences across reads. Grounded on
// super_orchestrator/src/command_runner.rs::recorder().
func runRecorder(rc recorderConfig) error {
	var logFile *os.File
	if rc.cfg.LogPath != "" {
		f, err := os.OpenFile(rc.cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return orcherr.Wrap(orcherr.KindIO, err, "open log file "+rc.cfg.LogPath)
		}
		logFile = f
		defer logFile.Close()
	}
	var logTail []byte

	prefix := rc.cfg.DebugPrefix
	if prefix == "" {
		prefix = rc.defaultPrefix
	}

	dl, supportsDeadline := rc.pipe.(deadlineReader)
	timeout := rc.readLoopTimeout
	if timeout <= 0 {
		timeout = DefaultReadLoopTimeout
	}

	var carry []byte
	prevEndedNewline := true
	wroteAny := false

	buf := make([]byte, 8*1024)
	for {
		if supportsDeadline {
			_ = dl.SetReadDeadline(time.Now().Add(timeout))
		}
		n, readErr := rc.pipe.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)

			if rc.cfg.Record {
				rc.rb.push(chunk)
			}

			if logFile != nil {
				logTail = appendLogTail(logFile, logTail, chunk, rc.cfg.LogLimit)
			}

			if rc.cfg.Debug && rc.cfg.DebugWriter != nil {
				var out []byte
				out, carry = decodeChunk(carry, chunk)
				if len(out) > 0 {
					wroteAny = true
					if err := writeLines(rc.cfg.DebugWriter, prefix, out, &prevEndedNewline); err != nil {
						return orcherr.Wrap(orcherr.KindIO, err, "write debug-forwarded output")
					}
					if flusher, ok := rc.cfg.DebugWriter.(interface{ Flush() error }); ok {
						_ = flusher.Flush()
					}
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, os.ErrDeadlineExceeded) {
				continue
			}
			if readErr == io.EOF {
				break
			}
			return orcherr.Wrap(orcherr.KindIO, readErr, "read child pipe")
		}
	}

	if rc.cfg.Debug && rc.cfg.DebugWriter != nil {
		if wroteAny && !prevEndedNewline {
			if len(carry) > 0 {
				if err := writeLines(rc.cfg.DebugWriter, prefix, utf8.AppendRune(nil, utf8.RuneError), &prevEndedNewline); err != nil {
					return orcherr.Wrap(orcherr.KindIO, err, "write trailing replacement rune")
				}
			}
			if _, err := rc.cfg.DebugWriter.Write([]byte("\n")); err != nil {
				return orcherr.Wrap(orcherr.KindIO, err, "write trailing newline")
			}
		}
	}
	return nil
}
