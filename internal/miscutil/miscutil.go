// Package miscutil collects the small grab-bag helpers named C10 in the
// core spec: bounded retry, terminal color rotation, random-name
// suffixing, and a tiny key/value text extractor. Grounded on
// original_source/src/misc.rs, with random-name generation upgraded to
// use github.com/goombaio/namegenerator the way cmd/sand/new_cmd.go does.
package miscutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/banksean/orchestra/orcherr"
	"github.com/goombaio/namegenerator"
)

// WaitForOk calls f up to n times, sleeping delay between attempts, and
// returns the first non-error result. On exhaustion it returns a Timeout
// error naming the try count and delay.
func WaitForOk[T any](n int, delay time.Duration, f func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := 0; i < n; i++ {
		v, err := f()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if i != n-1 {
			time.Sleep(delay)
		}
	}
	return zero, orcherr.Wrap(orcherr.KindTimeout, lastErr,
		fmt.Sprintf("gave up after %d tries (delay %s)", n, delay))
}

// palette mirrors the rotating ANSI foreground colors used to distinguish
// concurrent runners' debug-forwarded prefixes.
var palette = []string{
	"\033[31m", // red
	"\033[32m", // green
	"\033[33m", // yellow
	"\033[34m", // blue
	"\033[35m", // magenta
	"\033[36m", // cyan
}

const ansiReset = "\033[0m"

var colorCounter atomic.Uint64

// NextTerminalColor cycles through a fixed palette using a process-wide
// counter, returning the ANSI escape to open the color (the caller is
// responsible for writing ansiReset, exposed as ColorReset).
func NextTerminalColor() string {
	i := colorCounter.Add(1) - 1
	return palette[int(i)%len(palette)]
}

// ColorReset is the ANSI sequence that ends a colored run.
const ColorReset = ansiReset

var nameGen = namegenerator.NewNameGenerator(time.Now().UTC().UnixNano())

// RandomName appends a short random suffix to prefix, e.g. "net-patient-fox".
func RandomName(prefix string) string {
	suffix := nameGen.Generate()
	if prefix == "" {
		return suffix
	}
	return prefix + "-" + suffix
}

// GetSeparatedVal splits input by separator, trims each chunk, and finds
// the first chunk whose trimmed form starts with key; it strips key, then
// the inter literal, and returns the trimmed remainder. Used to pull a
// single field (e.g. "public=<addr>") out of a delimited blob.
func GetSeparatedVal(input, separator, key, inter string) (string, error) {
	for _, chunk := range strings.Split(input, separator) {
		chunk = strings.TrimSpace(chunk)
		if !strings.HasPrefix(chunk, key) {
			continue
		}
		rest := strings.TrimPrefix(chunk, key)
		rest = strings.TrimPrefix(strings.TrimSpace(rest), inter)
		return strings.TrimSpace(rest), nil
	}
	return "", orcherr.New(orcherr.KindParse, fmt.Sprintf("key %q not found in separated value", key))
}
