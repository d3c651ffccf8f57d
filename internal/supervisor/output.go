package supervisor

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rama-kairi/devrunner/internal/logger"
)

// outputBuffer accumulates the combined output of one slot. Only readers
// bound to the current generation may append.
type outputBuffer struct {
	generation string
	text       strings.Builder
}

// OutputAggregator holds one append-only buffer per slot
type OutputAggregator struct {
	mu      sync.Mutex
	buffers map[int]*outputBuffer
}

// NewOutputAggregator creates an empty aggregator
func NewOutputAggregator() *OutputAggregator {
	return &OutputAggregator{buffers: make(map[int]*outputBuffer)}
}

// Reset empties the buffer for slot and hands it to generation gen
func (a *OutputAggregator) Reset(slot int, gen string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.buffers[slot] = &outputBuffer{generation: gen}
}

// Continue keeps the existing buffer for slot, hands it to generation gen and
// appends marker as a line
func (a *OutputAggregator) Continue(slot int, gen, marker string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.buffers[slot]
	if !ok {
		buf = &outputBuffer{}
		a.buffers[slot] = buf
	}
	buf.generation = gen
	buf.text.WriteString(marker)
	buf.text.WriteByte('\n')
}

// AppendLine appends line plus a newline. It reports false, and does
// nothing, when the slot is gone or gen is no longer current.
func (a *OutputAggregator) AppendLine(slot int, gen, line string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.buffers[slot]
	if !ok || buf.generation != gen {
		return false
	}
	buf.text.WriteString(line)
	buf.text.WriteByte('\n')
	return true
}

// Snapshot returns everything written to slot so far, or "" for an unknown slot
func (a *OutputAggregator) Snapshot(slot int) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if buf, ok := a.buffers[slot]; ok {
		return buf.text.String()
	}
	return ""
}

// TotalBytes returns the size of all buffers combined
func (a *OutputAggregator) TotalBytes() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := 0
	for _, buf := range a.buffers {
		total += buf.text.Len()
	}
	return total
}

// Discard drops the buffer for slot; pending readers become no-ops
func (a *OutputAggregator) Discard(slot int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.buffers, slot)
}

// capture reads r line by line into the slot's buffer until EOF or a read
// error. Lines that are not valid UTF-8 are skipped. r is closed on return.
func (a *OutputAggregator) capture(r io.ReadCloser, slot int, gen, stream string, log *logger.Logger) {
	defer r.Close()
	defer func() {
		if rec := recover(); rec != nil {
			log.Warn("Recovered from panic in output reader", map[string]interface{}{
				"stream": stream,
				"panic":  rec,
			})
		}
	}()

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			if utf8.ValidString(line) {
				a.AppendLine(slot, gen, line)
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Debug("Output reader stopped", map[string]interface{}{
					"stream": stream,
					"error":  err.Error(),
				})
			}
			return
		}
	}
}
