package capture

import (
	"strings"
	"sync"

	"github.com/smallnest/ringbuffer"
)

// stderrBufferSize bounds the memory kept per process for diagnostics
const stderrBufferSize = 16 * 1024

// tailBuffer keeps the most recent bytes written to it. Older bytes are
// discarded to make room, so a chatty ffmpeg never blocks on stderr.
type tailBuffer struct {
	mu   sync.Mutex
	rb   *ringbuffer.RingBuffer
	size int
}

func newTailBuffer(size int) *tailBuffer {
	return &tailBuffer{
		rb:   ringbuffer.New(size),
		size: size,
	}
}

// Write implements io.Writer. It never fails.
func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n == 0 {
		return 0, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(p) > t.size {
		p = p[len(p)-t.size:]
	}
	if free := t.rb.Free(); free < len(p) {
		discard := make([]byte, len(p)-free)
		_, _ = t.rb.Read(discard)
	}
	_, _ = t.rb.Write(p)

	return n, nil
}

// contents returns a copy of the buffered bytes without consuming them
func (t *tailBuffer) contents() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	length := t.rb.Length()
	if length == 0 {
		return nil
	}
	data := make([]byte, length)
	n, _ := t.rb.Read(data)
	data = data[:n]
	_, _ = t.rb.Write(data)
	return data
}

// Lines returns up to n of the most recent non-empty lines. ffmpeg redraws
// progress with carriage returns, so those split lines too.
func (t *tailBuffer) Lines(n int) []string {
	if n <= 0 {
		return nil
	}

	fields := strings.FieldsFunc(string(t.contents()), func(r rune) bool {
		return r == '\n' || r == '\r'
	})

	lines := make([]string, 0, min(n, len(fields)))
	for _, f := range fields {
		if s := strings.TrimSpace(f); s != "" {
			lines = append(lines, s)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
