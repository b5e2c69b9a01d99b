package capture

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTailBufferKeepsNewestBytes(t *testing.T) {
	t.Parallel()

	tb := newTailBuffer(64)
	for i := range 100 {
		n, err := fmt.Fprintf(tb, "line %03d\n", i)
		require.NoError(t, err)
		require.Equal(t, 9, n)
	}

	lines := tb.Lines(3)
	assert.Equal(t, []string{"line 097", "line 098", "line 099"}, lines)
}

func TestTailBufferOversizedWrite(t *testing.T) {
	t.Parallel()

	tb := newTailBuffer(16)
	payload := strings.Repeat("x", 40) + "\nlast"
	n, err := tb.Write([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, "last", tb.Lines(1)[0])
}

func TestTailBufferLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		n     int
		want  []string
	}{
		{"empty", "", 5, []string{}},
		{"zero requested", "a\nb\n", 0, nil},
		{"fewer than requested", "a\nb\n", 5, []string{"a", "b"}},
		{"carriage returns", "frame=1\rframe=2\rdone\n", 2, []string{"frame=2", "done"}},
		{"blank lines skipped", "a\n\n  \nb\n", 5, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tb := newTailBuffer(256)
			_, _ = tb.Write([]byte(tt.input))
			assert.Equal(t, tt.want, tb.Lines(tt.n))
			// Reading must not consume the buffer
			assert.Equal(t, tt.want, tb.Lines(tt.n))
		})
	}
}
