package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/events"
)

func TestTopics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix string
		camera string
		want   string
	}{
		{"reowatch", "front", "reowatch/front/clip_saved"},
		{"home/cams/", "front door", "home/cams/front_door/clip_saved"},
		{"", "back", "back/clip_saved"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Topics{Prefix: tt.prefix}.Event(tt.camera, events.KindClipSaved))
		})
	}

	assert.Equal(t, "reowatch/front/person", Topics{Prefix: "reowatch"}.Person("front"))
	assert.Equal(t, "reowatch/status", Topics{Prefix: "reowatch"}.Status())
}

func TestSanitizeID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "front_door", SanitizeID("front door"))
	assert.Equal(t, "a_b", SanitizeID("__a//b__"))
	assert.Equal(t, "unknown", SanitizeID("///"))
	assert.Equal(t, "cam-1", SanitizeID("cam-1"))
}

func TestConsumerPublishesEventAndPersonState(t *testing.T) {
	t.Parallel()

	client := &mockClient{connected: true}
	c := NewEventConsumer(client, Config{Topic: "reowatch"})
	assert.Equal(t, "mqtt", c.Name())

	require.NoError(t, c.ProcessEvent(events.NewEvent(events.KindDetectionStarted, "front")))
	require.NoError(t, c.ProcessEvent(events.NewEvent(events.KindDetectionEnded, "front")))

	msgs := client.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "reowatch/front/detection_started", msgs[0].Topic)
	assert.False(t, msgs[0].Retain)
	assert.Equal(t, published{"reowatch/front/person", PersonOn, true}, msgs[1])
	assert.Equal(t, "reowatch/front/detection_ended", msgs[2].Topic)
	assert.Equal(t, published{"reowatch/front/person", PersonOff, true}, msgs[3])
}

func TestConsumerClipPayload(t *testing.T) {
	t.Parallel()

	client := &mockClient{connected: true}
	c := NewEventConsumer(client, Config{Topic: "reowatch", Retain: true})

	ev := events.NewEvent(events.KindClipSaved, "front").WithArtifact(events.Artifact{
		Kind:     events.ArtifactClip,
		Camera:   "front",
		Path:     "/rec/front/clips/person_detection_20240101_120000_000_ch0.mp4",
		Size:     1 << 20,
		Duration: 90 * time.Second,
	})
	require.NoError(t, c.ProcessEvent(ev))

	msgs := client.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Retain)

	var dto EventDTO
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Payload), &dto))
	assert.Equal(t, ev.ID, dto.ID)
	assert.Equal(t, "clip_saved", dto.Kind)
	assert.Equal(t, "clip", dto.ArtifactKind)
	assert.Equal(t, int64(1<<20), dto.SizeBytes)
	assert.InDelta(t, 90.0, dto.DurationSeconds, 0.001)
}

func TestConsumerErrors(t *testing.T) {
	t.Parallel()

	t.Run("disconnected", func(t *testing.T) {
		t.Parallel()
		c := NewEventConsumer(&mockClient{}, Config{Topic: "x"})
		err := c.ProcessEvent(events.NewEvent(events.KindClipSaved, "front"))
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnection))
	})

	t.Run("publish failure", func(t *testing.T) {
		t.Parallel()
		boom := errors.NewStd("broker said no")
		c := NewEventConsumer(&mockClient{connected: true, publishErr: boom}, Config{Topic: "x"})
		err := c.ProcessEvent(events.NewEvent(events.KindClipSaved, "front"))
		assert.ErrorIs(t, err, boom)
	})
}
