package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransportKind(t *testing.T) {
	cases := map[string]TransportKind{
		"webcam":      TransportLocalDevice,
		"":            TransportLocalDevice,
		"droidcam":    TransportHTTPStream,
		"ipcam":       TransportHTTPStream,
		"http-stream": TransportHTTPStream,
		"RTSP":        TransportRTSP,
	}
	for in, want := range cases {
		got, err := ParseTransportKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseTransportKind("fax")
	assert.Error(t, err)
}

func TestResolveStreamURL(t *testing.T) {
	cam := Camera{Transport: TransportHTTPStream, Address: "10.0.0.5", Port: 4747}
	assert.Equal(t, "http://10.0.0.5:4747/video", cam.ResolveStreamURL())

	cam.StreamURL = "http://override/stream"
	assert.Equal(t, "http://override/stream", cam.ResolveStreamURL())

	rtsp := Camera{Transport: TransportRTSP, Address: "cam.local", Port: 554}
	assert.Equal(t, "rtsp://cam.local:554/", rtsp.ResolveStreamURL())

	local := Camera{Transport: TransportLocalDevice}
	assert.Empty(t, local.ResolveStreamURL())
	assert.False(t, local.Transport.IsStream())
	assert.True(t, rtsp.Transport.IsStream())
}

func TestFrameCloneIsIndependent(t *testing.T) {
	f := &Frame{CameraID: 1, Width: 2, Height: 1, Data: []byte{1, 2, 3, 4, 5, 6}}
	require.True(t, f.Valid())

	cp := f.Clone()
	cp.Data[0] = 99

	assert.Equal(t, byte(1), f.Data[0])
	assert.Equal(t, f.Width, cp.Width)

	assert.False(t, (&Frame{Width: 2, Height: 2, Data: []byte{1}}).Valid())
	assert.False(t, (*Frame)(nil).Valid())
}

func TestScoresDominantTieBreak(t *testing.T) {
	s := Scores{EmotionHappy: 0.3, EmotionSad: 0.3, EmotionNeutral: 0.1, EmotionAngry: 0.3}
	assert.Equal(t, EmotionAngry, s.Dominant())

	s = Scores{EmotionSurprise: 0.5, EmotionNeutral: 0.5}
	assert.Equal(t, EmotionSurprise, s.Dominant())
}

func TestScoresPercentTruncates(t *testing.T) {
	s := Scores{EmotionHappy: 0.999, EmotionSad: 0.001}
	p := s.Percent()
	assert.Equal(t, 99, p[EmotionHappy])
	assert.Equal(t, 0, p[EmotionSad])
	assert.Len(t, p, len(Emotions))
}

func TestParseTriggerKind(t *testing.T) {
	k, err := ParseTriggerKind("fixed_time")
	require.NoError(t, err)
	assert.Equal(t, TriggerCalendar, k)

	k, err = ParseTriggerKind("interval")
	require.NoError(t, err)
	assert.Equal(t, TriggerInterval, k)

	_, err = ParseTriggerKind("lunar")
	assert.Error(t, err)
}
