package trackclient

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trasealla/delivery-tracking/pkg/track"
)

// scriptedFrames replays a fixed sequence of frame outcomes, then
// blocks until the context is cancelled.
type scriptedFrames struct {
	mu     sync.Mutex
	script []error // per-frame: nil = decodable frame, ErrUnavailable = not ready
	closed bool
}

func (s *scriptedFrames) NextFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	if len(s.script) == 0 {
		s.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	err := s.script[0]
	s.script = s.script[1:]
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return image.NewGray(image.Rect(0, 0, 1, 1)), nil
}

func (s *scriptedFrames) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// scriptedDecoder returns payloads in order; an empty string means the
// frame fails to decode.
type scriptedDecoder struct {
	mu       sync.Mutex
	payloads []string
}

func (d *scriptedDecoder) Decode(image.Image) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.payloads) == 0 {
		return "", assert.AnError
	}
	p := d.payloads[0]
	d.payloads = d.payloads[1:]
	if p == "" {
		return "", assert.AnError
	}
	return p, nil
}

func frames(n int) []error {
	return make([]error, n)
}

func collectTokens(t *testing.T, src *scriptedFrames, dec Decoder) []string {
	t.Helper()

	var mu sync.Mutex
	var tokens []string
	loop := NewScanLoop(src, dec, func(token string) {
		mu.Lock()
		tokens = append(tokens, token)
		mu.Unlock()
	}, zerolog.Nop())
	loop.Start()

	select {
	case <-loop.Done():
		t.Fatal("loop ended before Stop")
	case <-time.After(50 * time.Millisecond):
	}
	loop.Stop()

	select {
	case <-loop.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	return tokens
}

func TestScanLoop_DebouncesRepeatedPayload(t *testing.T) {
	src := &scriptedFrames{script: frames(3)}
	dec := &scriptedDecoder{payloads: []string{"TRK-AAA", "TRK-AAA", "TRK-AAA"}}

	tokens := collectTokens(t, src, dec)
	assert.Equal(t, []string{"TRK-AAA"}, tokens, "same payload on consecutive frames emits once")
	assert.True(t, src.closed, "Stop must release the source")
}

func TestScanLoop_DistinctPayloadsEmitEach(t *testing.T) {
	src := &scriptedFrames{script: frames(2)}
	dec := &scriptedDecoder{payloads: []string{"TRK-AAA", "TRK-BBB"}}

	tokens := collectTokens(t, src, dec)
	assert.Equal(t, []string{"TRK-AAA", "TRK-BBB"}, tokens)
}

func TestScanLoop_SkipsUnreadyAndUndecodableFrames(t *testing.T) {
	src := &scriptedFrames{script: []error{track.ErrUnavailable, nil, track.ErrUnavailable, nil}}
	dec := &scriptedDecoder{payloads: []string{"", "TRK-CCC"}}

	tokens := collectTokens(t, src, dec)
	assert.Equal(t, []string{"TRK-CCC"}, tokens)
}

func TestScanLoop_StopIsIdempotent(t *testing.T) {
	src := &scriptedFrames{}
	loop := NewScanLoop(src, &scriptedDecoder{}, func(string) {}, zerolog.Nop())
	loop.Start()

	loop.Stop()
	loop.Stop()

	select {
	case <-loop.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestScanOnce_ResolvesFirstTokenAndStops(t *testing.T) {
	src := &scriptedFrames{script: frames(5)}
	dec := &scriptedDecoder{payloads: []string{"https://app.trasealla.com/track/TRK-DDD", "TRK-EEE"}}

	token, err := ScanOnce(context.Background(), src, dec, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "TRK-DDD", token)
	assert.True(t, src.closed)
}

func TestScanOnce_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &scriptedFrames{}
	_, err := ScanOnce(ctx, src, &scriptedDecoder{}, zerolog.Nop())
	assert.ErrorIs(t, err, track.ErrUnavailable)
}

func TestExtractToken(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{"bare token", "TRK-7A8B9C2D", "TRK-7A8B9C2D", false},
		{"bare token padded", "  TRK-7A8B9C2D\n", "TRK-7A8B9C2D", false},
		{"full url", "https://app.trasealla.com/track/TRK-7A8B9C2D", "TRK-7A8B9C2D", false},
		{"url with deeper path", "https://app.trasealla.com/ae/track/TRK-7A8B9C2D/view", "TRK-7A8B9C2D", false},
		{"path only", "/track/TRK-7A8B9C2D", "TRK-7A8B9C2D", false},
		{"url without marker", "https://app.trasealla.com/orders/123", "", true},
		{"marker without token", "https://app.trasealla.com/track/", "", true},
		{"empty", "   ", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractToken(tc.payload)
			if tc.wantErr {
				assert.ErrorIs(t, err, track.ErrValidationFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
