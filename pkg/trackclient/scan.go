package trackclient

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"strings"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/rs/zerolog"

	"github.com/trasealla/delivery-tracking/pkg/track"
)

// FrameSource delivers camera frames at its own refresh rate. NextFrame
// blocks until a frame is available; it returns track.ErrUnavailable
// when the source is not yet ready (the loop skips that tick and stays
// alive) and any other error when the source has ended.
type FrameSource interface {
	NextFrame(ctx context.Context) (image.Image, error)
	Close() error
}

// Decoder extracts a machine-readable payload from one frame.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

// QRDecoder decodes QR codes via gozxing.
type QRDecoder struct {
	reader gozxing.Reader
}

func NewQRDecoder() *QRDecoder {
	return &QRDecoder{reader: qrcode.NewQRCodeReader()}
}

func (d *QRDecoder) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", err
	}
	result, err := d.reader.Decode(bmp, nil)
	if err != nil {
		return "", err
	}
	return result.GetText(), nil
}

// ExtractToken normalizes a decoded payload into a tracking token. The
// payload is either a bare token or a URL whose path carries the token
// as the segment following "track":
//
//	TRK-7A8B9C2D
//	https://app.trasealla.com/track/TRK-7A8B9C2D
func ExtractToken(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", fmt.Errorf("%w: empty scan payload", track.ErrValidationFailed)
	}

	if !strings.Contains(payload, "/") {
		return payload, nil
	}

	u, err := url.Parse(payload)
	if err != nil {
		return "", fmt.Errorf("%w: unparseable scan payload", track.ErrValidationFailed)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segments {
		if seg == "track" && i+1 < len(segments) && segments[i+1] != "" {
			return segments[i+1], nil
		}
	}
	return "", fmt.Errorf("%w: no tracking token in payload", track.ErrValidationFailed)
}

// ScanLoop samples a frame source at its natural rate, decodes, and
// emits tracking tokens. Undecodable frames are skipped silently; a
// token equal to the immediately preceding successful decode is
// debounced, so a code held in view emits once, not once per frame.
type ScanLoop struct {
	src     FrameSource
	dec     Decoder
	onToken func(token string)
	log     zerolog.Logger

	lastToken string

	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// NewScanLoop builds a loop. Call Start to begin sampling and Stop to
// cancel it; Stop also releases the frame source.
func NewScanLoop(src FrameSource, dec Decoder, onToken func(string), log zerolog.Logger) *ScanLoop {
	return &ScanLoop{
		src:     src,
		dec:     dec,
		onToken: onToken,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Start launches the sampling goroutine.
func (l *ScanLoop) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	go l.run(ctx)
}

// Stop cancels sampling and releases the source. Idempotent; safe to
// call from the token callback.
func (l *ScanLoop) Stop() {
	l.stopOnce.Do(func() {
		if l.cancel != nil {
			l.cancel()
		}
		_ = l.src.Close()
	})
}

// Done is closed when the sampling goroutine has exited.
func (l *ScanLoop) Done() <-chan struct{} { return l.done }

func (l *ScanLoop) run(ctx context.Context) {
	defer close(l.done)

	for {
		if ctx.Err() != nil {
			return
		}

		img, err := l.src.NextFrame(ctx)
		if err != nil {
			if errors.Is(err, track.ErrUnavailable) {
				// Source not ready yet: skip this tick, keep sampling.
				continue
			}
			return
		}

		payload, err := l.dec.Decode(img)
		if err != nil {
			// Frame without a readable code.
			continue
		}

		token, err := ExtractToken(payload)
		if err != nil {
			l.log.Debug().Str("payload", payload).Msg("garbled scan payload skipped")
			continue
		}

		if token == l.lastToken {
			continue
		}
		l.lastToken = token
		l.onToken(token)
	}
}

// ScanOnce runs the loop until the first token is resolved, then stops
// sampling and releases the source. This is the single-shot scan flow:
// point the camera, resolve one order.
func ScanOnce(ctx context.Context, src FrameSource, dec Decoder, log zerolog.Logger) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tokenCh := make(chan string, 1)
	loop := NewScanLoop(src, dec, func(token string) {
		select {
		case tokenCh <- token:
		default:
		}
		cancel()
	}, log)
	loop.Start()
	defer loop.Stop()

	select {
	case token := <-tokenCh:
		return token, nil
	case <-ctx.Done():
		select {
		case token := <-tokenCh:
			return token, nil
		default:
		}
		return "", fmt.Errorf("%w: scan cancelled", track.ErrUnavailable)
	}
}
