//go:build linux && cgo

package rtc

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/io/audio"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/mediadevices/pkg/wave"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
)

// deviceCapturer captures camera and microphone via pion/mediadevices.
type deviceCapturer struct {
	log      *zap.Logger
	selector *mediadevices.CodecSelector
}

func newCapturer(log *zap.Logger) mediaCapturer {
	vp8Params, err := vpx.NewVP8Params()
	if err != nil {
		log.Warn("vp8 encoder unavailable, media capture disabled", zap.Error(err))
		return &noCapturer{}
	}
	vp8Params.BitRate = 500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		log.Warn("opus encoder unavailable, media capture disabled", zap.Error(err))
		return &noCapturer{}
	}

	return &deviceCapturer{
		log: log,
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vp8Params),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}
}

func (c *deviceCapturer) populate(me *webrtc.MediaEngine) bool {
	c.selector.Populate(me)
	return true
}

func (c *deviceCapturer) getUserMedia(ctx context.Context, wantAudio, wantVideo bool) (*Stream, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: c.selector}
	if wantAudio {
		constraints.Audio = func(p *mediadevices.MediaTrackConstraints) {}
	}
	if wantVideo {
		constraints.Video = func(p *mediadevices.MediaTrackConstraints) {
			// MJPEG frames cannot feed the VP8 encoder directly.
			p.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatI420, frame.FormatYUY2, frame.FormatUYVY, frame.FormatNV21, frame.FormatNV12,
			}
			p.Width = prop.Int(640)
			p.Height = prop.Int(480)
		}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire media devices: %w", err)
	}

	out := NewStream()
	for _, t := range stream.GetTracks() {
		out.Add(newCaptureTrack(t))
	}
	c.log.Debug("acquired local media",
		zap.Bool("audio", wantAudio), zap.Bool("video", wantVideo),
		zap.Int("tracks", len(out.Tracks())))
	return out, nil
}

// captureTrack wraps a mediadevices device track. SetEnabled gates the
// source pipeline: disabled audio is replaced with silence and disabled
// video repeats its last frame, so the far side never receives live media
// while muted. The pipeline keeps flowing at the device rate, so
// enable/disable never renegotiates.
type captureTrack struct {
	track mediadevices.Track

	mu      sync.Mutex
	enabled bool
}

func newCaptureTrack(t mediadevices.Track) *captureTrack {
	ct := &captureTrack{track: t, enabled: true}
	switch src := t.(type) {
	case *mediadevices.AudioTrack:
		src.Transform(ct.gateAudio)
	case *mediadevices.VideoTrack:
		src.Transform(ct.gateVideo)
	}
	return ct
}

func (t *captureTrack) ID() string { return t.track.ID() }

func (t *captureTrack) Kind() TrackKind {
	if t.track.Kind() == webrtc.RTPCodecTypeVideo {
		return TrackVideo
	}
	return TrackAudio
}

func (t *captureTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *captureTrack) SetEnabled(on bool) {
	t.mu.Lock()
	t.enabled = on
	t.mu.Unlock()
}

func (t *captureTrack) Stop() {
	_ = t.track.Close()
}

func (t *captureTrack) webrtcTrack() webrtc.TrackLocal { return t.track }

// gateAudio substitutes silent chunks of the same format while the track
// is disabled. The upstream reader is drained either way so the device
// buffer never backs up.
func (t *captureTrack) gateAudio(r audio.Reader) audio.Reader {
	return audio.ReaderFunc(func() (wave.Audio, func(), error) {
		chunk, release, err := r.Read()
		if err != nil || t.Enabled() {
			return chunk, release, err
		}
		silent := silentChunk(chunk)
		if silent == nil {
			return chunk, release, nil
		}
		if release != nil {
			release()
		}
		return silent, func() {}, nil
	})
}

func silentChunk(chunk wave.Audio) wave.Audio {
	switch chunk.(type) {
	case *wave.Int16Interleaved:
		return wave.NewInt16Interleaved(chunk.ChunkInfo())
	case *wave.Int16NonInterleaved:
		return wave.NewInt16NonInterleaved(chunk.ChunkInfo())
	case *wave.Float32Interleaved:
		return wave.NewFloat32Interleaved(chunk.ChunkInfo())
	case *wave.Float32NonInterleaved:
		return wave.NewFloat32NonInterleaved(chunk.ChunkInfo())
	}
	return nil
}

// gateVideo freezes the picture while the track is disabled: the first
// frame read after disabling is copied and repeated until re-enabled.
func (t *captureTrack) gateVideo(r video.Reader) video.Reader {
	var frozen *image.RGBA
	return video.ReaderFunc(func() (image.Image, func(), error) {
		img, release, err := r.Read()
		if err != nil {
			return img, release, err
		}
		if t.Enabled() {
			frozen = nil
			return img, release, nil
		}
		if frozen == nil {
			frozen = image.NewRGBA(img.Bounds())
			draw.Draw(frozen, frozen.Bounds(), img, img.Bounds().Min, draw.Src)
		}
		if release != nil {
			release()
		}
		return frozen, func() {}, nil
	})
}
