package rtc

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// noCapturer returns empty streams. Callers pass Config.RecvOnly so the
// offer still carries audio/video m-lines and the far side can send.
type noCapturer struct{}

func (noCapturer) getUserMedia(ctx context.Context, audio, video bool) (*Stream, error) {
	return NewStream(), nil
}

func (noCapturer) populate(me *webrtc.MediaEngine) bool { return false }
