//go:build !(linux && cgo)

package rtc

import "go.uber.org/zap"

func newCapturer(log *zap.Logger) mediaCapturer {
	log.Debug("no media capture on this platform, calls negotiate receive-only")
	return &noCapturer{}
}
