//go:build !((linux && cgo) || windows || darwin)

package beep

// Audio output requires cgo for the native sound libraries.
func newPlayer() (audio, error) {
	return nil, ErrAudioUnavailable
}
