// Package audio wraps synthesized PCM into playable containers.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// PCM format returned by the synthesis endpoint.
const (
	SampleRate     = 24000
	Channels       = 1
	BitDepth       = 16
	BytesPerSample = BitDepth / 8

	// HeaderSize is the size of the canonical RIFF/WAVE header EncodeWAV produces.
	HeaderSize = 44
)

const (
	MIMETypeWAV  = "audio/wav"
	MIMETypeMPEG = "audio/mpeg"
)

// ErrOddLengthPCM is returned for PCM buffers that cannot hold whole 16-bit samples.
var ErrOddLengthPCM = errors.New("pcm payload has odd byte length")

// Artifact is a finished audio payload together with its container type.
type Artifact struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
}

// Clone returns an artifact that shares no memory with a.
func (a Artifact) Clone() Artifact {
	return Artifact{Data: append([]byte(nil), a.Data...), MIMEType: a.MIMEType}
}

// ValidatePCM checks the precondition EncodeWAV relies on.
func ValidatePCM(pcm []byte) error {
	if len(pcm)%BytesPerSample != 0 {
		return ErrOddLengthPCM
	}
	return nil
}

// EncodeWAV wraps pcm in a WAV container describing mono 16-bit PCM at 24kHz. Samples are
// written back unmodified, so the result is always HeaderSize+len(pcm) bytes.
func EncodeWAV(pcm []byte) ([]byte, error) {
	if err := ValidatePCM(pcm); err != nil {
		return nil, err
	}
	samples := make([]int, len(pcm)/BytesPerSample)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:])))
	}
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: Channels, SampleRate: SampleRate},
		Data:           samples,
		SourceBitDepth: BitDepth,
	}

	out := &memFile{buf: make([]byte, 0, HeaderSize+len(pcm))}
	enc := wav.NewEncoder(out, SampleRate, BitDepth, Channels, 1)
	if err := enc.Write(buffer); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return out.buf, nil
}

// memFile is an in-memory io.WriteSeeker; the encoder seeks back to patch chunk sizes.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += n
	return n, nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(m.pos)
	case io.SeekEnd:
		base = int64(len(m.buf))
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("seek: negative position")
	}
	m.pos = int(next)
	return next, nil
}

// IsContainer reports whether mimeType names an already playable container, in which case
// the payload bypasses EncodeWAV.
func IsContainer(mimeType string) bool {
	switch normalizeContainer(mimeType) {
	case MIMETypeMPEG, MIMETypeWAV, "audio/ogg", "audio/webm", "audio/flac", "audio/aac":
		return true
	}
	return false
}

// FromPayload turns a raw synthesis payload into an artifact. Raw PCM (any audio/L16 or
// audio/pcm hint, or no hint at all) is wrapped as WAV; containers pass through untouched.
func FromPayload(data []byte, mimeType string) (Artifact, error) {
	if IsContainer(mimeType) {
		return Artifact{Data: data, MIMEType: normalizeContainer(mimeType)}, nil
	}
	wrapped, err := EncodeWAV(data)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Data: wrapped, MIMEType: MIMETypeWAV}, nil
}

// Extension returns the file extension used when exporting an artifact of mimeType.
func Extension(mimeType string) string {
	switch normalizeContainer(mimeType) {
	case MIMETypeMPEG:
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/webm":
		return ".webm"
	case "audio/flac":
		return ".flac"
	case "audio/aac":
		return ".aac"
	default:
		return ".wav"
	}
}

func normalizeContainer(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "audio/mp3":
		return MIMETypeMPEG
	case "audio/x-wav", "audio/wave":
		return MIMETypeWAV
	}
	return mt
}
