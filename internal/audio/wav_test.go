package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/go-audio/wav"
)

func samplePCM(n int) []byte {
	pcm := make([]byte, n)
	for i := range pcm {
		pcm[i] = byte(i * 7)
	}
	return pcm
}

func mustEncode(t *testing.T, pcm []byte) []byte {
	t.Helper()
	out, err := EncodeWAV(pcm)
	if err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	return out
}

func TestEncodeWAVHeaderFields(t *testing.T) {
	for _, size := range []int{0, 2, 480, 48000} {
		pcm := samplePCM(size)
		out := mustEncode(t, pcm)

		if len(out) != HeaderSize+size {
			t.Fatalf("size %d: expected %d bytes, got %d", size, HeaderSize+size, len(out))
		}
		le := binary.LittleEndian
		if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" || string(out[12:16]) != "fmt " || string(out[36:40]) != "data" {
			t.Fatalf("size %d: bad chunk tags %q", size, out[:40])
		}
		if got := le.Uint32(out[4:8]); got != uint32(36+size) {
			t.Fatalf("size %d: ChunkSize = %d", size, got)
		}
		if got := le.Uint32(out[16:20]); got != 16 {
			t.Fatalf("Subchunk1Size = %d", got)
		}
		if got := le.Uint16(out[20:22]); got != 1 {
			t.Fatalf("AudioFormat = %d", got)
		}
		if got := le.Uint16(out[22:24]); got != 1 {
			t.Fatalf("NumChannels = %d", got)
		}
		if got := le.Uint32(out[24:28]); got != 24000 {
			t.Fatalf("SampleRate = %d", got)
		}
		if got := le.Uint32(out[28:32]); got != 48000 {
			t.Fatalf("ByteRate = %d", got)
		}
		if got := le.Uint16(out[32:34]); got != 2 {
			t.Fatalf("BlockAlign = %d", got)
		}
		if got := le.Uint16(out[34:36]); got != 16 {
			t.Fatalf("BitsPerSample = %d", got)
		}
		if got := le.Uint32(out[40:44]); got != uint32(size) {
			t.Fatalf("size %d: Subchunk2Size = %d", size, got)
		}
		if !bytes.Equal(out[HeaderSize:], pcm) {
			t.Fatalf("size %d: payload altered", size)
		}
	}
}

func TestEncodeWAVIsDeterministic(t *testing.T) {
	pcm := samplePCM(1024)
	if !bytes.Equal(mustEncode(t, pcm), mustEncode(t, pcm)) {
		t.Fatal("expected identical output for identical input")
	}
}

func TestEncodeWAVDecodes(t *testing.T) {
	pcm := samplePCM(4800)
	dec := wav.NewDecoder(bytes.NewReader(mustEncode(t, pcm)))
	if !dec.IsValidFile() {
		t.Fatal("decoder rejected encoded wav")
	}
	if dec.SampleRate != SampleRate || dec.NumChans != Channels || dec.BitDepth != BitDepth {
		t.Fatalf("unexpected format: rate=%d chans=%d depth=%d", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode pcm: %v", err)
	}
	if len(buf.Data) != len(pcm)/BytesPerSample {
		t.Fatalf("expected %d samples, got %d", len(pcm)/BytesPerSample, len(buf.Data))
	}
}

func TestEncodeWAVRejectsOddLength(t *testing.T) {
	if _, err := EncodeWAV(samplePCM(4801)); !errors.Is(err, ErrOddLengthPCM) {
		t.Fatalf("expected ErrOddLengthPCM, got %v", err)
	}
}

// Negative samples must survive the int16 -> int -> int16 trip through the encoder.
func TestEncodeWAVKeepsSignedSamples(t *testing.T) {
	pcm := []byte{0x00, 0x80, 0xff, 0xff, 0xff, 0x7f, 0x01, 0x00}
	out := mustEncode(t, pcm)
	if !bytes.Equal(out[HeaderSize:], pcm) {
		t.Fatalf("payload altered: %v", out[HeaderSize:])
	}
}

func TestMemFileSeekAndOverwrite(t *testing.T) {
	m := &memFile{}
	_, _ = m.Write([]byte("abcdef"))
	if _, err := m.Seek(2, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	_, _ = m.Write([]byte("XY"))
	if pos, _ := m.Seek(0, io.SeekEnd); pos != 6 {
		t.Fatalf("expected end at 6, got %d", pos)
	}
	if string(m.buf) != "abXYef" {
		t.Fatalf("unexpected contents %q", m.buf)
	}
	if _, err := m.Seek(-1, io.SeekStart); err == nil {
		t.Fatal("expected error for negative offset")
	}
}

func TestFromPayload(t *testing.T) {
	art, err := FromPayload(samplePCM(10), "audio/L16;codec=pcm;rate=24000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if art.MIMEType != MIMETypeWAV || len(art.Data) != HeaderSize+10 {
		t.Fatalf("expected wrapped wav, got %s len=%d", art.MIMEType, len(art.Data))
	}

	mp3 := []byte{0xff, 0xfb, 0x90, 0x64, 0x00}
	art, err = FromPayload(mp3, "audio/mp3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if art.MIMEType != MIMETypeMPEG || !bytes.Equal(art.Data, mp3) {
		t.Fatalf("expected mp3 pass-through, got %s %v", art.MIMEType, art.Data)
	}

	if _, err := FromPayload(samplePCM(11), ""); !errors.Is(err, ErrOddLengthPCM) {
		t.Fatalf("expected ErrOddLengthPCM, got %v", err)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	orig := Artifact{Data: []byte{1, 2, 3, 4}, MIMEType: MIMETypeWAV}
	c := orig.Clone()
	c.Data[0] = 9
	if orig.Data[0] != 1 {
		t.Fatal("clone shares memory with original")
	}
}

func TestExtension(t *testing.T) {
	if Extension("audio/mp3") != ".mp3" || Extension(MIMETypeWAV) != ".wav" || Extension("") != ".wav" {
		t.Fatal("unexpected extension mapping")
	}
}
