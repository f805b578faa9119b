// Package audio wraps raw PCM from speech models in a WAV container.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/yungbote/equilix-backend/internal/schema"
)

// HeaderSize is the length of a canonical RIFF/WAVE PCM header.
const HeaderSize = 44

const (
	DefaultSampleRate    = 24000
	DefaultChannels      = 1
	DefaultBitsPerSample = 16

	MIMETypeWAV = "audio/wav"
)

type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultFormat is what Gemini and OpenAI speech endpoints emit: 24kHz mono s16le.
var DefaultFormat = Format{SampleRate: DefaultSampleRate, Channels: DefaultChannels, BitsPerSample: DefaultBitsPerSample}

func (f Format) blockAlign() int { return f.Channels * f.BitsPerSample / 8 }

func (f Format) byteRate() int { return f.SampleRate * f.blockAlign() }

func (f Format) validate() error {
	switch {
	case f.SampleRate <= 0 || uint64(f.SampleRate) > 0xFFFFFFFF:
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	case f.Channels <= 0 || f.Channels > 0xFFFF:
		return fmt.Errorf("invalid channel count %d", f.Channels)
	case f.BitsPerSample <= 0 || f.BitsPerSample > 0xFFFF || f.BitsPerSample%8 != 0:
		return fmt.Errorf("invalid bits per sample %d", f.BitsPerSample)
	}
	// Header fields are 16 and 32 bits wide.
	align := uint64(f.Channels) * uint64(f.BitsPerSample/8)
	if align > 0xFFFF || uint64(f.SampleRate)*align > 0xFFFFFFFF {
		return fmt.Errorf("format %d ch x %d bit at %d Hz does not fit a wav header", f.Channels, f.BitsPerSample, f.SampleRate)
	}
	return nil
}

// EncodeWAV prefixes little-endian PCM with a 44-byte header.
func EncodeWAV(pcm []byte, f Format) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if len(pcm)%f.blockAlign() != 0 {
		return nil, fmt.Errorf("pcm length %d is not a multiple of block align %d", len(pcm), f.blockAlign())
	}
	if uint64(len(pcm))+HeaderSize-8 > 0xFFFFFFFF {
		return nil, errors.New("pcm too large for a RIFF container")
	}

	out := make([]byte, HeaderSize+len(pcm))
	le := binary.LittleEndian
	copy(out[0:4], "RIFF")
	le.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	le.PutUint32(out[16:20], 16)
	le.PutUint16(out[20:22], 1)
	le.PutUint16(out[22:24], uint16(f.Channels))
	le.PutUint32(out[24:28], uint32(f.SampleRate))
	le.PutUint32(out[28:32], uint32(f.byteRate()))
	le.PutUint16(out[32:34], uint16(f.blockAlign()))
	le.PutUint16(out[34:36], uint16(f.BitsPerSample))
	copy(out[36:40], "data")
	le.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[HeaderSize:], pcm)
	return out, nil
}

// DecodeHeader reads back the format and data length of a canonical WAV.
func DecodeHeader(wav []byte) (Format, int, error) {
	if len(wav) < HeaderSize {
		return Format{}, 0, errors.New("wav shorter than header")
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[12:16]) != "fmt " || string(wav[36:40]) != "data" {
		return Format{}, 0, errors.New("not a canonical PCM wav")
	}
	le := binary.LittleEndian
	if le.Uint16(wav[20:22]) != 1 {
		return Format{}, 0, errors.New("wav is not PCM")
	}
	f := Format{
		Channels:      int(le.Uint16(wav[22:24])),
		SampleRate:    int(le.Uint32(wav[24:28])),
		BitsPerSample: int(le.Uint16(wav[34:36])),
	}
	return f, int(le.Uint32(wav[40:44])), nil
}

// DataURI encodes a WAV as data:audio/wav;base64,...
func DataURI(wav []byte) string {
	return schema.EncodeDataURI(MIMETypeWAV, wav)
}

// FormatFromMIME reads PCM parameters from provider mime strings such as
// "audio/L16;codec=pcm;rate=24000". Unknown parts keep their defaults.
func FormatFromMIME(mime string) Format {
	f := DefaultFormat
	parts := strings.Split(mime, ";")
	base := strings.ToLower(strings.TrimSpace(parts[0]))
	switch base {
	case "audio/l8":
		f.BitsPerSample = 8
	case "audio/l24":
		f.BitsPerSample = 24
	}
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			continue
		}
		switch strings.ToLower(k) {
		case "rate":
			f.SampleRate = n
		case "channels":
			f.Channels = n
		}
	}
	return f
}

// IsWAV reports whether b already carries a RIFF/WAVE header.
func IsWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}
