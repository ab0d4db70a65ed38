package voice

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const wavHeaderSize = 44

// Format describes raw little-endian signed PCM
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultFormat is what speech recognizers expect: 16kHz mono 16-bit
var DefaultFormat = Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}

func (f Format) blockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// ByteRate is the number of PCM bytes per second of audio
func (f Format) ByteRate() int {
	return f.SampleRate * f.blockAlign()
}

// EncodeWAV wraps raw PCM in a canonical 44-byte RIFF/WAVE header
func EncodeWAV(pcm []byte, f Format) []byte {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(f.Channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(f.ByteRate()))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(f.blockAlign()))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(f.BitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// IsWAV reports whether data starts with a RIFF/WAVE header
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV splits a canonical WAV file into its format and PCM payload
func DecodeWAV(data []byte) (Format, []byte, error) {
	if !IsWAV(data) || len(data) < wavHeaderSize {
		return Format{}, nil, errors.New("not a WAV file")
	}

	f := Format{
		Channels:      int(binary.LittleEndian.Uint16(data[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(data[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(data[34:36])),
	}
	pcm := data[wavHeaderSize:]
	if size := int(binary.LittleEndian.Uint32(data[40:44])); size < len(pcm) {
		pcm = pcm[:size]
	}
	return f, pcm, nil
}
