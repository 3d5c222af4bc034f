package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderSize is the size of the canonical RIFF/WAVE header.
const HeaderSize = 44

const (
	formatPCM       = 1
	fmtChunkSize    = 16
	riffPreambleLen = 8
	ContentTypeWAV  = "audio/wav"
	FileExtension   = ".wav"
)

var (
	// ErrInvalidContainer indicates that bytes are not a minimal PCM WAV file.
	ErrInvalidContainer = errors.New("invalid wav container")
	// ErrPayloadTooLarge indicates that the PCM payload does not fit a 32-bit RIFF size.
	ErrPayloadTooLarge = errors.New("pcm payload too large for wav container")
)

// Header is the on-disk layout of a minimal PCM WAV file.
type Header struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // PCM length
}

// PCMFormat returns the sample format declared by the header.
func (h Header) PCMFormat() Format {
	return Format{
		SampleRate:    int(h.SampleRate),
		Channels:      int(h.NumChannels),
		BitsPerSample: int(h.BitsPerSample),
	}
}

// EncodeContainer wraps pcm into a WAV file with the given sample layout.
func EncodeContainer(pcm []byte, sampleRate, channels, bitsPerSample int) ([]byte, error) {
	format := Format{SampleRate: sampleRate, Channels: channels, BitsPerSample: bitsPerSample}

	return format.Encode(pcm)
}

// Encode wraps pcm into a WAV file. Header fields are derived from the format; the samples
// are copied verbatim after the header.
func (f Format) Encode(pcm []byte) ([]byte, error) {
	formatErr := f.Validate()
	if formatErr != nil {
		return nil, formatErr
	}

	if len(pcm)%f.BlockAlign() != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of block align %d",
			ErrMalformedPayload, len(pcm), f.BlockAlign())
	}

	if uint64(len(pcm)) > math.MaxUint32-(HeaderSize-riffPreambleLen) {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(pcm))
	}

	header := f.header(uint32(len(pcm)))

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(pcm)))

	err := binary.Write(buf, binary.LittleEndian, header)
	if err != nil {
		return nil, fmt.Errorf("failed to write wav header: %w", err)
	}

	buf.Write(pcm)

	return buf.Bytes(), nil
}

func (f Format) header(dataSize uint32) Header {
	return Header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     HeaderSize - riffPreambleLen + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: fmtChunkSize,
		AudioFormat:   formatPCM,
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.ByteRate()),
		BlockAlign:    uint16(f.BlockAlign()),
		BitsPerSample: uint16(f.BitsPerSample),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// ParseHeader reads and validates the header of a minimal PCM WAV file.
func ParseHeader(data []byte) (Header, error) {
	var header Header

	if len(data) < HeaderSize {
		return header, fmt.Errorf("%w: need at least %d bytes, got %d", ErrInvalidContainer, HeaderSize, len(data))
	}

	err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &header)
	if err != nil {
		return header, fmt.Errorf("failed to read wav header: %w", err)
	}

	switch {
	case string(header.ChunkID[:]) != "RIFF":
		return header, fmt.Errorf("%w: missing RIFF header", ErrInvalidContainer)
	case string(header.Format[:]) != "WAVE":
		return header, fmt.Errorf("%w: missing WAVE format", ErrInvalidContainer)
	case string(header.Subchunk1ID[:]) != "fmt ":
		return header, fmt.Errorf("%w: missing fmt chunk", ErrInvalidContainer)
	case string(header.Subchunk2ID[:]) != "data":
		return header, fmt.Errorf("%w: missing data chunk", ErrInvalidContainer)
	case header.AudioFormat != formatPCM:
		return header, fmt.Errorf("%w: audio format %d is not PCM", ErrInvalidContainer, header.AudioFormat)
	case int(header.Subchunk2Size) != len(data)-HeaderSize:
		return header, fmt.Errorf("%w: data chunk declares %d bytes, file carries %d",
			ErrInvalidContainer, header.Subchunk2Size, len(data)-HeaderSize)
	}

	return header, nil
}
