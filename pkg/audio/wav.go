package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// wavHeader is the canonical 44-byte RIFF/WAVE header for uncompressed PCM.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

func newWAVHeader(f Format, dataLen uint32) wavHeader {
	h := wavHeader{
		ChunkSize:     36 + dataLen,
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.BytesPerSecond()),
		BlockAlign:    uint16(f.Channels * 2),
		BitsPerSample: 16,
		Subchunk2Size: dataLen,
	}
	copy(h.ChunkID[:], "RIFF")
	copy(h.Format[:], "WAVE")
	copy(h.Subchunk1ID[:], "fmt ")
	copy(h.Subchunk2ID[:], "data")
	return h
}

// EncodeWAV wraps 16-bit PCM samples in a RIFF/WAVE container.
func EncodeWAV(samples []int16, f Format) ([]byte, error) {
	dataLen := uint32(len(samples) * 2)
	var buf bytes.Buffer
	buf.Grow(44 + int(dataLen))
	if err := binary.Write(&buf, binary.LittleEndian, newWAVHeader(f, dataLen)); err != nil {
		return nil, fmt.Errorf("audio: write wav header: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("audio: write wav data: %w", err)
	}
	return buf.Bytes(), nil
}

// WAVWriter streams 16-bit PCM into a RIFF/WAVE container. The header is
// rewritten with the true data length on Close, so the destination must
// support seeking.
type WAVWriter struct {
	ws      io.WriteSeeker
	format  Format
	written uint32
	closed  bool
}

// NewWAVWriter writes a provisional header to ws and returns a writer that
// appends PCM data after it.
func NewWAVWriter(ws io.WriteSeeker, f Format) (*WAVWriter, error) {
	if err := binary.Write(ws, binary.LittleEndian, newWAVHeader(f, 0)); err != nil {
		return nil, fmt.Errorf("audio: write wav header: %w", err)
	}
	return &WAVWriter{ws: ws, format: f}, nil
}

// Write appends raw little-endian 16-bit PCM bytes.
func (w *WAVWriter) Write(pcm []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("audio: wav writer closed")
	}
	n, err := w.ws.Write(pcm)
	w.written += uint32(n)
	if err != nil {
		return n, fmt.Errorf("audio: write wav data: %w", err)
	}
	return n, nil
}

// Close seeks back and finalizes the header. It does not close the
// underlying destination.
func (w *WAVWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if _, err := w.ws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("audio: finalize wav: %w", err)
	}
	if err := binary.Write(w.ws, binary.LittleEndian, newWAVHeader(w.format, w.written)); err != nil {
		return fmt.Errorf("audio: finalize wav: %w", err)
	}
	return nil
}
