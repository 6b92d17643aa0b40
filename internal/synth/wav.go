package synth

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// WAV container layout constants.
const (
	riffHeaderSize  = 12
	chunkHeaderSize = 8
	fmtSampleRateAt = 4
	minFmtChunkSize = 16
)

// Static WAV parsing errors.
var (
	ErrNotWAV          = errors.New("not a RIFF/WAVE file")
	ErrNoFmtChunk      = errors.New("no fmt chunk found")
	ErrShortFmtChunk   = errors.New("fmt chunk too short")
	ErrZeroSampleRate  = errors.New("sample rate is zero")
	ErrTruncatedHeader = errors.New("truncated WAV header")
)

// ReadWAVSampleRate extracts the sample rate from a WAV file header by
// scanning chunks for "fmt ". Only the header is read, never the payload.
func ReadWAVSampleRate(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer file.Close()

	header := make([]byte, riffHeaderSize)

	_, err = io.ReadFull(file, header)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTruncatedHeader, err)
	}

	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return 0, ErrNotWAV
	}

	return scanForSampleRate(file)
}

func scanForSampleRate(file *os.File) (int, error) {
	chunkHeader := make([]byte, chunkHeaderSize)

	for {
		_, err := io.ReadFull(file, chunkHeader)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return 0, ErrNoFmtChunk
			}

			return 0, fmt.Errorf("failed to read chunk header: %w", err)
		}

		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		if chunkID != "fmt " {
			// Chunks are word-aligned; skip the padding byte on odd sizes.
			skip := int64(chunkSize)
			if chunkSize%2 == 1 {
				skip++
			}

			_, seekErr := file.Seek(skip, io.SeekCurrent)
			if seekErr != nil {
				return 0, fmt.Errorf("failed to skip chunk '%s': %w", chunkID, seekErr)
			}

			continue
		}

		if chunkSize < minFmtChunkSize {
			return 0, ErrShortFmtChunk
		}

		fmtChunk := make([]byte, minFmtChunkSize)

		_, err = io.ReadFull(file, fmtChunk)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrShortFmtChunk, err)
		}

		sampleRate := binary.LittleEndian.Uint32(fmtChunk[fmtSampleRateAt : fmtSampleRateAt+4])
		if sampleRate == 0 {
			return 0, ErrZeroSampleRate
		}

		return int(sampleRate), nil
	}
}
