package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// WAVInfo is the format header of a RIFF/WAVE file.
type WAVInfo struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataBytes     int64
}

// Duration returns the playback length in seconds.
func (w WAVInfo) Duration() float64 {
	frame := int64(w.Channels) * int64(w.BitsPerSample/8)
	if frame == 0 || w.SampleRate == 0 {
		return 0
	}
	return float64(w.DataBytes/frame) / float64(w.SampleRate)
}

// ErrNotWAV is returned for files without a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a RIFF/WAVE file")

// ReadWAVInfo reads the fmt and data chunk headers. Sample data is skipped.
func ReadWAVInfo(path string) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, err
	}
	defer f.Close()
	return parseWAV(f)
}

func parseWAV(r io.ReadSeeker) (WAVInfo, error) {
	var info WAVInfo
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return info, ErrNotWAV
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return info, ErrNotWAV
	}

	haveFmt := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if haveFmt {
				return info, nil
			}
			return info, fmt.Errorf("wav: missing fmt chunk")
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		switch id {
		case "fmt ":
			var f [16]byte
			if size < 16 {
				return info, fmt.Errorf("wav: short fmt chunk")
			}
			if _, err := io.ReadFull(r, f[:]); err != nil {
				return info, fmt.Errorf("wav: %w", err)
			}
			info.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))
			haveFmt = true
			size -= 16
		case "data":
			info.DataBytes = size
			if haveFmt {
				return info, nil
			}
		}
		// Chunks are word aligned.
		if size%2 == 1 {
			size++
		}
		if _, err := r.Seek(size, io.SeekCurrent); err != nil {
			return info, fmt.Errorf("wav: %w", err)
		}
	}
}
