package extract

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/corpusd/corpusd/internal/types"
)

var (
	imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff", ".heic"}
	audioExts = []string{".mp3", ".flac", ".ogg", ".wav", ".m4a", ".aac", ".opus"}
	videoExts = []string{".mp4", ".mkv", ".avi", ".mov", ".webm", ".m4v", ".wmv"}
)

type mediaExtractor struct{}

func (mediaExtractor) Name() string { return "media" }

func (mediaExtractor) Accepts(name string, data []byte) bool {
	return hasExt(name, imageExts...) || hasExt(name, audioExts...) || hasExt(name, videoExts...)
}

// Extract emits whatever tag metadata a minimal binary reader can pull
// out of the container: image dimensions, ID3v1 audio tags, the video
// container name. Full codec parsing is out of scope. An audio or
// video file with no readable tags still yields its format
// pseudo-line; an image whose header is not PNG, GIF or JPEG yields
// no lines.
func (mediaExtractor) Extract(data []byte, name string, cfg types.ScanConfig) ([]types.Line, error) {
	switch {
	case hasExt(name, imageExts...):
		return imageLines(data), nil
	case hasExt(name, audioExts...):
		return audioLines(name, data), nil
	default:
		return videoLines(name), nil
	}
}

func imageLines(data []byte) []types.Line {
	w, h, format := imageDimensions(data)
	if format == "" {
		return nil
	}
	out := []types.Line{{LineNumber: 0, Content: "[EXIF:format] " + format}}
	if w > 0 && h > 0 {
		out = append(out,
			types.Line{LineNumber: 0, Content: fmt.Sprintf("[EXIF:width] %d", w)},
			types.Line{LineNumber: 0, Content: fmt.Sprintf("[EXIF:height] %d", h)},
		)
	}
	return out
}

// imageDimensions reads dimensions straight out of the container
// headers: PNG IHDR, GIF logical screen, JPEG SOF markers.
func imageDimensions(data []byte) (w, h int, format string) {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		if len(data) >= 24 {
			return int(binary.BigEndian.Uint32(data[16:20])), int(binary.BigEndian.Uint32(data[20:24])), "png"
		}
		return 0, 0, "png"
	case bytes.HasPrefix(data, []byte("GIF8")):
		if len(data) >= 10 {
			return int(binary.LittleEndian.Uint16(data[6:8])), int(binary.LittleEndian.Uint16(data[8:10])), "gif"
		}
		return 0, 0, "gif"
	case bytes.HasPrefix(data, []byte("\xff\xd8")):
		w, h = jpegDimensions(data)
		return w, h, "jpeg"
	}
	return 0, 0, ""
}

func jpegDimensions(data []byte) (int, int) {
	i := 2
	for i+9 < len(data) {
		if data[i] != 0xff {
			return 0, 0
		}
		marker := data[i+1]
		// SOF0..SOF15 minus DHT/JPG/DAC carry frame dimensions.
		if marker >= 0xc0 && marker <= 0xcf && marker != 0xc4 && marker != 0xc8 && marker != 0xcc {
			h := int(binary.BigEndian.Uint16(data[i+5 : i+7]))
			w := int(binary.BigEndian.Uint16(data[i+7 : i+9]))
			return w, h
		}
		segLen := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		i += 2 + segLen
	}
	return 0, 0
}

// audioLines reads an ID3v1 trailer when present: a fixed 128-byte
// block at the end of the file starting with "TAG".
func audioLines(name string, data []byte) []types.Line {
	out := []types.Line{{LineNumber: 0, Content: "[TAG:format] " + strings.TrimPrefix(extOf(name), ".")}}
	if len(data) < 128 {
		return out
	}
	trailer := data[len(data)-128:]
	if !bytes.HasPrefix(trailer, []byte("TAG")) {
		return out
	}
	fields := []struct {
		key        string
		start, end int
	}{
		{"title", 3, 33},
		{"artist", 33, 63},
		{"album", 63, 93},
		{"year", 93, 97},
	}
	for _, f := range fields {
		v := strings.TrimRight(strings.TrimRight(string(trailer[f.start:f.end]), "\x00"), " ")
		if v != "" {
			out = append(out, types.Line{LineNumber: 0, Content: "[TAG:" + f.key + "] " + v})
		}
	}
	return out
}

func videoLines(name string) []types.Line {
	return []types.Line{{LineNumber: 0, Content: "[VIDEO:format] " + strings.TrimPrefix(extOf(name), ".")}}
}

func extOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return strings.ToLower(name[i:])
	}
	return ""
}
