// Package format provides display formatting and file classification
// helpers shared by the CLI and any other frontend.
package format

import (
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

// Size renders a byte count for display ("1.2 MB", "512 B").
func Size(bytes int64) string {
	if bytes < 0 {
		return "-"
	}
	return humanize.Bytes(uint64(bytes))
}

// Date renders a timestamp in the listing format.
func Date(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// RelativeDate renders a timestamp relative to now ("3 hours ago").
func RelativeDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// FileKind is the coarse classification used for listing badges and
// preview routing.
type FileKind string

const (
	KindImage   FileKind = "image"
	KindVideo   FileKind = "video"
	KindAudio   FileKind = "audio"
	KindDoc     FileKind = "doc"
	KindArchive FileKind = "archive"
	KindCode    FileKind = "code"
	KindOther   FileKind = "other"
)

var extKinds = map[string]FileKind{
	".jpg": KindImage, ".jpeg": KindImage, ".png": KindImage, ".gif": KindImage,
	".webp": KindImage, ".svg": KindImage, ".bmp": KindImage,
	".mp4": KindVideo, ".mov": KindVideo, ".avi": KindVideo, ".mkv": KindVideo, ".webm": KindVideo,
	".mp3": KindAudio, ".wav": KindAudio, ".flac": KindAudio, ".ogg": KindAudio, ".m4a": KindAudio,
	".pdf": KindDoc, ".doc": KindDoc, ".docx": KindDoc, ".xls": KindDoc,
	".xlsx": KindDoc, ".ppt": KindDoc, ".pptx": KindDoc, ".txt": KindDoc, ".md": KindDoc,
	".zip": KindArchive, ".tar": KindArchive, ".gz": KindArchive, ".bz2": KindArchive,
	".xz": KindArchive, ".7z": KindArchive, ".rar": KindArchive,
	".go": KindCode, ".py": KindCode, ".js": KindCode, ".ts": KindCode,
	".c": KindCode, ".h": KindCode, ".cpp": KindCode, ".rs": KindCode,
	".java": KindCode, ".sh": KindCode, ".json": KindCode, ".yaml": KindCode, ".yml": KindCode,
}

// ClassifyMime maps a declared MIME type to a FileKind.
func ClassifyMime(mimeType string) FileKind {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case strings.HasPrefix(mt, "video/"):
		return KindVideo
	case strings.HasPrefix(mt, "audio/"):
		return KindAudio
	case strings.HasPrefix(mt, "text/"):
		return KindDoc
	case mt == "application/pdf":
		return KindDoc
	case strings.Contains(mt, "zip"), strings.Contains(mt, "tar"),
		strings.Contains(mt, "compress"), strings.Contains(mt, "gzip"):
		return KindArchive
	case mt == "application/json", strings.Contains(mt, "javascript"):
		return KindCode
	}
	return KindOther
}

// ClassifyName classifies a file by extension alone.
func ClassifyName(name string) FileKind {
	if kind, ok := extKinds[strings.ToLower(filepath.Ext(name))]; ok {
		return kind
	}
	return KindOther
}

// Classify determines a file's kind, preferring the declared MIME type and
// falling back to the extension.
func Classify(name, mimeType string) FileKind {
	if mimeType != "" {
		if kind := ClassifyMime(mimeType); kind != KindOther {
			return kind
		}
	}
	return ClassifyName(name)
}

// DetectMime sniffs a file's MIME type from its leading bytes, for upload
// requests that have no declared type. The reader is consumed up to the
// sniff window.
func DetectMime(r io.Reader) (string, error) {
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return "", err
	}
	return mt.String(), nil
}
