// Package media handles the files a download produces: temp naming,
// post-processing and handing them to callers that delete them when done.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

var contentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
	"opus": "audio/ogg",
}

// ContentType returns the MIME type for a file extension (with or without
// the leading dot).
func ContentType(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// NewTempStem returns a unique file stem inside dir. Providers append their
// own extension to it.
func NewTempStem(dir string) string {
	return filepath.Join(dir, "dl-"+uuid.NewString())
}

// FindByStem returns the file a provider produced for stem, ignoring
// partial and intermediate files.
func FindByStem(stem string) (string, error) {
	matches, err := filepath.Glob(stem + ".*")
	if err != nil {
		return "", err
	}
	var found []string
	for _, m := range matches {
		switch strings.ToLower(filepath.Ext(m)) {
		case ".part", ".ytdl", ".tmp", ".temp":
			continue
		}
		// "<stem>.f137.mp4" is an unmerged yt-dlp fragment.
		if strings.Count(filepath.Base(m), ".") > 1 {
			continue
		}
		found = append(found, m)
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("no output file for %s", filepath.Base(stem))
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("ambiguous output for %s: %d files", filepath.Base(stem), len(found))
	}
}

// SafeFilename builds a download name from a title, keeping it free of path
// separators and control characters.
func SafeFilename(title, ext string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(title))
	cleaned = strings.Trim(cleaned, ". ")
	if cleaned == "" {
		cleaned = "download"
	}
	runes := []rune(cleaned)
	if len(runes) > 150 {
		cleaned = strings.TrimSpace(string(runes[:150]))
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return cleaned
	}
	return cleaned + "." + ext
}

// DeleteOnClose is a file that removes itself from disk when closed.
type DeleteOnClose struct {
	*os.File
	size int64
}

// OpenDeleteOnClose opens path for reading; Close deletes it.
func OpenDeleteOnClose(path string) (*DeleteOnClose, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return &DeleteOnClose{File: f, size: info.Size()}, nil
}

// Size is the file size at open time.
func (d *DeleteOnClose) Size() int64 {
	return d.size
}

func (d *DeleteOnClose) Close() error {
	path := d.File.Name()
	err := d.File.Close()
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}
