package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	id3v2 "github.com/bogem/id3v2/v2"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Tags is the metadata written into delivered audio files.
type Tags struct {
	Title  string
	Artist string
	Album  string
}

// FFmpegAvailable checks if ffmpeg is installed and accessible
func FFmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// ConvertToMP3 re-encodes the audio track of inputPath into an mp3 at
// outputPath. The partial output is removed on failure.
func ConvertToMP3(ctx context.Context, inputPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !FFmpegAvailable() {
		return fmt.Errorf("ffmpeg not found in PATH")
	}
	kwargs := ffmpeg.KwArgs{
		"vn":     "",
		"acodec": "libmp3lame",
		"b:a":    "192k",
	}
	err := ffmpeg.Input(inputPath).
		Output(outputPath, kwargs).
		OverWriteOutput().
		Silent(true).
		Run()
	if err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("converting %s to mp3: %w", filepath.Base(inputPath), err)
	}
	return nil
}

// TagMP3 embeds ID3v2 tags. Files that are not mp3 are left alone.
func TagMP3(path string, tags Tags) error {
	if strings.ToLower(filepath.Ext(path)) != ".mp3" {
		return nil
	}
	if tags.Title == "" && tags.Artist == "" && tags.Album == "" {
		return nil
	}
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("opening id3 tag: %w", err)
	}
	defer tag.Close()

	if tags.Title != "" {
		tag.SetTitle(tags.Title)
	}
	if tags.Artist != "" {
		tag.SetArtist(tags.Artist)
	}
	if tags.Album != "" {
		tag.SetAlbum(tags.Album)
	}
	if err := tag.Save(); err != nil {
		return fmt.Errorf("saving id3 tag: %w", err)
	}
	return nil
}
