// Package app runs batch downloads for the command line.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lvcoi/ytdl-web/internal/downloader"
	"github.com/lvcoi/ytdl-web/internal/selector"
	"github.com/lvcoi/ytdl-web/internal/tui"
)

// Downloader is the part of the service the runner needs.
type Downloader interface {
	Download(ctx context.Context, rawURL string, req selector.Request, progress func(float64)) (*downloader.File, error)
}

type Options struct {
	Request   selector.Request
	OutputDir string
	Jobs      int
	// Progress may be nil.
	Progress *tui.Progress
}

type Result struct {
	URL   string `json:"url"`
	Path  string `json:"path,omitempty"`
	Size  int64  `json:"size,omitempty"`
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// Run downloads urls with opts.Jobs workers and returns one Result per
// submitted URL together with the process exit code.
func Run(ctx context.Context, urls []string, svc Downloader, opts Options) ([]Result, int) {
	jobs := max(opts.Jobs, 1)
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}

	tasks := make(chan string)
	results := make(chan Result, len(urls))

	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case u, ok := <-tasks:
					if !ok {
						return
					}
					result := fetchOne(ctx, u, svc, opts)
					select {
					case results <- result:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	submitted := 0
submit:
	for _, u := range urls {
		select {
		case <-ctx.Done():
			break submit
		case tasks <- u:
			submitted++
		}
	}
	close(tasks)

	go func() {
		wg.Wait()
		close(results)
	}()

	output := make([]Result, 0, submitted)
	exitCode := 0
	for res := range results {
		output = append(output, res)
		if res.Err != nil {
			if code := downloader.ExitCode(res.Err); code > exitCode {
				exitCode = code
			}
		}
	}

	// Interrupted runs report 130 even when every finished download succeeded.
	if ctx.Err() != nil && exitCode == 0 {
		exitCode = 130
	}
	return output, exitCode
}

func fetchOne(ctx context.Context, u string, svc Downloader, opts Options) Result {
	task := opts.Progress.Track(u)
	var progress func(float64)
	if task != nil {
		progress = task.Update
	}

	result := Result{URL: u}
	file, err := svc.Download(ctx, u, opts.Request, progress)
	if err == nil {
		result.Size = file.Size
		if result.Path, err = saveFile(file, opts.OutputDir); err != nil {
			err = downloader.CategorizedError{Category: downloader.CategoryFilesystem, Err: err}
		}
	}
	task.Done(err)
	if err != nil {
		result.Err = err
		result.Error = err.Error()
	}
	return result
}

// saveMu serializes picking a free name in the output dir.
var saveMu sync.Mutex

// saveFile moves a finished download into dir under its display name.
func saveFile(file *downloader.File, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		file.Remove()
		return "", fmt.Errorf("create output dir: %w", err)
	}

	saveMu.Lock()
	dest := uniquePath(filepath.Join(dir, file.Name))
	if err := os.Rename(file.Path, dest); err == nil {
		saveMu.Unlock()
		return dest, nil
	}
	// Different filesystem: claim the name, copy, and let the reader
	// remove the source.
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	saveMu.Unlock()
	if err != nil {
		file.Remove()
		return "", fmt.Errorf("create %s: %w", dest, err)
	}

	src, err := file.Open()
	if err != nil {
		out.Close()
		os.Remove(dest)
		return "", err
	}
	defer src.Close()
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dest)
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	return dest, out.Close()
}

// uniquePath appends " (n)" before the extension until path is unused.
func uniquePath(path string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}
