// Package tui renders format listings and download progress in the terminal.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lvcoi/ytdl-web/internal/downloader"
	"github.com/lvcoi/ytdl-web/internal/formats"
	"github.com/lvcoi/ytdl-web/internal/selector"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0B0B0B")).
			Background(lipgloss.Color("#7FDBFF")).
			Bold(true).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6ADC8")).
			Faint(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8F8F2")).
			Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0B0B0B")).
			Background(lipgloss.Color("#00F5D4")).
			Bold(true)

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EAEAEA"))
)

const rowFormat = "%3s  %-6s %-5s %-22s %s"

// Rows lists video renditions first, then audio, the order both the table
// and the picker number them in.
func Rows(l *downloader.Listing) []formats.Format {
	rows := make([]formats.Format, 0, len(l.VideoFormats)+len(l.AudioFormats))
	rows = append(rows, l.VideoFormats...)
	return append(rows, l.AudioFormats...)
}

// RequestFor maps a listed rendition to the download request that yields it.
func RequestFor(f formats.Format) selector.Request {
	if f.Kind == formats.AudioOnly {
		return selector.Request{Quality: "best", FormatType: "mp3"}
	}
	return selector.Request{Quality: f.QualityLabel, FormatType: "mp4"}
}

func formatRow(i int, f formats.Format) string {
	size := "-"
	if f.Filesize != nil && *f.Filesize > 0 {
		size = humanBytes(*f.Filesize)
	}
	return fmt.Sprintf(rowFormat, fmt.Sprint(i+1), f.Kind, f.Container, f.QualityLabel, size)
}

func tableHeader() string {
	return headerStyle.Render(fmt.Sprintf(rowFormat, "#", "kind", "ext", "quality", "size"))
}

// RenderTable renders a non-interactive listing.
func RenderTable(l *downloader.Listing) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(l.Title))
	if l.Uploader != "" {
		b.WriteString(" ")
		b.WriteString(helpStyle.Render(l.Uploader))
	}
	b.WriteString("\n")

	rows := Rows(l)
	if len(rows) == 0 {
		b.WriteString(helpStyle.Render("no downloadable formats"))
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString(tableHeader())
	b.WriteString("\n")
	for i, f := range rows {
		b.WriteString(rowStyle.Render(formatRow(i, f)))
		b.WriteString("\n")
	}
	return b.String()
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
