package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lvcoi/ytdl-web/internal/downloader"
	"github.com/lvcoi/ytdl-web/internal/formats"
	"github.com/lvcoi/ytdl-web/internal/selector"
)

func sampleListing() *downloader.Listing {
	size := int64(3 * 1024 * 1024)
	return &downloader.Listing{
		Title:    "Sample Clip",
		Uploader: "Someone",
		Result: formats.Result{
			VideoFormats: []formats.Format{
				{ID: "18", Kind: formats.VideoAudio, Container: "mp4", QualityLabel: "360p", Filesize: &size},
				{ID: "22", Kind: formats.VideoAudio, Container: "mp4", QualityLabel: "720p"},
			},
			AudioFormats: []formats.Format{
				{ID: "140", Kind: formats.AudioOnly, Container: "mp3", QualityLabel: "Audio only (128kbps)"},
			},
		},
	}
}

func TestRowsOrderVideoThenAudio(t *testing.T) {
	rows := Rows(sampleListing())
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	if got := strings.Join(ids, ","); got != "18,22,140" {
		t.Fatalf("unexpected order %s", got)
	}
}

func TestRequestFor(t *testing.T) {
	tests := []struct {
		format formats.Format
		want   selector.Request
	}{
		{formats.Format{Kind: formats.VideoAudio, Container: "mp4", QualityLabel: "720p"}, selector.Request{Quality: "720p", FormatType: "mp4"}},
		{formats.Format{Kind: formats.VideoAudio, Container: "webm", QualityLabel: "480p"}, selector.Request{Quality: "480p", FormatType: "mp4"}},
		{formats.Format{Kind: formats.AudioOnly, Container: "mp3", QualityLabel: "Audio only"}, selector.Request{Quality: "best", FormatType: "mp3"}},
	}
	for _, tt := range tests {
		if got := RequestFor(tt.format); got != tt.want {
			t.Fatalf("RequestFor(%+v) = %+v, want %+v", tt.format, got, tt.want)
		}
	}
}

func TestRenderTable(t *testing.T) {
	out := RenderTable(sampleListing())
	for _, want := range []string{"Sample Clip", "Someone", "360p", "720p", "Audio only (128kbps)", "3.0 MiB"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in table:\n%s", want, out)
		}
	}

	empty := RenderTable(&downloader.Listing{Title: "Nothing"})
	if !strings.Contains(empty, "no downloadable formats") {
		t.Fatalf("expected empty notice, got %q", empty)
	}
}

func TestPickerNavigation(t *testing.T) {
	m := newPickerModel(sampleListing())
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if m.selected != 2 {
		t.Fatalf("expected wrap to last row, got %d", m.selected)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if m.selected != 0 {
		t.Fatalf("expected wrap to first row, got %d", m.selected)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("2")})
	if m.selected != 1 {
		t.Fatalf("expected digit to jump to row 2, got %d", m.selected)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("9")})
	if m.selected != 1 {
		t.Fatalf("out-of-range digit should be ignored, got %d", m.selected)
	}

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd == nil {
		t.Fatalf("expected quit command after enter")
	}
	f, ok := m.Choice()
	if !ok || f.ID != "22" {
		t.Fatalf("expected row 22 chosen, got %+v ok=%v", f, ok)
	}
	if !strings.Contains(m.View(), "Selected: mp4 720p") {
		t.Fatalf("unexpected view %q", m.View())
	}
}

func TestPickerCancel(t *testing.T) {
	m := newPickerModel(sampleListing())
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if _, ok := m.Choice(); ok {
		t.Fatalf("expected no choice after cancel")
	}
}

func TestProgressModel(t *testing.T) {
	m := newProgressModel()
	m.Update(registerMsg{id: 1, label: "first"})
	m.Update(registerMsg{id: 2, label: "second"})
	m.Update(updateMsg{id: 1, percent: 150})
	if got := m.tasks[1].percent; got != 100 {
		t.Fatalf("expected clamp to 100, got %v", got)
	}
	m.Update(updateMsg{id: 2, percent: 42})
	m.Update(finishMsg{id: 2, err: errors.New("boom")})
	m.Update(updateMsg{id: 2, percent: 90})
	if got := m.tasks[2].percent; got != 42 {
		t.Fatalf("finished task should not move, got %v", got)
	}

	view := m.View()
	if !strings.Contains(view, "first") || !strings.Contains(view, "boom") {
		t.Fatalf("unexpected view %q", view)
	}
	if _, cmd := m.Update(stopMsg{}); cmd == nil {
		t.Fatalf("expected quit on stop")
	}
}

func TestNonInteractiveProgressIsSilent(t *testing.T) {
	var b strings.Builder
	p := NewProgress(&b)
	p.Start(t.Context())
	task := p.Track("x")
	task.Update(50)
	task.Done(nil)
	p.Stop()
	if b.Len() != 0 {
		t.Fatalf("expected no output, got %q", b.String())
	}
}

func TestHelpers(t *testing.T) {
	if got := truncateLine("abcdefgh", 6); got != "abc..." {
		t.Fatalf("truncateLine = %q", got)
	}
	if got := truncateLine("short", 10); got != "short" {
		t.Fatalf("truncateLine = %q", got)
	}
	sizes := map[int64]string{
		512:             "512 B",
		2048:            "2.0 KiB",
		5 * 1024 * 1024: "5.0 MiB",
	}
	for n, want := range sizes {
		if got := humanBytes(n); got != want {
			t.Fatalf("humanBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
