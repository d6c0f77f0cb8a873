package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeStrategy struct {
	name  string
	err   error
	calls int
	info  *Info
	hook  func()
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Probe(ctx context.Context, url string) (*Info, error) {
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.info != nil {
		return f.info, nil
	}
	return &Info{ID: f.name}, nil
}

func (f *fakeStrategy) Resolve(ctx context.Context, url, selector string) (*Info, error) {
	info, err := f.Probe(ctx, url)
	if err != nil {
		return nil, err
	}
	info.URL = "https://cdn.example/" + f.name
	return info, nil
}

func (f *fakeStrategy) Fetch(ctx context.Context, req FetchRequest) (*Download, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Download{Path: req.Dir + "/" + f.name + ".mp4", Ext: "mp4"}, nil
}

func TestChainStopsAtFirstSuccess(t *testing.T) {
	first := &fakeStrategy{name: "primary"}
	second := &fakeStrategy{name: "alternate"}
	chain := NewChain(nil, first, second)

	info, err := chain.Probe(context.Background(), "https://example.com/v")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.ID != "primary" {
		t.Fatalf("info from %q, want primary", info.ID)
	}
	if second.calls != 0 {
		t.Fatalf("second strategy called %d times", second.calls)
	}
}

func TestChainFallsBack(t *testing.T) {
	first := &fakeStrategy{name: "primary", err: errors.New("ERROR: Sign in to confirm you're not a bot")}
	second := &fakeStrategy{name: "alternate"}
	chain := NewChain(nil, first, second)

	info, err := chain.Resolve(context.Background(), "https://example.com/v", "best")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if info.URL != "https://cdn.example/alternate" {
		t.Fatalf("URL = %q", info.URL)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", first.calls, second.calls)
	}
}

func TestChainCollectsAttempts(t *testing.T) {
	errA := errors.New("boom")
	chain := NewChain(nil,
		&fakeStrategy{name: "a", err: errA},
		&fakeStrategy{name: "b", err: ErrUnsupportedURL},
	)

	_, err := chain.Fetch(context.Background(), FetchRequest{URL: "https://example.com/v", Dir: t.TempDir()})
	var failed *AllStrategiesFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected AllStrategiesFailedError, got %T: %v", err, err)
	}
	if failed.Op != "fetch" || len(failed.Attempts) != 2 {
		t.Fatalf("unexpected failure record: %+v", failed)
	}
	if failed.Attempts[0].Strategy != "a" || failed.Attempts[1].Strategy != "b" {
		t.Fatalf("attempt order = %v", failed.Attempts)
	}
	if !errors.Is(err, errA) || !errors.Is(err, ErrUnsupportedURL) {
		t.Fatalf("errors.Is should see every attempt: %v", err)
	}
	if !strings.Contains(err.Error(), "2 attempt(s)") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestChainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &fakeStrategy{name: "a", err: errors.New("slow"), hook: cancel}
	second := &fakeStrategy{name: "b"}
	chain := NewChain(nil, first, second)

	_, err := chain.Probe(ctx, "https://example.com/v")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if second.calls != 0 {
		t.Fatalf("second strategy should not run after cancel")
	}
}

func TestChainEmpty(t *testing.T) {
	_, err := NewChain(nil).Probe(context.Background(), "https://example.com/v")
	if err == nil || !strings.Contains(err.Error(), "no strategies") {
		t.Fatalf("err = %v", err)
	}
}

func TestIsBotCheck(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("Sign in to confirm you're not a bot"), true},
		{errors.New("HTTP Error 403"), false},
		{ErrBotCheck, true},
		{errors.New("prove you are NOT A BOT"), true},
	}
	for _, tt := range tests {
		if got := IsBotCheck(tt.err); got != tt.want {
			t.Errorf("IsBotCheck(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestHeaderArgsSorted(t *testing.T) {
	got := headerArgs(map[string]string{"User-Agent": "x", "Accept": "y"})
	if len(got) != 2 || got[0] != "Accept:y" || got[1] != "User-Agent:x" {
		t.Fatalf("headerArgs = %v", got)
	}
}

func TestProfiles(t *testing.T) {
	p := PrimaryProfile("", "")
	if !strings.Contains(p.Headers["User-Agent"], "Chrome/120") {
		t.Fatalf("default UA = %q", p.Headers["User-Agent"])
	}
	if p.ExtractorArgs != "youtube:skip=hls,dash;player_skip=configs" {
		t.Fatalf("extractor args = %q", p.ExtractorArgs)
	}
	if p.SleepInterval != 1 || p.MaxSleepInterval != 5 || !p.NoCheckCertificates {
		t.Fatalf("pacing = %+v", p)
	}
	if alt := AlternateProfile("/bin/yt-dlp"); len(alt.Headers) != 0 || alt.Executable != "/bin/yt-dlp" {
		t.Fatalf("alternate = %+v", alt)
	}
}

func TestLastJSONLine(t *testing.T) {
	out := "[download] 100%\n{\"id\":\"abc\"}\n"
	if got := lastJSONLine(out); got != `{"id":"abc"}` {
		t.Fatalf("lastJSONLine = %q", got)
	}
	if got := lastJSONLine("no json here"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
