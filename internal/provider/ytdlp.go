package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"

	"github.com/lvcoi/ytdl-web/internal/media"
)

// Profile holds the yt-dlp options one YTDLP strategy runs with.
type Profile struct {
	// Executable overrides the yt-dlp binary; empty uses go-ytdlp's lookup.
	Executable string
	Headers    map[string]string
	// ExtractorArgs is passed verbatim to --extractor-args.
	ExtractorArgs       string
	SleepInterval       float64
	MaxSleepInterval    float64
	NoCheckCertificates bool
}

// DefaultHeaders are browser-like request headers sent to the source.
func DefaultHeaders(userAgent string) map[string]string {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-us,en;q=0.5",
		"Sec-Fetch-Mode":  "navigate",
	}
}

// PrimaryProfile mirrors the options the service has always used: browser
// headers, paced requests and no HLS/DASH manifests.
func PrimaryProfile(executable, userAgent string) Profile {
	return Profile{
		Executable:          executable,
		Headers:             DefaultHeaders(userAgent),
		ExtractorArgs:       "youtube:skip=hls,dash;player_skip=configs",
		SleepInterval:       1,
		MaxSleepInterval:    5,
		NoCheckCertificates: true,
	}
}

// AlternateProfile is tried after the primary one is rejected; it asks for
// different player clients and sends no custom headers.
func AlternateProfile(executable string) Profile {
	return Profile{
		Executable:          executable,
		ExtractorArgs:       "youtube:player_client=android,web",
		NoCheckCertificates: true,
	}
}

// YTDLP drives the yt-dlp binary through go-ytdlp.
type YTDLP struct {
	name    string
	profile Profile
	logger  *zap.Logger
}

func NewYTDLP(name string, profile Profile, logger *zap.Logger) *YTDLP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YTDLP{name: name, profile: profile, logger: logger.With(zap.String("strategy", name))}
}

func (y *YTDLP) Name() string { return y.name }

func (y *YTDLP) command() *ytdlp.Command {
	dl := ytdlp.New().NoPlaylist()
	if y.profile.Executable != "" {
		dl = dl.SetExecutable(y.profile.Executable)
	}
	for _, header := range headerArgs(y.profile.Headers) {
		dl = dl.AddHeaders(header)
	}
	if y.profile.ExtractorArgs != "" {
		dl = dl.ExtractorArgs(y.profile.ExtractorArgs)
	}
	if y.profile.SleepInterval > 0 {
		dl = dl.SleepInterval(y.profile.SleepInterval)
	}
	if y.profile.MaxSleepInterval > 0 {
		dl = dl.MaxSleepInterval(y.profile.MaxSleepInterval)
	}
	if y.profile.NoCheckCertificates {
		dl = dl.NoCheckCertificates()
	}
	return dl
}

func (y *YTDLP) Probe(ctx context.Context, url string) (*Info, error) {
	return y.dumpInfo(ctx, y.command(), url)
}

func (y *YTDLP) Resolve(ctx context.Context, url, selector string) (*Info, error) {
	info, err := y.dumpInfo(ctx, y.command().Format(selector), url)
	if err != nil {
		return nil, err
	}
	if info.URL == "" {
		// No top-level url: take the last format that has one.
		for i := len(info.Formats) - 1; i >= 0; i-- {
			if u := info.Formats[i].URL; u != nil && *u != "" {
				info.URL = *u
				break
			}
		}
	}
	if info.URL == "" {
		return nil, ErrNoMatchingFormat
	}
	return info, nil
}

func (y *YTDLP) Fetch(ctx context.Context, req FetchRequest) (*Download, error) {
	stem := media.NewTempStem(req.Dir)
	dl := y.command().
		Format(req.Selector).
		Output(stem + ".%(ext)s").
		PrintJSON().
		ProgressFunc(500*time.Millisecond, func(update ytdlp.ProgressUpdate) {
			req.report(update.Percent())
		})
	if req.Audio {
		dl = dl.ExtractAudio().AudioFormat("mp3")
	} else {
		dl = dl.MergeOutputFormat("mp4")
	}

	y.logger.Debug("yt-dlp download", zap.String("url", req.URL), zap.String("selector", req.Selector))
	res, err := dl.Run(ctx, req.URL)
	if err != nil {
		return nil, y.runError(err, res)
	}
	path, err := media.FindByStem(stem)
	if err != nil {
		return nil, fmt.Errorf("locating yt-dlp output: %w", err)
	}

	out := &Download{Path: path, Ext: strings.TrimPrefix(extOf(path), ".")}
	if info, err := parseInfo([]byte(lastJSONLine(res.Stdout))); err == nil {
		out.Title = info.Title
		out.Uploader = info.Uploader
	} else {
		y.logger.Debug("yt-dlp printed no usable info", zap.Error(err))
	}
	return out, nil
}

func (y *YTDLP) dumpInfo(ctx context.Context, dl *ytdlp.Command, url string) (*Info, error) {
	res, err := dl.SkipDownload().PrintJSON().Run(ctx, url)
	if err != nil {
		return nil, y.runError(err, res)
	}
	info, err := parseInfo([]byte(lastJSONLine(res.Stdout)))
	if err != nil {
		return nil, fmt.Errorf("decoding yt-dlp output: %w", err)
	}
	return info, nil
}

func (y *YTDLP) runError(err error, res *ytdlp.Result) error {
	detail := ""
	if res != nil {
		detail = strings.TrimSpace(res.Stderr)
	}
	if detail != "" {
		err = fmt.Errorf("%w: %s", err, lastLine(detail))
	}
	if IsBotCheck(err) {
		return fmt.Errorf("%w: %v", ErrBotCheck, err)
	}
	return fmt.Errorf("yt-dlp: %w", err)
}

func headerArgs(headers map[string]string) []string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+":"+headers[k])
	}
	return out
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndex(s, "\n"); idx >= 0 {
		return strings.TrimSpace(s[idx+1:])
	}
	return s
}

// lastJSONLine returns the last stdout line that looks like a JSON object;
// yt-dlp may print progress lines before it.
func lastJSONLine(stdout string) string {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "{") {
			return line
		}
	}
	return ""
}

func extOf(path string) string {
	if idx := strings.LastIndex(path, "."); idx >= 0 && !strings.ContainsAny(path[idx:], `/\`) {
		return path[idx:]
	}
	return ""
}

var _ Strategy = (*YTDLP)(nil)
