package db

import "testing"

func TestClassifyMediaType(t *testing.T) {
	tests := []struct {
		name string
		in   Signals
		want string
	}{
		{
			name: "music host",
			in:   Signals{SourceURL: "https://music.youtube.com/watch?v=abc"},
			want: "music",
		},
		{
			name: "topic channel",
			in:   Signals{SourceURL: "https://youtube.com/watch?v=abc", Uploader: "Some Band - Topic"},
			want: "music",
		},
		{
			name: "audio request",
			in:   Signals{SourceURL: "https://youtube.com/watch?v=abc", AudioOnly: true},
			want: "music",
		},
		{
			name: "podcast beats audio default",
			in:   Signals{SourceURL: "https://youtube.com/watch?v=abc", Title: "Weekly Podcast #12", AudioOnly: true},
			want: "podcast",
		},
		{
			name: "plain video",
			in:   Signals{SourceURL: "https://youtube.com/watch?v=abc", Uploader: "Channel"},
			want: "video",
		},
		{
			name: "music in path is not the music host",
			in:   Signals{SourceURL: "https://example.com/music.youtube.com"},
			want: "video",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyMediaType(tt.in); got != tt.want {
				t.Fatalf("ClassifyMediaType(%+v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
