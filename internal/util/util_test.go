package util

import (
	"testing"
)

func TestParseMetric(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"42", 42},
		{"1,234", 1234},
		{"1.2K", 1200},
		{"15k", 15000},
		{"3M", 3000000},
		{"2.5B", 2500000000},
		{" 7 ", 7},
		{"abc", 0},
		{"-5", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseMetric(tt.input); got != tt.want {
				t.Errorf("ParseMetric(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestSafeAtoi(t *testing.T) {
	if got := SafeAtoi(" 12 "); got != 12 {
		t.Errorf("SafeAtoi() = %d, want 12", got)
	}
	if got := SafeAtoi("x"); got != 0 {
		t.Errorf("SafeAtoi() = %d, want 0", got)
	}
	if got := CleanNumericString("1,2a3"); got != "123" {
		t.Errorf("CleanNumericString() = %q, want 123", got)
	}
}

func TestExtractTweetID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "x.com URL", input: "https://x.com/golang/status/1790000000000000001", want: "1790000000000000001"},
		{name: "twitter.com URL with query", input: "https://twitter.com/golang/status/123?s=20", want: "123"},
		{name: "mobile URL", input: "https://mobile.twitter.com/a_b/status/99/photo/1", want: "99"},
		{name: "bare id", input: " 1790000000000000001 ", want: "1790000000000000001"},
		{name: "profile URL", input: "https://x.com/golang", wantErr: true},
		{name: "garbage", input: "hello", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractTweetID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractTweetID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractTweetID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeStatusURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "Already canonical",
			input: "https://x.com/golang/status/123",
			want:  "https://x.com/golang/status/123",
		},
		{
			name:  "twitter.com rewritten",
			input: "http://www.twitter.com/golang/status/123/",
			want:  "https://x.com/golang/status/123",
		},
		{
			name:  "Tracking params removed",
			input: "https://x.com/golang/status/123?s=20&t=abc&ref_src=twsrc",
			want:  "https://x.com/golang/status/123",
		},
		{
			name:  "Other host untouched",
			input: "https://example.com/a?b=c",
			want:  "https://example.com/a?b=c",
		},
		{
			name:    "Profile page rejected",
			input:   "https://x.com/golang",
			want:    "https://x.com/golang",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeStatusURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("NormalizeStatusURL() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("NormalizeStatusURL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusURL(t *testing.T) {
	if got := StatusURL("", "5"); got != "https://x.com/i/status/5" {
		t.Errorf("StatusURL() = %q", got)
	}
}
