package monitor

import (
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		kind    SpecKind
		cron    string
		every   time.Duration
		source  string
		wantErr bool
	}{
		{name: "duration", in: "30m", kind: SpecInterval, every: 30 * time.Minute, source: "duration"},
		{name: "compound duration", in: "2h30m", kind: SpecInterval, every: 2*time.Hour + 30*time.Minute, source: "duration"},
		{name: "hhmm", in: "00:50", kind: SpecInterval, every: 50 * time.Minute, source: "hhmm"},
		{name: "hhmm hours", in: "02:30", kind: SpecInterval, every: 2*time.Hour + 30*time.Minute, source: "hhmm"},
		{name: "cron five fields", in: "*/30 * * * *", kind: SpecCron, cron: "*/30 * * * *", source: "cron"},
		{name: "cron descriptor", in: "@hourly", kind: SpecCron, cron: "@hourly", source: "cron"},
		{name: "cron prefix", in: "cron:55 * * * *", kind: SpecCron, cron: "55 * * * *", source: "cron"},
		{name: "interval prefix", in: "interval:45m", kind: SpecInterval, every: 45 * time.Minute, source: "duration"},
		{name: "every prefix hhmm", in: "every:01:15", kind: SpecInterval, every: time.Hour + 15*time.Minute, source: "hhmm"},
		{name: "padded", in: "  30m  ", kind: SpecInterval, every: 30 * time.Minute, source: "duration"},

		{name: "empty", in: "", wantErr: true},
		{name: "blank", in: "   ", wantErr: true},
		{name: "zero duration", in: "0m", wantErr: true},
		{name: "negative duration", in: "-5m", wantErr: true},
		{name: "bad minutes", in: "01:75", wantErr: true},
		{name: "zero hhmm", in: "00:00", wantErr: true},
		{name: "garbage", in: "soonish", wantErr: true},
		{name: "bare cron prefix", in: "cron:", wantErr: true},
		{name: "bare interval prefix", in: "interval:", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSchedule(%q) = %+v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSchedule(%q): %v", tt.in, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Cron != tt.cron {
				t.Fatalf("cron = %q, want %q", got.Cron, tt.cron)
			}
			if got.Every != tt.every {
				t.Fatalf("every = %v, want %v", got.Every, tt.every)
			}
			if got.Source != tt.source {
				t.Fatalf("source = %q, want %q", got.Source, tt.source)
			}
		})
	}
}

func TestCronSpec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "cron passes through", in: "*/30 * * * *", want: "*/30 * * * *"},
		{name: "interval becomes @every", in: "30m", want: "@every 30m0s"},
		{name: "hhmm becomes @every", in: "02:30", want: "@every 2h30m0s"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			spec, err := ParseSchedule(tt.in)
			if err != nil {
				t.Fatalf("ParseSchedule(%q): %v", tt.in, err)
			}
			if got := spec.CronSpec(); got != tt.want {
				t.Fatalf("CronSpec() = %q, want %q", got, tt.want)
			}
		})
	}
}
