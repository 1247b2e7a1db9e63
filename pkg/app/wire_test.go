package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/chanreset/internal/archive"
	"github.com/flemzord/chanreset/internal/config"
	"github.com/flemzord/chanreset/internal/reset"
	"github.com/flemzord/chanreset/internal/taskstore"
	"github.com/flemzord/chanreset/internal/taskstore/storetest"
	"github.com/flemzord/chanreset/modules/channel/discord"
)

func TestBuild_WithoutAdmin(t *testing.T) {
	t.Parallel()

	c, err := Build(context.Background(), testConfig(t), slog.Default())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if c.Admin != nil {
		t.Error("admin gateway built without a bind address")
	}
	if c.Store == nil || c.Scheduler == nil || c.Cron == nil || c.Discord == nil {
		t.Errorf("missing component: %+v", c)
	}
	if c.Sweep.Schedule() != "* * * * *" {
		t.Errorf("sweep schedule = %q", c.Sweep.Schedule())
	}
}

func TestBuild_WarnsWithoutArchiveSink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		sinks []string
		warn  bool
	}{
		{name: "archiving disabled", sinks: []string{}, warn: true},
		{name: "file sink", sinks: []string{config.SinkFile}, warn: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig(t)
			cfg.Archive.Sinks = tt.sinks

			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			if _, err := Build(context.Background(), cfg, logger); err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if got := strings.Contains(buf.String(), "no archive sink configured"); got != tt.warn {
				t.Errorf("warning logged = %v, want %v; log:\n%s", got, tt.warn, buf.String())
			}
		})
	}
}

func TestBuild_AdminSweep(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Gateway.Bind = "127.0.0.1:0"

	c, err := Build(context.Background(), cfg, slog.Default())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if c.Admin == nil {
		t.Fatal("admin gateway not built")
	}

	srv := httptest.NewServer(c.Admin.Handler())
	defer srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL+"/api/sweep", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var res reset.SweepResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res != (reset.SweepResult{}) {
		t.Errorf("result = %+v, want empty sweep", res)
	}

	families, err := c.Registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "chanreset_sweeps_total" {
			found = f.GetMetric()[0].GetCounter().GetValue() == 1
		}
	}
	if !found {
		t.Error("chanreset_sweeps_total not incremented by manual sweep")
	}
}

func TestBuildSink(t *testing.T) {
	t.Parallel()

	client := discord.NewClient("tok", "")

	tests := []struct {
		name  string
		sinks []string
		check func(t *testing.T, s archive.Sink)
	}{
		{
			name:  "none",
			sinks: nil,
			check: func(t *testing.T, s archive.Sink) {
				if s != nil {
					t.Errorf("sink = %T, want nil", s)
				}
			},
		},
		{
			name:  "file only",
			sinks: []string{config.SinkFile},
			check: func(t *testing.T, s archive.Sink) {
				if _, ok := s.(*archive.FileSink); !ok {
					t.Errorf("sink = %T, want *archive.FileSink", s)
				}
			},
		},
		{
			name:  "both",
			sinks: []string{config.SinkDiscord, config.SinkFile},
			check: func(t *testing.T, s archive.Sink) {
				multi, ok := s.(archive.MultiSink)
				if !ok || len(multi) != 2 {
					t.Errorf("sink = %#v, want MultiSink of 2", s)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := buildSink(config.ArchiveConfig{Sinks: tt.sinks, GraveyardChannel: "1"}, client)
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, s)
		})
	}
}

func TestStatusReport(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	store := taskstore.New(storetest.NewMemoryBackend(nil))
	job := statusReport(store, logger)

	if err := job.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "no pending resets") {
		t.Errorf("empty report = %s", buf.String())
	}

	buf.Reset()
	if _, err := store.Insert(context.Background(), "g1", "c1", time.UnixMilli(1_800_000_000_000)); err != nil {
		t.Fatal(err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if out := buf.String(); !strings.Contains(out, "tasks=1") || !strings.Contains(out, "next_resource=c1") {
		t.Errorf("report = %s", out)
	}
}
