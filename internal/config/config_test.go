package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Synth.Mode != "mock" {
		t.Fatalf("expected default synth mode mock, got %s", cfg.Synth.Mode)
	}
	if cfg.Jobs.RetryAttempts != 3 {
		t.Fatalf("expected 3 retry attempts, got %d", cfg.Jobs.RetryAttempts)
	}
	if cfg.Jobs.RetryBaseDelay != 500 {
		t.Fatalf("expected 500ms base delay, got %d", cfg.Jobs.RetryBaseDelay)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PAPERCAST_HTTP_PORT", "9090")
	t.Setenv("PAPERCAST_SYNTH_MODE", "exec")
	t.Setenv("PAPERCAST_SYNTH_COMMAND", "say-mp3")
	t.Setenv("PAPERCAST_SYNTH_VOICE", "en-GB-News-K")
	t.Setenv("PAPERCAST_JOBS_MAX_CONCURRENCY", "2")
	t.Setenv("PAPERCAST_PAPER_STORE_PATH", "./tmp.db")
	t.Setenv("PAPERCAST_BLOB_STORE_MODE", "bucket")
	t.Setenv("PAPERCAST_BLOB_STORE_ENDPOINT", "http://blobs.local/storage/v1")
	t.Setenv("PAPERCAST_BLOB_STORE_BUCKET", "audios")
	t.Setenv("PAPERCAST_PLAYER_POLL_INTERVAL_MS", "1500")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTP.Port != 9090 {
		t.Fatalf("expected port override, got %d", cfg.HTTP.Port)
	}
	if cfg.Synth.Mode != "exec" || cfg.Synth.Command != "say-mp3" {
		t.Fatalf("expected synth override, got %+v", cfg.Synth)
	}
	if cfg.Synth.Voice != "en-GB-News-K" {
		t.Fatalf("expected voice override, got %s", cfg.Synth.Voice)
	}
	if cfg.Jobs.Concurrency != 2 {
		t.Fatalf("expected concurrency override, got %d", cfg.Jobs.Concurrency)
	}
	if cfg.PaperStore.Path != "./tmp.db" {
		t.Fatalf("expected paper store path override")
	}
	if cfg.BlobStore.Mode != "bucket" || cfg.BlobStore.Endpoint == "" {
		t.Fatalf("expected blob store override, got %+v", cfg.BlobStore)
	}
	if cfg.Player.PollIntervalMS != 1500 {
		t.Fatalf("expected poll interval override, got %d", cfg.Player.PollIntervalMS)
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("PAPERCAST_SYNTH_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for exec mode without command")
	}
}

func TestValidateRejectsGoogleWithoutKey(t *testing.T) {
	t.Setenv("PAPERCAST_SYNTH_MODE", "google")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for google mode without api key")
	}
}
