package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jdelaire/botpoll/core"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollTimeout != 30*time.Second {
		t.Errorf("poll timeout = %s, want 30s", cfg.PollTimeout)
	}
	if cfg.PollLimit != 100 {
		t.Errorf("poll limit = %d, want 100", cfg.PollLimit)
	}
	if cfg.UpdateKinds() != nil {
		t.Errorf("update kinds = %v, want nil", cfg.UpdateKinds())
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BOTPOLL_TOKEN", "123:abc")
	t.Setenv("BOTPOLL_POLL_TIMEOUT", "45s")
	t.Setenv("BOTPOLL_ALLOWED_UPDATES", "message,callback_query")
	t.Setenv("BOTPOLL_ALLOWED_CHATS", "100,-200")
	t.Setenv("BOTPOLL_MAX_IN_FLIGHT", "8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Token)
	}
	if cfg.PollTimeout != 45*time.Second {
		t.Errorf("poll timeout = %s, want 45s", cfg.PollTimeout)
	}
	if len(cfg.AllowedChats) != 2 || cfg.AllowedChats[1] != -200 {
		t.Errorf("allowed chats = %v", cfg.AllowedChats)
	}
	kinds := cfg.UpdateKinds()
	if len(kinds) != 2 || kinds[0] != core.KindMessage || kinds[1] != core.KindCallbackQuery {
		t.Errorf("update kinds = %v", kinds)
	}
	if cfg.MaxInFlight != 8 {
		t.Errorf("max in flight = %d, want 8", cfg.MaxInFlight)
	}
}

func TestLoadDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("BOTPOLL_POLL_LIMIT=25\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("BOTPOLL_POLL_LIMIT") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollLimit != 25 {
		t.Errorf("poll limit = %d, want 25", cfg.PollLimit)
	}
}

func TestLoadMissingDotenv(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing dotenv should be ignored: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"limit too high", map[string]string{"BOTPOLL_POLL_LIMIT": "500"}, "poll limit"},
		{"unknown kind", map[string]string{"BOTPOLL_ALLOWED_UPDATES": "message,bogus"}, "unknown update kind"},
		{"bad log format", map[string]string{"BOTPOLL_LOG_FORMAT": "xml"}, "log format"},
		{"negative offset", map[string]string{"BOTPOLL_OFFSET": "-1"}, "offset"},
		{"negative reload", map[string]string{"BOTPOLL_RELOAD_DELAY": "-1s"}, "reload delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestReadAllowedChatsPrefersFile(t *testing.T) {
	t.Setenv("BOTPOLL_ALLOWED_CHATS", "1")
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("BOTPOLL_ALLOWED_CHATS=100,-200\n"), 0600); err != nil {
		t.Fatal(err)
	}

	chats, err := ReadAllowedChats(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(chats) != 2 || chats[0] != 100 || chats[1] != -200 {
		t.Errorf("chats = %v, want [100 -200]", chats)
	}
}

func TestReadAllowedChatsFallsBackToEnvironment(t *testing.T) {
	t.Setenv("BOTPOLL_ALLOWED_CHATS", "7")
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("BOTPOLL_LOG_LEVEL=debug\n"), 0600); err != nil {
		t.Fatal(err)
	}

	chats, err := ReadAllowedChats(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(chats) != 1 || chats[0] != 7 {
		t.Errorf("chats = %v, want [7]", chats)
	}
}

func TestReadAllowedChatsBadValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("BOTPOLL_ALLOWED_CHATS=abc\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadAllowedChats(path); err == nil {
		t.Error("expected parse error")
	}
}
