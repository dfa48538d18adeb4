package kouhai

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"git.sr.ht/~rockorager/vaxis"
)

func loadConfig(t *testing.T, content string) (Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return LoadConfigFile(path)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig(t, `
nickname tester
token oauth:secret
channel mychannel #other
highlight gopher
chat-max 250
log-chat 1
clear-chat-purge true
auto-reconnect false
task-timeout 30s
colors {
	link #ff0000
	highlight 9
}
`)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Nick != "tester" {
		t.Errorf("nick = %q", cfg.Nick)
	}
	if len(cfg.Channels) != 2 || cfg.Channels[0] != "#mychannel" || cfg.Channels[1] != "#other" {
		t.Errorf("channels = %v", cfg.Channels)
	}
	if cfg.ChatMax != 250 {
		t.Errorf("chat-max = %d", cfg.ChatMax)
	}
	if cfg.LogChatMode != 1 {
		t.Errorf("log-chat = %d", cfg.LogChatMode)
	}
	if !cfg.ClearChatPurge {
		t.Error("clear-chat-purge should be on")
	}
	if cfg.AutoReconnect {
		t.Error("auto-reconnect should be off")
	}
	if cfg.TaskTimeout != 30*time.Second {
		t.Errorf("task-timeout = %v", cfg.TaskTimeout)
	}
	if cfg.Colors.Link != vaxis.HexColor(0xff0000) {
		t.Error("link color not parsed")
	}
	if cfg.Colors.Highlight != vaxis.IndexColor(9) {
		t.Error("highlight color not parsed")
	}
}

func TestLoadConfigRequiresNick(t *testing.T) {
	if _, err := loadConfig(t, "channel #foo\n"); err == nil {
		t.Fatal("expected an error for a missing nickname")
	}
}

func TestLoadConfigRejectsBadLogMode(t *testing.T) {
	if _, err := loadConfig(t, "nickname n\nlog-chat 5\n"); err == nil {
		t.Fatal("expected an error for log-chat 5")
	}
}

func TestLoadConfigUnknownDirective(t *testing.T) {
	if _, err := loadConfig(t, "nickname n\nbogus 1\n"); err == nil {
		t.Fatal("expected an error for an unknown directive")
	}
}
