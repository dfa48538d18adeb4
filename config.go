package kouhai

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"git.sr.ht/~emersion/go-scfg"
	"git.sr.ht/~rockorager/vaxis"
)

func parseColor(s string, c *vaxis.Color) error {
	if strings.HasPrefix(s, "#") {
		hex, err := strconv.ParseUint(s[1:], 16, 32)
		if err != nil {
			return err
		}
		*c = vaxis.HexColor(uint32(hex))
		return nil
	}

	code, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if code == -1 {
		*c = 0
		return nil
	}
	if code < 0 || code > 255 {
		return fmt.Errorf("color code must be between 0-255. If you meant to use true colors, use #aabbcc notation")
	}
	*c = vaxis.IndexColor(uint8(code))
	return nil
}

type ConfigColors struct {
	Link      vaxis.Color
	Emote     vaxis.Color
	Highlight vaxis.Color
	System    vaxis.Color
}

type Config struct {
	Nick     string
	Token    string
	Channels []string

	Highlights []string

	ChatMax        int
	LogChatMode    int
	ClearChatPurge bool
	AutoReconnect  bool
	TaskTimeout    time.Duration

	ChatLogDSN string

	MetricsAddr string

	Colors ConfigColors

	Debug bool
}

func Defaults() Config {
	return Config{
		ChatMax:       100,
		LogChatMode:   0,
		AutoReconnect: true,
		TaskTimeout:   10 * time.Second,
		Colors: ConfigColors{
			Link:      vaxis.IndexColor(12),
			Emote:     vaxis.IndexColor(11),
			Highlight: vaxis.IndexColor(9),
			System:    vaxis.IndexColor(8),
		},
	}
}

func LoadConfigFile(filename string) (cfg Config, err error) {
	cfg = Defaults()
	err = unmarshal(filename, &cfg)
	if err != nil {
		return cfg, err
	}
	if cfg.Nick == "" {
		return cfg, errors.New("nickname is required")
	}
	for i, channel := range cfg.Channels {
		if !strings.HasPrefix(channel, "#") {
			cfg.Channels[i] = "#" + channel
		}
	}
	return cfg, nil
}

func unmarshal(filename string, cfg *Config) (err error) {
	directives, err := scfg.Load(filename)
	if err != nil {
		return fmt.Errorf("error parsing scfg: %s", err)
	}

	for _, d := range directives {
		switch d.Name {
		case "nickname":
			if err := d.ParseParams(&cfg.Nick); err != nil {
				return err
			}
		case "token":
			if err := d.ParseParams(&cfg.Token); err != nil {
				return err
			}
		case "channel":
			cfg.Channels = append(cfg.Channels, d.Params...)
		case "highlight":
			cfg.Highlights = append(cfg.Highlights, d.Params...)
		case "chat-max":
			var chatMax string
			if err := d.ParseParams(&chatMax); err != nil {
				return err
			}
			if cfg.ChatMax, err = strconv.Atoi(chatMax); err != nil {
				return err
			}
		case "log-chat":
			var mode string
			if err := d.ParseParams(&mode); err != nil {
				return err
			}
			if cfg.LogChatMode, err = strconv.Atoi(mode); err != nil {
				return err
			}
			if cfg.LogChatMode < 0 || cfg.LogChatMode > 2 {
				return fmt.Errorf("log-chat must be 0 (off), 1 (trimmed only) or 2 (full)")
			}
		case "clear-chat-purge":
			var v string
			if err := d.ParseParams(&v); err != nil {
				return err
			}
			if cfg.ClearChatPurge, err = strconv.ParseBool(v); err != nil {
				return err
			}
		case "auto-reconnect":
			var v string
			if err := d.ParseParams(&v); err != nil {
				return err
			}
			if cfg.AutoReconnect, err = strconv.ParseBool(v); err != nil {
				return err
			}
		case "task-timeout":
			var v string
			if err := d.ParseParams(&v); err != nil {
				return err
			}
			if cfg.TaskTimeout, err = time.ParseDuration(v); err != nil {
				return err
			}
		case "chat-log-dsn":
			if err := d.ParseParams(&cfg.ChatLogDSN); err != nil {
				return err
			}
		case "metrics-addr":
			if err := d.ParseParams(&cfg.MetricsAddr); err != nil {
				return err
			}
		case "colors":
			for _, child := range d.Children {
				var colorStr string
				if err := child.ParseParams(&colorStr); err != nil {
					return err
				}

				var color vaxis.Color
				if err = parseColor(colorStr, &color); err != nil {
					return err
				}
				switch child.Name {
				case "link":
					cfg.Colors.Link = color
				case "emote":
					cfg.Colors.Emote = color
				case "highlight":
					cfg.Colors.Highlight = color
				case "system":
					cfg.Colors.System = color
				default:
					return fmt.Errorf("unknown directive %q", child.Name)
				}
			}
		case "debug":
			var debug string
			if err := d.ParseParams(&debug); err != nil {
				return err
			}
			if cfg.Debug, err = strconv.ParseBool(debug); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown directive %q", d.Name)
		}
	}

	return nil
}
