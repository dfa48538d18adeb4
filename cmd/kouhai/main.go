package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"sync"
	"syscall"

	"git.sr.ht/~rockorager/vaxis"
	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kouhai-chat/kouhai"
	"github.com/kouhai-chat/kouhai/chatlog"
	"github.com/kouhai-chat/kouhai/event"
	"github.com/kouhai-chat/kouhai/ingest"
	"github.com/kouhai-chat/kouhai/roster"
	"github.com/kouhai-chat/kouhai/session"
	"github.com/kouhai-chat/kouhai/telemetry"
)

func main() {
	var configPath string
	var nickname string
	var debug bool
	flag.StringVar(&configPath, "config", "", "path to the configuration file")
	flag.StringVar(&nickname, "nickname", "", "nickname to connect with")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()

	_ = godotenv.Load()

	if configPath == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			panic(err)
		}
		configPath = path.Join(configDir, "kouhai", "kouhai.scfg")
	}

	cfg, err := kouhai.LoadConfigFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load the configuration file at %q: %s\n", configPath, err)
		os.Exit(1)
	}
	cfg.Debug = cfg.Debug || debug
	if nickname != "" {
		cfg.Nick = nickname
	}
	if token := os.Getenv("KOUHAI_TOKEN"); token != "" {
		cfg.Token = token
	}
	if dsn := os.Getenv("KOUHAI_CHAT_LOG_DSN"); dsn != "" {
		cfg.ChatLogDSN = dsn
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	telemetry.Init()
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				slog.Error("metrics listener failed", slog.Any("err", err))
			}
		}()
	}

	var logger session.ChatLogger
	if cfg.ChatLogDSN != "" && cfg.LogChatMode > 0 {
		pool, err := pgxpool.New(context.Background(), cfg.ChatLogDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open the chat log database: %s\n", err)
			os.Exit(1)
		}
		defer pool.Close()
		l := chatlog.New(pool, chatlog.Config{})
		defer l.Close()
		logger = l
	}

	var client *twitch.Client
	if cfg.Token != "" {
		client = twitch.NewClient(cfg.Nick, cfg.Token)
	} else {
		client = twitch.NewAnonymousClient()
	}

	queue := event.NewQueue()
	ingest.NewDecoder(client, queue)
	conn := ingest.NewConn(client, queue)

	surface := newTextSurface(os.Stdout)
	app := kouhai.NewApp(cfg, queue, conn, surface, logger)

	for _, channel := range cfg.Channels {
		if err := app.Join(channel); err != nil {
			slog.Warn("join failed", slog.String("channel", channel), slog.Any("err", err))
		}
		if sess := app.Session(channel); sess != nil {
			surface.bind(sess.ID, channel, app)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigCh
		if err := app.Disconnect(false); err != nil {
			slog.Warn("disconnect failed", slog.Any("err", err))
		}
		app.Close()
	}()

	if err := conn.Connect(); err != nil {
		slog.Warn("connect failed", slog.Any("err", err))
	}

	app.Run()
}

// textSurface renders sessions as plain lines on a writer.  It keeps a small
// per-session entry count so it can answer trim requests.
type textSurface struct {
	mu       sync.Mutex
	w        *bufio.Writer
	entries  map[uuid.UUID]int
	channels map[uuid.UUID]string
	app      *kouhai.App
}

func newTextSurface(w *os.File) *textSurface {
	return &textSurface{
		w:        bufio.NewWriter(w),
		entries:  make(map[uuid.UUID]int),
		channels: make(map[uuid.UUID]string),
	}
}

func (s *textSurface) bind(id uuid.UUID, channel string, app *kouhai.App) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[id] = channel
	s.app = app
}

func (s *textSurface) AppendStyledText(id uuid.UUID, text string, _ vaxis.Style) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text != "" && text[0] == '\n' {
		s.entries[id]++
	}
	s.w.WriteString(text)
	s.w.Flush()
}

func (s *textSurface) InsertBadge(id uuid.UUID, badge roster.Badge, tier int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "[%s] ", badge)
}

func (s *textSurface) RequestTrim(id uuid.UUID) {
	s.mu.Lock()
	channel, ok := s.channels[id]
	removed := s.entries[id] / 2
	s.entries[id] -= removed
	app := s.app
	s.mu.Unlock()
	if ok && app != nil {
		app.ConfirmTrim(channel, removed)
	}
}

func (s *textSurface) RequestScroll(id uuid.UUID) {}

func (s *textSurface) RemoveMessages(id uuid.UUID, users []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "\n(removed messages from %v)", users)
	s.w.Flush()
}

func (s *textSurface) ClearBacklog(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = 0
	s.w.WriteString("\n(chat cleared)")
	s.w.Flush()
}

func (s *textSurface) AtBottom(id uuid.UUID) bool { return true }
