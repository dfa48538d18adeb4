// Package chatlog persists chat backlogs through batched inserts.  Lines
// accumulate in a pgx batch and flush on size, on a timer, and synchronously
// when a channel's log closes, so session destruction never leaves lines
// behind.
package chatlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kouhai-chat/kouhai/session"
)

type Config struct {
	MaxBatch     int
	FlushEvery   time.Duration
	FlushTimeout time.Duration
}

func (c *Config) defaults() {
	if c.MaxBatch <= 0 {
		c.MaxBatch = 200
	}
	if c.FlushEvery <= 0 {
		c.FlushEvery = 5 * time.Second
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 5 * time.Second
	}
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Logger implements session.ChatLogger on top of a Postgres pool.
type Logger struct {
	cfg    Config
	sender batchSender

	mu      sync.Mutex
	batch   *pgx.Batch
	pending int

	stop chan struct{}
	done chan struct{}
}

const insertLine = `
insert into chat_log (channel, kind, line, logged_at)
values ($1, $2, $3, $4);`

func New(pool *pgxpool.Pool, cfg Config) *Logger {
	return newLogger(pool, cfg)
}

func newLogger(sender batchSender, cfg Config) *Logger {
	cfg.defaults()
	l := &Logger{
		cfg:    cfg,
		sender: sender,
		batch:  &pgx.Batch{},
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Log queues lines for channel.  LogClose flushes synchronously; other modes
// flush once the batch is large enough or the timer fires.  The returned
// error reports flush failures only; queuing never fails.
func (l *Logger) Log(lines []string, channel string, mode session.LogMode) error {
	now := time.Now().UTC()

	l.mu.Lock()
	switch mode {
	case session.LogStart:
		l.queueLocked(channel, "open", "", now)
	case session.LogAppend:
		for _, line := range lines {
			l.queueLocked(channel, "line", line, now)
		}
	case session.LogClose:
		for _, line := range lines {
			l.queueLocked(channel, "line", line, now)
		}
		l.queueLocked(channel, "close", "", now)
		err := l.flushLocked()
		l.mu.Unlock()
		return err
	}
	var err error
	if l.pending >= l.cfg.MaxBatch {
		err = l.flushLocked()
	}
	l.mu.Unlock()
	return err
}

func (l *Logger) queueLocked(channel, kind, line string, at time.Time) {
	l.batch.Queue(insertLine, channel, kind, line, at)
	l.pending++
}

func (l *Logger) flushLocked() error {
	if l.pending == 0 {
		return nil
	}
	batch := l.batch
	l.batch = &pgx.Batch{}
	l.pending = 0

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.FlushTimeout)
	defer cancel()
	br := l.sender.SendBatch(ctx, batch)
	if err := br.Close(); err != nil {
		slog.Warn("chat log flush failed", slog.Any("err", err))
		return err
	}
	return nil
}

func (l *Logger) run() {
	defer close(l.done)
	t := time.NewTicker(l.cfg.FlushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.mu.Lock()
			l.flushLocked()
			l.mu.Unlock()
		case <-l.stop:
			l.mu.Lock()
			l.flushLocked()
			l.mu.Unlock()
			return
		}
	}
}

// Close flushes the remaining batch and stops the timer goroutine.
func (l *Logger) Close() {
	select {
	case <-l.stop:
		return
	default:
	}
	close(l.stop)
	<-l.done
}
