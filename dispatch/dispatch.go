// Package dispatch serializes outbound connection commands.  The underlying
// connection does not tolerate concurrent join/part/disconnect calls, so one
// worker executes exactly one task at a time, in enqueue order, pacing
// commands through a rate limiter.  Reconnects run on their own timer so a
// slow reconnect never stalls event processing.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrClosed    = errors.New("dispatch: dispatcher closed")
	ErrTimeout   = errors.New("dispatch: task timed out")
	ErrForgotten = errors.New("dispatch: session forgotten")
)

type TaskType int

const (
	TaskJoin TaskType = iota
	TaskLeave
	TaskDisconnect
)

func (t TaskType) String() string {
	switch t {
	case TaskJoin:
		return "join"
	case TaskLeave:
		return "leave"
	case TaskDisconnect:
		return "disconnect"
	}
	return "unknown"
}

// Task is one outbound command.  Channel is empty for disconnects; Forget
// makes a disconnect terminal, clearing credentials and stopping reconnects.
type Task struct {
	Type       TaskType
	Channel    string
	Forget     bool
	EnqueuedAt time.Time
}

// Conn is the connection layer the dispatcher drives.  Calls are synchronous;
// the dispatcher bounds each with a timeout.
type Conn interface {
	Join(channel string) error
	Part(channel string) error
	Disconnect() error
	Connect() error
}

// Options tune one dispatcher.  Zero values pick sane defaults.
type Options struct {
	// TaskTimeout bounds how long one task may run before the worker moves
	// on to the next.
	TaskTimeout time.Duration
	// CommandRate paces outbound commands; nil means one command per
	// second with a small burst, matching the platform's command limits.
	CommandRate *rate.Limiter
	// AutoReconnect enables reconnect scheduling on disconnect events.
	AutoReconnect bool
	// ReconnectDelay is the initial retry delay; it doubles per failed
	// attempt up to ReconnectMax.
	ReconnectDelay time.Duration
	ReconnectMax   time.Duration
	// OnForget is invoked once when a forget-disconnect executes, so the
	// account layer can clear stored credentials.
	OnForget func()
}

// Dispatcher owns the FIFO task queue for one account connection.
type Dispatcher struct {
	conn    Conn
	opts    Options
	limiter *rate.Limiter

	mu        sync.Mutex
	cond      *sync.Cond
	tasks     []Task
	closed    bool
	forgotten bool

	reconnectTimer   *time.Timer
	reconnectPending bool
	reconnectDelay   time.Duration

	done chan struct{}
}

func New(conn Conn, opts Options) *Dispatcher {
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 10 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 2 * time.Minute
	}
	limiter := opts.CommandRate
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(1), 5)
	}
	d := &Dispatcher{
		conn:           conn,
		opts:           opts,
		limiter:        limiter,
		reconnectDelay: opts.ReconnectDelay,
		done:           make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// Enqueue appends a task to the queue without blocking.  Safe to call from
// any goroutine.
func (d *Dispatcher) Enqueue(t Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.forgotten {
		return ErrForgotten
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	d.tasks = append(d.tasks, t)
	d.cond.Signal()
	return nil
}

// Close stops the worker after the backlog drains and cancels any pending
// reconnect.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.reconnectTimer != nil {
		d.reconnectTimer.Stop()
	}
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) next() (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.tasks) == 0 && !d.closed {
		d.cond.Wait()
	}
	if len(d.tasks) == 0 {
		return Task{}, false
	}
	t := d.tasks[0]
	d.tasks = d.tasks[1:]
	return t, true
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		t, ok := d.next()
		if !ok {
			return
		}
		if err := d.limiter.Wait(context.Background()); err != nil {
			return
		}
		if err := d.execute(t); err != nil {
			slog.Warn("task failed",
				slog.String("task", t.Type.String()),
				slog.String("channel", t.Channel),
				slog.Any("err", err))
		}
	}
}

// execute runs one task, waiting for completion or the bounded timeout
// before the worker may start the next one.
func (d *Dispatcher) execute(t Task) error {
	result := make(chan error, 1)
	go func() {
		switch t.Type {
		case TaskJoin:
			result <- d.conn.Join(t.Channel)
		case TaskLeave:
			result <- d.conn.Part(t.Channel)
		case TaskDisconnect:
			result <- d.conn.Disconnect()
		default:
			result <- nil
		}
	}()

	var err error
	select {
	case err = <-result:
	case <-time.After(d.opts.TaskTimeout):
		err = ErrTimeout
	}

	if t.Type == TaskDisconnect && t.Forget {
		d.forget()
	}
	return err
}

func (d *Dispatcher) forget() {
	d.mu.Lock()
	already := d.forgotten
	d.forgotten = true
	if d.reconnectTimer != nil {
		d.reconnectTimer.Stop()
	}
	d.reconnectPending = false
	d.mu.Unlock()
	if !already && d.opts.OnForget != nil {
		d.opts.OnForget()
	}
}

// HandleDisconnect reacts to an unexpected disconnect notification.  With
// auto-reconnect enabled it arms the reconnect timer; otherwise it only logs.
// It never blocks the caller.
func (d *Dispatcher) HandleDisconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.forgotten {
		return
	}
	if !d.opts.AutoReconnect {
		slog.Info("disconnected; auto-reconnect is disabled")
		return
	}
	d.armReconnectLocked(d.reconnectDelay)
}

func (d *Dispatcher) armReconnectLocked(delay time.Duration) {
	if d.reconnectPending {
		return
	}
	d.reconnectPending = true
	slog.Info("scheduling reconnect", slog.Duration("delay", delay))
	d.reconnectTimer = time.AfterFunc(delay, d.attemptReconnect)
}

func (d *Dispatcher) attemptReconnect() {
	d.mu.Lock()
	d.reconnectPending = false
	if d.closed || d.forgotten {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	if err := d.conn.Connect(); err != nil {
		d.mu.Lock()
		d.reconnectDelay *= 2
		if d.reconnectDelay > d.opts.ReconnectMax {
			d.reconnectDelay = d.opts.ReconnectMax
		}
		delay := d.reconnectDelay
		if !d.closed && !d.forgotten {
			d.armReconnectLocked(delay)
		}
		d.mu.Unlock()
		slog.Warn("reconnect failed", slog.Any("err", err), slog.Duration("next", delay))
		return
	}

	d.mu.Lock()
	d.reconnectDelay = d.opts.ReconnectDelay
	d.mu.Unlock()
	slog.Info("reconnected")
}
