package sensor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Skufu/vitalsense/internal/metrics"
)

type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// maxPending bounds the bytes buffered while waiting for a newline.
const maxPending = 4 << 10

var errIdle = errors.New("no data from device")

// SleepFunc waits for d or until ctx is done; it reports whether the full
// delay elapsed.
type SleepFunc func(ctx context.Context, d time.Duration) bool

type IngestorConfig struct {
	ReconnectDelay time.Duration
	PollInterval   time.Duration
	// IdleTimeout tears the connection down when nothing arrives for this
	// long. A hung-up tty keeps returning EOF, which is indistinguishable
	// from a read timeout. Zero disables the check.
	IdleTimeout time.Duration

	Sleep SleepFunc
	Now   func() time.Time
}

// Status is a point-in-time view of the ingestion loop.
type Status struct {
	State          string     `json:"state"`
	Device         string     `json:"device,omitempty"`
	ConnectedAt    *time.Time `json:"connected_at,omitempty"`
	LastUpdate     *time.Time `json:"last_update,omitempty"`
	FramesAccepted uint64     `json:"frames_accepted"`
	FramesRejected uint64     `json:"frames_rejected"`
	Reconnects     uint64     `json:"reconnects"`
}

// Ingestor keeps a serial connection to the sensor board alive and merges
// every telemetry line it reads into a Cache. It is a two-state machine
// advanced by Step; Run drives it until the context is cancelled.
type Ingestor struct {
	cache   *Cache
	locator Locator
	opener  Opener
	metrics *metrics.Metrics
	logger  *zap.Logger
	cfg     IngestorConfig

	// Owned by the goroutine calling Step.
	state    State
	port     io.ReadCloser
	device   string
	pending  []byte
	buf      []byte
	lastData time.Time

	mu     sync.Mutex
	status Status
}

func NewIngestor(cache *Cache, locator Locator, opener Opener, cfg IngestorConfig, m *metrics.Metrics, logger *zap.Logger) *Ingestor {
	if cfg.Sleep == nil {
		cfg.Sleep = SleepWithContext
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ingestor{
		cache:   cache,
		locator: locator,
		opener:  opener,
		metrics: m,
		logger:  logger.Named("ingestor"),
		cfg:     cfg,
		buf:     make([]byte, 256),
		status:  Status{State: Disconnected.String()},
	}
}

// Run steps the state machine until ctx is done and releases the device.
func (i *Ingestor) Run(ctx context.Context) {
	i.logger.Info("sensor ingestion started")
	for ctx.Err() == nil {
		i.Step(ctx)
	}
	i.closePort()
	i.logger.Info("sensor ingestion stopped")
}

// State reports the current machine state. It must only be called from the
// goroutine that calls Step.
func (i *Ingestor) State() State {
	return i.state
}

// Status is safe to call from any goroutine.
func (i *Ingestor) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	s := i.status
	if t := i.cache.UpdatedAt(); !t.IsZero() {
		s.LastUpdate = &t
	}
	return s
}

// Step performs exactly one transition. A panic inside the step is treated
// like a transport failure.
func (i *Ingestor) Step(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("sensor step panicked", zap.Any("panic", r), zap.Stringer("state", i.state))
			i.fail(ctx, fmt.Errorf("panic: %v", r))
		}
	}()

	switch i.state {
	case Disconnected:
		i.connect(ctx)
	case Connected:
		i.poll(ctx)
	}
}

func (i *Ingestor) connect(ctx context.Context) {
	path, ok := i.locator.Locate(ctx)
	if !ok {
		i.logger.Info("sensor device not found, retrying", zap.Duration("delay", i.cfg.ReconnectDelay))
		i.cfg.Sleep(ctx, i.cfg.ReconnectDelay)
		return
	}

	port, err := i.opener.Open(path)
	if err != nil {
		i.logger.Warn("failed to open sensor device", zap.String("device", path), zap.Error(err))
		i.cfg.Sleep(ctx, i.cfg.ReconnectDelay)
		return
	}

	now := i.cfg.Now()
	i.port = port
	i.device = path
	i.state = Connected
	i.pending = i.pending[:0]
	i.lastData = now
	i.metrics.SensorConnected.Set(1)

	i.mu.Lock()
	i.status.State = Connected.String()
	i.status.Device = path
	i.status.ConnectedAt = &now
	i.mu.Unlock()

	i.logger.Info("connected to sensor device", zap.String("device", path))
}

func (i *Ingestor) poll(ctx context.Context) {
	n, err := i.port.Read(i.buf)
	if n > 0 {
		i.lastData = i.cfg.Now()
		i.consume(i.buf[:n])
	}

	if err != nil && !errors.Is(err, io.EOF) {
		i.fail(ctx, err)
		return
	}
	if n > 0 {
		return
	}

	if i.cfg.IdleTimeout > 0 && i.cfg.Now().Sub(i.lastData) >= i.cfg.IdleTimeout {
		i.fail(ctx, fmt.Errorf("%w for %s", errIdle, i.cfg.IdleTimeout))
		return
	}
	i.cfg.Sleep(ctx, i.cfg.PollInterval)
}

// fail tears the connection down and waits out the reconnect delay.
func (i *Ingestor) fail(ctx context.Context, err error) {
	if i.state == Connected {
		i.logger.Warn("sensor connection lost", zap.String("device", i.device), zap.Error(err))
		i.metrics.Reconnects.Inc()
		i.mu.Lock()
		i.status.Reconnects++
		i.mu.Unlock()
	}
	i.closePort()
	i.cfg.Sleep(ctx, i.cfg.ReconnectDelay)
}

func (i *Ingestor) closePort() {
	if i.port != nil {
		if err := i.port.Close(); err != nil {
			i.logger.Debug("close sensor device", zap.Error(err))
		}
		i.port = nil
	}
	i.state = Disconnected
	i.device = ""
	i.pending = i.pending[:0]
	i.metrics.SensorConnected.Set(0)

	i.mu.Lock()
	i.status.State = Disconnected.String()
	i.status.Device = ""
	i.status.ConnectedAt = nil
	i.mu.Unlock()
}

func (i *Ingestor) consume(chunk []byte) {
	i.pending = append(i.pending, chunk...)
	for {
		idx := bytes.IndexByte(i.pending, '\n')
		if idx < 0 {
			break
		}
		i.handleFrame(i.pending[:idx])
		i.pending = i.pending[idx+1:]
	}

	if len(i.pending) > maxPending {
		i.reject(i.pending, errors.New("frame exceeds buffer without newline"))
		i.pending = nil
	}
}

func (i *Ingestor) handleFrame(frame []byte) {
	if !utf8.Valid(frame) {
		i.reject(frame, errors.New("invalid UTF-8"))
		return
	}
	line := bytes.TrimSpace(frame)
	if len(line) == 0 {
		return
	}

	u, err := ParseUpdate(line)
	if err != nil {
		i.reject(line, err)
		return
	}

	if u.Empty() {
		i.logger.Debug("sensor frame carried no known fields", zap.ByteString("frame", line))
	} else {
		i.cache.Update(u)
	}
	i.metrics.FramesAccepted.Inc()
	i.mu.Lock()
	i.status.FramesAccepted++
	i.mu.Unlock()
}

func (i *Ingestor) reject(frame []byte, err error) {
	const maxLogged = 120
	raw := frame
	if len(raw) > maxLogged {
		raw = raw[:maxLogged]
	}
	i.logger.Warn("discarding malformed sensor frame", zap.ByteString("frame", raw), zap.Error(err))
	i.metrics.FramesRejected.Inc()
	i.mu.Lock()
	i.status.FramesRejected++
	i.mu.Unlock()
}

// SleepWithContext waits for d or until ctx is done.
func SleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
