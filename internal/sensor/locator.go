package sensor

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// Locator finds the serial device that carries the sensor board.
type Locator interface {
	Locate(ctx context.Context) (path string, ok bool)
}

// PortInfo describes an enumerated serial port.
type PortInfo struct {
	Name    string
	Product string
}

// DefaultPatterns are the USB serial names the Linux kernel assigns to
// FTDI/CH340 adapters and CDC-ACM boards.
var DefaultPatterns = []string{"/dev/ttyUSB*", "/dev/ttyACM*"}

// DeviceLocator probes the host's serial devices. On Linux it globs device
// nodes; elsewhere it enumerates ports and matches their product description
// against Identifiers.
type DeviceLocator struct {
	// Pinned, when set, is the only candidate considered.
	Pinned      string
	Patterns    []string
	Identifiers []string
	GOOS        string

	Glob      func(pattern string) ([]string, error)
	Enumerate func() ([]PortInfo, error)
	Probe     func(path string) error

	logger *zap.Logger
}

func NewDeviceLocator(pinned string, identifiers []string, probe func(string) error, logger *zap.Logger) *DeviceLocator {
	return &DeviceLocator{
		Pinned:      pinned,
		Patterns:    DefaultPatterns,
		Identifiers: identifiers,
		GOOS:        runtime.GOOS,
		Glob:        filepath.Glob,
		Enumerate:   enumeratePorts,
		Probe:       probe,
		logger:      logger.Named("locator"),
	}
}

func (l *DeviceLocator) Locate(ctx context.Context) (string, bool) {
	for _, candidate := range l.candidates() {
		if ctx.Err() != nil {
			return "", false
		}
		if err := l.Probe(candidate); err != nil {
			l.logger.Debug("skipping serial candidate", zap.String("device", candidate), zap.Error(err))
			continue
		}
		l.logger.Info("found sensor device", zap.String("device", candidate))
		return candidate, true
	}
	return "", false
}

func (l *DeviceLocator) candidates() []string {
	if l.Pinned != "" {
		return []string{l.Pinned}
	}

	if l.GOOS == "linux" {
		var out []string
		for _, pattern := range l.Patterns {
			matches, err := l.Glob(pattern)
			if err != nil {
				l.logger.Warn("bad device pattern", zap.String("pattern", pattern), zap.Error(err))
				continue
			}
			out = append(out, matches...)
		}
		if len(out) == 0 {
			l.logger.Debug("no USB serial devices found")
		}
		return out
	}

	ports, err := l.Enumerate()
	if err != nil {
		l.logger.Warn("serial port enumeration failed", zap.Error(err))
		return nil
	}
	var out []string
	for _, p := range ports {
		if matchesIdentifier(p.Product, l.Identifiers) {
			out = append(out, p.Name)
		}
	}
	return out
}

func matchesIdentifier(description string, identifiers []string) bool {
	for _, id := range identifiers {
		if id != "" && strings.Contains(description, id) {
			return true
		}
	}
	return false
}

func enumeratePorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		out = append(out, PortInfo{Name: d.Name, Product: d.Product})
	}
	return out, nil
}
