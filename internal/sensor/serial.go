package sensor

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Opener opens a device path for reading.
type Opener interface {
	Open(path string) (io.ReadCloser, error)
}

// SerialOpener opens USB serial devices with a bounded read timeout so a
// read on a quiet line returns instead of blocking forever.
type SerialOpener struct {
	Baud        int
	ReadTimeout time.Duration
}

func (o SerialOpener) Open(path string) (io.ReadCloser, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        path,
		Baud:        o.Baud,
		ReadTimeout: o.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return port, nil
}

// Probe opens and immediately closes path.
func (o SerialOpener) Probe(path string) error {
	port, err := o.Open(path)
	if err != nil {
		return err
	}
	return port.Close()
}
