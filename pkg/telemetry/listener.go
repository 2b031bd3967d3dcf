package telemetry

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"apexcoach/log"
	"apexcoach/pkg/pubsub"
)

// Listener reads the sim's UDP broadcast and publishes decoded updates
// on the sample topic. Slow consumers lose the oldest updates first;
// the wire never blocks.
type Listener struct {
	port int
	dec  *Decoder
	bus  *pubsub.PubSub[Update]

	received  atomic.Uint64
	malformed atomic.Uint64
}

func NewListener(port int, bus *pubsub.PubSub[Update]) *Listener {
	return &Listener{port: port, dec: NewDecoder(), bus: bus}
}

// Run listens until the context is canceled. The socket is closed from
// the context watcher, which unblocks the read loop.
func (l *Listener) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf(":%d", l.port))
	if err != nil {
		return errors.Wrapf(err, "resolving udp port %d", l.port)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on udp port %d", l.port)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	log.Logger.Info("telemetry listener up", zap.Int("port", l.port))

	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				log.Logger.Info("telemetry listener stopped",
					zap.Uint64("received", l.received.Load()),
					zap.Uint64("malformed", l.malformed.Load()))
				return nil
			}
			return errors.Wrap(err, "udp read")
		}
		l.received.Add(1)

		upd, err := l.dec.Decode(buf[:n])
		if err != nil {
			l.malformed.Add(1)
			log.Logger.Debug("dropping packet", zap.Error(err))
			continue
		}
		if upd != nil {
			l.bus.Publish(pubsub.TopicSamples, *upd)
		}
	}
}

// Received reports how many datagrams arrived so far.
func (l *Listener) Received() uint64 { return l.received.Load() }

// Malformed reports how many datagrams failed to decode.
func (l *Listener) Malformed() uint64 { return l.malformed.Load() }
