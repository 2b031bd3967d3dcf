package webserver

import (
	"apexcoach/log"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{} // use default options

const (
	liveInterval         = 100 * time.Millisecond
	drivingSnapshotEvery = 1 * time.Second
	idleSnapshotEvery    = 5 * time.Second
	wsWriteTimeout       = 2 * time.Second
)

// websocketHandler streams the live feed on two cadences: a fast echo
// of the car state every liveInterval, and the full snapshot every
// second while samples are flowing, every five when idle. A client
// that cannot keep up trips the write deadline and is dropped; the
// engine never notices either way.
func (m *Manager) websocketHandler() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		defer c.Close()
		// The client opens the feed by sending any first message.
		mt, message, err := c.ReadMessage()
		if err != nil {
			log.Logger.Debug("websocket handshake failed", zap.Error(err))
			return
		}
		log.Logger.Info("dashboard client connected",
			zap.String("remote", r.RemoteAddr),
			zap.ByteString("hello", message),
		)

		t := time.NewTicker(liveInterval)
		defer t.Stop()
		var lastFull time.Time
		var lastSeen uint64
		for {
			select {
			case <-t.C:
				snap := m.state()
				if snap == nil {
					continue
				}
				driving := snap.Counters.SamplesSeen != lastSeen
				lastSeen = snap.Counters.SamplesSeen

				if err := send(c, mt, Message{MessageType: "live", Body: snap.Live}); err != nil {
					log.Logger.Debug("websocket write failed", zap.Error(err))
					return
				}
				every := idleSnapshotEvery
				if driving {
					every = drivingSnapshotEvery
				}
				if time.Since(lastFull) >= every {
					if err := send(c, mt, Message{MessageType: "snapshot", Body: snap}); err != nil {
						log.Logger.Debug("websocket write failed", zap.Error(err))
						return
					}
					lastFull = time.Now()
				}
			case <-r.Context().Done():
				log.Logger.Debug("websocket closed", zap.String("remote", r.RemoteAddr))
				return
			}
		}
	}
}

func send(c *websocket.Conn, mt int, msg Message) error {
	bytes, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshalling frame")
	}
	if err := c.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return errors.Wrap(err, "setting deadline")
	}
	return c.WriteMessage(mt, bytes)
}
