package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"apexcoach/log"
	"apexcoach/pkg/config"
	"apexcoach/pkg/engine"
	"apexcoach/pkg/pubsub"
	"apexcoach/pkg/sink"
	"apexcoach/pkg/store"
	"apexcoach/pkg/telemetry"
	"apexcoach/pkg/webserver"
)

var (
	replayFile  string
	replaySpeed float64
	replayTrack string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Feed a recorded session CSV back through the live pipeline",
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayFile, "file", "", "session CSV to replay")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "playback speed multiplier")
	replayCmd.Flags().StringVar(&replayTrack, "track", "replay",
		"track name to report, matches stored references")
	replayCmd.MarkFlagRequired("file")
}

func runReplay(cmd *cobra.Command, args []string) error {
	log.InitLogger(config.LogLevel, config.LogFormat)
	defer log.Sync()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	st, err := store.NewManager(config.DBFile)
	if err != nil {
		return err
	}
	defer st.Close()

	crs, err := loadCorners(config.CornersFile)
	if err != nil {
		return err
	}

	buses := engine.NewBuses()
	eng := engine.New(buses, engineOptions(st, crs))
	recorder := store.NewRecorder(st, config.DataDir, config.ReportInterval, buses)
	web := webserver.NewManager(config.HTTPAddr, buses, eng, st)

	var wg sync.WaitGroup
	errc := make(chan error, 8)
	start := starter(ctx, &wg, errc)

	start("engine", eng.Run)
	start("recorder", recorder.Run)
	start("webserver", web.Run)

	if config.QuestDBAddr != "" {
		qs, err := sink.New(config.QuestDBAddr, buses)
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
		start("questdb sink", qs.Run)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feedTicks(ctx, buses); err != nil {
			errc <- errors.Wrap(err, "replay")
			return
		}
		// Let the recorder and sink drain before tearing down.
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
		cancel()
	}()

	log.Logger.Info("replay running",
		zap.String("file", replayFile),
		zap.Float64("speed", replaySpeed),
		zap.String("httpAddr", config.HTTPAddr))

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
		cancel()
	}
	wg.Wait()
	return runErr
}

// feedTicks paces the recorded samples by their original timestamps,
// scaled by the speed flag, and closes the session the way the wire
// would: with a session-ended event.
func feedTicks(ctx context.Context, buses *engine.Buses) error {
	r, err := store.OpenTicks(replayFile)
	if err != nil {
		return err
	}
	defer r.Close()

	buses.Updates.Publish(pubsub.TopicSamples, telemetry.Update{
		Kind:    telemetry.UpdateSession,
		Session: &telemetry.SessionInfo{TrackName: replayTrack},
	})

	speed := replaySpeed
	if speed <= 0 {
		speed = 1
	}
	var prev float64
	first := true
	fed := 0
	for {
		s, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "reading tick")
		}
		if !first {
			delta := time.Duration((s.Timestamp - prev) / speed * float64(time.Second))
			if delta > time.Second {
				// recording gap, no point replaying the wait
				delta = time.Second
			}
			if delta > 0 {
				select {
				case <-time.After(delta):
				case <-ctx.Done():
					return nil
				}
			}
		}
		first = false
		prev = s.Timestamp
		buses.Updates.Publish(pubsub.TopicSamples, telemetry.Update{
			Kind:   telemetry.UpdateSample,
			Sample: &s,
		})
		fed++
	}

	buses.Updates.Publish(pubsub.TopicSamples, telemetry.Update{
		Kind:  telemetry.UpdateEvent,
		Event: telemetry.EventSessionEnded,
	})
	log.Logger.Info("replay finished", zap.Int("samples", fed))
	return nil
}
