package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"apexcoach/log"
	"apexcoach/pkg/config"
	"apexcoach/pkg/corners"
	"apexcoach/pkg/engine"
	"apexcoach/pkg/model"
	"apexcoach/pkg/notification"
	"apexcoach/pkg/sink"
	"apexcoach/pkg/stats"
	"apexcoach/pkg/store"
	"apexcoach/pkg/telemetry"
	"apexcoach/pkg/webserver"
)

var coachCmd = &cobra.Command{
	Use:   "coach",
	Short: "Run the live coach: UDP in, dashboard and archive out",
	RunE:  runCoach,
}

func runCoach(cmd *cobra.Command, args []string) error {
	log.InitLogger(config.LogLevel, config.LogFormat)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	listener := telemetry.NewListener(config.UDPPort, buses.Updates)
	recorder := store.NewRecorder(st, config.DataDir, config.ReportInterval, buses)
	web := webserver.NewManager(config.HTTPAddr, buses, eng, st)

	var wg sync.WaitGroup
	errc := make(chan error, 8)
	start := starter(ctx, &wg, errc)

	start("engine", eng.Run)
	start("telemetry", listener.Run)
	start("recorder", recorder.Run)
	start("webserver", web.Run)

	if config.QuestDBAddr != "" {
		qs, err := sink.New(config.QuestDBAddr, buses)
		if err != nil {
			stop()
			wg.Wait()
			return err
		}
		start("questdb sink", qs.Run)
	}
	if config.TelegramToken != "" {
		notifier, err := notification.NewManager(config.TelegramToken, config.TelegramChat, buses)
		if err != nil {
			stop()
			wg.Wait()
			return err
		}
		start("notifier", notifier.Run)
	}

	log.Logger.Info("coach running",
		zap.Int("udpPort", config.UDPPort),
		zap.String("httpAddr", config.HTTPAddr))

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
		stop()
	}
	wg.Wait()
	return runErr
}

func engineOptions(st *store.Manager, crs []model.Corner) engine.Options {
	return engine.Options{
		BinCount:          config.BinCount,
		LapWindow:         config.LapWindow,
		CornerHistory:     config.CornerHistory,
		MaxCornerCallouts: config.MaxCornerCallouts,
		GapTimeout:        config.GapTimeoutSec,
		Thresholds: stats.Thresholds{
			BrakeDiff:    config.BrakeDiff,
			SpeedDiff:    config.SpeedDiff,
			ThrottleDiff: config.ThrottleDiff,
		},
		Corners: crs,
		SeedLookup: func(track string) *model.Lap {
			lap, err := st.LoadReference(track)
			if err != nil {
				log.Logger.Warn("loading stored reference failed",
					zap.String("track", track), zap.Error(err))
				return nil
			}
			return lap
		},
	}
}

// starter launches pipeline components that run until ctx cancels and
// funnels their first error into errc.
func starter(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) func(string, func(context.Context) error) {
	return func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errc <- errors.Wrap(err, name)
			}
		}()
	}
}

func loadCorners(path string) ([]model.Corner, error) {
	if path == "" {
		return nil, nil
	}
	return corners.LoadFile(path)
}
