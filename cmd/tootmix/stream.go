package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"syscall"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gauthierbraillon/tootmix/internal/config"
	"github.com/gauthierbraillon/tootmix/internal/display"
	"github.com/gauthierbraillon/tootmix/internal/engine"
	"github.com/gauthierbraillon/tootmix/internal/mastodon"
	"github.com/gauthierbraillon/tootmix/internal/timeline"
)

// desktopNotifier shows notifications through the OS notification center.
func desktopNotifier() engine.Notifier {
	return engine.NotifierFunc(func(n mastodon.Notification) {
		text := timeline.NewNotification(n).Text()
		if err := beeep.Notify("tootmix", text, ""); err != nil {
			log.Debug().Err(err).Msg("desktop notification failed")
		}
	})
}

// printer writes engine changes and signals as they arrive.
type printer struct {
	out       io.Writer
	errOut    io.Writer
	formatter *display.TerminalFormatter
}

func (p *printer) OnChange(c engine.Change) {
	switch c.Type {
	case engine.ChangeInsert:
		fmt.Fprint(p.out, p.formatter.FormatEvent(c.Event))
		fmt.Fprintln(p.out)
	case engine.ChangeReplace:
		fmt.Fprint(p.out, "↻ ", p.formatter.FormatEvent(c.Event))
		fmt.Fprintln(p.out)
	case engine.ChangeReset:
		fmt.Fprintf(p.errOut, "-- timeline trimmed to %d toots --\n", len(c.Events))
	}
}

func (p *printer) OnSignal(s engine.Signal) {
	switch {
	case s.Err != nil:
		fmt.Fprintf(p.errOut, "-- %s stream: %v --\n", s.Stream, s.Err)
	case s.Refreshing:
		fmt.Fprintf(p.errOut, "-- refreshing (%s) --\n", s.Lifecycle)
	default:
		fmt.Fprintf(p.errOut, "-- %s --\n", s.Lifecycle)
	}
}

// liveTimeline owns the running engine and swaps it on config changes.
type liveTimeline struct {
	app      *app
	printer  *printer
	notify   bool
	mu       sync.Mutex
	eng      *engine.Engine
	stopFunc func()
}

func (l *liveTimeline) start(ctx context.Context) error {
	s, err := l.app.openSession(ctx)
	if err != nil {
		return err
	}

	opts := []engine.Option{}
	if l.notify {
		opts = append(opts, engine.WithNotifier(desktopNotifier()))
	}
	eng := l.app.newEngine(s, opts...)
	unsubscribe := eng.Subscribe(l.printer)

	if err := eng.Fetch(ctx); err != nil {
		log.Warn().Err(err).Msg("initial fetch failed")
	}
	if err := eng.Start(ctx); err != nil {
		unsubscribe()
		eng.Stop()
		return err
	}

	l.mu.Lock()
	l.eng = eng
	l.stopFunc = func() {
		unsubscribe()
		eng.Stop()
	}
	l.mu.Unlock()
	return nil
}

func (l *liveTimeline) stop() {
	l.mu.Lock()
	stop := l.stopFunc
	l.eng, l.stopFunc = nil, nil
	l.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// reload applies a changed config. Settings that shape the connections
// rebuild the engine; anything else reconnects it.
func (l *liveTimeline) reload(ctx context.Context, cfg *config.Config) {
	if ctx.Err() != nil {
		return
	}
	if lvl := l.app.logLevel; lvl != "" {
		cfg.Logging.Level = lvl
	}
	old := l.app.cfg
	l.app.cfg = cfg

	rebuild := old.Instance != cfg.Instance ||
		old.Stream.Scheme != cfg.Stream.Scheme ||
		!reflect.DeepEqual(old.HostRewrites(), cfg.HostRewrites()) ||
		old.Timeline != cfg.Timeline

	if rebuild {
		log.Info().Msg("restarting timeline for new settings")
		l.stop()
		if err := l.start(ctx); err != nil {
			log.Error().Err(err).Msg("restart failed")
		}
		return
	}

	l.mu.Lock()
	eng := l.eng
	l.mu.Unlock()
	if eng == nil {
		return
	}
	if err := eng.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("refresh after config change failed")
	}
}

// newStreamCmd creates the stream subcommand.
func newStreamCmd(a *app) *cobra.Command {
	var notify bool
	var watch bool

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Follow the unified timeline live",
		Long: "Print new toots and notifications from the home and local streams as they\n" +
			"arrive until interrupted. The config file is watched and applied live.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			live := &liveTimeline{
				app:    a,
				notify: notify,
				printer: &printer{
					out:       cmd.OutOrStdout(),
					errOut:    cmd.ErrOrStderr(),
					formatter: display.NewTerminalFormatter(),
				},
			}
			if err := live.start(ctx); err != nil {
				return err
			}
			defer live.stop()

			if watch {
				go func() {
					err := config.Watch(ctx, a.configPath, func(cfg *config.Config) {
						live.reload(ctx, cfg)
					})
					if err != nil {
						log.Warn().Err(err).Msg("config watch unavailable")
					}
				}()
			}

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVarP(&notify, "notify", "n", false, "Show desktop notifications")
	cmd.Flags().BoolVarP(&watch, "watch", "w", true, "Apply config file changes live")

	return cmd
}
