// Command podctl drives one Pod Manager operation against one physical
// pod and exits. Every invocation opens a conversation, runs exactly one
// therapy operation, prints the resulting outcome as a single structured
// log line, and exits non-zero if the conversation failed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/strandhealth/podctl/internal/config"
	"github.com/strandhealth/podctl/internal/conversation"
	"github.com/strandhealth/podctl/internal/manager"
	"github.com/strandhealth/podctl/internal/nonce"
	"github.com/strandhealth/podctl/internal/pod"
	"github.com/strandhealth/podctl/internal/transport"
	"github.com/strandhealth/podctl/pkg/logging"
	"github.com/strandhealth/podctl/pkg/metrics"
	"github.com/strandhealth/podctl/pkg/progress"
	"github.com/strandhealth/podctl/repository"
	"github.com/strandhealth/podctl/repository/memory"
	"github.com/strandhealth/podctl/repository/postgres"
	"github.com/strandhealth/podctl/transport/grpcexchange"
	"github.com/strandhealth/podctl/transport/wsexchange"
)

const serviceName = "podctl"

func main() {
	radioAddress := flag.Uint64("radio-address", 0, "Pod radio address")
	lot := flag.Uint64("lot", 0, "Pod lot number")
	serial := flag.Uint64("serial", 0, "Pod serial number")
	utcOffsetMinutes := flag.Int("utc-offset-minutes", 0, "UTC offset in minutes applied to pod-facing timestamps")
	conversationTimeout := flag.Duration("conversation-timeout", 30*time.Second, "Maximum time to wait to acquire the pod's conversation mutex (0 waits unboundedly)")
	heartbeatFile := flag.String("heartbeat-file", "", "Path to a heartbeat file reported during long poll loops (disabled if empty)")
	usePostgres := flag.Bool("use-postgres", false, "Persist exchange results to Postgres instead of the in-memory repository")

	logFlags := logging.RegisterFlags()
	transportFlags := config.RegisterTransportFlags()
	pgFlags := config.RegisterPostgresFlags()
	redisFlags := config.RegisterRedisFlags()
	cacheFlags := config.RegisterCacheFlags()
	metricsFlags := config.RegisterMetricsFlags(serviceName)

	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(2)
	}
	command := args[0]
	rest := args[1:]

	logger := logging.InitLogger(serviceName, logFlags.ToConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsRecorder, err := metrics.NewRecorder(ctx, metricsFlags.ToMetricsConfig())
	if err != nil {
		logger.Error("failed to initialize metrics", "error", err)
		os.Exit(1)
	}
	defer metricsRecorder.Shutdown(ctx)

	repo, closeRepo := mustRepository(ctx, *usePostgres, pgFlags, cacheFlags, redisFlags, logger)
	defer closeRepo()

	provider, closeProvider := mustProvider(transportFlags.ToTransportConfig(), logger)
	defer closeProvider()

	state := &pod.State{RadioAddress: uint32(*radioAddress)}
	if *lot != 0 {
		l := uint32(*lot)
		state.Lot = &l
	}
	if *serial != 0 {
		s := uint32(*serial)
		state.Serial = &s
	}

	opts := []manager.Option{
		manager.WithLogger(logger),
		manager.WithMetrics(metricsRecorder),
	}
	if *heartbeatFile != "" {
		hb, err := progress.NewWriter(*heartbeatFile)
		if err != nil {
			logger.Error("failed to initialize heartbeat writer", "error", err)
			os.Exit(1)
		}
		opts = append(opts, manager.WithHeartbeat(hb))
	}

	m := manager.New(state, provider, repo, nonce.New(lotOf(state), serialOf(state)), opts...)

	conv, ok := m.StartConversation(ctx, *conversationTimeout, conversation.SourceUser)
	if !ok {
		logger.Error("failed to acquire pod conversation", "pod", state.RadioAddress)
		os.Exit(1)
	}
	defer conv.Release()

	if err := runCommand(ctx, m, conv, command, rest, *utcOffsetMinutes); err != nil {
		logger.Error("command rejected", "command", command, "error", err)
		os.Exit(2)
	}

	logOutcome(logger, command, conv)
	if conv.Failed() || conv.Exception() != nil {
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, m *manager.Manager, conv *conversation.Conversation, command string, args []string, utcOffsetMinutes int) error {
	switch command {
	case "pair":
		m.Pair(ctx, conv, utcOffsetMinutes)
	case "activate":
		m.Activate(ctx, conv)
	case "inject-and-start":
		schedule, err := parseSchedule(args)
		if err != nil {
			return err
		}
		m.InjectAndStart(ctx, conv, schedule, utcOffsetMinutes)
	case "bolus":
		fs := flag.NewFlagSet("bolus", flag.ContinueOnError)
		amount := fs.Float64("amount", 0, "Bolus amount in units")
		wait := fs.Bool("wait", true, "Wait for the bolus to finish delivering before returning")
		if err := fs.Parse(args); err != nil {
			return err
		}
		m.Bolus(ctx, conv, *amount, *wait)
	case "cancel-bolus":
		m.CancelBolus(ctx, conv)
	case "set-temp-basal":
		fs := flag.NewFlagSet("set-temp-basal", flag.ContinueOnError)
		rate := fs.Float64("rate", 0, "Temp basal rate in units/hour")
		hours := fs.Float64("hours", 0, "Temp basal duration in hours")
		if err := fs.Parse(args); err != nil {
			return err
		}
		m.SetTempBasal(ctx, conv, *rate, *hours)
	case "cancel-temp-basal":
		m.CancelTempBasal(ctx, conv)
	case "set-basal-schedule":
		schedule, err := parseSchedule(args)
		if err != nil {
			return err
		}
		m.SetBasalSchedule(ctx, conv, schedule, utcOffsetMinutes)
	case "ack-alerts":
		fs := flag.NewFlagSet("ack-alerts", flag.ContinueOnError)
		mask := fs.Uint("mask", 0, "Alert acknowledgement bitmask")
		if err := fs.Parse(args); err != nil {
			return err
		}
		m.AcknowledgeAlerts(ctx, conv, uint8(*mask))
	case "deactivate":
		m.Deactivate(ctx, conv)
	case "status":
		m.UpdateStatus(ctx, conv)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func parseSchedule(args []string) ([]float64, error) {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	raw := fs.String("schedule", "", "Comma-separated 48-entry basal schedule in units/hour")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *raw == "" {
		return nil, fmt.Errorf("--schedule is required")
	}
	parts := strings.Split(*raw, ",")
	schedule := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule entry %q: %w", p, err)
		}
		schedule[i] = v
	}
	return schedule, nil
}

func logOutcome(logger *slog.Logger, command string, conv *conversation.Conversation) {
	attrs := []any{
		"pod", conv.PodID,
		"command", command,
		"canceled", conv.Canceled(),
		"failed", conv.Failed(),
		"cancel_failed", conv.CancelDidFail(),
	}
	if err := conv.Exception(); err != nil {
		attrs = append(attrs, "exception", err.Error())
		logger.Error("conversation complete", attrs...)
		return
	}
	logger.Info("conversation complete", attrs...)
}

func mustRepository(ctx context.Context, usePostgres bool, pgFlags *config.PostgresFlagPointers, cacheFlags *config.CacheFlagPointers, redisFlags *config.RedisFlagPointers, logger *slog.Logger) (repository.Repository, func()) {
	if !usePostgres {
		return memory.New(), func() {}
	}
	repo, err := postgres.New(ctx, pgFlags.ToPostgresConfig(), cacheFlags.ToCacheConfig(), redisFlags.ToRedisConfig(), logger)
	if err != nil {
		logger.Error("failed to connect to postgres repository", "error", err)
		os.Exit(1)
	}
	return repo, repo.Close
}

func mustProvider(cfg config.TransportConfig, logger *slog.Logger) (transport.Provider, func()) {
	switch cfg.Kind {
	case config.TransportWebSocket:
		p := wsexchange.New(wsexchange.Config{
			URL:                 cfg.Address,
			DialTimeout:         cfg.DialTimeout,
			RequestTimeout:      cfg.RequestTimeout,
			MaxReconnectBackoff: cfg.MaxReconnectBackoff,
		}, logger)
		return p, func() { _ = p.Close() }
	default:
		p := grpcexchange.New(grpcexchange.Config{
			Address:             cfg.Address,
			DialTimeout:         cfg.DialTimeout,
			RequestTimeout:      cfg.RequestTimeout,
			MaxReconnectBackoff: cfg.MaxReconnectBackoff,
			Insecure:            cfg.Insecure,
		}, logger)
		return p, func() { _ = p.Close() }
	}
}

func lotOf(state *pod.State) uint32 {
	if state.Lot == nil {
		return 0
	}
	return *state.Lot
}

func serialOf(state *pod.State) uint32 {
	if state.Serial == nil {
		return 0
	}
	return *state.Serial
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: podctl [flags] <command> [command flags]

commands:
  pair                 run the pairing handshake
  activate             prime and ready the pod for injection
  inject-and-start     install the basal schedule and start delivery (--schedule)
  bolus                deliver a bolus (--amount, --wait)
  cancel-bolus         cancel an in-progress bolus
  set-temp-basal       set a temporary basal rate (--rate, --hours)
  cancel-temp-basal    cancel an active temporary basal rate
  set-basal-schedule   replace the basal schedule (--schedule)
  ack-alerts           acknowledge pod alerts (--mask)
  deactivate           deactivate the pod
  status               fetch the pod's current status

flags:`)
	flag.PrintDefaults()
}
