package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/rolekeeper/pkg/api"
	"github.com/cuemby/rolekeeper/pkg/config"
	"github.com/cuemby/rolekeeper/pkg/dns"
	"github.com/cuemby/rolekeeper/pkg/events"
	"github.com/cuemby/rolekeeper/pkg/health"
	"github.com/cuemby/rolekeeper/pkg/hippo"
	"github.com/cuemby/rolekeeper/pkg/log"
	"github.com/cuemby/rolekeeper/pkg/metrics"
	"github.com/cuemby/rolekeeper/pkg/reconciler"
	"github.com/cuemby/rolekeeper/pkg/role"
	"github.com/cuemby/rolekeeper/pkg/service"
	"github.com/cuemby/rolekeeper/pkg/storage"
)

const componentStore = "store"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the reconciler against a simulated scheduler",
	Long: `Run keeps the roles of a plan file at their planned shape.

Roles persisted in the data directory are restored first, then every role of
the plan file is applied. Slots are served by an in-process scheduler
simulator placing them on the given slaves.

Examples:
  # Run the roles of plans.yaml
  rolekeeper run -f plans.yaml

  # Publish available workers over DNS
  rolekeeper run -f plans.yaml --dns-addr 127.0.0.1:8053`,
	RunE: runDaemon,
}

func init() {
	runCmd.Flags().StringP("file", "f", "", "YAML plan file (required)")
	runCmd.Flags().String("data-dir", "", "Data directory for role snapshots")
	runCmd.Flags().String("metrics-addr", "", "Address for metrics and health endpoints")
	runCmd.Flags().String("api-addr", "", "Address for the gRPC status API")
	runCmd.Flags().Bool("api-writable", false, "Allow stopping roles over the status API")
	runCmd.Flags().String("dns-addr", "", "Address for the DNS server, disabled when empty")
	runCmd.Flags().String("log-level", "", "Log level (debug, info, warn, error)")
	runCmd.Flags().Bool("log-json", false, "Output logs in JSON format")
	runCmd.Flags().StringSlice("slaves", []string{"127.0.0.1:7000"}, "Simulated slave addresses")
	runCmd.Flags().Int("slots-per-slave", 0, "Slot cap per simulated slave, 0 for none")
	_ = runCmd.MarkFlagRequired("file")
}

// applyFlags overrides the environment configuration with the flags set
func applyFlags(cmd *cobra.Command, cfg *config.Daemon) {
	flags := cmd.Flags()
	if v, _ := flags.GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := flags.GetString("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}
	if v, _ := flags.GetString("api-addr"); v != "" {
		cfg.APIAddr = v
	}
	if flags.Changed("api-writable") {
		cfg.APIWritable, _ = flags.GetBool("api-writable")
	}
	if v, _ := flags.GetString("dns-addr"); v != "" {
		cfg.DNSAddr = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if flags.Changed("log-json") {
		cfg.LogJSON, _ = flags.GetBool("log-json")
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadDaemon()
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	logger := log.WithComponent("daemon")

	planFile, _ := cmd.Flags().GetString("file")
	plans, err := config.LoadPlanFile(planFile)
	if err != nil {
		return err
	}

	metrics.SetVersion(Version)
	metrics.SetCriticalComponents(reconciler.ComponentName, componentStore)

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		metrics.UpdateComponent(componentStore, false, err.Error())
		return err
	}
	defer store.Close()
	metrics.UpdateComponent(componentStore, true, cfg.DataDir)

	slaves, _ := cmd.Flags().GetStringSlice("slaves")
	perSlave, _ := cmd.Flags().GetInt("slots-per-slave")
	sim := hippo.NewSimulator(hippo.SimulatorConfig{Slaves: slaves, SlotsPerSlave: perSlave}, log.WithComponent("hippo"))

	healthMgr := health.NewProbeManager(log.WithComponent("health"))
	defer healthMgr.Stop()

	var services service.Manager = service.NewMemoryManager()
	if cfg.DNSAddr != "" {
		registry := dns.NewRegistry(cfg.DNSDomain)
		server := dns.NewServer(registry, dns.Config{ListenAddr: cfg.DNSAddr, Upstream: cfg.DNSUpstream}, log.WithComponent("dns"))
		if err := server.Start(); err != nil {
			return err
		}
		defer func() { _ = server.Stop() }()
		services = service.NewDNSManager(registry, log.WithComponent("service"))
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go logEvents(sub)

	factory := func(groupID, roleID, roleGUID string) *role.Role {
		return role.New(role.Config{
			GroupID:  groupID,
			RoleID:   roleID,
			RoleGUID: roleGUID,
			Adapter:  sim,
			Health:   healthMgr,
			Services: services,
			Events:   broker,
			Logger:   log.WithRole(groupID, roleID, roleGUID),
		})
	}
	rec := reconciler.New(reconciler.Config{
		ScheduleInterval: cfg.ScheduleInterval,
		UpdateInterval:   cfg.UpdateInterval,
		CycleTimeout:     cfg.CycleTimeout,
		Workers:          cfg.Workers,
	}, store, factory, log.Logger)

	if err := rec.Restore(); err != nil {
		return fmt.Errorf("failed to restore roles: %w", err)
	}
	for i := range plans.Roles {
		e := &plans.Roles[i]
		if err := rec.Apply(e.Group, e.Role, e.GUID, e.Version, e.Plan()); err != nil {
			return err
		}
		logger.Info().Str("role", e.Key()).Str("version", e.Version).Int32("count", e.Global.Count).Msg("Plan applied")
	}

	collector := metrics.NewCollector(rec, 5*time.Second)
	collector.Start()
	defer collector.Stop()

	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.NewMux(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 2)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	apiServer := api.NewServer(rec, !cfg.APIWritable, log.WithComponent("api"))
	go func() {
		if err := apiServer.Start(cfg.APIAddr); err != nil {
			errCh <- fmt.Errorf("status API error: %w", err)
		}
	}()

	rec.Start()
	logger.Info().
		Int("roles", len(rec.Roles())).
		Str("api", cfg.APIAddr).
		Str("metrics", cfg.MetricsAddr).
		Str("dns", cfg.DNSAddr).
		Msg("Rolekeeper running")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	case err = <-errCh:
		logger.Error().Err(err).Msg("Shutting down")
	}

	apiServer.Stop()
	rec.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn().Err(serr).Msg("Metrics server shutdown failed")
	}
	return err
}

func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for e := range sub {
		ev := logger.Info().
			Str("type", string(e.Type)).
			Str("role", e.Role)
		for k, v := range e.Metadata {
			ev = ev.Str(k, v)
		}
		ev.Msg(e.Message)
	}
}
