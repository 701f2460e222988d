package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/opscart/metricwatch/pkg/config"
	"github.com/opscart/metricwatch/pkg/datasource"
	"github.com/opscart/metricwatch/pkg/idle"
	"github.com/opscart/metricwatch/pkg/ladder"
	"github.com/opscart/metricwatch/pkg/logging"
	"github.com/opscart/metricwatch/pkg/models"
	"github.com/opscart/metricwatch/pkg/monitor"
	"github.com/opscart/metricwatch/pkg/recommender"
	"github.com/opscart/metricwatch/pkg/reporter"
	"github.com/opscart/metricwatch/pkg/storage"
	"github.com/opscart/metricwatch/pkg/telemetry"
	"github.com/opscart/metricwatch/pkg/trend"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath   string
	profileName  string
	dryRun       bool
	verbose      bool
	reportFormat string
	reportOutput string
	appliedBy    string

	cfg *config.Config
	log *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "metricwatch",
		Short: "Windowed metrics monitoring and recommendation engine",
		Long:  `Aggregate metric samples per window, classify trends against threshold ladders, and emit actionable recommendations.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
				// Environment-only configuration; profiles require a file
				cfg = config.NewConfig()
			} else {
				cfg, err = config.Load(configPath)
				if err != nil {
					return err
				}
			}
			if verbose {
				cfg.Verbose = true
			}
			log = logging.New(cfg.LogFile, cfg.Verbose)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "metricwatch.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run all configured monitor profiles once",
		RunE:  runOnce,
	}
	runCmd.Flags().StringVarP(&profileName, "profile", "p", "", "Run only the named profile")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Use in-memory storage, persist nothing")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run profiles on their cron schedules and expose telemetry",
		RunE:  serve,
	}

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Run profiles once and write a report",
		RunE:  runReport,
	}
	reportCmd.Flags().StringVarP(&profileName, "profile", "p", "", "Report only the named profile")
	reportCmd.Flags().StringVar(&reportFormat, "format", "html", "Report format: html, csv")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "metricwatch-report.html", "Output file")

	recsCmd := &cobra.Command{
		Use:   "recommendations",
		Short: "List open recommendations",
		RunE:  listRecommendations,
	}
	applyCmd := &cobra.Command{
		Use:   "apply <id>",
		Short: "Mark a recommendation as implemented",
		Args:  cobra.ExactArgs(1),
		RunE:  applyRecommendation,
	}
	applyCmd.Flags().StringVar(&appliedBy, "by", "", "Who applied the recommendation")
	recsCmd.AddCommand(applyCmd)

	rootCmd.AddCommand(runCmd, serveCmd, reportCmd, recsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openStore() (storage.Store, error) {
	if dryRun || !cfg.StorageEnabled {
		return storage.NewMemoryStore(), nil
	}
	return storage.NewPostgresStore(cfg.DatabaseURL)
}

// buildRunner wires one profile into a runner. The Prometheus source feeds
// samples when a URL is configured; the store both feeds and persists
// otherwise.
func buildRunner(profile config.Profile, store storage.Store, metrics *telemetry.Metrics) (*monitor.Runner, error) {
	classif, err := buildLadder(profile.Ladder)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", profile.Name, err)
	}

	var source storage.SampleSource = store
	if cfg.PrometheusURL != "" && len(profile.Queries) > 0 {
		source, err = datasource.NewPrometheusSource(cfg.PrometheusURL, profile.Queries, 5*time.Minute)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", profile.Name, err)
		}
	}

	opts := []monitor.Option{monitor.WithTelemetry(metrics)}

	if profile.Idle != nil {
		idleCfg := idle.Config{
			Lookback:        profile.Lookback(),
			MinSamples:      profile.Idle.MinSamples,
			Thresholds:      profile.Idle.Thresholds,
			RequireAll:      profile.Idle.RequireAll,
			MinIdleDuration: profile.Idle.MinIdleDuration(),
		}
		if idleCfg.MinSamples == 0 {
			idleCfg.MinSamples = profile.MinSamples
		}
		locator, err := idle.New(source, idleCfg, log)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", profile.Name, err)
		}
		opts = append(opts, monitor.WithLocator(locator))
	}

	if profile.Recommend != nil {
		actions := make(map[string]models.Kind, len(profile.Recommend.Actions))
		for label, kind := range profile.Recommend.Actions {
			actions[label] = models.Kind(kind)
		}
		engine, err := recommender.New(recommender.Config{
			Actions:           actions,
			MinimumImpact:     profile.Recommend.MinimumImpact,
			SevereLabel:       profile.Recommend.SevereLabel,
			LargeImpactCutoff: profile.Recommend.LargeImpactCutoff,
		})
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", profile.Name, err)
		}
		var cost *recommender.CostModel
		if profile.Recommend.CostPerUnit != 0 {
			cost = &recommender.CostModel{
				CostPerUnit:     profile.Recommend.CostPerUnit,
				SavingsFraction: profile.Recommend.SavingsFraction,
			}
		}
		opts = append(opts, monitor.WithRecommender(engine, cost))
	}

	runnerCfg := monitor.Config{
		MetricType:   profile.MetricType,
		Percentiles:  profile.Percentiles,
		MinSamples:   profile.MinSamples,
		Lookback:     profile.Lookback(),
		Score:        monitor.ScoreStat(profile.Score),
		TrendHistory: profile.Trend.History,
		Trend:        buildTrendConfig(profile.Trend),
	}
	if runnerCfg.Score == "" {
		runnerCfg.Score = monitor.ScoreMean
	}

	return monitor.NewRunner(runnerCfg, source, store, classif, log.With(zap.String("profile", profile.Name)), opts...)
}

func buildLadder(spec config.LadderSpec) (*ladder.Ladder, error) {
	direction := ladder.AtLeast
	if spec.Direction == "at_most" {
		direction = ladder.AtMost
	}
	rungs := make([]ladder.Rung, len(spec.Rungs))
	for i, r := range spec.Rungs {
		rungs[i] = ladder.Rung{Label: r.Label, Cutoff: r.Cutoff}
	}
	return ladder.New(direction, spec.Default, rungs...)
}

func buildTrendConfig(spec config.TrendSpec) trend.SplitHalfConfig {
	mode := trend.CompareMargin
	if spec.Mode == "ratio" {
		mode = trend.CompareRatio
	}
	return trend.SplitHalfConfig{Mode: mode, Margin: spec.Margin, Ratio: spec.Ratio}
}

func selectedProfiles() ([]config.Profile, error) {
	if profileName == "" {
		if len(cfg.Profiles) == 0 {
			return nil, fmt.Errorf("%w: no profiles configured", models.ErrInvalidConfig)
		}
		return cfg.Profiles, nil
	}
	for _, p := range cfg.Profiles {
		if p.Name == profileName {
			return []config.Profile{p}, nil
		}
	}
	return nil, fmt.Errorf("profile not found: %s", profileName)
}

func runOnce(cmd *cobra.Command, args []string) error {
	profiles, err := selectedProfiles()
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := telemetry.New(nil)
	ctx := context.Background()
	now := time.Now()

	for _, profile := range profiles {
		runner, err := buildRunner(profile, store, metrics)
		if err != nil {
			return err
		}

		outcomes, err := runner.RunAll(ctx, profile.Subjects, now)
		if err != nil {
			return err
		}
		printOutcomes(profile.Name, outcomes)
	}

	return nil
}

func printOutcomes(profile string, outcomes []*monitor.Outcome) {
	fmt.Printf("Profile %s: %d subjects\n", profile, len(outcomes))
	for _, o := range outcomes {
		if o.Status == monitor.StatusInsufficientData {
			fmt.Printf("  %-30s insufficient data\n", o.SubjectID)
			continue
		}
		line := fmt.Sprintf("  %-30s score=%.2f label=%s trend=%s",
			o.SubjectID, o.State.Score, o.State.Label, o.State.Trend)
		if o.IdleSince != nil {
			line += fmt.Sprintf(" idle-since=%s", o.IdleSince.Format(time.RFC3339))
		}
		if o.Recommendation != nil {
			line += fmt.Sprintf(" [%s %s $%.2f/month]",
				o.Recommendation.Priority, o.Recommendation.Kind, o.Recommendation.EstimatedImpact)
		}
		fmt.Println(line)
	}
}

func serve(cmd *cobra.Command, args []string) error {
	if len(cfg.Profiles) == 0 {
		return fmt.Errorf("%w: no profiles configured", models.ErrInvalidConfig)
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := telemetry.New(nil)
	sched := cron.New()

	for _, profile := range cfg.Profiles {
		profile := profile
		runner, err := buildRunner(profile, store, metrics)
		if err != nil {
			return err
		}

		schedule := profile.Schedule
		if schedule == "" {
			schedule = "@hourly"
		}
		_, err = sched.AddFunc(schedule, func() {
			if _, err := runner.RunAll(context.Background(), profile.Subjects, time.Now()); err != nil {
				log.Error("scheduled run failed",
					zap.String("profile", profile.Name),
					zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("profile %s schedule: %w", profile.Name, err)
		}
	}

	sched.Start()
	defer sched.Stop()

	log.Info("metricwatch serving", zap.String("listen", cfg.MetricsListen))
	http.Handle("/metrics", telemetry.Handler())
	return http.ListenAndServe(cfg.MetricsListen, nil)
}

func runReport(cmd *cobra.Command, args []string) error {
	profiles, err := selectedProfiles()
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := telemetry.New(nil)
	ctx := context.Background()
	now := time.Now()

	var all []*monitor.Outcome
	name := "all"
	for _, profile := range profiles {
		runner, err := buildRunner(profile, store, metrics)
		if err != nil {
			return err
		}
		outcomes, err := runner.RunAll(ctx, profile.Subjects, now)
		if err != nil {
			return err
		}
		all = append(all, outcomes...)
		if len(profiles) == 1 {
			name = profile.Name
		}
	}

	report := reporter.Build(name, all)

	f, err := os.Create(reportOutput)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := reporter.Generate(report, reporter.ReportFormat(reportFormat), f); err != nil {
		return err
	}

	fmt.Printf("Report written to %s (%d subjects, %d recommendations)\n",
		reportOutput, report.SubjectCount, len(report.Recommendations))
	return nil
}

func listRecommendations(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.OpenRecommendations(context.Background(), "")
	if err != nil {
		return err
	}

	if len(recs) == 0 {
		fmt.Println("No open recommendations.")
		return nil
	}

	for _, rec := range recs {
		fmt.Printf("%s  %-8s %-10s %-30s $%.2f/month  %s\n",
			rec.ID, rec.Priority, rec.Kind, rec.SubjectID, rec.EstimatedImpact, rec.Reason)
	}
	return nil
}

func applyRecommendation(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.MarkImplemented(context.Background(), args[0], appliedBy); err != nil {
		return err
	}

	fmt.Printf("Recommendation %s marked implemented.\n", args[0])
	return nil
}
