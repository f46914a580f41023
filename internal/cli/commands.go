package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"IPHForecast/internal/di"
	"IPHForecast/internal/domain/models"
	domrepo "IPHForecast/internal/domain/repository"
	"IPHForecast/internal/repository"
	"IPHForecast/internal/usecase"
	"IPHForecast/pkg/config"
	applogger "IPHForecast/pkg/logger"
	"IPHForecast/pkg/util"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	envFile    string
	verbose    bool
}

// session is the offline wiring the commands share: no HTTP server, no Kafka.
type session struct {
	cfg     *config.Config
	svc     *usecase.ForecastService
	closers []func() error
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "iphctl",
		Short: "iphctl - weekly IPH forecasting from the command line",
		Long: `iphctl loads the IPH series and the configured models, then answers
forecast, what-if and summary queries without starting the API server.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "config/config.yaml", "Configuration file path")
	root.PersistentFlags().StringVar(&opts.envFile, "env", ".env", "Optional dotenv file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log model loading and storage activity")

	root.AddCommand(newForecastCmd(opts))
	root.AddCommand(newWhatIfCmd(opts))
	root.AddCommand(newAppendCmd(opts))
	root.AddCommand(newSummaryCmd(opts))
	root.AddCommand(newRunsCmd(opts))
	root.AddCommand(newSnapshotCmd(opts))
	root.AddCommand(newValidateCmd(opts))
	return root
}

func loadConfig(opts *options) (*config.Config, error) {
	if err := godotenv.Load(opts.envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("dotenv %s: %w", opts.envFile, err)
	}
	return config.LoadWithEnv(opts.configPath)
}

// open wires the forecast service from the same providers the server uses,
// minus every network-facing component.
func open(opts *options) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	l := applogger.NewNop()
	if opts.verbose {
		if l, err = di.ProvideLogger(cfg); err != nil {
			return nil, err
		}
	}

	s := &session{cfg: cfg}
	ch, err := di.ProvideClickHouseClient(cfg)
	if err != nil {
		return nil, err
	}
	if ch != nil {
		s.closers = append(s.closers, ch.Close)
	}
	series, err := di.ProvideSeriesStore(cfg, ch, l)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, series.Close)

	var m domrepo.Metrics = domrepo.NopMetrics{}
	store, err := di.ProvideFeatureStore(series, m, l)
	if err != nil {
		s.Close()
		return nil, err
	}
	journal, err := di.ProvideJournal(cfg, l)
	if err != nil {
		s.Close()
		return nil, err
	}
	if journal != nil {
		s.closers = append(s.closers, journal.Close)
	}

	tables := di.ProvideTables(cfg)
	est := di.ProvideEstimator(di.ProvideRegistry(di.ProvidePredictors(cfg, l), l), tables, cfg, m, l)
	cls := di.ProvideClassifier(tables, l)
	s.svc = usecase.NewForecastService(store, est, cls, journal, repository.NopPublisher{}, m, l,
		usecase.WithHorizon(cfg.Forecast.Horizon),
		usecase.WithConfidenceLevel(cfg.Forecast.ConfidenceLevel),
	)
	return s, nil
}

// withSession opens the offline wiring for one command invocation.
func withSession(opts *options, fn func(ctx context.Context, s *session, out io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		s, err := open(opts)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd.Context(), s, cmd.OutOrStdout())
	}
}

func newForecastCmd(opts *options) *cobra.Command {
	var months int
	cmd := &cobra.Command{
		Use:   "forecast [MODEL]",
		Short: "Project the next weeks with a confidence band",
		Long: `Project the configured horizon with the named model (default model when omitted).
Example: iphctl forecast LightGBM --months 6`,
		Args: cobra.MaximumNArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return withSession(opts, func(ctx context.Context, s *session, out io.Writer) error {
			model := ""
			if len(args) == 1 {
				model = args[0]
			} else if names := s.svc.ModelNames(); len(names) > 0 {
				model = names[0]
			}
			res, err := s.svc.Forecast(ctx, model, months)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "model %s (MAE %s), last observation %s\n\n",
				res.ModelInfo.Name, fixed(res.ModelInfo.MAE), res.Metadata.LastHistoricalDate)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tPREDICTION\tLOWER\tUPPER")
			for _, p := range res.Forecast {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Date, fixed(p.Prediction), fixed(p.LowerBound), fixed(p.UpperBound))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(out)
			for _, in := range append(res.Insights.ModelInsights, res.Insights.MarketInsights...) {
				fmt.Fprintf(out, "[%s] %s: %s\n", in.Type, in.Title, in.Message)
			}
			return nil
		})(cmd, args)
	}
	cmd.Flags().IntVar(&months, "months", 0, "Historical window in months (0 = all)")
	return cmd
}

func newWhatIfCmd(opts *options) *cobra.Command {
	var (
		current float64
		model   string
	)
	cmd := &cobra.Command{
		Use:   "what-if",
		Short: "Predict next week assuming this week's IPH",
		Long: `Predict next week's IPH as if this week's value were --current.
Example: iphctl what-if --current 1.5 --model KNN`,
		Args: cobra.NoArgs,
		RunE: withSession(opts, func(ctx context.Context, s *session, out io.Writer) error {
			res, err := s.svc.WhatIf(ctx, current, model)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\nmodel %s: %s%% [%s, %s]\n",
				res.Scenario, res.ModelUsed, fixed(res.Prediction), fixed(res.LowerBound), fixed(res.UpperBound))
			return nil
		}),
	}
	cmd.Flags().Float64Var(&current, "current", 0, "This week's IPH in percent")
	cmd.Flags().StringVar(&model, "model", "", "Model name (default model when empty)")
	_ = cmd.MarkFlagRequired("current")
	return cmd
}

func newAppendCmd(opts *options) *cobra.Command {
	var (
		date  string
		value string
	)
	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append one weekly observation to the series",
		Long: `Append an observation and persist it to the configured storage.
Example: iphctl append --date 2024-06-03 --value 0,85`,
		Args: cobra.NoArgs,
		RunE: withSession(opts, func(ctx context.Context, s *session, out io.Writer) error {
			d, ok := util.ParseDate(date)
			if !ok {
				return fmt.Errorf("invalid date %q, use YYYY-MM-DD", date)
			}
			v, ok := util.ParseFloat(value)
			if !ok {
				return fmt.Errorf("invalid value %q", value)
			}
			obs, err := s.svc.Append(ctx, d, v)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "appended %s = %s (lag1 %s, ma3 %s, ma7 %s)\n",
				util.FormatDate(obs.Date), fixed(obs.Value), fixed(obs.Lag1), fixed(obs.MA3), fixed(obs.MA7))
			return nil
		}),
	}
	cmd.Flags().StringVar(&date, "date", "", "Observation date in YYYY-MM-DD format")
	cmd.Flags().StringVar(&value, "value", "", "IPH value in percent; a comma decimal separator is accepted")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func newSummaryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Describe the loaded series",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, func(_ context.Context, s *session, out io.Writer) error {
			sum, err := s.svc.Summary()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "records\t%d\n", sum.TotalRecords)
			fmt.Fprintf(tw, "range\t%s .. %s\n", util.FormatDate(sum.From), util.FormatDate(sum.To))
			fmt.Fprintf(tw, "mean\t%s\n", fixed(sum.Mean))
			fmt.Fprintf(tw, "std\t%s\n", fixed(sum.Std))
			fmt.Fprintf(tw, "min / max\t%s / %s\n", fixed(sum.Min), fixed(sum.Max))
			fmt.Fprintf(tw, "latest\t%s\n", fixed(sum.LatestValue))
			fmt.Fprintf(tw, "models\t%s\n", strings.Join(s.svc.ModelNames(), ", "))
			return tw.Flush()
		}),
	}
}

func newRunsCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List journaled forecast runs, newest first",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = withSession(opts, func(ctx context.Context, s *session, out io.Writer) error {
		runs, err := s.svc.Runs(ctx, limit)
		if err != nil {
			return err
		}
		return printRuns(out, runs)
	})
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum runs to list")
	return cmd
}

func newSnapshotCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Forecast with every loaded model and journal the runs",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, func(ctx context.Context, s *session, out io.Writer) error {
			runs := usecase.NewSnapshotJob(s.svc, time.Minute, nil).RunNow(ctx)
			if len(runs) == 0 {
				return fmt.Errorf("no model produced a forecast")
			}
			return printRuns(out, runs)
		}),
	}
}

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration, series and model artifacts",
		Args:  cobra.NoArgs,
		RunE: withSession(opts, func(ctx context.Context, s *session, out io.Writer) error {
			health := s.svc.Health(ctx)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "config\t%s\n", opts.configPath)
			fmt.Fprintf(tw, "storage\t%s\n", s.cfg.Storage.Type)
			fmt.Fprintf(tw, "models\t%d/%d loaded\n", health.ModelsLoaded, len(s.cfg.Models.List))
			fmt.Fprintf(tw, "data points\t%d\n", health.DataPoints)
			for name, state := range health.Checks {
				fmt.Fprintf(tw, "check %s\t%s\n", name, state)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if !health.Healthy() {
				return fmt.Errorf("status %s", health.Status)
			}
			return nil
		}),
	}
}

func printRuns(out io.Writer, runs []models.ForecastRun) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODEL\tTRIGGER\tCREATED\tLAST DATE\tNEXT WEEK")
	for _, r := range runs {
		next := "-"
		if len(r.Points) > 0 {
			next = fixed(r.Points[0].Prediction)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Model, r.Trigger, r.CreatedAt.Format(time.RFC3339), util.FormatDate(r.LastDate), next)
	}
	return tw.Flush()
}

// fixed renders v with four decimals, half away from zero.
func fixed(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(4)
}
