package cli

import (
	"context"
	"fmt"

	"funding-match-workers/internal/admin"
	"funding-match-workers/internal/common/aws"
	"funding-match-workers/internal/common/config"
	"funding-match-workers/internal/common/database"
	"funding-match-workers/internal/common/logger"
	"funding-match-workers/internal/matching"
	"funding-match-workers/internal/stores"

	"github.com/spf13/cobra"
)

var weightsUpdatedBy string

// openWeightsService connects to the stores behind the weights. Tests swap it out.
var openWeightsService = func(ctx context.Context, cfg *config.Config, log logger.Logger) (*admin.WeightsService, func(), error) {
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		pg.Close()
		return nil, nil, err
	}
	closeAll := func() {
		rdb.Close()
		pg.Close()
	}

	notifier, err := aws.NewNotifierFromConfig(ctx, cfg.Notifications, log)
	if err != nil {
		log.Warn("notifications disabled", map[string]interface{}{"error": err})
		notifier = nil
	}

	store := stores.NewPostgresWeightStore(pg.DB, cfg.Matching.WeightsTable)
	events := stores.NewWeightEvents(rdb.Client, cfg.Matching.InvalidationChannel, log)
	provider := matching.NewWeightsProvider(store, log)

	var n admin.ChangeNotifier
	if notifier != nil {
		n = notifier
	}
	return admin.NewWeightsService(provider, n, events, log), closeAll, nil
}

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Inspect and change the scoring weights",
}

var weightsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the weights in effect",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := connect(cmd)
		if err != nil {
			return err
		}
		defer done()

		return render(cmd.OutOrStdout(), newWeightsView(svc.Current(cmd.Context())))
	},
}

var weightsSetCmd = &cobra.Command{
	Use:     "set name=value...",
	Short:   "Store weight overrides",
	Example: "  matchctl weights set industry=30 geography=5",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := matching.ParseWeightAssignments(args)
		if err != nil {
			return err
		}

		svc, done, err := connect(cmd)
		if err != nil {
			return err
		}
		defer done()

		source := "matchctl"
		if weightsUpdatedBy != "" {
			source += ":" + weightsUpdatedBy
		}
		saved, err := svc.Save(cmd.Context(), overrides, source)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), weightsView{Weights: saved.Weights, Defaults: matching.DefaultWeights().ToMap()})
	},
}

var weightsClearCmd = &cobra.Command{
	Use:     "clear-cache",
	Aliases: []string{"clear"},
	Short:   "Make every worker reload weights on next use",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := connect(cmd)
		if err != nil {
			return err
		}
		defer done()

		svc.ClearCache(cmd.Context(), "matchctl")
		fmt.Fprintln(cmd.OutOrStdout(), "Weights cache cleared.")
		return nil
	},
}

func init() {
	weightsSetCmd.Flags().StringVar(&weightsUpdatedBy, "by", "", "operator name recorded with the change")

	weightsCmd.AddCommand(weightsShowCmd, weightsSetCmd, weightsClearCmd)
	rootCmd.AddCommand(weightsCmd)
}

func connect(cmd *cobra.Command) (*admin.WeightsService, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.NewStructured(logLevel, "console", "stderr")
	return openWeightsService(cmd.Context(), cfg, log)
}
