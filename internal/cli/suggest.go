package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"funding-match-workers/internal/common/logger"
	"funding-match-workers/internal/matching"
	"funding-match-workers/internal/stores"

	"github.com/spf13/cobra"
)

var (
	suggestCatalog string
	suggestIntent  string
	suggestProfile string
	suggestWeights string
	suggestUser    string
	suggestMax     int
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Rank a catalog file offline",
	Long: `Rank the opportunities in a JSON catalog file.

With --intent the full weighted score is used, with --profile (or only --user) the
industry fallback, and with neither the newest opportunities are returned.`,
	Example: `  matchctl suggest --catalog catalog.json --intent intent.json --max 3
  matchctl suggest --catalog catalog.json -o json`,
	RunE: runSuggest,
}

func init() {
	suggestCmd.Flags().StringVar(&suggestCatalog, "catalog", "", "JSON array of opportunities (required)")
	suggestCmd.Flags().StringVar(&suggestIntent, "intent", "", "JSON applicant intent")
	suggestCmd.Flags().StringVar(&suggestProfile, "profile", "", "JSON coarse profile")
	suggestCmd.Flags().StringVar(&suggestWeights, "weights", "", "JSON object of weight overrides")
	suggestCmd.Flags().StringVar(&suggestUser, "user", "", "applicant id")
	suggestCmd.Flags().IntVar(&suggestMax, "max", 0, "maximum suggestions (default 5)")
	_ = suggestCmd.MarkFlagRequired("catalog")
	suggestCmd.MarkFlagsMutuallyExclusive("intent", "profile")

	rootCmd.AddCommand(suggestCmd)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	log := logger.NewStructured(logLevel, "console", "stderr")

	var docs []json.RawMessage
	if err := readJSONFile(suggestCatalog, &docs); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	catalog, diags := stores.DecodeCatalog(docs)

	var (
		intent  *matching.ApplicantIntent
		profile *matching.CoarseProfile
	)
	if suggestIntent != "" {
		intent = &matching.ApplicantIntent{}
		if err := readJSONFile(suggestIntent, intent); err != nil {
			return fmt.Errorf("intent: %w", err)
		}
		if intent.UserID == "" {
			intent.UserID = suggestUser
		}
	}
	if suggestProfile != "" {
		profile = &matching.CoarseProfile{}
		if err := readJSONFile(suggestProfile, profile); err != nil {
			return fmt.Errorf("profile: %w", err)
		}
	}

	var store matching.WeightStore
	if suggestWeights != "" {
		overrides := map[string]float64{}
		if err := readJSONFile(suggestWeights, &overrides); err != nil {
			return fmt.Errorf("weights: %w", err)
		}
		store = fileWeights(overrides)
	}

	orch := matching.NewOrchestrator(matching.NewEngine(), matching.NewWeightsProvider(store, log), log)
	out := orch.GetSuggestions(cmd.Context(), catalog, matching.ContextFor(suggestUser, intent, profile), suggestMax)
	out.Diagnostics = append(diags, out.Diagnostics...)

	return render(cmd.OutOrStdout(), out)
}

func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// fileWeights serves overrides read from a local file. It is read only.
type fileWeights map[string]float64

func (f fileWeights) LoadWeights(_ context.Context) (map[string]float64, error) {
	return f, nil
}

func (f fileWeights) SaveWeight(_ context.Context, name string, _ float64) error {
	return fmt.Errorf("weights file is read only, cannot save %s", name)
}
