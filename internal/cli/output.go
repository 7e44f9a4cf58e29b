package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"funding-match-workers/internal/matching"
)

func render(w io.Writer, data interface{}) error {
	switch outputFmt {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "table", "":
		return table(w, data)
	default:
		return fmt.Errorf("unknown output format %q (use table or json)", outputFmt)
	}
}

func table(w io.Writer, data interface{}) error {
	switch v := data.(type) {
	case matching.Suggestions:
		return suggestionsTable(w, v)
	case weightsView:
		return weightsTable(w, v)
	default:
		return fmt.Errorf("unsupported data type for table output: %T", data)
	}
}

func suggestionsTable(w io.Writer, s matching.Suggestions) error {
	fmt.Fprintf(w, "Strategy: %s\n\n", s.Strategy)

	if len(s.Results) == 0 {
		fmt.Fprintln(w, "No suggestions.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tOPPORTUNITY\tTITLE\tSCORE\tREASONS")
		fmt.Fprintln(tw, "-\t-----------\t-----\t-----\t-------")
		for i, r := range s.Results {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\t%s\n",
				i+1,
				r.Opportunity.ID,
				truncate(r.Opportunity.Title, 30),
				r.Score,
				strings.Join(r.Reasons, "; "),
			)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(s.Diagnostics) > 0 {
		fmt.Fprintf(w, "\nSkipped %d record(s):\n", len(s.Diagnostics))
		for _, d := range s.Diagnostics {
			id := d.OpportunityID
			if id == "" {
				id = "-"
			}
			fmt.Fprintf(w, "  %s  %s  %s\n", d.Code, id, d.Message)
		}
	}
	return nil
}

// weightsView is what `weights show` prints.
type weightsView struct {
	Weights  map[string]float64 `json:"weights"`
	Defaults map[string]float64 `json:"defaults"`
}

func newWeightsView(w matching.WeightSet) weightsView {
	return weightsView{Weights: w.ToMap(), Defaults: matching.DefaultWeights().ToMap()}
}

func weightsTable(w io.Writer, v weightsView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CRITERION\tWEIGHT\tDEFAULT")
	fmt.Fprintln(tw, "---------\t------\t-------")
	total := 0.0
	for _, c := range matching.Criteria {
		name := string(c)
		total += v.Weights[name]
		marker := ""
		if v.Weights[name] != v.Defaults[name] {
			marker = " *"
		}
		fmt.Fprintf(tw, "%s\t%g%s\t%g\n", name, v.Weights[name], marker, v.Defaults[name])
	}
	fmt.Fprintf(tw, "total\t%g\t\n", total)
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
