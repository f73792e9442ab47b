package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"focuscal/internal/focus"
)

var (
	suggestUser   string
	suggestStart  string
	suggestEnd    string
	suggestDryRun bool
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Compute focus-block suggestions for one user and print them as JSON",
	RunE:  runSuggest,
}

func init() {
	suggestCmd.Flags().StringVar(&suggestUser, "user", "", "User ID")
	suggestCmd.Flags().StringVar(&suggestStart, "start", "", "First day, YYYY-MM-DD (default today)")
	suggestCmd.Flags().StringVar(&suggestEnd, "end", "", "Last day, YYYY-MM-DD (default start + 6 days)")
	suggestCmd.Flags().BoolVar(&suggestDryRun, "dry-run", false, "Do not store the suggestions")
	_ = suggestCmd.MarkFlagRequired("user")
}

func runSuggest(cmd *cobra.Command, _ []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	start, end, err := parseDayRange(suggestStart, suggestEnd, time.Now(), a.loc)
	if err != nil {
		return err
	}

	res, err := a.engine.Suggest(cmd.Context(), focus.Request{
		UserID:     suggestUser,
		RangeStart: start,
		RangeEnd:   end,
		DryRun:     suggestDryRun,
	})
	if err != nil {
		if focus.IsRetryable(err) {
			return fmt.Errorf("%w (retry later)", err)
		}
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// parseDayRange resolves the --start/--end flags. Empty start means today
// and empty end means six days after start.
func parseDayRange(startFlag, endFlag string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	start := focus.StartOfDay(now.In(loc))
	if startFlag != "" {
		t, err := time.ParseInLocation(time.DateOnly, startFlag, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --start: %w", err)
		}
		start = t
	}
	end := start.AddDate(0, 0, 6)
	if endFlag != "" {
		t, err := time.ParseInLocation(time.DateOnly, endFlag, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end: %w", err)
		}
		end = t
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, errors.New("--start is after --end")
	}
	return start, end, nil
}
