package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/flybeeper/trail-stats/internal/audit"
	"github.com/flybeeper/trail-stats/internal/gpx"
	"github.com/flybeeper/trail-stats/internal/models"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// streamEvents печатает события обновления статистики в w по мере аудита, по одной JSON строке.
// stop закрывает канал и дожидается вывода оставшихся событий.
func streamEvents(w io.Writer, buffer int) (notifier *audit.ChannelNotifier, stop func()) {
	notifier = audit.NewChannelNotifier(buffer)
	done := make(chan struct{})

	go func() {
		defer close(done)
		enc := json.NewEncoder(w)
		for event := range notifier.Events() {
			enc.Encode(event)
		}
	}()

	return notifier, func() {
		notifier.Close()
		<-done
	}
}

func printSummary(w io.Writer, summary *audit.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPOINTS\tGAIN\tLOSS\tΔGAIN\tΔLOSS\tRESULT")
	for _, row := range summary.Rows {
		gain, loss := "-", "-"
		if row.After != nil {
			gain = fmt.Sprintf("%.0f -> %.0f", row.Before.ElevationGain, row.After.ElevationGain)
			loss = fmt.Sprintf("%.0f -> %.0f", row.Before.ElevationLoss, row.After.ElevationLoss)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%.0fm (%.1f%%)\t%.0fm (%.1f%%)\t%s\n",
			row.TrackID, row.Name, row.PointCount, gain, loss,
			row.GainDiff, row.GainDiffPercent, row.LossDiff, row.LossDiffPercent, row.Reason)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nrun %s: %d tracks, %d processed, %d updated, %d skipped in %s\n",
		summary.RunID, summary.Total, summary.Processed, summary.Updated, summary.Skipped, summary.Duration.Round(time.Millisecond))
}

func printTrack(w io.Writer, track *models.SavedTrack, result *gpx.Result) {
	fmt.Fprintf(w, "track %d %q\n", track.ID, track.Name)
	fmt.Fprintf(w, "  points:    %d (of %d)\n", len(track.Points), result.OriginalPointCount)
	fmt.Fprintf(w, "  length:    %.2f km\n", *track.LengthKm)
	fmt.Fprintf(w, "  gain/loss: %.0f / %.0f m\n", *track.ElevationGain, *track.ElevationLoss)
	fmt.Fprintf(w, "  min/max:   %.0f / %.0f m\n", *track.MinElevation, *track.MaxElevation)
}

func printParseResult(w io.Writer, result *gpx.Result) {
	if result.Name != "" {
		fmt.Fprintf(w, "name:        %s\n", result.Name)
	}
	fmt.Fprintf(w, "points:      %d (of %d)\n", len(result.Points), result.OriginalPointCount)
	fmt.Fprintf(w, "distance:    %.2f km (raw %.2f km)\n", result.DistanceKm, result.RawDistanceKm)
	fmt.Fprintf(w, "naive gain:  %.0f m\n", result.ElevationGainNaive)
	fmt.Fprintf(w, "bounds:      %.5f,%.5f - %.5f,%.5f (diagonal %.2f km)\n",
		result.Bounds.Southwest.Latitude, result.Bounds.Southwest.Longitude,
		result.Bounds.Northeast.Latitude, result.Bounds.Northeast.Longitude,
		result.Bounds.DiagonalKm())
	if result.StartTime != nil && result.EndTime != nil {
		fmt.Fprintf(w, "time:        %s - %s (%s)\n",
			result.StartTime.Format("2006-01-02 15:04:05"),
			result.EndTime.Format("2006-01-02 15:04:05"),
			result.EndTime.Sub(*result.StartTime))
	}
}

func printDiagnostics(c *cli.Context, rows []audit.DiagnosticRow) error {
	divergence := audit.Divergence(rows)

	if c.Bool("json") {
		return printJSON(os.Stdout, struct {
			Rows       []audit.DiagnosticRow   `json:"rows"`
			Divergence audit.DivergenceSummary `json:"divergence"`
		}{rows, divergence})
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tMETHOD\tGAIN\tLOSS\tMIN\tMAX\tACCEPTED\tDISCARDED\tNOTE")
	for _, row := range rows {
		source := row.Source
		if source == "" {
			source = "-"
		}
		note := ""
		if row.Degraded {
			note = "degraded: " + row.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%.0f\t%.0f\t%.0f\t%.0f\t%d\t%d\t%s\n",
			source, row.Method,
			row.Stats.ElevationGain, row.Stats.ElevationLoss, row.Stats.MinElevation, row.Stats.MaxElevation,
			row.Counts.Accepted, row.Counts.Discarded(), note)
	}
	tw.Flush()

	fmt.Printf("\ngain: mean %.1f, stddev %.1f, range %.0f m\n", divergence.Gain.Mean, divergence.Gain.StdDev, divergence.Gain.Range())
	fmt.Printf("loss: mean %.1f, stddev %.1f, range %.0f m\n", divergence.Loss.Mean, divergence.Loss.StdDev, divergence.Loss.Range())
	return nil
}
