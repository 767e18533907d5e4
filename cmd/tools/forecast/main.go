// Command forecast runs an LRAF scan from the terminal and prints the
// results as tables. With -save it also persists the batch; with -recompetes
// it adds the contract expiration pass (live USAspending call).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/depointe/govforecast/internal/db"
	"github.com/depointe/govforecast/internal/forecast"
	"github.com/depointe/govforecast/internal/models"
	"github.com/depointe/govforecast/internal/scan"
	"github.com/depointe/govforecast/internal/usaspending"
)

func main() {
	scanType := flag.String("type", "", "scan type: empty for all active sources, critical for critical only")
	months := flag.Int("months", 12, "forecast horizon in months")
	save := flag.Bool("save", false, "persist results to the database")
	recompetes := flag.Bool("recompetes", false, "include contract expiration analysis")
	limit := flag.Int("limit", 25, "max opportunities to print")
	flag.Parse()

	_ = godotenv.Load()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel).With().Timestamp().Logger()
	ctx := context.Background()

	var store *db.Store
	if *save {
		pool, err := db.Connect(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("database connection failed")
		}
		defer pool.Close()
		if err := db.ApplyMigrations(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		store = db.NewStore(pool)
	}

	registry, err := scan.LoadRegistry(os.Getenv("SOURCES_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load source registry")
	}

	scanner := scan.NewScanner(logger)
	var aggStore forecast.Store
	if store != nil {
		aggStore = store
	}
	aggregator := forecast.NewAggregator(registry, scanner, aggStore, logger)

	result, err := aggregator.ScanAllLRAFs(ctx, *scanType)
	if err != nil {
		logger.Fatal().Err(err).Msg("scan failed")
	}

	var contracts []models.ExpiringContract
	if *recompetes {
		analyzer := forecast.NewAnalyzer(usaspending.NewClient(logger), aggStore, logger)
		analysis, err := analyzer.ForecastRecompetes(ctx, *months)
		if err != nil {
			logger.Fatal().Err(err).Msg("recompete forecast failed")
		}
		contracts = analysis.ExpiringContracts
	}

	merged := forecast.MergeAndSort(result.Forecasts, contracts)

	printScanSummary(result)
	printOpportunities(merged, *limit)
	printQuarters(forecast.QuarterlyBreakdown(merged, *months, time.Now()))
}

func printScanSummary(result models.ScanResult) {
	fmt.Printf("Sources scanned: %d   Forecasts found: %d\n", result.SourcesScanned, result.TotalForecasts)
	for _, e := range result.Errors {
		fmt.Printf("  ! %s\n", e)
	}
	fmt.Println()
}

func printOpportunities(opps []models.ForecastedOpportunity, limit int) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Agency", "Title", "NAICS", "Est. Value", "Post Date", "WOSB", "Confidence"})

	for i, opp := range opps {
		if i >= limit {
			break
		}
		title := opp.Title
		if len(title) > 48 {
			title = title[:45] + "..."
		}
		t.AppendRow(table.Row{
			opp.AgencyCode, title, opp.NAICSCode,
			fmt.Sprintf("$%.0f", opp.EstimatedValue),
			opp.PredictedPostDate.Format("2006-01-02"),
			opp.WOSBEligibility, opp.ForecastConfidence,
		})
	}
	t.Render()

	if len(opps) > limit {
		fmt.Printf("... and %d more\n", len(opps)-limit)
	}
	fmt.Println()
}

func printQuarters(buckets []models.QuarterBucket) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Quarter", "Starts", "Count", "Total Value", "WOSB"})

	for _, b := range buckets {
		t.AppendRow(table.Row{
			fmt.Sprintf("%s %d", b.Quarter, b.Year),
			b.StartDate.Format("2006-01-02"),
			b.Count,
			fmt.Sprintf("$%.0f", b.TotalValue),
			b.WOSBCount,
		})
	}
	t.Render()
}
