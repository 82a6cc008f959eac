package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/covercast/internal/config"
	"github.com/kalambet/covercast/internal/seed"
)

// --- predict ---

// predictionView selects the response fields the terminal output shows.
type predictionView struct {
	PredictionID    string  `json:"prediction_id"`
	ServiceDate     string  `json:"service_date"`
	ServiceType     string  `json:"service_type"`
	PredictedCovers int     `json:"predicted_covers"`
	Confidence      float64 `json:"confidence"`
	Reasoning       struct {
		Summary           string   `json:"summary"`
		ConfidenceFactors []string `json:"confidence_factors"`
		PatternsUsed      []struct {
			PatternID    string  `json:"pattern_id"`
			Date         string  `json:"date"`
			ActualCovers int     `json:"actual_covers"`
			Similarity   float64 `json:"similarity"`
		} `json:"patterns_used"`
	} `json:"reasoning"`
	StaffRecommendation struct {
		Servers   staffDelta `json:"servers"`
		Hosts     staffDelta `json:"hosts"`
		Kitchen   staffDelta `json:"kitchen"`
		Rationale string     `json:"rationale"`
	} `json:"staff_recommendation"`
	AccuracyMetrics struct {
		EstimatedMAPE      *float64 `json:"estimated_mape"`
		PredictionInterval []int    `json:"prediction_interval"`
		Note               string   `json:"note"`
	} `json:"accuracy_metrics"`
}

type staffDelta struct {
	Recommended int `json:"recommended"`
	Usual       int `json:"usual"`
	Delta       int `json:"delta"`
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict covers for one service",
	Long: `Predict covers for one restaurant service.

Examples:
  covercast predict --date 2025-01-18 --service dinner
  covercast predict --date 2025-12-24 --service lunch --restaurant terrace`,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		service, _ := cmd.Flags().GetString("service")
		restaurantID, _ := cmd.Flags().GetString("restaurant")

		if date == "" || service == "" {
			return fmt.Errorf("--date and --service are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"restaurant_id": restaurantID,
			"service_date":  date,
			"service_type":  service,
		}
		resp, err := client.post(cmd.Context(), "/predict", req)
		if err != nil {
			return err
		}

		if jsonOut {
			var raw any
			if err := decodeJSON(resp, &raw); err != nil {
				return err
			}
			return printJSON(raw)
		}

		var pred predictionView
		if err := decodeJSON(resp, &pred); err != nil {
			return err
		}
		renderPrediction(pred)
		return nil
	},
}

func init() {
	predictCmd.Flags().String("date", "", "service date (YYYY-MM-DD)")
	predictCmd.Flags().String("service", "", "service type: lunch, dinner, or brunch")
	predictCmd.Flags().String("restaurant", "default", "restaurant id")
}

func renderPrediction(p predictionView) {
	fmt.Printf("\n%s %s on %s\n",
		colorize(colorBold, fmt.Sprintf("%d covers", p.PredictedCovers)),
		p.ServiceType, p.ServiceDate)
	fmt.Printf("  Confidence: %.2f", p.Confidence)
	if iv := p.AccuracyMetrics.PredictionInterval; len(iv) == 2 {
		fmt.Printf("  (expected %d to %d)", iv[0], iv[1])
	}
	fmt.Println()

	fmt.Printf("\n  Staffing (recommended / usual):\n")
	for _, role := range []struct {
		name  string
		delta staffDelta
	}{
		{"Servers", p.StaffRecommendation.Servers},
		{"Hosts", p.StaffRecommendation.Hosts},
		{"Kitchen", p.StaffRecommendation.Kitchen},
	} {
		fmt.Printf("    %-8s %d / %d  (%s)\n",
			role.name, role.delta.Recommended, role.delta.Usual, deltaLabel(role.delta.Delta))
	}
	if p.StaffRecommendation.Rationale != "" {
		fmt.Printf("    %s\n", p.StaffRecommendation.Rationale)
	}

	if p.Reasoning.Summary != "" {
		fmt.Printf("\n  %s\n", p.Reasoning.Summary)
	}
	for _, factor := range p.Reasoning.ConfidenceFactors {
		fmt.Printf("   - %s\n", factor)
	}
	if n := len(p.Reasoning.PatternsUsed); n > 0 {
		top := p.Reasoning.PatternsUsed[0]
		fmt.Printf("\n  Based on %d similar services; closest %s on %s did %d covers (similarity %.2f)\n",
			n, top.PatternID, top.Date, top.ActualCovers, top.Similarity)
	}
	if p.AccuracyMetrics.Note != "" {
		fmt.Printf("  %s\n", p.AccuracyMetrics.Note)
	}
	fmt.Printf("\n  Prediction id: %s\n", colorize(colorCyan, p.PredictionID))
}

func deltaLabel(delta int) string {
	switch {
	case delta > 0:
		return colorize(colorYellow, fmt.Sprintf("+%d", delta))
	case delta < 0:
		return colorize(colorCyan, fmt.Sprintf("%d", delta))
	default:
		return "as usual"
	}
}

// --- forecast ---

type forecastRow struct {
	Date       string  `json:"date"`
	Service    string  `json:"service"`
	Covers     int     `json:"predicted_covers"`
	Confidence float64 `json:"confidence"`
	Err        string  `json:"error,omitempty"`
}

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Predict covers for the days ahead",
	Long: `Predict covers for every service over the days ahead.

Examples:
  covercast forecast --start 2025-01-18
  covercast forecast --start 2025-01-18 --days 3 --services dinner`,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, _ := cmd.Flags().GetString("start")
		days, _ := cmd.Flags().GetInt("days")
		servicesStr, _ := cmd.Flags().GetString("services")
		restaurantID, _ := cmd.Flags().GetString("restaurant")

		startDate, err := time.Parse("2006-01-02", start)
		if err != nil {
			return fmt.Errorf("--start %q is not a YYYY-MM-DD date", start)
		}
		if days < 1 || days > 31 {
			return fmt.Errorf("--days must be between 1 and 31")
		}
		services, err := parseServices(servicesStr)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		rows := make([]forecastRow, days*len(services))
		g, gctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(5)
		for d := 0; d < days; d++ {
			date := startDate.AddDate(0, 0, d).Format("2006-01-02")
			for s, service := range services {
				idx := d*len(services) + s
				rows[idx] = forecastRow{Date: date, Service: service}
				g.Go(func() error {
					req := map[string]any{
						"restaurant_id": restaurantID,
						"service_date":  date,
						"service_type":  service,
					}
					resp, err := client.post(gctx, "/predict", req)
					if err != nil {
						return err
					}
					var pred struct {
						PredictedCovers int     `json:"predicted_covers"`
						Confidence      float64 `json:"confidence"`
					}
					// A per-service failure becomes a row error, not an
					// aborted forecast.
					if err := decodeJSON(resp, &pred); err != nil {
						rows[idx].Err = err.Error()
						return nil
					}
					rows[idx].Covers = pred.PredictedCovers
					rows[idx].Confidence = pred.Confidence
					return nil
				})
			}
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if jsonOut {
			return printJSON(map[string]any{
				"start":    start,
				"days":     days,
				"forecast": rows,
			})
		}

		renderForecast(rows, services)
		return nil
	},
}

func init() {
	forecastCmd.Flags().String("start", time.Now().Format("2006-01-02"), "first service date (YYYY-MM-DD)")
	forecastCmd.Flags().Int("days", 7, "number of days to forecast")
	forecastCmd.Flags().String("services", "lunch,dinner", "comma-separated service types")
	forecastCmd.Flags().String("restaurant", "default", "restaurant id")
}

var predictableServices = map[string]bool{
	"lunch":  true,
	"dinner": true,
	"brunch": true,
}

// parseServices splits a comma-separated service list and validates each
// entry against the service types predictions accept.
func parseServices(s string) ([]string, error) {
	var services []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !predictableServices[part] {
			return nil, fmt.Errorf("unknown service type %q (expected lunch, dinner, or brunch)", part)
		}
		services = append(services, part)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("--services must name at least one service type")
	}
	return services, nil
}

func renderForecast(rows []forecastRow, services []string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "date\tday")
	for _, s := range services {
		fmt.Fprintf(w, "\t%s", s)
	}
	fmt.Fprintln(w)

	for i := 0; i < len(rows); i += len(services) {
		date, err := time.Parse("2006-01-02", rows[i].Date)
		day := "?"
		if err == nil {
			day = date.Weekday().String()[:3]
		}
		fmt.Fprintf(w, "%s\t%s", rows[i].Date, day)
		for s := range services {
			row := rows[i+s]
			if row.Err != "" {
				fmt.Fprintf(w, "\terror")
			} else {
				fmt.Fprintf(w, "\t%d (%.2f)", row.Covers, row.Confidence)
			}
		}
		fmt.Fprintln(w)
	}
	w.Flush()

	for _, row := range rows {
		if row.Err != "" {
			printError("%s %s: %s", row.Date, row.Service, row.Err)
		}
	}
}

// --- patterns ---

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List stored service patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		service, _ := cmd.Flags().GetString("service")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/patterns?limit=%d", limit)
		if service != "" {
			path += "&service_type=" + url.QueryEscape(service)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		if jsonOut {
			var raw any
			if err := decodeJSON(resp, &raw); err != nil {
				return err
			}
			return printJSON(raw)
		}

		var list struct {
			Patterns []struct {
				PatternID    string `json:"pattern_id"`
				Date         string `json:"date"`
				DayOfWeek    string `json:"day_of_week"`
				ServiceType  string `json:"service_type"`
				ActualCovers int    `json:"actual_covers"`
				Weather      string `json:"weather"`
				IsHoliday    bool   `json:"is_holiday"`
				HolidayName  string `json:"holiday_name"`
				Source       string `json:"source"`
				Indexed      bool   `json:"indexed"`
			} `json:"patterns"`
			Count int `json:"count"`
		}
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		if list.Count == 0 {
			fmt.Println("No patterns stored. Import some with \"covercast seed\".")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, p := range list.Patterns {
			note := p.Weather
			if p.IsHoliday {
				name := p.HolidayName
				if name == "" {
					name = "holiday"
				}
				note += ", " + name
			}
			tag := p.Source
			if !p.Indexed {
				tag += " (unindexed)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d covers\t%s\t%s\n",
				colorize(colorCyan, p.PatternID), p.Date, p.DayOfWeek, p.ServiceType,
				p.ActualCovers, note, tag)
		}
		return w.Flush()
	},
}

var patternsSearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find patterns similar to a service or a description",
	Long: `Find stored patterns similar to a target service or to a free-text
description.

Examples:
  covercast patterns search --date 2025-01-18 --service dinner
  covercast patterns search --query "rainy saturday dinner, concert nearby"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		service, _ := cmd.Flags().GetString("service")
		query, _ := cmd.Flags().GetString("query")

		if query == "" && (date == "" || service == "") {
			return fmt.Errorf("either --query or both --date and --service are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"query":        query,
			"service_date": date,
			"service_type": service,
		}
		resp, err := client.post(cmd.Context(), "/patterns/search", req)
		if err != nil {
			return err
		}

		if jsonOut {
			var raw any
			if err := decodeJSON(resp, &raw); err != nil {
				return err
			}
			return printJSON(raw)
		}

		var result struct {
			Patterns []struct {
				PatternID    string  `json:"pattern_id"`
				Date         string  `json:"date"`
				EventType    string  `json:"event_type"`
				ActualCovers int     `json:"actual_covers"`
				Similarity   float64 `json:"similarity"`
				Metadata     struct {
					DayOfWeek string  `json:"day_of_week"`
					Weather   string  `json:"weather"`
					Events    int     `json:"events"`
					Holiday   *string `json:"holiday"`
					Source    string  `json:"source"`
				} `json:"metadata"`
			} `json:"patterns"`
			Method string `json:"method"`
			Count  int    `json:"count"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Count == 0 {
			fmt.Println("No similar patterns found.")
			return nil
		}
		if result.Method == "vector_search_degraded" {
			printWarning("vector search degraded; showing coarse matches")
		}

		for i, p := range result.Patterns {
			fmt.Printf("\n%s [similarity: %.3f]\n",
				colorize(colorBold, fmt.Sprintf("Match %d", i+1)), p.Similarity)
			fmt.Printf("  %s  %s  %d covers  (%s)\n",
				colorize(colorCyan, p.PatternID), p.Date, p.ActualCovers, p.EventType)
			details := fmt.Sprintf("%s, %s", p.Metadata.DayOfWeek, p.Metadata.Weather)
			if p.Metadata.Events > 0 {
				details += fmt.Sprintf(", %d nearby events", p.Metadata.Events)
			}
			if p.Metadata.Holiday != nil {
				details += ", " + *p.Metadata.Holiday
			}
			fmt.Printf("  %s\n", details)
		}
		return nil
	},
}

func init() {
	patternsCmd.Flags().String("service", "", "filter by service type")
	patternsCmd.Flags().Int("limit", 20, "maximum number of patterns to list")
	patternsSearchCmd.Flags().String("date", "", "target service date (YYYY-MM-DD)")
	patternsSearchCmd.Flags().String("service", "", "target service type")
	patternsSearchCmd.Flags().String("query", "", "free-text service description")
	patternsCmd.AddCommand(patternsSearchCmd)
}

// --- seed ---

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Derive and import patterns from a hotel bookings CSV",
	Long: `Derive historical service patterns from the Hotel Booking Demand
dataset and import them through the running server.

Examples:
  covercast seed --csv hotel_bookings.csv
  covercast seed --csv hotel_bookings.csv --max 200 --restaurant terrace`,
	RunE: func(cmd *cobra.Command, args []string) error {
		csvPath, _ := cmd.Flags().GetString("csv")
		maxPatterns, _ := cmd.Flags().GetInt("max")
		restaurantID, _ := cmd.Flags().GetString("restaurant")

		if csvPath == "" {
			return fmt.Errorf("--csv is required")
		}

		f, err := os.Open(csvPath)
		if err != nil {
			return fmt.Errorf("opening CSV: %w", err)
		}
		defer f.Close()

		printStep("Deriving patterns from %s...", csvPath)
		patterns, stats, err := seed.Derive(f, maxPatterns)
		if err != nil {
			return err
		}
		printStatus("Bookings", "%d rows (%d canceled, %d malformed)", stats.Rows, stats.Canceled, stats.Malformed)
		printStatus("Derived", "%d patterns across %d days, keeping %d", stats.Derived, stats.Days, stats.Kept)
		if len(patterns) == 0 {
			printWarning("No patterns derived; nothing to import")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		imported, queued, err := importPatterns(cmd.Context(), client, restaurantID, patterns)
		if err != nil {
			return err
		}
		printSuccess("Imported %d patterns (%d queued for embedding)", imported, queued)
		return nil
	},
}

func init() {
	seedCmd.Flags().String("csv", "", "path to the hotel bookings CSV")
	seedCmd.Flags().Int("max", 500, "maximum number of patterns to keep")
	seedCmd.Flags().String("restaurant", "default", "restaurant id to attach patterns to")
}

// importPatterns posts patterns in batches of 50 so one oversized request
// cannot stall the import.
func importPatterns(ctx context.Context, client *apiClient, restaurantID string, patterns []seed.Pattern) (int, int, error) {
	const batchSize = 50

	imported, queued := 0, 0
	for start := 0; start < len(patterns); start += batchSize {
		end := min(start+batchSize, len(patterns))
		req := map[string]any{
			"restaurant_id": restaurantID,
			"patterns":      patterns[start:end],
		}
		resp, err := client.post(ctx, "/patterns/import", req)
		if err != nil {
			return imported, queued, err
		}
		var result struct {
			Imported int `json:"imported"`
			Queued   int `json:"queued"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return imported, queued, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		imported += result.Imported
		queued += result.Queued
		printStep("Imported %d/%d", imported, len(patterns))
	}
	return imported, queued, nil
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record the covers a predicted service actually did",
	Long: `Record the covers a predicted service actually did. The observed
service is folded back into the pattern corpus so future predictions
retrieve it.

Examples:
  covercast feedback --prediction 1b4c... --covers 142
  covercast feedback --prediction 1b4c... --covers 95 --notes "kitchen closed early"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		predictionID, _ := cmd.Flags().GetString("prediction")
		covers, _ := cmd.Flags().GetInt("covers")
		notes, _ := cmd.Flags().GetString("notes")

		if predictionID == "" {
			return fmt.Errorf("--prediction is required")
		}
		if covers <= 0 {
			return fmt.Errorf("--covers must be a positive number")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"prediction_id": predictionID,
			"actual_covers": covers,
		}
		if notes != "" {
			req["notes"] = notes
		}
		resp, err := client.post(cmd.Context(), "/feedback", req)
		if err != nil {
			return err
		}

		var result struct {
			ErrorPct  float64 `json:"error_pct"`
			PatternID string  `json:"pattern_id"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Recorded %d covers (prediction error %.1f%%)", covers, result.ErrorPct)
		printStatus("Derived pattern", "%s", result.PatternID)
		return nil
	},
}

func init() {
	feedbackCmd.Flags().String("prediction", "", "id of the prediction being scored")
	feedbackCmd.Flags().Int("covers", 0, "covers actually served")
	feedbackCmd.Flags().String("notes", "", "optional context on how the service went")
}

// --- accuracy ---

var accuracyCmd = &cobra.Command{
	Use:   "accuracy",
	Short: "Show prediction accuracy from recorded feedback",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/accuracy")
		if err != nil {
			return err
		}

		if jsonOut {
			var raw any
			if err := decodeJSON(resp, &raw); err != nil {
				return err
			}
			return printJSON(raw)
		}

		var report struct {
			Count       int      `json:"count"`
			MAPE        *float64 `json:"mape"`
			BiasPct     *float64 `json:"bias_pct"`
			Within10Pct *float64 `json:"within_10_pct"`
		}
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		if report.Count == 0 {
			fmt.Println("No feedback recorded yet.")
			return nil
		}

		printStatus("Services scored", "%d", report.Count)
		if report.MAPE != nil {
			printStatus("MAPE", "%.1f%%", *report.MAPE)
		}
		if report.BiasPct != nil {
			printStatus("Bias", "%+.1f%%", *report.BiasPct)
		}
		if report.Within10Pct != nil {
			printStatus("Within 10%", "%.0f%% of services", *report.Within10Pct)
		}
		return nil
	},
}

// --- events ---

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Import and list demand-relevant events",
}

var eventsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an event announcement",
	Long: `Import an event announcement for background extraction. Extracted
events feed predictions for their date.

Examples:
  covercast events import --text "Jazz festival on the waterfront May 3-5"
  covercast events import --file function-sheet.pdf --date 2025-05-03
  covercast events import --url https://townhall.example/this-week`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		sourceURL, _ := cmd.Flags().GetString("url")
		text, _ := cmd.Flags().GetString("text")
		date, _ := cmd.Flags().GetString("date")
		title, _ := cmd.Flags().GetString("title")

		req, err := eventImportRequest(file, sourceURL, text, title, date)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/events/import", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Queued document %s for extraction", result["id"])
		return nil
	},
}

// eventImportRequest builds the import payload from exactly one of file,
// url, or text. Files are sent base64-encoded; the server sniffs the type.
func eventImportRequest(file, sourceURL, text, title, date string) (map[string]any, error) {
	set := 0
	for _, v := range []string{file, sourceURL, text} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of --file, --url, or --text is required")
	}

	req := map[string]any{}
	if date != "" {
		req["service_date"] = date
	}
	if title != "" {
		req["file_name"] = title
	}

	switch {
	case text != "":
		req["source"] = "text"
		req["content"] = text
	case sourceURL != "":
		req["source"] = "url"
		req["url"] = sourceURL
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading file: %w", err)
		}
		req["source"] = "file"
		req["content"] = base64.StdEncoding.EncodeToString(data)
		if title == "" {
			req["file_name"] = filepath.Base(file)
		}
	}
	return req, nil
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored events",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/events"
		params := url.Values{}
		if from != "" {
			params.Set("from", from)
		}
		if to != "" {
			params.Set("to", to)
		}
		if len(params) > 0 {
			path += "?" + params.Encode()
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		if jsonOut {
			var raw any
			if err := decodeJSON(resp, &raw); err != nil {
				return err
			}
			return printJSON(raw)
		}

		var list struct {
			Events []struct {
				Date               string  `json:"date"`
				Type               string  `json:"type"`
				Name               string  `json:"name"`
				Venue              string  `json:"venue"`
				DistanceKM         float64 `json:"distance_km"`
				ExpectedAttendance int     `json:"expected_attendance"`
				Impact             string  `json:"impact"`
				Source             string  `json:"source"`
			} `json:"events"`
			Count int `json:"count"`
		}
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		if list.Count == 0 {
			fmt.Println("No events stored.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, e := range list.Events {
			venue := e.Venue
			if venue == "" {
				venue = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f km\t%d expected\t%s\n",
				e.Date, e.Type, e.Name, venue, e.DistanceKM, e.ExpectedAttendance, e.Impact)
		}
		return w.Flush()
	},
}

func init() {
	eventsImportCmd.Flags().String("file", "", "file to import (PDF or text)")
	eventsImportCmd.Flags().String("url", "", "URL to fetch and import")
	eventsImportCmd.Flags().String("text", "", "announcement text to import")
	eventsImportCmd.Flags().String("date", "", "date hint (YYYY-MM-DD)")
	eventsImportCmd.Flags().String("title", "", "title for the document")
	eventsListCmd.Flags().String("from", "", "earliest date to list (YYYY-MM-DD)")
	eventsListCmd.Flags().String("to", "", "latest date to list (YYYY-MM-DD)")
	eventsCmd.AddCommand(eventsImportCmd)
	eventsCmd.AddCommand(eventsListCmd)
}

// --- restaurant ---

var restaurantCmd = &cobra.Command{
	Use:   "restaurant",
	Short: "Show or update the restaurant profile",
}

var restaurantShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the restaurant profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/restaurants/"+url.PathEscape(id))
		if err != nil {
			return err
		}

		if jsonOut {
			var raw any
			if err := decodeJSON(resp, &raw); err != nil {
				return err
			}
			return printJSON(raw)
		}

		var p struct {
			RestaurantID   string `json:"restaurant_id"`
			Name           string `json:"name"`
			CoversCapacity int    `json:"covers_capacity"`
			UsualStaffing  struct {
				Servers int `json:"servers"`
				Hosts   int `json:"hosts"`
				Kitchen int `json:"kitchen"`
			} `json:"usual_staffing"`
			ServiceTypes []string `json:"service_types"`
			Notes        string   `json:"notes"`
		}
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		printStatus("Restaurant", "%s (%s)", p.Name, p.RestaurantID)
		printStatus("Capacity", "%d covers", p.CoversCapacity)
		printStatus("Usual staffing", "%d servers, %d hosts, %d kitchen",
			p.UsualStaffing.Servers, p.UsualStaffing.Hosts, p.UsualStaffing.Kitchen)
		printStatus("Services", "%s", strings.Join(p.ServiceTypes, ", "))
		if p.Notes != "" {
			printStatus("Notes", "%s", p.Notes)
		}
		return nil
	},
}

var restaurantSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a restaurant profile field",
	Long: `Set a restaurant profile field.

Valid keys: name, covers_capacity, usual_staffing.servers,
usual_staffing.hosts, usual_staffing.kitchen, service_types, notes.

Examples:
  covercast restaurant set covers_capacity 220
  covercast restaurant set service_types lunch,dinner`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		key, value := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{key: value}
		resp, err := client.patch(cmd.Context(), "/restaurants/"+url.PathEscape(id), body)
		if err != nil {
			return err
		}

		var updated any
		if err := decodeJSON(resp, &updated); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	restaurantShowCmd.Flags().String("id", "default", "restaurant id")
	restaurantSetCmd.Flags().String("id", "default", "restaurant id")
	restaurantCmd.AddCommand(restaurantShowCmd)
	restaurantCmd.AddCommand(restaurantSetCmd)
}

// --- data ---

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Export or purge stored data",
}

var dataExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all stored data as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/data/export")
		if err != nil {
			return err
		}

		var export any
		if err := decodeJSON(resp, &export); err != nil {
			return err
		}

		writer := os.Stdout
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		}

		enc := json.NewEncoder(writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(export); err != nil {
			return err
		}
		if out != "" {
			printSuccess("Exported to %s", out)
		}
		return nil
	},
}

var dataPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all stored data",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This deletes every pattern, prediction, feedback row, and event. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/data?confirm=true")
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("All data purged")
		return nil
	},
}

func init() {
	dataExportCmd.Flags().String("out", "", "output file path (default: stdout)")
	dataPurgeCmd.Flags().Bool("confirm", false, "confirm data purge")
	dataCmd.AddCommand(dataExportCmd)
	dataCmd.AddCommand(dataPurgeCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		if jsonOut {
			m := make(map[string]string, len(keys))
			for _, k := range keys {
				m[k.Key] = k.Value
			}
			return printJSON(m)
		}

		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
