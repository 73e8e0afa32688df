package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"cipher-scan/internal/client"
	"cipher-scan/internal/common"
	"cipher-scan/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `usage: scanctl <command> [flags]

commands:
  health                 check service health
  predict [text]         classify text (reads stdin when text is omitted)
  predict-file <path>    classify a file
  history                print recorded predictions (-data reads a stopped service's store)
`

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "health":
		err = runHealth(args)
	case "predict":
		err = runPredict(args)
	case "predict-file":
		err = runPredictFile(args)
	case "history":
		err = runHistory(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func clientFlags(name string) (*flag.FlagSet, *string, *time.Duration) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	base := os.Getenv(common.EnvAPIURL)
	if base == "" {
		base = common.DefaultAPIURL
	}
	url := fs.String("url", base, "Prediction API base URL")
	timeout := fs.Duration("timeout", 10*time.Second, "Request timeout")
	return fs, url, timeout
}

func runHealth(args []string) error {
	fs, url, timeout := clientFlags("health")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	h, err := client.New(*url, *timeout).Health(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(h); err != nil {
		return err
	}
	if h.Status != "healthy" {
		return fmt.Errorf("service is %s", h.Status)
	}
	return nil
}

func runPredict(args []string) error {
	fs, url, timeout := clientFlags("predict")
	fs.Parse(args)

	text := strings.Join(fs.Args(), " ")
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	p, err := client.New(*url, *timeout).PredictText(ctx, text)
	if err != nil {
		return err
	}
	return printJSON(p)
}

func runPredictFile(args []string) error {
	fs, url, timeout := clientFlags("predict-file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("predict-file takes exactly one path")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	p, err := client.New(*url, *timeout).PredictFile(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return printJSON(p)
}

func runHistory(args []string) error {
	return historyCmd(args, os.Stdout)
}

// historyCmd prints recorded predictions from the running service, or from a
// stopped service's data directory when -data is given.
func historyCmd(args []string, out io.Writer) error {
	fs, url, timeout := clientFlags("history")
	dataPath := fs.String("data", "", "Read the audit log from this data directory instead of the API (service must be stopped)")
	limit := fs.Int("n", 20, "Number of records to print")
	since := fs.String("since", "", "Only records at or after this RFC 3339 time")
	until := fs.String("until", "", "Only records at or before this RFC 3339 time")
	id := fs.String("id", "", "Print the single record with this request id")
	fs.Parse(args)

	q := client.HistoryQuery{N: *limit}
	var err error
	if q.Since, err = parseTime(*since); err != nil {
		return fmt.Errorf("invalid -since: %w", err)
	}
	if q.Until, err = parseTime(*until); err != nil {
		return fmt.Errorf("invalid -until: %w", err)
	}

	if *dataPath != "" {
		return offlineHistory(*dataPath, *id, q, out)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	c := client.New(*url, *timeout)

	if *id != "" {
		rec, err := c.Prediction(ctx, *id)
		if err != nil {
			return err
		}
		printRecords(out, []storage.PredictionRecord{rec})
		return nil
	}

	h, err := c.Predictions(ctx, q)
	if err != nil {
		return err
	}
	printRecords(out, h.Predictions)
	fmt.Fprintf(out, "%d of %d recorded predictions\n", len(h.Predictions), h.Total)
	return nil
}

func offlineHistory(dataPath, id string, q client.HistoryQuery, out io.Writer) error {
	store, err := storage.Open(dataPath, true)
	if err != nil {
		return err
	}
	defer store.Close()

	if id != "" {
		rec, ok, err := store.GetPrediction(id)
		if err != nil {
			return fmt.Errorf("failed to read prediction: %w", err)
		}
		if !ok {
			return fmt.Errorf("prediction %s not found", id)
		}
		printRecords(out, []storage.PredictionRecord{rec})
		return nil
	}

	var records []storage.PredictionRecord
	if !q.Since.IsZero() || !q.Until.IsZero() {
		until := q.Until
		if until.IsZero() {
			until = time.Now()
		}
		since := q.Since
		if since.IsZero() {
			since = time.Unix(0, 0)
		}
		records, err = store.GetPredictionsInRange(since, until)
		if len(records) > q.N {
			records = records[len(records)-q.N:]
		}
		slices.Reverse(records)
	} else {
		records, err = store.RecentPredictions(q.N)
	}
	if err != nil {
		return fmt.Errorf("failed to read predictions: %w", err)
	}

	total, err := store.Count()
	if err != nil {
		return fmt.Errorf("failed to count predictions: %w", err)
	}
	printRecords(out, records)
	fmt.Fprintf(out, "%d of %d recorded predictions\n", len(records), total)
	return nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

func printRecords(out io.Writer, records []storage.PredictionRecord) {
	for _, r := range records {
		name := r.Filename
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(out, "%s  %-4s  %-10s %.3f  %6dB  %s  %s\n",
			r.Timestamp.Format(time.RFC3339), r.Mode, r.Algorithm, r.Confidence, r.InputBytes, name, r.ID)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
