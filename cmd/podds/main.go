package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/config"
	"github.com/richard-senior/podds/pkg/elo"
	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/predictor"
	"github.com/richard-senior/podds/pkg/server"
)

// eloReloadInterval is how often serve checks the Elo file for ratings written by update-elo
const eloReloadInterval = time.Minute

const usage = `usage: podds <command> [flags]

commands:
  predict      predict one fixture and print the record as JSON
  update-elo   apply finished fixtures in a date range to the Elo file
  serve        run the HTTP prediction service
  sweep-cache  remove expired cache rows
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "predict":
		err = runPredict(args)
	case "update-elo":
		err = runUpdateElo(args)
	case "serve":
		err = runServe(args)
	case "sweep-cache":
		err = runSweepCache(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		logger.Fatal("Command failed", cmd, err)
	}
	logger.Close()
}

// start parses the shared -config flag, loads configuration and wires the app
func start(fs *flag.FlagSet, args []string) (*app, context.Context, context.CancelFunc, error) {
	configPath := fs.String("config", os.Getenv("PODDS_CONFIG"), "YAML config file")
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := setupLogging(cfg); err != nil {
		return nil, nil, nil, err
	}
	logger.Info("Starting podds", fs.Name())
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	a, err := newApp(ctx, cfg)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return a, ctx, cancel, nil
}

func runPredict(args []string) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	home := fs.Int("home", 0, "home team id")
	away := fs.Int("away", 0, "away team id")
	fixture := fs.Int("fixture", 0, "fixture id; looked up from the next meeting when omitted")
	league := fs.Int("league", 0, "league id")
	season := fs.Int("season", 0, "season start year")
	strategy := fs.String("strategy", "", "voting, averaging or weighted; defaults to the configured strategy")
	a, ctx, cancel, err := start(fs, args)
	if err != nil {
		return err
	}
	defer cancel()
	defer a.Close()

	req := predictor.Request{
		HomeID:    *home,
		AwayID:    *away,
		FixtureID: *fixture,
		League:    podds.LeagueInfo{ID: *league, Season: *season},
	}
	if *strategy != "" {
		if req.Strategy, err = config.ParseStrategy(*strategy); err != nil {
			return err
		}
	}

	rec := a.predictor.Predict(ctx, req)
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if rec.Status == podds.PredictionUnavailable {
		return fmt.Errorf("prediction unavailable: %s", rec.StatusReason)
	}
	return nil
}

func runUpdateElo(args []string) error {
	fs := flag.NewFlagSet("update-elo", flag.ContinueOnError)
	from := fs.String("from", "", "first match day, YYYY-MM-DD")
	to := fs.String("to", time.Now().UTC().Format(time.DateOnly), "last match day, YYYY-MM-DD")
	leagues := fs.String("leagues", "39", "comma separated league ids")
	season := fs.Int("season", 0, "season start year")
	a, ctx, cancel, err := start(fs, args)
	if err != nil {
		return err
	}
	defer cancel()
	defer a.Close()

	first, err := time.Parse(time.DateOnly, *from)
	if err != nil {
		return fmt.Errorf("-from: %w", err)
	}
	last, err := time.Parse(time.DateOnly, *to)
	if err != nil {
		return fmt.Errorf("-to: %w", err)
	}
	ids, err := parseIDs(*leagues)
	if err != nil {
		return err
	}
	if *season <= 0 {
		*season = first.Year()
		if first.Month() < time.July {
			*season--
		}
	}

	n, err := elo.NewUpdater(a.client, a.elo, a.metrics).Run(ctx, first, last, ids, *season)
	if err != nil {
		return err
	}
	logger.Inform("Elo ratings updated", n, a.elo.Path())
	return nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "", "listen address; defaults to the configured listen_addr")
	a, ctx, cancel, err := start(fs, args)
	if err != nil {
		return err
	}
	defer cancel()
	defer a.Close()

	if *addr == "" {
		*addr = a.cfg.ListenAddr
	}
	go a.cache.RunSweeper(ctx, a.cfg.SweepInterval())
	go a.elo.RunReloader(ctx, eloReloadInterval)
	return server.New(*addr, a.predictor, a.cache, a.metrics, a.cfg.RequestDeadline()).Start()
}

func runSweepCache(args []string) error {
	fs := flag.NewFlagSet("sweep-cache", flag.ContinueOnError)
	a, ctx, cancel, err := start(fs, args)
	if err != nil {
		return err
	}
	defer cancel()
	defer a.Close()

	n, err := a.cache.Sweep(ctx)
	if err != nil {
		return err
	}
	logger.Inform("Expired cache rows removed", int(n))
	return nil
}

func parseIDs(s string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid league id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no league ids given")
	}
	return ids, nil
}
