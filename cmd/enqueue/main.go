// Command enqueue submits account commands to the rebalancer queue.
//
//	enqueue -accounts U1,U2 -command rebalance -strategy core -reserve 2.5
//	enqueue -stats
//
// It also writes the allocation store the service reads:
//
//	enqueue -set-allocations core=SPY:0.6,QQQ:0.4
//	enqueue -set-replacements cheap=SPY>VOO:1
//	enqueue -set-account U1 -strategy core -reserve 2 -replacement-set cheap
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/allocation"
	"github.com/aristath/rebalancer/internal/queue"
	"github.com/aristath/rebalancer/internal/utils"
	"github.com/aristath/rebalancer/pkg/logger"
)

// enqueuer is the part of the queue this tool uses
type enqueuer interface {
	Enqueue(ctx context.Context, accountID string, command domain.ExecCommand, payload domain.Payload) (string, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

type options struct {
	accounts       []string
	command        domain.ExecCommand
	strategy       string
	reserve        float64
	replacementSet string
	stats          bool

	allocations  *allocationUpdate
	replacements *domain.ReplacementSet
	account      string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	fs.SetOutput(stderr)

	accounts := fs.String("accounts", "", "comma-separated account ids")
	command := fs.String("command", "", "one of: "+commandList())
	strategy := fs.String("strategy", "", "strategy name (rebalance, print-rebalance)")
	reserve := fs.Float64("reserve", -1, "cash reserve percent of equity, 0-100")
	replacementSet := fs.String("replacement-set", "", "replacement set name")
	stats := fs.Bool("stats", false, "print queue statistics and exit")
	setAllocations := fs.String("set-allocations", "", "store strategy targets, e.g. core=SPY:0.6,QQQ:0.4")
	setReplacements := fs.String("set-replacements", "", "store a replacement set, e.g. cheap=SPY>VOO:1")
	setAccount := fs.String("set-account", "", "store account defaults from -strategy, -reserve and -replacement-set")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if explicit["reserve"] && (*reserve < 0 || *reserve > 100) {
		return options{}, fmt.Errorf("-reserve must be between 0 and 100, got %g", *reserve)
	}

	opts := options{
		strategy:       strings.TrimSpace(*strategy),
		reserve:        *reserve,
		replacementSet: strings.TrimSpace(*replacementSet),
		stats:          *stats,
	}
	if opts.stats {
		return opts, nil
	}

	var err error
	if explicit["set-allocations"] {
		if opts.allocations, err = parseAllocations(*setAllocations); err != nil {
			return options{}, err
		}
	}
	if explicit["set-replacements"] {
		if opts.replacements, err = parseReplacements(*setReplacements); err != nil {
			return options{}, err
		}
	}
	if explicit["set-account"] {
		opts.account = strings.TrimSpace(*setAccount)
		if opts.account == "" || opts.strategy == "" {
			return options{}, errors.New("-set-account needs an account id and -strategy")
		}
	}

	opts.accounts = utils.ParseCSV(*accounts)
	if len(opts.accounts) == 0 {
		if opts.admin() {
			return opts, nil
		}
		return options{}, errors.New("-accounts is required")
	}
	cmd, err := domain.ParseCommand(*command)
	if err != nil {
		return options{}, err
	}
	opts.command = cmd
	return opts, nil
}

func (o options) payload() domain.Payload {
	p := domain.Payload{}
	if o.strategy != "" {
		p[domain.PayloadStrategy] = o.strategy
	}
	if o.reserve >= 0 {
		p[domain.PayloadCashReservePercent] = o.reserve
	}
	if o.replacementSet != "" {
		p[domain.PayloadReplacementSet] = o.replacementSet
	}
	return p
}

// run applies any store updates, then enqueues one event per account.
// Duplicates are reported and skipped; any other failure makes the run fail
// after every account was attempted.
func run(ctx context.Context, q enqueuer, st store, opts options, stdout io.Writer) error {
	if opts.stats {
		stats, err := q.Stats(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	if opts.admin() {
		if err := applyAdmin(ctx, st, opts, stdout); err != nil {
			return err
		}
	}

	var errs []error
	for _, account := range opts.accounts {
		id, err := q.Enqueue(ctx, account, opts.command, opts.payload())
		switch {
		case errors.Is(err, queue.ErrDuplicate):
			fmt.Fprintf(stdout, "%s %s: already queued\n", account, opts.command)
		case err != nil:
			fmt.Fprintf(stdout, "%s %s: failed: %v\n", account, opts.command, err)
			errs = append(errs, fmt.Errorf("%s: %w", account, err))
		default:
			fmt.Fprintf(stdout, "%s %s: queued %s\n", account, opts.command, id)
		}
	}
	return errors.Join(errs...)
}

func commandList() string {
	names := make([]string, 0, len(domain.AllCommands()))
	for _, c := range domain.AllCommands() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "enqueue"})
	if cfg.LogLevel == "info" {
		log = log.Level(zerolog.WarnLevel)
	}

	var st store
	if opts.admin() {
		db, err := database.New(database.Config{
			Path:    cfg.AllocationDB,
			Profile: database.ProfileStandard,
			Name:    "allocations",
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open allocation database")
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate allocation database")
		}
		st = allocation.NewRepository(db.Conn(), log)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	q := queue.New(client, queue.Options{Prefix: cfg.QueuePrefix, RetryDelay: cfg.RetryDelay}, log)
	if err := run(ctx, q, st, opts, os.Stdout); err != nil {
		log.Error().Err(err).Msg("Enqueue failed")
		os.Exit(1)
	}
}
