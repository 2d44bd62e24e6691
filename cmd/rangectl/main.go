// Command rangectl prints read-only views of the ledger projections.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"RangeLedger/internal/config"
	"RangeLedger/internal/query"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: rangectl <command> [args]")
	fmt.Fprintln(w, "  markets             - list markets")
	fmt.Fprintln(w, "  market <id>         - show one market with its bins")
	fmt.Fprintln(w, "  positions <user-id> - list a user's holdings")
	fmt.Fprintln(w, "  integrity           - check the hash chain and vault balances")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}

	cfg, err := config.Load(os.Getenv("RANGE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "rangectl: %v\n", err)
		os.Exit(1)
	}
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rangectl: open db: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	qs := query.NewQueryService(db, cfg.Ledger.TokenDecimals, nil)
	if err := runCommand(ctx, qs, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "rangectl: %v\n", err)
		os.Exit(1)
	}
}

// reader is the part of query.QueryService rangectl uses.
type reader interface {
	ListMarkets(ctx context.Context, limit int, afterID *uint64) ([]query.MarketResponse, error)
	GetMarket(ctx context.Context, marketID uint64) (*query.MarketResponse, error)
	GetPositions(ctx context.Context, userID uuid.UUID, marketID *uint64) ([]query.PositionResponse, error)
	VerifyIntegrity(ctx context.Context) (*query.IntegrityReport, error)
}

func runCommand(ctx context.Context, r reader, w io.Writer, args []string) error {
	switch args[0] {
	case "markets":
		var all []query.MarketResponse
		var after *uint64
		for {
			page, err := r.ListMarkets(ctx, query.MaxPageSize, after)
			if err != nil {
				return err
			}
			all = append(all, page...)
			if len(page) < query.MaxPageSize {
				break
			}
			last := page[len(page)-1].MarketID
			after = &last
		}
		return renderMarkets(w, all)

	case "market":
		if len(args) < 2 {
			return fmt.Errorf("market: missing id")
		}
		id, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("market id %q: %w", args[1], err)
		}
		m, err := r.GetMarket(ctx, id)
		if err != nil {
			return err
		}
		return renderMarket(w, m)

	case "positions":
		if len(args) < 2 {
			return fmt.Errorf("positions: missing user id")
		}
		user, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("user id %q: %w", args[1], err)
		}
		positions, err := r.GetPositions(ctx, user, nil)
		if err != nil {
			return err
		}
		return renderPositions(w, positions)

	case "integrity":
		report, err := r.VerifyIntegrity(ctx)
		if err != nil {
			return err
		}
		return renderIntegrity(w, report)

	default:
		usage(w)
		return fmt.Errorf("unknown command %q", args[0])
	}
}
