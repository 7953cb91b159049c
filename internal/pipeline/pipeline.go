// Package pipeline wires the ingestion stages together: locate archives,
// decode members, assemble per-ticker tables, and normalize, filter and
// aggregate them into one dataset per record kind.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tickflow/config"
	"tickflow/internal/aggregate"
	"tickflow/internal/archive"
	"tickflow/internal/decode"
	"tickflow/internal/filter"
	"tickflow/internal/frame"
	"tickflow/internal/normalize"
	"tickflow/logger"
	"tickflow/models"
)

// Dataset is the output of one pipeline run for one record kind. An empty
// universe produces a zero-row frame that still carries the canonical
// columns; callers must not treat that as an error.
type Dataset struct {
	Kind   models.Kind
	Frame  *frame.Frame
	Report models.RunReport
}

// tickerResult is the explicit per-ticker outcome. Failures are carried as
// values and partitioned after all workers finish, never thrown across
// goroutines.
type tickerResult struct {
	ticker  string
	frame   *frame.Frame
	decoded int
	failed  int
	err     error
}

// Run ingests one record kind under the configured data root. Per-member
// and per-ticker failures are absorbed and logged; only configuration
// problems (missing root, bad timezone) and zero-volume aggregation groups
// escalate to the caller.
func Run(cfg *config.Config, kind models.Kind) (*Dataset, error) {
	log := logger.GetLogger().WithComponent("pipeline")
	started := time.Now()

	if !kind.Valid() {
		return nil, fmt.Errorf("pipeline: unknown record kind %q", kind)
	}
	loc, err := time.LoadLocation(cfg.Exchange.Timezone)
	if err != nil {
		return nil, &config.ValidationError{Field: "exchange.timezone", Reason: err.Error()}
	}

	universe := cfg.Data.Tickers
	if len(universe) == 0 {
		// No explicit universe: discover tickers from the quote tree,
		// which is the canonical layout of the raw dataset.
		universe, err = archive.Tickers(cfg.Data.Root, models.KindQuote)
		if err != nil {
			return nil, err
		}
		log.WithFields(logger.Fields{"tickers": len(universe)}).Info("discovered ticker universe")
	}

	located, err := archive.Locate(cfg.Data.Root, kind, cfg.Data.ArchiveExt)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(universe))
	for _, t := range universe {
		wanted[t] = true
	}
	var tickers []string
	for ticker := range located {
		if wanted[ticker] {
			tickers = append(tickers, ticker)
		}
	}
	sort.Strings(tickers)

	for _, t := range universe {
		if _, ok := located[t]; !ok {
			log.WithFields(logger.Fields{"ticker": t, "kind": kind.String()}).Warn("ticker has no archive, skipping")
		}
	}

	sel := archive.Selector{MonthPrefixes: cfg.Data.Months, MemberExt: cfg.Data.MemberExt}
	opts := filter.Options{
		OnlyRegularHours:     cfg.Filters.OnlyRegularHours,
		Open:                 cfg.Exchange.TradingOpen,
		Close:                cfg.Exchange.TradingClose,
		OnlyNonSpecialTrades: cfg.Filters.OnlyNonSpecialTrades,
	}

	results := runWorkers(cfg, kind, tickers, located, sel, loc, opts)

	// Partition outcomes. Ticker order is already lexicographic, so the
	// output row order is reproducible regardless of worker completion
	// order.
	report := models.RunReport{
		RunID:         uuid.New().String(),
		Kind:          kind,
		TickersWanted: len(universe),
		StartedAt:     started,
	}
	var frames []*frame.Frame
	for _, res := range results {
		report.MembersDecoded += res.decoded
		report.MembersFailed += res.failed
		if res.err != nil {
			var zv *aggregate.ZeroVolumeError
			if errors.As(res.err, &zv) {
				return nil, res.err
			}
			log.WithError(res.err).WithFields(logger.Fields{"ticker": res.ticker}).Warn("ticker failed, excluding from dataset")
			continue
		}
		if res.frame == nil {
			// Every member failed to decode or none matched: the ticker
			// contributes no rows, which is not an error.
			log.WithFields(logger.Fields{"ticker": res.ticker}).Warn("no decodable members for ticker")
			continue
		}
		frames = append(frames, res.frame)
		report.TickersKept++
	}

	out, err := frame.ConcatRelaxed(frames)
	if err != nil {
		return nil, fmt.Errorf("pipeline: universe concat: %w", err)
	}
	if len(frames) == 0 {
		out = emptyFrame(kind)
		log.WithFields(logger.Fields{"kind": kind.String()}).Warn("pipeline produced an empty dataset")
	}

	report.RowsRetained = out.NumRows()
	report.FinishedAt = time.Now()
	log.WithFields(logger.Fields{
		"run_id":          report.RunID,
		"kind":            kind.String(),
		"tickers_kept":    report.TickersKept,
		"members_decoded": report.MembersDecoded,
		"members_failed":  report.MembersFailed,
		"rows":            report.RowsRetained,
	}).Info("pipeline run finished")

	return &Dataset{Kind: kind, Frame: out, Report: report}, nil
}

// runWorkers fans the tickers out over a bounded worker pool. Each worker
// opens its own archive handle, and one ticker's failure never cancels its
// siblings.
func runWorkers(cfg *config.Config, kind models.Kind, tickers []string, located map[string]string, sel archive.Selector, loc *time.Location, opts filter.Options) []tickerResult {
	workers := cfg.Pipeline.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan string)
	results := make([]tickerResult, len(tickers))
	index := make(map[string]int, len(tickers))
	for i, t := range tickers {
		index[t] = i
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticker := range jobs {
				results[index[ticker]] = processTicker(cfg, kind, ticker, located[ticker], sel, loc, opts)
			}
		}()
	}
	for _, t := range tickers {
		jobs <- t
	}
	close(jobs)
	wg.Wait()

	return results
}

// processTicker runs the full per-ticker stage chain: decode all selected
// members, assemble them, then normalize, filter and aggregate. Aggregation
// runs here, before the universe concat, so its time-only grouping can
// never merge two tickers that happen to share a timestamp.
func processTicker(cfg *config.Config, kind models.Kind, ticker, path string, sel archive.Selector, loc *time.Location, opts filter.Options) tickerResult {
	log := logger.GetLogger().WithComponent("pipeline").WithFields(logger.Fields{"ticker": ticker, "kind": kind.String()})
	res := tickerResult{ticker: ticker}

	var frames []*frame.Frame
	err := archive.Walk(path, sel, func(m archive.Member, r io.Reader) error {
		f, err := decode.Member(r, kind, ticker, m.Name)
		if err != nil {
			// Malformed member: drop it, keep its siblings.
			log.WithError(err).WithFields(logger.Fields{"member": m.Name}).Warn("dropping undecodable member")
			res.failed++
			return nil
		}
		frames = append(frames, f)
		res.decoded++
		return nil
	})
	if err != nil {
		res.err = err
		return res
	}
	if len(frames) == 0 {
		return res
	}

	f, err := frame.ConcatRelaxed(frames)
	if err != nil {
		res.err = fmt.Errorf("assemble %s: %w", ticker, err)
		return res
	}
	f, err = normalize.Apply(f, loc)
	if err != nil {
		res.err = err
		return res
	}
	f, err = filter.Apply(f, kind, opts)
	if err != nil {
		res.err = err
		return res
	}
	f, err = aggregate.Apply(f, kind, cfg.Filters.MergeSameTimestamp)
	if err != nil {
		res.err = err
		return res
	}

	res.frame = f
	return res
}

// emptyFrame builds the zero-row, correctly-typed dataset shape for a kind.
func emptyFrame(kind models.Kind) *frame.Frame {
	var series []*frame.Series
	for _, name := range kind.Columns() {
		switch name {
		case models.ColIndex:
			series = append(series, frame.Empty(name, frame.Time))
		case models.ColStock, models.ColTradeFlag:
			series = append(series, frame.Empty(name, frame.String))
		default:
			series = append(series, frame.Empty(name, frame.Float))
		}
	}
	f, _ := frame.New(series...)
	return f
}
