// Package recorder appends BBO samples and completed trades to per-day CSV
// files. Files roll at UTC midnight; a closed day can be handed to an
// optional archiver for upload.
package recorder

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yukaisun/crossarb/internal/domain"
	"github.com/yukaisun/crossarb/internal/spread"
)

var bboHeader = []string{
	"timestamp",
	"backpack_bid", "backpack_ask",
	"lighter_bid", "lighter_ask",
	"long_spread", "short_spread",
	"signal",
}

var tradeHeader = []string{
	"timestamp", "execution_id", "direction", "quantity", "outcome",
	"backpack_order_id", "backpack_filled", "backpack_price",
	"lighter_order_id", "lighter_filled", "lighter_price",
	"unwound",
}

// Archiver receives the path of a closed daily file. Implementations must
// not block rotation for long.
type Archiver interface {
	Archive(path string)
}

// Recorder writes bbo_<TICKER>_<YYYYMMDD>.csv and trades_<TICKER>_<YYYYMMDD>.csv
// under dir. Safe for concurrent use.
type Recorder struct {
	dir      string
	ticker   string
	logger   *slog.Logger
	archiver Archiver
	now      func() time.Time

	mu    sync.Mutex
	day   string
	bbo   *dailyFile
	trade *dailyFile
}

type dailyFile struct {
	f *os.File
	w *csv.Writer
}

func (d *dailyFile) close() string {
	if d == nil {
		return ""
	}
	d.w.Flush()
	path := d.f.Name()
	_ = d.f.Close()
	return path
}

// New creates the data directory if needed. The archiver may be nil.
func New(dir, ticker string, logger *slog.Logger, archiver Archiver) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Recorder{
		dir:      dir,
		ticker:   ticker,
		logger:   logger.With(slog.String("component", "recorder")),
		archiver: archiver,
		now:      time.Now,
	}, nil
}

// RecordBBO appends one top-of-book sample.
func (r *Recorder) RecordBBO(backpack, lighter domain.Quote, spreads spread.Spreads, signal domain.Direction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now().UTC()
	if err := r.rotate(ts); err != nil {
		r.logger.Warn("bbo log rotate failed", slog.String("error", err.Error()))
		return
	}

	r.write(r.bbo, []string{
		ts.Format(time.RFC3339Nano),
		backpack.Bid.String(), backpack.Ask.String(),
		lighter.Bid.String(), lighter.Ask.String(),
		spreads.Long.String(), spreads.Short.String(),
		string(signal),
	})
}

// RecordTrade appends one completed execution, whatever its outcome.
func (r *Recorder) RecordTrade(exec domain.Execution) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now().UTC()
	if err := r.rotate(ts); err != nil {
		r.logger.Warn("trade log rotate failed", slog.String("error", err.Error()))
		return
	}

	r.write(r.trade, []string{
		ts.Format(time.RFC3339Nano),
		exec.ID,
		string(exec.Direction),
		exec.Quantity.String(),
		string(exec.Outcome),
		exec.Backpack.OrderID, exec.Backpack.FilledSize.String(), priceOrEmpty(exec.Backpack.AvgPrice),
		exec.Lighter.OrderID, exec.Lighter.FilledSize.String(), priceOrEmpty(exec.Lighter.AvgPrice),
		fmt.Sprintf("%t", exec.Unwound),
	})
}

// Close flushes and closes the current files. Open files are not archived:
// the process restarting the same day must be able to append to them.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bbo.close()
	r.trade.close()
	r.bbo, r.trade = nil, nil
	r.day = ""
}

// rotate opens the current day's files, closing and archiving the previous
// day's on a date change.
func (r *Recorder) rotate(ts time.Time) error {
	day := ts.Format("20060102")
	if day == r.day && r.bbo != nil {
		return nil
	}

	closed := []string{r.bbo.close(), r.trade.close()}
	r.bbo, r.trade = nil, nil

	bbo, err := r.open(fmt.Sprintf("bbo_%s_%s.csv", r.ticker, day), bboHeader)
	if err != nil {
		return err
	}
	trade, err := r.open(fmt.Sprintf("trades_%s_%s.csv", r.ticker, day), tradeHeader)
	if err != nil {
		bbo.close()
		return err
	}
	r.bbo, r.trade, r.day = bbo, trade, day

	if r.archiver != nil {
		for _, path := range closed {
			if path != "" {
				r.archiver.Archive(path)
			}
		}
	}
	return nil
}

// open appends to an existing file or creates it with a header row.
func (r *Recorder) open(name string, header []string) (*dailyFile, error) {
	path := filepath.Join(r.dir, name)
	info, statErr := os.Stat(path)
	fresh := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	d := &dailyFile{f: f, w: csv.NewWriter(f)}
	if fresh {
		if err := d.w.Write(header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write header %s: %w", name, err)
		}
		d.w.Flush()
	}
	return d, nil
}

func (r *Recorder) write(d *dailyFile, row []string) {
	if err := d.w.Write(row); err != nil {
		r.logger.Warn("csv write failed", slog.String("error", err.Error()))
		return
	}
	d.w.Flush()
	if err := d.w.Error(); err != nil {
		r.logger.Warn("csv flush failed", slog.String("error", err.Error()))
	}
}

func priceOrEmpty(p decimal.Decimal) string {
	if p.IsZero() {
		return ""
	}
	return p.String()
}
