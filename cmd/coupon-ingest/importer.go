package main

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

const (
	duplicateFPR  = 0.001
	maxLineBytes  = 1 << 20
	progressEvery = 100_000
)

// creator is the part of coupon.Repository the importer writes through.
type creator interface {
	Create(ctx context.Context, d coupon.Draft) (coupon.Record, error)
}

// Stats counts import outcomes.
type Stats struct {
	Created    int64
	Duplicates int64
	Invalid    int64
}

// importer loads coupon definitions in two passes over the input files.
//
// Pass 1 validates every line and feeds its canonical key to a bloom filter.
// Keys the filter has probably seen before become duplicate candidates. Pass 2
// creates every line, creating a candidate key only the first time it is
// met. False positives only cost a map entry, never a lost coupon.
type importer struct {
	lg    *zap.Logger
	store creator

	mu         sync.Mutex
	filter     *bloom.BloomFilter
	candidates map[string]bool // key -> already created in pass 2

	created    atomic.Int64
	duplicates atomic.Int64
	invalid    atomic.Int64
}

func newImporter(lg *zap.Logger, store creator, expected uint) *importer {
	return &importer{
		lg:         lg,
		store:      store,
		filter:     bloom.NewWithEstimates(max(expected, 1), duplicateFPR),
		candidates: make(map[string]bool),
	}
}

// Import runs both passes. Files are processed concurrently within a pass.
func (imp *importer) Import(ctx context.Context, files []string) (Stats, error) {
	start := time.Now()
	if err := imp.eachFile(ctx, files, imp.mark); err != nil {
		return Stats{}, errors.Wrap(err, "pass 1")
	}
	imp.lg.Info("Pass 1 complete",
		zap.Int("candidates", len(imp.candidates)),
		zap.Int64("invalid", imp.invalid.Load()),
		zap.Duration("took", time.Since(start)),
	)

	start = time.Now()
	if err := imp.eachFile(ctx, files, imp.create); err != nil {
		return Stats{}, errors.Wrap(err, "pass 2")
	}
	imp.lg.Info("Pass 2 complete",
		zap.Int64("created", imp.created.Load()),
		zap.Duration("took", time.Since(start)),
	)

	return Stats{
		Created:    imp.created.Load(),
		Duplicates: imp.duplicates.Load(),
		Invalid:    imp.invalid.Load(),
	}, nil
}

type lineFunc func(ctx context.Context, lg *zap.Logger, line int, d coupon.Draft, key string) error

func (imp *importer) eachFile(ctx context.Context, files []string, fn lineFunc) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, path := range files {
		g.Go(func() error {
			lg := imp.lg.With(zap.String("file", path))
			return streamGzFile(ctx, path, func(line int, data []byte) error {
				if line%progressEvery == 0 {
					lg.Info("Progress", zap.Int("line", line))
				}
				d, err := coupon.UnmarshalDraft(data)
				if err != nil {
					lg.Debug("Invalid coupon line", zap.Int("line", line), zap.Error(err))
					return fn(ctx, lg, line, coupon.Draft{}, "")
				}
				key, err := draftKey(d)
				if err != nil {
					return errors.Wrapf(err, "%s:%d", path, line)
				}
				return fn(ctx, lg, line, d, key)
			})
		})
	}
	return g.Wait()
}

// mark is pass 1. An empty key marks an invalid line, which is reported here
// and ignored in pass 2.
func (imp *importer) mark(_ context.Context, lg *zap.Logger, line int, _ coupon.Draft, key string) error {
	if key == "" {
		imp.invalid.Add(1)
		lg.Warn("Skipping invalid coupon line", zap.Int("line", line))
		return nil
	}
	imp.mu.Lock()
	defer imp.mu.Unlock()
	if imp.filter.TestAndAddString(key) {
		imp.candidates[key] = false
	}
	return nil
}

// create is pass 2.
func (imp *importer) create(ctx context.Context, lg *zap.Logger, line int, d coupon.Draft, key string) error {
	if key == "" {
		return nil
	}
	imp.mu.Lock()
	created, candidate := imp.candidates[key]
	if candidate {
		imp.candidates[key] = true
	}
	imp.mu.Unlock()
	if candidate && created {
		imp.duplicates.Add(1)
		return nil
	}

	rec, err := imp.store.Create(ctx, d)
	if err != nil {
		return errors.Wrapf(err, "line %d", line)
	}
	imp.created.Add(1)
	lg.Debug("Coupon created", zap.Int("line", line), zap.Int64("coupon_id", rec.ID))
	return nil
}

// draftKey returns a canonical form of d, equal for definitions that only
// differ in formatting or key order.
func draftKey(d coupon.Draft) (string, error) {
	details, err := coupon.MarshalVariant(d.Variant)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(string(d.Variant.Kind()))
	b.WriteByte('|')
	b.Write(details)
	b.WriteByte('|')
	if d.ExpiresAt != nil {
		b.WriteString(d.ExpiresAt.UTC().Format(time.RFC3339Nano))
	}
	b.WriteByte('|')
	if d.UsageLimit != nil {
		b.WriteString(strconv.Itoa(*d.UsageLimit))
	}
	return b.String(), nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each non-blank
// line, numbered from 1.
func streamGzFile(ctx context.Context, path string, fn func(line int, data []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		data := scanner.Bytes()
		if len(strings.TrimSpace(string(data))) == 0 {
			continue
		}
		if err := fn(line, data); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
