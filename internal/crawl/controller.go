// Package crawl walks a station's listing pages and ingests shows not yet stored.
package crawl

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/radio-playlist-archiver/internal/export"
	"github.com/JakeFAU/radio-playlist-archiver/internal/metrics"
	"github.com/JakeFAU/radio-playlist-archiver/internal/playlist"
)

// Exporter regenerates a target's snapshots after new data arrives.
type Exporter interface {
	Export(ctx context.Context, target playlist.Target) (export.Report, error)
}

// Result summarizes one pass over a target.
type Result struct {
	Target        string
	PagesFetched  int
	ShowsSeen     int
	ShowsSkipped  int
	ShowsNew      int
	PlaysInserted int
	Malformed     int
	Failures      int
	Exported      bool
	Export        export.Report
	Duration      time.Duration
}

// Controller runs crawl passes. It holds no per-pass state and may be shared
// across goroutines working on different targets.
type Controller struct {
	source   playlist.Source
	store    playlist.Store
	exporter Exporter
	pacer    playlist.Pacer
	clock    playlist.Clock
	logger   *zap.Logger
}

// New constructs a Controller. pacer may be nil to fetch without delay.
func New(
	source playlist.Source,
	store playlist.Store,
	exporter Exporter,
	pacer playlist.Pacer,
	clock playlist.Clock,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		source:   source,
		store:    store,
		exporter: exporter,
		pacer:    pacer,
		clock:    clock,
		logger:   logger.Named("crawl"),
	}
}

// ProcessTarget crawls up to maxPages listing pages of the target, storing
// every show not seen before, then exports when new shows arrived or when
// more than one page was requested. Fetch failures of single pages or shows
// are logged and skipped. The returned error is non-nil only when the pass
// was canceled, the target URL is invalid, or the export could not read
// history; the Result is populated in every case.
func (c *Controller) ProcessTarget(ctx context.Context, target playlist.Target, maxPages int) (res Result, err error) {
	if maxPages < 1 {
		maxPages = 1
	}
	start := c.clock.Now()
	res.Target = target.Name
	logger := c.logger.With(zap.String("target", target.Name))
	defer func() {
		res.Duration = c.clock.Now().Sub(start)
		metrics.ObserveCrawlPass(target.Name, res.Duration)
	}()

	logger.Info("crawl pass started", zap.Int("max_pages", maxPages))
	for page := 1; page <= maxPages; page++ {
		pageURL, err := PageURL(target.BaseURL, page)
		if err != nil {
			return res, err
		}
		entries, err := c.listPage(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return res, fmt.Errorf("crawl %s canceled: %w", target.Name, ctx.Err())
			}
			res.Failures++
			metrics.ObservePage(target.Name, metrics.PageFailed)
			logger.Warn("listing page fetch failed", zap.Int("page", page), zap.String("url", pageURL), zap.Error(err))
			continue
		}
		res.PagesFetched++
		if len(entries) == 0 {
			metrics.ObservePage(target.Name, metrics.PageEmpty)
			logger.Info("listing exhausted", zap.Int("page", page))
			break
		}
		metrics.ObservePage(target.Name, metrics.PageFetched)

		for _, entry := range entries {
			if err := c.processEntry(ctx, target, pageURL, entry, &res); err != nil {
				return res, err
			}
		}
	}

	logger.Info("crawl pass finished",
		zap.Int("pages", res.PagesFetched),
		zap.Int("shows_new", res.ShowsNew),
		zap.Int("shows_skipped", res.ShowsSkipped),
		zap.Int("plays_inserted", res.PlaysInserted),
		zap.Int("failures", res.Failures),
	)

	if res.ShowsNew == 0 && maxPages == 1 {
		return res, nil
	}
	report, err := c.exporter.Export(ctx, target)
	res.Export = report
	if err != nil {
		return res, fmt.Errorf("export %s: %w", target.Name, err)
	}
	res.Exported = !report.Skipped
	return res, nil
}

// processEntry ingests one listing entry. Only cancellation is returned as an
// error; every other problem is recorded in res.
func (c *Controller) processEntry(
	ctx context.Context,
	target playlist.Target,
	pageURL string,
	entry playlist.ListingEntry,
	res *Result,
) error {
	logger := c.logger.With(zap.String("target", target.Name))
	res.ShowsSeen++

	showURL, err := ResolveShowURL(pageURL, entry.ShowURL)
	if err != nil {
		res.Malformed++
		metrics.ObserveShow(target.Name, metrics.ShowMalformed)
		logger.Warn("skipping listing entry", zap.String("title", entry.Title), zap.Error(err))
		return nil
	}
	logger = logger.With(zap.String("url", showURL))

	exists, err := c.store.ShowExists(ctx, showURL)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("crawl %s canceled: %w", target.Name, ctx.Err())
		}
		res.Failures++
		metrics.ObserveShow(target.Name, metrics.ShowFailed)
		logger.Error("show lookup failed", zap.Error(err))
		return nil
	}
	if exists {
		res.ShowsSkipped++
		metrics.ObserveShow(target.Name, metrics.ShowSkipped)
		return nil
	}

	plays, err := c.listPlays(ctx, showURL)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("crawl %s canceled: %w", target.Name, ctx.Err())
		}
		res.Failures++
		metrics.ObserveShow(target.Name, metrics.ShowFailed)
		logger.Warn("show fetch failed", zap.Error(err))
		return nil
	}

	now := c.clock.Now()
	events := make([]playlist.PlayEvent, 0, len(plays))
	for _, p := range plays {
		events = append(events, playlist.PlayEvent{
			ShowURL:    showURL,
			Artist:     p.Artist,
			Song:       p.Song,
			Album:      p.Album,
			IngestedAt: now,
		})
	}
	// Show and plays commit together; a failure leaves the show unstored so
	// the next pass fetches it again.
	created, inserted, err := c.store.IngestShow(ctx, playlist.Show{
		URL:        showURL,
		TargetName: target.Name,
		Title:      entry.Title,
		Presenter:  entry.Presenter,
		DateText:   entry.DateText,
		TimeText:   entry.TimeText,
		IngestedAt: now,
	}, events)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("crawl %s canceled: %w", target.Name, ctx.Err())
		}
		res.Failures++
		metrics.ObserveShow(target.Name, metrics.ShowFailed)
		logger.Error("ingest show failed", zap.Error(err))
		return nil
	}
	res.PlaysInserted += inserted
	metrics.AddPlaysInserted(target.Name, inserted)

	if created {
		res.ShowsNew++
		metrics.ObserveShow(target.Name, metrics.ShowNew)
	} else {
		// Another process stored the show between the lookup and the insert.
		res.ShowsSkipped++
		metrics.ObserveShow(target.Name, metrics.ShowSkipped)
	}
	logger.Info("show ingested", zap.Int("plays", len(plays)), zap.Int("plays_inserted", inserted))
	return nil
}

func (c *Controller) listPage(ctx context.Context, pageURL string) ([]playlist.ListingEntry, error) {
	if err := c.wait(ctx, pageURL); err != nil {
		return nil, err
	}
	entries, err := c.source.ListShows(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("list shows: %w", err)
	}
	return entries, nil
}

func (c *Controller) listPlays(ctx context.Context, showURL string) ([]playlist.PlayEntry, error) {
	if err := c.wait(ctx, showURL); err != nil {
		return nil, err
	}
	plays, err := c.source.ListPlays(ctx, showURL)
	if err != nil {
		return nil, fmt.Errorf("list plays: %w", err)
	}
	return plays, nil
}

func (c *Controller) wait(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.pacer == nil {
		return nil
	}
	return c.pacer.Wait(ctx, rawURL)
}

// PageURL returns the listing URL of the given 1-based page. Page 1 is the
// base URL itself; later pages add a page query parameter.
func PageURL(baseURL string, page int) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse target url %q: %w", baseURL, err)
	}
	if page <= 1 {
		return u.String(), nil
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ResolveShowURL makes a listing link absolute against the page it appeared on.
func ResolveShowURL(pageURL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("%w: listing entry has no show link", playlist.ErrMalformedRecord)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: parse show link %q: %w", playlist.ErrMalformedRecord, href, err)
	}
	return base.ResolveReference(ref).String(), nil
}
