// Package spinitron reads show listings and playlists from Spinitron station pages.
package spinitron

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/radio-playlist-archiver/internal/playlist"
)

// Placeholders for fields a page leaves out.
const (
	unknownText = "Unknown"
	notListed   = "N/A"
)

// Selectors for the station markup.
const (
	listItemSelector  = "div.list-item"
	showLinkSelector  = "a.link.row"
	dateTimeSelector  = "div.datetime.playlist"
	showTitleSelector = "h3.show-title"
	djNameSelector    = "p.dj-name"
	spinSelector      = "tr.spin-item"
)

// Config controls collector and breaker behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// BreakerFailures is the number of consecutive failed fetches that opens the breaker.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open before probing again.
	BreakerCooldown time.Duration
}

// Source implements playlist.Source on top of a Colly collector.
type Source struct {
	cfg           Config
	baseCollector *colly.Collector
	breaker       *gobreaker.CircuitBreaker[int]
	logger        *zap.Logger
}

type collectorHooks interface {
	OnHTML(string, colly.HTMLCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Source.
func New(cfg Config, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = time.Minute
	}
	logger = logger.Named("spinitron")

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	var transport http.RoundTripper = newHTTPTransport()
	if cfg.RespectRobots {
		transport = newRobotsTransport(transport, logger)
	}
	c.WithTransport(transport)

	breaker := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        "spinitron",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Source{
		cfg:           cfg,
		baseCollector: c,
		breaker:       breaker,
		logger:        logger,
	}
}

// BreakerState reports the circuit breaker state for status pages.
func (s *Source) BreakerState() string {
	return s.breaker.State().String()
}

// ListShows returns the shows on one listing page. Entries are returned with
// the link exactly as it appears in the markup; an entry without a link has an
// empty ShowURL.
func (s *Source) ListShows(ctx context.Context, pageURL string) ([]playlist.ListingEntry, error) {
	var entries []playlist.ListingEntry
	err := s.visit(ctx, pageURL, func(hooks collectorHooks) {
		hooks.OnHTML(listItemSelector, func(e *colly.HTMLElement) {
			entries = append(entries, s.parseListItem(e))
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListPlays returns the plays listed on a show page.
func (s *Source) ListPlays(ctx context.Context, showURL string) ([]playlist.PlayEntry, error) {
	var plays []playlist.PlayEntry
	err := s.visit(ctx, showURL, func(hooks collectorHooks) {
		hooks.OnHTML(spinSelector, func(e *colly.HTMLElement) {
			plays = append(plays, parseSpin(e))
		})
	})
	if err != nil {
		return nil, err
	}
	return plays, nil
}

func (s *Source) parseListItem(e *colly.HTMLElement) playlist.ListingEntry {
	entry := playlist.ListingEntry{
		ShowURL:   strings.TrimSpace(e.ChildAttr(showLinkSelector, "href")),
		Title:     textOr(e.ChildText(showTitleSelector), notListed),
		Presenter: textOr(e.ChildText(djNameSelector), notListed),
	}
	e.ForEach(dateTimeSelector, func(_ int, dt *colly.HTMLElement) {
		month := strings.TrimSpace(dt.ChildText("span.month"))
		day := strings.TrimSpace(dt.ChildText("span.day"))
		year := strings.TrimSpace(dt.ChildText("span.year"))
		clock := strings.TrimSpace(dt.ChildText("span.time"))
		if month == "" || day == "" || year == "" || clock == "" {
			s.logger.Warn("incomplete show date", zap.String("url", entry.ShowURL))
			return
		}
		entry.DateText = month + " " + day + " " + year
		entry.TimeText = clock
	})
	return entry
}

func parseSpin(e *colly.HTMLElement) playlist.PlayEntry {
	return playlist.PlayEntry{
		Artist: textOr(e.ChildText("span.artist"), unknownText),
		Song:   textOr(e.ChildText("span.song"), unknownText),
		Album:  textOr(e.ChildText("span.release"), playlist.AlbumUnknown),
	}
}

func textOr(text, fallback string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return fallback
	}
	return text
}

// visit fetches one page through the breaker. register attaches the parse
// callbacks to a fresh collector clone.
func (s *Source) visit(ctx context.Context, pageURL string, register func(collectorHooks)) error {
	_, err := s.breaker.Execute(func() (int, error) {
		collector := s.baseCollector.Clone()
		collector.Context = ctx

		// status and fetchErr are written by the Visit goroutine and may only
		// be read once Visit has returned.
		var status int
		var fetchErr error
		collector.OnError(func(r *colly.Response, err error) {
			if r != nil {
				status = r.StatusCode
			}
			fetchErr = err
		})
		register(collector)

		if err := runCollector(ctx, collector, pageURL); err != nil {
			return 0, err
		}
		if fetchErr != nil {
			return status, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		return status, nil
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("fetch %s: %w", pageURL, ctx.Err())
	}
	s.logger.Debug("fetch failed", zap.String("url", pageURL), zap.Error(err))
	return fmt.Errorf("%w: fetch %s: %w", playlist.ErrSourceUnavailable, pageURL, err)
}

func runCollector(ctx context.Context, collector *colly.Collector, pageURL string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
}
