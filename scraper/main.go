// Command scraper fetches the monthly prayer timetable of each mosque, saves
// them as individual records, and generates the mosque index.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/lutonsalah/jummah/internal/httpcache"
	"github.com/lutonsalah/jummah/internal/mosqueindex"
	"github.com/lutonsalah/jummah/internal/mosques"
	"github.com/lutonsalah/jummah/schema"
	fileatomic "github.com/natefinch/atomic"
	"golang.org/x/time/rate"
)

var (
	dataDir     = flag.String("data-dir", "data", "directory to save mosque records in")
	indexPath   = flag.String("index", "mosque-index.json", "write the mosque index to this file")
	mosqueList  = flag.String("mosques", "", "toml mosque list to use instead of the built-in one")
	only        = flag.String("only", "", "comma-separated slugs of the mosques to scrape (default all)")
	month       = flag.Int("month", 0, "timetable month to fetch (default current month)")
	indexOnly   = flag.Bool("index-only", false, "don't scrape, only regenerate the index from existing records")
	cacheDir    = flag.String("cache-dir", "", "cache pages in the specified directory")
	cacheMaxAge = flag.Duration("cache-max-age", 0, "refetch cached pages older than this (default never)")
	refresh     = flag.Bool("refresh", false, "purge cached pages for the scraped mosques before fetching")
	noFetch     = flag.Bool("no-fetch", false, "don't fetch pages not in cache")
	qps         = flag.Float64("qps", 5, "maximum page requests per second")
	parallel    = flag.Int("parallel", 5, "maximum concurrent page requests")
	timeout     = flag.Duration("timeout", 10*time.Second, "page request timeout")
	userAgent   = flag.String("user-agent", "Mozilla/5.0 (compatible; PrayerTimesScraper/1.0)", "user agent for page requests")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	list, err := mosques.Load(*mosqueList)
	if err != nil {
		return err
	}

	if err := os.Mkdir(*dataDir, 0777); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("create data dir: %w", err)
	}

	if !*indexOnly {
		selected, err := selectMosques(list, *only)
		if err != nil {
			return err
		}

		m := time.Now().Month()
		if *month != 0 {
			if *month < 1 || *month > 12 {
				return fmt.Errorf("invalid month %d", *month)
			}
			m = time.Month(*month)
		}

		client, err := newClient()
		if err != nil {
			return err
		}
		if *refresh && *cacheDir != "" {
			slog.Info("purging cached pages", "mosques", len(selected))
			if err := httpcache.Purge(*cacheDir, selected.Slugs()...); err != nil {
				return fmt.Errorf("purge cache: %w", err)
			}
		}

		s := &scraper{
			Client:    client,
			Limiter:   rate.NewLimiter(rate.Limit(*qps), max(*parallel, 1)),
			DataDir:   *dataDir,
			Month:     m,
			Parallel:  *parallel,
			UserAgent: *userAgent,
		}
		slog.Info("scraping mosques", "count", len(selected), "month", m)
		if failed := s.scrapeAll(ctx, selected); failed != 0 {
			slog.Warn("some mosques could not be scraped", "failed", failed, "count", len(selected))
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	slog.Info("generating mosque index")
	report, err := (&mosqueindex.Generator{
		Dir:     *dataDir,
		Index:   *indexPath,
		Mosques: list,
	}).Generate()
	if err != nil {
		if report != nil && len(report.Skipped) != 0 {
			return fmt.Errorf("generate mosque index (%d records skipped): %w", len(report.Skipped), err)
		}
		return fmt.Errorf("generate mosque index: %w", err)
	}
	if len(report.Skipped) != 0 {
		slog.Warn("some mosque records were skipped", "skipped", len(report.Skipped))
	}
	slog.Info("done", "index", report.Path, "mosques", report.Mosques)
	return nil
}

func selectMosques(list mosques.List, only string) (mosques.List, error) {
	if only == "" {
		return list, nil
	}
	var selected mosques.List
	for slug := range strings.SplitSeq(only, ",") {
		if slug = strings.TrimSpace(slug); slug == "" {
			continue
		}
		m, ok := list.Lookup(slug)
		if !ok {
			return nil, fmt.Errorf("unknown mosque %q", slug)
		}
		if !slices.Contains(selected.Slugs(), slug) {
			selected = append(selected, m)
		}
	}
	return selected, nil
}

func newClient() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	var rt http.RoundTripper = http.DefaultTransport
	if *cacheDir != "" {
		slog.Info("using cache dir", "path", *cacheDir)
		if err := os.Mkdir(*cacheDir, 0777); err != nil && !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		if err := os.WriteFile(filepath.Join(*cacheDir, ".gitattributes"), []byte("* -text\n"), 0666); err != nil { // no line ending conversions
			return nil, fmt.Errorf("write cache dir gitattributes: %w", err)
		}
		tr := &httpcache.Transport{
			Path:         *cacheDir,
			MaxAge:       *cacheMaxAge,
			RedactParams: []string{"refkey"},
		}
		if !*noFetch {
			tr.Next = http.DefaultTransport
		}
		rt = tr
	} else if *noFetch {
		return nil, fmt.Errorf("-no-fetch requires -cache-dir")
	}
	return &http.Client{
		Transport: rt,
		Jar:       jar,
		Timeout:   *timeout,
	}, nil
}

// scraper fetches mosque timetables into a data directory.
type scraper struct {
	Client    *http.Client
	Limiter   *rate.Limiter
	DataDir   string
	Month     time.Month
	Parallel  int
	UserAgent string
}

// statusError is returned for unsuccessful page responses.
type statusError int

func (s statusError) Error() string {
	return fmt.Sprintf("HTTP %d", int(s))
}

// scrapeAll scrapes the mosques, returning the number which failed. Failures
// are logged and do not stop the other mosques from being scraped.
func (s *scraper) scrapeAll(ctx context.Context, list mosques.List) int {
	var (
		wg     sync.WaitGroup
		failed atomic.Int32
		sem    = make(chan struct{}, max(s.Parallel, 1))
	)
	for _, m := range list {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			failed.Add(1)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.scrapeMosque(ctx, m); err != nil {
				slog.Error("error scraping mosque", "slug", m.Slug, "error", err)
				failed.Add(1)
			}
		}()
	}
	wg.Wait()
	return int(failed.Load())
}

// scrapeMosque fetches a mosque's timetable and saves it.
func (s *scraper) scrapeMosque(ctx context.Context, m mosques.Mosque) error {
	doc, err := s.fetchPage(httpcache.WithCategory(ctx, m.Slug), m.MonthURL(s.Month))
	if err != nil {
		return err
	}

	// a page without a timetable still replaces the record, so the index
	// doesn't keep serving last month's times
	rec := scrapeTimetable(doc)
	if len(rec.Timings) == 0 {
		slog.Warn("no timings found on page", "slug", m.Slug)
	}
	if rec.MosqueName == "" {
		slog.Warn("mosque name not found on page, using configured name", "slug", m.Slug)
		rec.MosqueName = m.Label()
	}

	buf, err := schema.EncodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	name, err := filepath.Abs(filepath.Join(s.DataDir, m.Slug+mosqueindex.RecordExt))
	if err != nil {
		return err
	}
	if err := fileatomic.WriteFile(name, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	slog.Info("saved mosque record", "slug", m.Slug, "name", rec.MosqueName, "timings", len(rec.Timings), "path", name)
	return nil
}

func (s *scraper) fetchPage(ctx context.Context, u string) (*goquery.Document, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	slog.Info("fetch page", "url", u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.UserAgent)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}
	doc.Url = resp.Request.URL

	return doc, nil
}
