package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"covid-pipeline/internal/logger"
	"covid-pipeline/internal/model"

	"golang.org/x/sync/errgroup"
)

// ------------------- Ingestion -------------------

// Tables holds the three input tables of a run
type Tables struct {
	Confirmed *model.RawTable
	Deaths    *model.RawTable
	Lookup    *model.RawTable
}

// Fetcher reads CSV sources over HTTP(S) or from the local filesystem
type Fetcher struct {
	Client    *http.Client
	UserAgent string
}

// NewFetcher creates a fetcher whose requests time out after timeout (0 disables).
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: userAgent,
	}
}

// FetchAll fetches confirmed, deaths and lookup concurrently.
// The first failure cancels the remaining fetches.
func (f *Fetcher) FetchAll(ctx context.Context, spec model.PipelineJobSpec) (*Tables, error) {
	names := []string{model.SourceConfirmed, model.SourceDeaths, model.SourceLookup}
	sources := make([]model.Source, len(names))
	for i, name := range names {
		src, err := spec.Source(name)
		if err != nil {
			return nil, err
		}
		sources[i] = src
	}

	results := make([]*model.RawTable, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			table, err := f.FetchTable(gctx, src)
			if err != nil {
				return err
			}
			results[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Tables{Confirmed: results[0], Deaths: results[1], Lookup: results[2]}, nil
}

// FetchTable reads one CSV source into a raw table.
func (f *Fetcher) FetchTable(ctx context.Context, src model.Source) (*model.RawTable, error) {
	if src.Type != "" && !strings.EqualFold(src.Type, "csv") {
		return nil, fmt.Errorf("%w: source %s: unsupported type %q", ErrFetch, src.Name, src.Type)
	}

	start := time.Now()
	logger.Debug("fetching source %s from %s", src.Name, src.URL)

	body, err := f.open(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: source %s: %v", ErrFetch, src.Name, err)
	}
	defer body.Close()

	table, err := readCSV(body)
	if err != nil {
		return nil, fmt.Errorf("%w: source %s: %v", ErrFetch, src.Name, err)
	}
	table.Source = src.Name

	logger.Info("fetched source %s: %d rows, %d columns in %v", src.Name, len(table.Rows), len(table.Header), time.Since(start))
	return table, nil
}

func (f *Fetcher) open(ctx context.Context, pathOrURL string) (io.ReadCloser, error) {
	if !strings.HasPrefix(pathOrURL, "http://") && !strings.HasPrefix(pathOrURL, "https://") {
		return os.Open(strings.TrimPrefix(pathOrURL, "file://"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pathOrURL, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %d", pathOrURL, resp.StatusCode)
	}
	return resp.Body, nil
}

// readCSV reads a header row plus data rows. Ragged rows are kept as-is and
// rejected later by the schema checks.
func readCSV(r io.Reader) (*model.RawTable, error) {
	csvReader := csv.NewReader(r)
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty CSV body")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[i] = h
	}

	rows, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("CSV read error: %w", err)
	}

	return &model.RawTable{Header: header, Rows: rows}, nil
}
