package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okarpenko/autoria-scraper/internal/database"
	scrapeerrors "github.com/okarpenko/autoria-scraper/internal/errors"
	"github.com/okarpenko/autoria-scraper/internal/fetcher"
	"github.com/okarpenko/autoria-scraper/internal/logger"
	"github.com/okarpenko/autoria-scraper/internal/metrics"
	"github.com/okarpenko/autoria-scraper/internal/storage"
	"github.com/okarpenko/autoria-scraper/internal/types"
)

// CarStore is the slice of the database the coordinator writes to.
type CarStore interface {
	Upsert(record *types.CarRecord) (database.UpsertResult, error)
}

// Extractor turns rendered HTML into candidates and records.
type Extractor interface {
	ExtractCandidates(html, pageURL string, page int) ([]types.ListingCandidate, error)
	ExtractRecord(html, sourceURL string) (*types.CarRecord, error)
	NextPageURL(html, currentURL string) string
}

// Config bounds a single run.
type Config struct {
	StartURL         string
	MaxPages         int
	MaxTicketsPerRun int
	Workers          int
	UpsertRetryDelay time.Duration
}

// Coordinator owns the run lifecycle: pagination, detail fetching through a
// bounded worker pool, upserts, and the final summary. At most one run is
// active at a time; a second request is rejected, never queued.
type Coordinator struct {
	cfg     Config
	fetch   fetcher.Fetcher
	extract Extractor
	store   CarStore
	runs    storage.RunStore
	metrics *metrics.PipelineMetrics
	log     *logger.Logger

	// state holds a types.RunState; only RunOnce moves it away from idle.
	state atomic.Value

	mu      sync.Mutex
	current types.RunStatus
}

// New wires a coordinator. metrics may be nil.
func New(cfg Config, f fetcher.Fetcher, e Extractor, store CarStore, runs storage.RunStore, m *metrics.PipelineMetrics, log *logger.Logger) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if cfg.MaxTicketsPerRun <= 0 {
		cfg.MaxTicketsPerRun = 1
	}
	if cfg.UpsertRetryDelay <= 0 {
		cfg.UpsertRetryDelay = 500 * time.Millisecond
	}
	if log == nil {
		log = logger.Nop()
	}
	c := &Coordinator{
		cfg:     cfg,
		fetch:   f,
		extract: e,
		store:   store,
		runs:    runs,
		metrics: m,
		log:     log.ForComponent("coordinator"),
	}
	c.state.Store(types.StateIdle)
	return c
}

// Status reports the active run, or the terminal state of the last one.
func (c *Coordinator) Status() types.RunStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := c.current
	status.State = c.state.Load().(types.RunState)
	return status
}

// RunOnce executes one full scrape run. It fails fast with a busy error when
// a run is already active.
func (c *Coordinator) RunOnce(ctx context.Context) (*types.RunSummary, error) {
	return c.run(ctx, c.fetch, c.cfg.StartURL, c.cfg.MaxPages)
}

// ProcessMockPair runs the pipeline against two local HTML files: candidates
// come from the listing file, and each candidate's detail fetch reads the
// detail file. Records are keyed by the candidate URL, so a listing with N
// distinct links yields N records from the one detail document.
func (c *Coordinator) ProcessMockPair(ctx context.Context, listingPath, detailPath string) (*types.RunSummary, error) {
	mock := fetcher.NewFile(listingPath, detailPath)
	return c.run(ctx, mock, "mock://listing", 1)
}

func (c *Coordinator) run(ctx context.Context, fetch fetcher.Fetcher, startURL string, maxPages int) (*types.RunSummary, error) {
	if !c.tryStart() {
		return nil, scrapeerrors.NewBusy(c.Status().RunID)
	}

	runID := uuid.New().String()
	started := time.Now().UTC()
	log := c.log.ForRun(runID)

	c.mu.Lock()
	c.current = types.RunStatus{RunID: runID, StartedAt: &started}
	c.mu.Unlock()

	log.Info().Str("start_url", startURL).Msg("run started")

	r := &activeRun{
		coordinator: c,
		fetch:       fetch,
		log:         log,
		summary: &types.RunSummary{
			RunID:     runID,
			StartedAt: started,
		},
		seen: make(map[string]struct{}),
	}

	candidates, paginationFailed := r.paginate(ctx, startURL, maxPages)
	r.fetchDetails(ctx, candidates)

	c.setState(types.StateFinalizing)
	summary := r.finalize(ctx, paginationFailed)

	if summary.TerminationReason == types.ReasonFailed {
		// Failed is sticky until the next run attempt resets it.
		c.setState(types.StateFailed)
	} else {
		c.setState(types.StateIdle)
	}
	return summary, nil
}

// tryStart claims the run slot. Both idle and failed count as startable.
func (c *Coordinator) tryStart() bool {
	if c.state.CompareAndSwap(types.StateIdle, types.StatePaginating) {
		return true
	}
	return c.state.CompareAndSwap(types.StateFailed, types.StatePaginating)
}

func (c *Coordinator) setState(s types.RunState) {
	c.state.Store(s)
}

// activeRun carries the mutable state of one run.
type activeRun struct {
	coordinator *Coordinator
	fetch       fetcher.Fetcher
	log         *logger.Logger
	summary     *types.RunSummary

	seen    map[string]struct{}
	tickets int32

	mu        sync.Mutex
	morePages bool
}

// publishStatus copies the summary counters into the coordinator's status
// under the run lock.
func (r *activeRun) publishStatus(state types.RunState) {
	r.mu.Lock()
	snapshot := *r.summary
	r.mu.Unlock()
	r.coordinator.updateStatus(state, &snapshot)
}

// paginate walks listing pages sequentially, collecting candidates. It stops
// at the page cap, a page with no candidates, a repeated URL, or a fetch
// error; candidates gathered before the error survive.
func (r *activeRun) paginate(ctx context.Context, startURL string, maxPages int) ([]types.ListingCandidate, bool) {
	c := r.coordinator
	var all []types.ListingCandidate
	visited := make(map[string]struct{})
	pageURL := startURL
	failed := false

	for page := 1; page <= maxPages; page++ {
		if ctx.Err() != nil {
			break
		}
		if _, loop := visited[pageURL]; loop {
			r.log.Warn().Str("url", pageURL).Msg("pagination loop detected, stopping")
			break
		}
		visited[pageURL] = struct{}{}

		html, err := r.fetch.Fetch(ctx, pageURL, types.PageIndex)
		if err != nil {
			r.log.Error().Str("url", pageURL).Err(err).Msg("index fetch failed")
			r.addFailure(types.ExtractionFailure{
				SourceURL: pageURL,
				Stage:     types.StageIndex,
				Reason:    "fetch",
				Message:   err.Error(),
			})
			r.summary.FetchFailures++
			failed = page == 1
			break
		}

		r.summary.PagesVisited++
		if c.metrics != nil {
			c.metrics.RecordPageVisited()
		}

		candidates, err := c.extract.ExtractCandidates(html, pageURL, page)
		if err != nil {
			r.log.Error().Str("url", pageURL).Err(err).Msg("index parse failed")
			r.addFailure(types.ExtractionFailure{
				SourceURL: pageURL,
				Stage:     types.StageIndex,
				Reason:    "parse",
				Message:   err.Error(),
			})
			r.summary.ParseFailures++
			if c.metrics != nil {
				c.metrics.RecordParseFailure(string(types.StageIndex))
			}
			break
		}

		fresh := 0
		for _, cand := range candidates {
			if _, dup := r.seen[cand.URL]; dup {
				continue
			}
			r.seen[cand.URL] = struct{}{}
			all = append(all, cand)
			fresh++
		}
		r.summary.CandidatesFound = len(all)
		if c.metrics != nil {
			c.metrics.RecordCandidates(fresh)
		}
		r.publishStatus(types.StatePaginating)

		r.log.Info().
			Int("page", page).
			Str("url", pageURL).
			Int("new_candidates", fresh).
			Int("total_candidates", len(all)).
			Msg("listing page processed")

		if len(candidates) == 0 {
			break
		}

		next := c.extract.NextPageURL(html, pageURL)
		if next == "" {
			break
		}
		if page == maxPages {
			r.mu.Lock()
			r.morePages = true
			r.mu.Unlock()
			break
		}
		pageURL = next
	}

	return all, failed
}

// fetchDetails drains the candidate list through a bounded worker pool.
func (r *activeRun) fetchDetails(ctx context.Context, candidates []types.ListingCandidate) {
	c := r.coordinator
	if len(candidates) == 0 {
		return
	}
	c.setState(types.StateDetailFetching)
	r.publishStatus(types.StateDetailFetching)

	jobs := make(chan types.ListingCandidate)
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cand := range jobs {
				if ctx.Err() != nil {
					continue // drain without processing
				}
				if !r.tryTakeTicket() {
					continue
				}
				if !r.processCandidate(ctx, cand) {
					r.releaseTicket()
				}
			}
		}()
	}

	for _, cand := range candidates {
		jobs <- cand
	}
	close(jobs)
	wg.Wait()
}

// tryTakeTicket reserves one of the run's MaxTicketsPerRun successful-record
// slots. Failed candidates hand their ticket back.
func (r *activeRun) tryTakeTicket() bool {
	max := int32(r.coordinator.cfg.MaxTicketsPerRun)
	for {
		cur := atomic.LoadInt32(&r.tickets)
		if cur >= max {
			return false
		}
		if atomic.CompareAndSwapInt32(&r.tickets, cur, cur+1) {
			return true
		}
	}
}

func (r *activeRun) releaseTicket() {
	atomic.AddInt32(&r.tickets, -1)
}

// processCandidate runs fetch -> extract -> upsert for one candidate.
// Failures are recorded in the summary and never abort the run.
func (r *activeRun) processCandidate(ctx context.Context, cand types.ListingCandidate) bool {
	c := r.coordinator

	html, err := r.fetch.Fetch(ctx, cand.URL, types.PageDetail)
	if err != nil {
		r.log.Warn().Str("url", cand.URL).Err(err).Msg("detail fetch failed")
		r.addFailure(types.ExtractionFailure{
			SourceURL: cand.URL,
			Stage:     types.StageDetail,
			Reason:    "fetch",
			Message:   err.Error(),
		})
		r.countLocked(func(s *types.RunSummary) { s.FetchFailures++ })
		return false
	}

	record, err := c.extract.ExtractRecord(html, cand.URL)
	if err != nil {
		r.log.Warn().Str("url", cand.URL).Err(err).Msg("detail parse failed")
		r.addFailure(types.ExtractionFailure{
			SourceURL: cand.URL,
			Stage:     types.StageDetail,
			Reason:    "parse",
			Message:   err.Error(),
		})
		r.countLocked(func(s *types.RunSummary) { s.ParseFailures++ })
		if c.metrics != nil {
			c.metrics.RecordParseFailure(string(types.StageDetail))
		}
		return false
	}

	r.countLocked(func(s *types.RunSummary) { s.RecordsExtracted++ })
	if c.metrics != nil {
		c.metrics.RecordExtraction()
	}
	r.publishStatus(types.StateDetailFetching)

	result, err := c.store.Upsert(record)
	if err != nil {
		// One short-fused retry covers transient lock contention.
		time.Sleep(c.cfg.UpsertRetryDelay)
		result, err = c.store.Upsert(record)
	}
	if err != nil {
		r.log.Error().Str("url", cand.URL).Err(err).Msg("upsert failed")
		r.addFailure(types.ExtractionFailure{
			SourceURL: cand.URL,
			Stage:     types.StageDetail,
			Reason:    "store",
			Message:   err.Error(),
		})
		r.countLocked(func(s *types.RunSummary) { s.StoreFailures++ })
		if c.metrics != nil {
			c.metrics.RecordStoreFailure()
		}
		// The record was extracted; the ticket stays taken.
		return true
	}

	r.countLocked(func(s *types.RunSummary) {
		switch result {
		case database.Inserted:
			s.RecordsInserted++
		case database.Updated:
			s.RecordsUpdated++
		case database.Unchanged:
			s.RecordsUnchanged++
		}
	})
	if c.metrics != nil {
		c.metrics.RecordUpsert(string(result))
	}
	return true
}

func (r *activeRun) addFailure(f types.ExtractionFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Failures = append(r.summary.Failures, f)
}

func (r *activeRun) countLocked(apply func(*types.RunSummary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	apply(r.summary)
}

// finalize stamps the summary, persists it, and records run metrics.
func (r *activeRun) finalize(ctx context.Context, paginationFailed bool) *types.RunSummary {
	c := r.coordinator
	s := r.summary
	s.FinishedAt = time.Now().UTC()
	s.Elapsed = s.FinishedAt.Sub(s.StartedAt)
	s.TerminationReason = r.terminationReason(ctx, paginationFailed)

	// Persisting the summary must not depend on the run's own context, which
	// may already be canceled.
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.runs.SaveRun(saveCtx, s); err != nil {
		r.log.Warn().Err(err).Msg("failed to persist run summary")
	}

	if c.metrics != nil {
		c.metrics.RecordRun(string(s.TerminationReason), s.Elapsed)
	}
	r.publishStatus(types.StateFinalizing)

	r.log.Info().
		Str("reason", string(s.TerminationReason)).
		Int("pages", s.PagesVisited).
		Int("candidates", s.CandidatesFound).
		Int("extracted", s.RecordsExtracted).
		Int("inserted", s.RecordsInserted).
		Int("updated", s.RecordsUpdated).
		Int("unchanged", s.RecordsUnchanged).
		Dur("elapsed", s.Elapsed).
		Msg("run finished")
	return s
}

func (r *activeRun) terminationReason(ctx context.Context, paginationFailed bool) types.TerminationReason {
	s := r.summary
	switch {
	case ctx.Err() != nil:
		return types.ReasonCancelled
	case paginationFailed && s.CandidatesFound == 0:
		return types.ReasonFailed
	case atomic.LoadInt32(&r.tickets) >= int32(r.coordinator.cfg.MaxTicketsPerRun) &&
		s.RecordsExtracted+s.ParseFailures+s.FetchFailures+s.StoreFailures < s.CandidatesFound:
		return types.ReasonTicketCap
	case r.hitPageCap():
		return types.ReasonPageCap
	case s.CandidatesFound == 0:
		return types.ReasonNoMorePages
	default:
		return types.ReasonCompleted
	}
}

func (r *activeRun) hitPageCap() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.morePages
}

func (c *Coordinator) updateStatus(state types.RunState, s *types.RunSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.State = state
	c.current.PagesVisited = s.PagesVisited
	c.current.CandidatesFound = s.CandidatesFound
	c.current.RecordsExtracted = s.RecordsExtracted
}
