package types

import "time"

// PageKind distinguishes listing-index pages from ad detail pages.
type PageKind string

const (
	PageIndex  PageKind = "index"
	PageDetail PageKind = "detail"
)

// ListingCandidate is a detail-page URL discovered on an index page.
// It lives only for the duration of a run and is never persisted.
type ListingCandidate struct {
	URL              string `json:"url"`
	DiscoveredAtPage int    `json:"discovered_at_page"`
}

// CarRecord is the canonical persisted entity extracted from a detail page.
// Optional fields are pointers; nil means the value was never observed.
type CarRecord struct {
	NaturalKey      string    `json:"natural_key"`
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	PriceUSD        *float64  `json:"price_usd,omitempty"`
	OdometerKm      *int      `json:"odometer_km,omitempty"`
	SellerName      *string   `json:"seller_name,omitempty"`
	PhoneNumber     *string   `json:"phone_number,omitempty"`
	PrimaryImageURL *string   `json:"primary_image_url,omitempty"`
	ImagesCount     int       `json:"images_count"`
	PlateNumber     *string   `json:"plate_number,omitempty"`
	VIN             *string   `json:"vin,omitempty"`
	Location        *string   `json:"location,omitempty"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
	LastUpdatedAt   time.Time `json:"last_updated_at"`
}

// RunState is the coordinator's lifecycle state.
type RunState string

const (
	StateIdle           RunState = "idle"
	StatePaginating     RunState = "paginating"
	StateDetailFetching RunState = "detail_fetching"
	StateFinalizing     RunState = "finalizing"
	StateFailed         RunState = "failed"
)

// TerminationReason explains why a run stopped.
type TerminationReason string

const (
	ReasonCompleted   TerminationReason = "completed"
	ReasonTicketCap   TerminationReason = "ticket_cap"
	ReasonPageCap     TerminationReason = "page_cap"
	ReasonNoMorePages TerminationReason = "no_more_pages"
	ReasonCancelled   TerminationReason = "cancelled"
	ReasonFailed      TerminationReason = "failed"
)

// FailureStage marks which half of the pipeline a failure occurred in.
type FailureStage string

const (
	StageIndex  FailureStage = "index"
	StageDetail FailureStage = "detail"
)

// ExtractionFailure records a single candidate or page that could not be
// processed. Failures accumulate into the RunSummary; they never abort a run.
type ExtractionFailure struct {
	SourceURL string       `json:"source_url"`
	Stage     FailureStage `json:"stage"`
	Reason    string       `json:"reason"`
	Message   string       `json:"message,omitempty"`
}

// RunSummary is the per-run report returned by the coordinator.
type RunSummary struct {
	RunID             string              `json:"run_id"`
	StartedAt         time.Time           `json:"started_at"`
	FinishedAt        time.Time           `json:"finished_at"`
	PagesVisited      int                 `json:"pages_visited"`
	CandidatesFound   int                 `json:"candidates_found"`
	RecordsExtracted  int                 `json:"records_extracted"`
	RecordsInserted   int                 `json:"records_inserted"`
	RecordsUpdated    int                 `json:"records_updated"`
	RecordsUnchanged  int                 `json:"records_unchanged"`
	ParseFailures     int                 `json:"parse_failures"`
	FetchFailures     int                 `json:"fetch_failures"`
	StoreFailures     int                 `json:"store_failures"`
	Elapsed           time.Duration       `json:"elapsed"`
	TerminationReason TerminationReason   `json:"termination_reason"`
	Failures          []ExtractionFailure `json:"failures,omitempty"`
}

// RunStatus describes the active or most recently finished run.
type RunStatus struct {
	State            RunState   `json:"state"`
	RunID            string     `json:"run_id,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	PagesVisited     int        `json:"pages_visited"`
	CandidatesFound  int        `json:"candidates_found"`
	RecordsExtracted int        `json:"records_extracted"`
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to v.
func StringPtr(v string) *string { return &v }
