// Package crawler defines core types shared across subsystems.
package crawler

import "time"

// AdapterKind discriminates which source adapter handles a target.
type AdapterKind string

// Adapter kinds persisted in the crawl_targets table.
const (
	KindHTML      AdapterKind = "html"
	KindTossAPI   AdapterKind = "toss_job_groups_api"
	KindDaangnAPI AdapterKind = "daangn_greenhouse_api"
	KindKakaoAPI  AdapterKind = "kakao_api"
)

// CrawlTarget is a configured source to poll. Targets are seeded externally;
// the crawler only reads them and updates their bookkeeping columns after a
// pass.
type CrawlTarget struct {
	ID              string
	Name            string
	ListURL         string
	Kind            AdapterKind
	ParserConfig    map[string]string
	Active          bool
	LastFingerprint string
	LastCheckedAt   *time.Time
	LastError       string
}

// NormalizedPosting is the common record shape every adapter emits, one per
// upstream job item. URL is the canonical source URL and the sole identity
// key; postings without one are dropped before reconciliation.
type NormalizedPosting struct {
	Title       string
	CompanyName string
	URL         string
	Content     string
}

// JobPosting is the persisted record. AnalysisResult is owned by a
// downstream consumer and never written here.
type JobPosting struct {
	ID             string
	TargetID       string
	Title          string
	CompanyName    string
	Content        string
	URL            string
	AnalysisResult *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PostingUpdate carries the mutable fields written when an existing URL
// reappears with different content.
type PostingUpdate struct {
	Title       string
	CompanyName string
	Content     string
	UpdatedAt   time.Time
}

// Outcome classifies a single reconciliation.
type Outcome string

// Reconciliation outcomes.
const (
	OutcomeNew     Outcome = "NEW"
	OutcomeUpdated Outcome = "UPDATED"
	OutcomeSkip    Outcome = "SKIP"
)

// PassStats aggregates reconciliation outcomes and errors over a pass.
type PassStats struct {
	New     int
	Updated int
	Skipped int
	Errors  int
}

// Count accumulates a single reconciliation outcome.
func (s *PassStats) Count(o Outcome) {
	switch o {
	case OutcomeNew:
		s.New++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeSkip:
		s.Skipped++
	}
}

// Merge adds another stats value into s.
func (s *PassStats) Merge(other PassStats) {
	s.New += other.New
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Errors += other.Errors
}

// ChangeEvent is published when a posting is created or updated.
type ChangeEvent struct {
	URL         string    `json:"url"`
	Outcome     Outcome   `json:"outcome"`
	TargetID    string    `json:"target_id"`
	Title       string    `json:"title"`
	CompanyName string    `json:"company_name"`
	ObservedAt  time.Time `json:"observed_at"`
}
