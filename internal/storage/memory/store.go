// Package memory provides an in-memory store for development and testing.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jobwatch/crawler/internal/crawler"
)

// Store implements both TargetStore and PostingStore in process memory.
type Store struct {
	mu       sync.RWMutex
	targets  map[string]crawler.CrawlTarget
	postings map[string]crawler.JobPosting
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		targets:  make(map[string]crawler.CrawlTarget),
		postings: make(map[string]crawler.JobPosting),
	}
}

// AddTarget seeds a crawl target.
func (s *Store) AddTarget(target crawler.CrawlTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[target.ID] = target
}

// GetTarget fetches a target by ID.
func (s *Store) GetTarget(id string) (crawler.CrawlTarget, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[id]
	return t, ok
}

// SelectActiveTargets returns every active target.
func (s *Store) SelectActiveTargets(_ context.Context) ([]crawler.CrawlTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.CrawlTarget
	for _, t := range s.targets {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

// UpdateTargetChecked stamps the checked time on a target.
func (s *Store) UpdateTargetChecked(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return errors.New("target not found")
	}
	t.LastCheckedAt = pointerTime(time.Now().UTC())
	s.targets[id] = t
	return nil
}

// UpdateTargetFingerprint stores a new fingerprint and clears the error.
func (s *Store) UpdateTargetFingerprint(_ context.Context, id, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return errors.New("target not found")
	}
	t.LastFingerprint = digest
	t.LastCheckedAt = pointerTime(time.Now().UTC())
	t.LastError = ""
	s.targets[id] = t
	return nil
}

// UpdateTargetError records a failure message on a target.
func (s *Store) UpdateTargetError(_ context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return errors.New("target not found")
	}
	t.LastError = message
	t.LastCheckedAt = pointerTime(time.Now().UTC())
	s.targets[id] = t
	return nil
}

// GetPostingByURL fetches a posting by canonical URL.
func (s *Store) GetPostingByURL(_ context.Context, url string) (crawler.JobPosting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.postings[url]
	if !ok {
		return crawler.JobPosting{}, crawler.ErrNotFound
	}
	return p, nil
}

// InsertPosting stores a new posting.
func (s *Store) InsertPosting(_ context.Context, posting crawler.JobPosting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.postings[posting.URL]; exists {
		return errors.New("posting already exists")
	}
	s.postings[posting.URL] = posting
	return nil
}

// UpdatePosting rewrites the mutable fields of the posting at url.
func (s *Store) UpdatePosting(_ context.Context, url string, update crawler.PostingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.postings[url]
	if !ok {
		return crawler.ErrNotFound
	}
	p.Title = update.Title
	p.CompanyName = update.CompanyName
	p.Content = update.Content
	p.UpdatedAt = update.UpdatedAt
	s.postings[url] = p
	return nil
}

func pointerTime(t time.Time) *time.Time {
	return &t
}
