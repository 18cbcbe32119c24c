package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobwatch/crawler/internal/crawler"
)

const daangnListURL = "https://boards-api.greenhouse.io/v1/boards/daangn/jobs?content=true"

func daangnTarget() crawler.CrawlTarget {
	return crawler.CrawlTarget{
		ID:      "t-daangn",
		Name:    "Daangn",
		ListURL: daangnListURL,
		Kind:    crawler.KindDaangnAPI,
		Active:  true,
	}
}

const daangnBody = `{
	"jobs": [
		{
			"id": 5001,
			"title": "Software Engineer, Backend",
			"updated_at": "2026-08-10T02:00:00-04:00",
			"first_published": "2026-07-01T02:00:00-04:00",
			"requisition_id": "DG-1",
			"content": "&lt;p&gt;Build the marketplace.&lt;/p&gt;",
			"location": {"name": "서울"},
			"departments": [{"name": "Engineering"}],
			"metadata": [
				{"name": "Employment Type", "value": "정규직"},
				{"name": "Corporate", "value": "당근페이"}
			]
		},
		{
			"id": 5002,
			"title": "Product Designer",
			"updated_at": "2026-08-09T02:00:00-04:00",
			"location": {"name": "서울"},
			"departments": [],
			"metadata": [{"name": "Corporate", "value": "당근마켓"}]
		}
	]
}`

func TestDaangnPollMapsJobs(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{daangnListURL: daangnBody}}
	a := NewDaangn(fetcher, zap.NewNop())

	res, err := a.Poll(context.Background(), daangnTarget())
	require.NoError(t, err)
	require.NotEmpty(t, res.Fingerprint)
	require.Len(t, res.Postings, 2)

	first := res.Postings[0]
	require.Equal(t, "Software Engineer, Backend", first.Title)
	require.Equal(t, "당근 / 당근페이", first.CompanyName)
	require.Equal(t, "https://about.daangn.com/jobs/5001/", first.URL)

	var content map[string]any
	require.NoError(t, json.Unmarshal([]byte(first.Content), &content))
	require.Equal(t, "서울", content["location"])
	require.Equal(t, "정규직", content["employment_type"])
	require.Equal(t, []any{"Engineering"}, content["departments"])

	// The default corporation maps to the bare brand name.
	require.Equal(t, "당근", res.Postings[1].CompanyName)
	require.Equal(t, "https://about.daangn.com/jobs/5002/", res.Postings[1].URL)
}

func TestDaangnPollEmptyJobsKeepsFingerprint(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{daangnListURL: `{"jobs": []}`}}
	a := NewDaangn(fetcher, zap.NewNop())

	target := daangnTarget()
	target.LastFingerprint = "previous-digest"
	res, err := a.Poll(context.Background(), target)
	require.NoError(t, err)
	require.Equal(t, "previous-digest", res.Fingerprint)
	require.Empty(t, res.Postings)
}

func TestDaangnPollInvalidJSON(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{daangnListURL: `not json`}}
	a := NewDaangn(fetcher, zap.NewNop())

	_, err := a.Poll(context.Background(), daangnTarget())
	var pe *crawler.PayloadError
	require.True(t, errors.As(err, &pe))
}

func TestDaangnPollUnchangedFingerprint(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{daangnListURL: daangnBody}}
	a := NewDaangn(fetcher, zap.NewNop())

	first, err := a.Poll(context.Background(), daangnTarget())
	require.NoError(t, err)

	target := daangnTarget()
	target.LastFingerprint = first.Fingerprint
	second, err := a.Poll(context.Background(), target)
	require.NoError(t, err)
	require.Empty(t, second.Postings)
}

func TestDaangnPollDropsJobWithoutID(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{daangnListURL: `{
		"jobs": [{"title": "Ghost", "updated_at": "2026-08-01"}]
	}`}}
	a := NewDaangn(fetcher, zap.NewNop())

	res, err := a.Poll(context.Background(), daangnTarget())
	require.NoError(t, err)
	require.Empty(t, res.Postings)
}
