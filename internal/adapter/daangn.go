package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/jobwatch/crawler/internal/crawler"
	"github.com/jobwatch/crawler/internal/fingerprint"
)

const (
	daangnJobURLFormat = "https://about.daangn.com/jobs/%s/"
	daangnBrand        = "당근"
	daangnDefaultCorp  = "당근마켓"
)

// Daangn polls Daangn's Greenhouse job-board API: one GET returning every
// open posting under a "jobs" key.
type Daangn struct {
	fetcher crawler.Fetcher
	logger  *zap.Logger
}

// NewDaangn builds the Daangn adapter.
func NewDaangn(fetcher crawler.Fetcher, logger *zap.Logger) *Daangn {
	return &Daangn{fetcher: fetcher, logger: logger}
}

type daangnEnvelope struct {
	Jobs []json.RawMessage `json:"jobs"`
}

type daangnJob struct {
	ID             any         `json:"id"`
	Title          string      `json:"title"`
	UpdatedAt      string      `json:"updated_at"`
	FirstPublished string      `json:"first_published"`
	RequisitionID  string      `json:"requisition_id"`
	Content        string      `json:"content"`
	Location       *nameField  `json:"location"`
	Departments    []nameField `json:"departments"`
	Metadata       []metaEntry `json:"metadata"`
}

type daangnContent struct {
	Location                   string          `json:"location"`
	Departments                []string        `json:"departments"`
	FirstPublished             string          `json:"first_published"`
	UpdatedAt                  string          `json:"updated_at"`
	RequisitionID              string          `json:"requisition_id"`
	EmploymentType             string          `json:"employment_type"`
	PriorExperience            string          `json:"prior_experience"`
	AlternativeCivilianService string          `json:"alternative_civilian_service"`
	Keywords                   string          `json:"keywords"`
	DescriptionHTML            string          `json:"description_html"`
	Raw                        json.RawMessage `json:"raw"`
}

// Poll implements Adapter.
func (a *Daangn) Poll(ctx context.Context, target crawler.CrawlTarget) (Result, error) {
	body, err := a.fetcher.Fetch(ctx, target.ListURL)
	if err != nil {
		return Result{}, fmt.Errorf("fetch api: %w", err)
	}

	var envelope daangnEnvelope
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return Result{}, &crawler.PayloadError{Source: "daangn", Reason: "invalid JSON response", Err: err}
	}
	if len(envelope.Jobs) == 0 {
		a.logger.Warn("no jobs in response", zap.String("target", target.Name))
		return Result{Fingerprint: target.LastFingerprint}, nil
	}

	type rawJob struct {
		raw json.RawMessage
		job daangnJob
	}
	jobs := make([]rawJob, 0, len(envelope.Jobs))
	pairs := make([]fingerprint.Pair, 0, len(envelope.Jobs))
	for _, raw := range envelope.Jobs {
		var job daangnJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return Result{}, &crawler.PayloadError{Source: "daangn", Reason: "decode job", Err: err}
		}
		jobs = append(jobs, rawJob{raw: raw, job: job})
		pairs = append(pairs, fingerprint.Pair{ID: stringify(job.ID), Modified: job.UpdatedAt})
	}

	fp := fingerprint.Pairs(pairs)
	if fp == target.LastFingerprint {
		return Result{Fingerprint: fp}, nil
	}

	result := Result{Fingerprint: fp}
	for _, rj := range jobs {
		id := stringify(rj.job.ID)
		if id == "" {
			a.logger.Warn("missing id for job",
				zap.String("target", target.Name),
				zap.String("title", rj.job.Title),
			)
			continue
		}

		meta := metaMap(rj.job.Metadata)
		departments := make([]string, 0, len(rj.job.Departments))
		for _, d := range rj.job.Departments {
			if d.Name != "" {
				departments = append(departments, d.Name)
			}
		}

		content, err := json.Marshal(daangnContent{
			Location:                   locationName(rj.job.Location),
			Departments:                departments,
			FirstPublished:             rj.job.FirstPublished,
			UpdatedAt:                  rj.job.UpdatedAt,
			RequisitionID:              rj.job.RequisitionID,
			EmploymentType:             meta["Employment Type"],
			PriorExperience:            meta["Prior Experience"],
			AlternativeCivilianService: meta["Alternative Civilian Service"],
			Keywords:                   meta["Keywords"],
			DescriptionHTML:            rj.job.Content,
			Raw:                        rj.raw,
		})
		if err != nil {
			a.logger.Error("marshal content failed",
				zap.String("target", target.Name),
				zap.String("title", rj.job.Title),
				zap.Error(err),
			)
			result.ItemErrors++
			continue
		}

		result.Postings = append(result.Postings, crawler.NormalizedPosting{
			Title:       titleOr(rj.job.Title),
			CompanyName: daangnCompanyName(meta),
			URL:         fmt.Sprintf(daangnJobURLFormat, id),
			Content:     string(content),
		})
	}
	return result, nil
}

// daangnCompanyName derives "당근 / <subsidiary>" when the Corporate
// metadata names an entity other than the default corporation.
func daangnCompanyName(meta map[string]string) string {
	if corporate := meta["Corporate"]; corporate != "" && corporate != daangnDefaultCorp {
		return daangnBrand + " / " + corporate
	}
	return daangnBrand
}
