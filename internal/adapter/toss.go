package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/jobwatch/crawler/internal/crawler"
	"github.com/jobwatch/crawler/internal/fingerprint"
)

// Metadata keys on Toss job records. The recruiting tool exposes the raw
// form-field prompts as metadata names, Korean included.
const (
	tossMetaSubsidiary = "포지션의 소속 자회사를 선택해 주세요."
	tossMetaEmployment = "Employment_Type"
	tossMetaCategory   = "커리어 페이지 노출 Job Category 값을 선택해주세요"
	tossMetaKeywordsExternal = "외부 노출용 키워드를 입력해주세요. (최대 4개  / 1번 키워드 = 포지션 카테고리 / " +
		"나머지 키워드 = 포지션 특성에 맞게 작성)"
	tossMetaKeywordsSearch = "검색에 쓰일 키워드를 입력해주세요(신규 비즈니스의 초기멤버라면, 초기멤버 키워드를 작성하세요)"
	tossMetaDescription    = "Job Description을 작성해 주세요.(작성 전, 채용 커뮤니케이션 가이드 노션을 꼭 참고해 주세요.)"
)

// Toss polls the Toss job-groups API. Each group carries one primary job;
// change detection hashes the (id, updated_at) pairs of those jobs.
type Toss struct {
	fetcher crawler.Fetcher
	logger  *zap.Logger
}

// NewToss builds the Toss adapter.
func NewToss(fetcher crawler.Fetcher, logger *zap.Logger) *Toss {
	return &Toss{fetcher: fetcher, logger: logger}
}

type tossEnvelope struct {
	ResultType string      `json:"resultType"`
	Success    []tossGroup `json:"success"`
}

type tossGroup struct {
	Title      string          `json:"title"`
	PrimaryJob json.RawMessage `json:"primary_job"`
}

type tossJob struct {
	ID             any         `json:"id"`
	Title          string      `json:"title"`
	AbsoluteURL    string      `json:"absolute_url"`
	UpdatedAt      string      `json:"updated_at"`
	FirstPublished string      `json:"first_published"`
	RequisitionID  string      `json:"requisition_id"`
	Location       *nameField  `json:"location"`
	Metadata       []metaEntry `json:"metadata"`
}

type nameField struct {
	Name string `json:"name"`
}

// tossContent is the structured projection persisted as the posting content.
// The raw job object rides along for forward compatibility.
type tossContent struct {
	JobGroupTitle    string          `json:"job_group_title"`
	Location         string          `json:"location"`
	RequisitionID    string          `json:"requisition_id"`
	FirstPublished   string          `json:"first_published"`
	UpdatedAt        string          `json:"updated_at"`
	EmploymentType   string          `json:"employment_type"`
	JobCategory      string          `json:"job_category"`
	KeywordsExternal string          `json:"keywords_external"`
	KeywordsSearch   string          `json:"keywords_search"`
	Description      string          `json:"description_markdown"`
	Raw              json.RawMessage `json:"raw"`
}

// Poll implements Adapter.
func (a *Toss) Poll(ctx context.Context, target crawler.CrawlTarget) (Result, error) {
	body, err := a.fetcher.Fetch(ctx, target.ListURL)
	if err != nil {
		return Result{}, fmt.Errorf("fetch api: %w", err)
	}

	var envelope tossEnvelope
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return Result{}, &crawler.PayloadError{Source: "toss", Reason: "invalid JSON response", Err: err}
	}
	if envelope.ResultType != "SUCCESS" {
		return Result{}, &crawler.PayloadError{
			Source: "toss",
			Reason: fmt.Sprintf("API returned non-SUCCESS: %s", envelope.ResultType),
		}
	}
	if len(envelope.Success) == 0 {
		a.logger.Warn("no job groups in response", zap.String("target", target.Name))
		return Result{Fingerprint: target.LastFingerprint}, nil
	}

	type groupJob struct {
		group tossGroup
		job   tossJob
	}
	var (
		jobs  []groupJob
		pairs []fingerprint.Pair
	)
	for _, group := range envelope.Success {
		if len(group.PrimaryJob) == 0 || string(group.PrimaryJob) == "null" {
			continue
		}
		var job tossJob
		if err := json.Unmarshal(group.PrimaryJob, &job); err != nil {
			return Result{}, &crawler.PayloadError{Source: "toss", Reason: "decode primary job", Err: err}
		}
		jobs = append(jobs, groupJob{group: group, job: job})
		pairs = append(pairs, fingerprint.Pair{ID: stringify(job.ID), Modified: job.UpdatedAt})
	}

	fp := fingerprint.Pairs(pairs)
	if fp == target.LastFingerprint {
		return Result{Fingerprint: fp}, nil
	}

	result := Result{Fingerprint: fp}
	for _, gj := range jobs {
		if gj.job.AbsoluteURL == "" {
			a.logger.Warn("missing absolute_url for job",
				zap.String("target", target.Name),
				zap.String("group", gj.group.Title),
			)
			continue
		}

		meta := metaMap(gj.job.Metadata)
		content, err := json.Marshal(tossContent{
			JobGroupTitle:    gj.group.Title,
			Location:         locationName(gj.job.Location),
			RequisitionID:    gj.job.RequisitionID,
			FirstPublished:   gj.job.FirstPublished,
			UpdatedAt:        gj.job.UpdatedAt,
			EmploymentType:   meta[tossMetaEmployment],
			JobCategory:      meta[tossMetaCategory],
			KeywordsExternal: meta[tossMetaKeywordsExternal],
			KeywordsSearch:   meta[tossMetaKeywordsSearch],
			Description:      meta[tossMetaDescription],
			Raw:              gj.group.PrimaryJob,
		})
		if err != nil {
			a.logger.Error("marshal content failed",
				zap.String("target", target.Name),
				zap.String("title", gj.job.Title),
				zap.Error(err),
			)
			result.ItemErrors++
			continue
		}

		result.Postings = append(result.Postings, crawler.NormalizedPosting{
			Title:       titleOr(gj.job.Title),
			CompanyName: tossCompanyName(meta),
			URL:         gj.job.AbsoluteURL,
			Content:     string(content),
		})
	}
	return result, nil
}

func tossCompanyName(meta map[string]string) string {
	if subsidiary := meta[tossMetaSubsidiary]; subsidiary != "" {
		return "Toss / " + subsidiary
	}
	return "Toss"
}

func locationName(loc *nameField) string {
	if loc == nil {
		return ""
	}
	return loc.Name
}

func titleOr(title string) string {
	if title == "" {
		return "Untitled"
	}
	return title
}
