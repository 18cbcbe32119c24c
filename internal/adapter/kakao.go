package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/jobwatch/crawler/internal/crawler"
	"github.com/jobwatch/crawler/internal/fingerprint"
)

const (
	kakaoJobURLFormat = "https://careers.kakao.com/jobs/%s"
	kakaoBrand        = "카카오"
)

// Kakao groups jobs into these categories; the API offers no "all" option,
// so a poll iterates every part with page-by-page pagination.
var kakaoParts = []string{"TECHNOLOGY", "BUSINESS_SERVICES", "STAFF", "DESIGN"}

// Kakao polls the Kakao careers REST API.
type Kakao struct {
	fetcher crawler.Fetcher
	logger  *zap.Logger
}

// NewKakao builds the Kakao adapter.
func NewKakao(fetcher crawler.Fetcher, logger *zap.Logger) *Kakao {
	return &Kakao{fetcher: fetcher, logger: logger}
}

type kakaoEnvelope struct {
	JobList   []json.RawMessage `json:"jobList"`
	TotalPage int               `json:"totalPage"`
}

type kakaoJob struct {
	RealID              any          `json:"realId"`
	Title               string       `json:"jobOfferTitle"`
	CompanyName         string       `json:"companyName"`
	CompanyNameEn       string       `json:"companyNameEn"`
	UptDate             string       `json:"uptDate"`
	RegDate             string       `json:"regDate"`
	EndDate             string       `json:"endDate"`
	JobPartName         string       `json:"jobPartName"`
	LocationName        string       `json:"locationName"`
	LocationNameEn      string       `json:"locationNameEn"`
	EmployeeTypeName    string       `json:"employeeTypeName"`
	EmployeeTypeNameEn  string       `json:"employeeTypeNameEn"`
	WorkTypeName        string       `json:"workTypeName"`
	RecruitCount        any          `json:"recruitCount"`
	SkillSetList        []kakaoSkill `json:"skillSetList"`
	Introduction        string       `json:"introduction"`
	WorkContentDesc     string       `json:"workContentDesc"`
	Qualification       string       `json:"qualification"`
	JobOfferProcessDesc string       `json:"jobOfferProcessDesc"`
	KrewComment         string       `json:"krewComment"`
}

type kakaoSkill struct {
	SkillSetName string `json:"skillSetName"`
}

type kakaoContent struct {
	JobPart        string          `json:"job_part"`
	CompanyName    string          `json:"company_name"`
	CompanyNameEn  string          `json:"company_name_en"`
	Location       string          `json:"location"`
	LocationEn     string          `json:"location_en"`
	EmployeeType   string          `json:"employee_type"`
	EmployeeTypeEn string          `json:"employee_type_en"`
	WorkType       string          `json:"work_type"`
	RecruitCount   any             `json:"recruit_count"`
	RegDate        string          `json:"reg_date"`
	UpdatedAt      string          `json:"updated_at"`
	EndDate        string          `json:"end_date"`
	Skills         []string        `json:"skills"`
	Introduction   string          `json:"introduction"`
	WorkContent    string          `json:"work_content"`
	Qualification  string          `json:"qualification"`
	HiringProcess  string          `json:"hiring_process"`
	KrewComment    string          `json:"krew_comment"`
	Raw            json.RawMessage `json:"raw"`
}

type kakaoItem struct {
	raw json.RawMessage
	job kakaoJob
}

// Poll implements Adapter.
func (a *Kakao) Poll(ctx context.Context, target crawler.CrawlTarget) (Result, error) {
	items, err := a.fetchAllParts(ctx, target.ListURL)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		a.logger.Warn("no jobs in response", zap.String("target", target.Name))
		return Result{Fingerprint: target.LastFingerprint}, nil
	}

	pairs := make([]fingerprint.Pair, 0, len(items))
	for _, item := range items {
		pairs = append(pairs, fingerprint.Pair{ID: stringify(item.job.RealID), Modified: item.job.UptDate})
	}

	fp := fingerprint.Pairs(pairs)
	if fp == target.LastFingerprint {
		return Result{Fingerprint: fp}, nil
	}

	result := Result{Fingerprint: fp}
	for _, item := range items {
		realID := stringify(item.job.RealID)
		if realID == "" {
			a.logger.Warn("missing realId for job",
				zap.String("target", target.Name),
				zap.String("title", item.job.Title),
			)
			continue
		}

		skills := make([]string, 0, len(item.job.SkillSetList))
		for _, s := range item.job.SkillSetList {
			if s.SkillSetName != "" {
				skills = append(skills, s.SkillSetName)
			}
		}

		content, err := json.Marshal(kakaoContent{
			JobPart:        item.job.JobPartName,
			CompanyName:    item.job.CompanyName,
			CompanyNameEn:  item.job.CompanyNameEn,
			Location:       item.job.LocationName,
			LocationEn:     item.job.LocationNameEn,
			EmployeeType:   item.job.EmployeeTypeName,
			EmployeeTypeEn: item.job.EmployeeTypeNameEn,
			WorkType:       item.job.WorkTypeName,
			RecruitCount:   item.job.RecruitCount,
			RegDate:        item.job.RegDate,
			UpdatedAt:      item.job.UptDate,
			EndDate:        item.job.EndDate,
			Skills:         skills,
			Introduction:   item.job.Introduction,
			WorkContent:    item.job.WorkContentDesc,
			Qualification:  item.job.Qualification,
			HiringProcess:  item.job.JobOfferProcessDesc,
			KrewComment:    item.job.KrewComment,
			Raw:            item.raw,
		})
		if err != nil {
			a.logger.Error("marshal content failed",
				zap.String("target", target.Name),
				zap.String("title", item.job.Title),
				zap.Error(err),
			)
			result.ItemErrors++
			continue
		}

		result.Postings = append(result.Postings, crawler.NormalizedPosting{
			Title:       titleOr(item.job.Title),
			CompanyName: kakaoCompanyName(item.job.CompanyName),
			URL:         fmt.Sprintf(kakaoJobURLFormat, realID),
			Content:     string(content),
		})
	}
	return result, nil
}

// fetchAllParts walks every category and its pages until the reported
// totalPage count is satisfied.
func (a *Kakao) fetchAllParts(ctx context.Context, baseURL string) ([]kakaoItem, error) {
	var items []kakaoItem
	for _, part := range kakaoParts {
		for page := 1; ; page++ {
			pageURL, err := kakaoPageURL(baseURL, part, page)
			if err != nil {
				return nil, &crawler.PayloadError{Source: "kakao", Reason: "invalid api url", Err: err}
			}

			body, err := a.fetcher.Fetch(ctx, pageURL)
			if err != nil {
				return nil, fmt.Errorf("fetch api part %s page %d: %w", part, page, err)
			}

			var envelope kakaoEnvelope
			if err := json.Unmarshal([]byte(body), &envelope); err != nil {
				return nil, &crawler.PayloadError{Source: "kakao", Reason: "invalid JSON response", Err: err}
			}

			for _, raw := range envelope.JobList {
				var job kakaoJob
				if err := json.Unmarshal(raw, &job); err != nil {
					return nil, &crawler.PayloadError{Source: "kakao", Reason: "decode job", Err: err}
				}
				items = append(items, kakaoItem{raw: raw, job: job})
			}

			totalPage := envelope.TotalPage
			if totalPage < 1 {
				totalPage = 1
			}
			if page >= totalPage {
				break
			}
		}
	}
	return items, nil
}

func kakaoPageURL(baseURL, part string, page int) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("part", part)
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func kakaoCompanyName(name string) string {
	if name == "" {
		return kakaoBrand
	}
	return name
}
