package dto

import (
	"time"

	"jobradar/internal/domain/job"
)

type SalaryResponse struct {
	Min      *float64 `json:"min"`
	Max      *float64 `json:"max"`
	Currency *string  `json:"currency"`
	Period   *string  `json:"period"`
	Type     string   `json:"type"`
}

type JobResponse struct {
	ID                           string         `json:"id"`
	Title                        string         `json:"title"`
	Company                      string         `json:"company"`
	CompanyURL                   *string        `json:"company_url,omitempty"`
	Location                     *string        `json:"location"`
	Description                  *string        `json:"description,omitempty"`
	URL                          string         `json:"url"`
	Site                         string         `json:"site"`
	JobType                      *string        `json:"job_type"`
	IsRemote                     *bool          `json:"is_remote"`
	DatePosted                   string         `json:"date_posted,omitempty"`
	Salary                       SalaryResponse `json:"salary"`
	CoreSkills                   []string       `json:"core_skills,omitempty"`
	NiceToHaveSkills             []string       `json:"nice_to_have_skills,omitempty"`
	RealisticExperienceLevel     string         `json:"realistic_experience_level,omitempty"`
	TransferableSkillsIndicators []string       `json:"transferable_skills_indicators,omitempty"`
	ActualJobComplexity          string         `json:"actual_job_complexity,omitempty"`
	CollectedAt                  string         `json:"collected_at"`
}

type ScoredJobResponse struct {
	JobResponse
	Score float64 `json:"score"`
}

func NewJobResponse(j job.Job) JobResponse {
	out := JobResponse{
		ID:          j.ID.String(),
		Title:       j.Title,
		Company:     j.Company,
		CompanyURL:  j.CompanyURL,
		Location:    j.Location,
		Description: j.Description,
		URL:         j.URL,
		Site:        j.Site,
		JobType:     j.JobType,
		IsRemote:    j.IsRemote,
		Salary: SalaryResponse{
			Min:      j.Salary.Min,
			Max:      j.Salary.Max,
			Currency: j.Salary.Currency,
			Period:   j.Salary.Period,
			Type:     j.Salary.Type,
		},
		CollectedAt: j.CollectedAt.UTC().Format(time.RFC3339),
	}
	if j.DatePosted != nil && !j.DatePosted.IsZero() {
		out.DatePosted = j.DatePosted.UTC().Format("2006-01-02")
	}
	if e := j.Extraction; e != nil {
		out.CoreSkills = e.CoreSkills
		out.NiceToHaveSkills = e.NiceToHaveSkills
		out.RealisticExperienceLevel = e.RealisticExperienceLevel
		out.TransferableSkillsIndicators = e.TransferableSkillsIndicators
		out.ActualJobComplexity = e.ActualJobComplexity
	}
	return out
}

func NewJobResponses(jobs []job.Job) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, NewJobResponse(j))
	}
	return out
}

func NewScoredJobResponses(scored []job.Scored) []ScoredJobResponse {
	out := make([]ScoredJobResponse, 0, len(scored))
	for _, s := range scored {
		out = append(out, ScoredJobResponse{JobResponse: NewJobResponse(s.Job), Score: s.Score})
	}
	return out
}
