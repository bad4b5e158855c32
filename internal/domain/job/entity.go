package job

import (
	"time"

	"github.com/google/uuid"
)

// UnknownCompany is stored when no company can be determined for a listing.
const UnknownCompany = "Unknown Company"

const (
	SalaryRange        = "range"
	SalaryStarting     = "starting"
	SalaryNegotiable   = "negotiable"
	SalaryNotSpecified = "not_specified"
)

type Job struct {
	ID          uuid.UUID
	DedupKey    string
	Title       string
	Company     string
	CompanyURL  *string
	Location    *string
	Description *string
	URL         string
	Site        string
	JobType     *string
	IsRemote    *bool
	DatePosted  *time.Time

	SearchTerm      *string
	SearchLocation  *string
	Strategy        *string
	CollectionRunID *string

	Salary     Salary
	Extraction *Extraction
	Embeddings Embeddings

	ProcessedAt *time.Time
	CollectedAt time.Time
	CreatedAt   time.Time
}

// Salary fields are independently nullable; Type is always set.
type Salary struct {
	Min      *float64
	Max      *float64
	Currency *string
	Period   *string
	Type     string
}

// Extraction holds the AI-derived fields for a job.
type Extraction struct {
	CoreSkills                   []string `json:"core_skills"`
	NiceToHaveSkills             []string `json:"nice_to_have_skills"`
	RealisticExperienceLevel     string   `json:"realistic_experience_level"`
	TransferableSkillsIndicators []string `json:"transferable_skills_indicators"`
	ActualJobComplexity          string   `json:"actual_job_complexity"`
	BiasRemovalNotes             string   `json:"bias_removal_notes"`
}

type Embeddings struct {
	CoreRequirements    []float32
	TransferableContext []float32
	RoleContext         []float32
	Text                *string
	BatchID             *string
}

// HasEmbedding reports whether the core-requirements vector is present.
func (j Job) HasEmbedding() bool {
	return len(j.Embeddings.CoreRequirements) > 0
}

func (j Job) HasKnownCompany() bool {
	return j.Company != "" && j.Company != UnknownCompany
}

// Scored pairs a job with its similarity to a query.
type Scored struct {
	Job   Job
	Score float64
}
