package dto

type SearchRequest struct {
	Query     string    `json:"query"`
	Embedding []float32 `json:"embedding"`
	Limit     int       `json:"limit"`
	Location  string    `json:"location"`
	JobType   string    `json:"job_type"`
	Company   string    `json:"company"`
}

type SearchResponse struct {
	Count   int                 `json:"count"`
	Results []ScoredJobResponse `json:"results"`
}

type LatestJobsResponse struct {
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
	Jobs   []JobResponse `json:"jobs"`
}
