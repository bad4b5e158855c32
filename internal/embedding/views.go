// Package embedding submits jobs to an external batch embedding service,
// polls the resulting batches, and writes the vectors back.
package embedding

import (
	"strings"

	"jobradar/internal/domain/job"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// View names one text rendering of a job that gets its own vector.
type View string

const (
	ViewCoreRequirements    View = "core"
	ViewTransferableContext View = "transferable"
	ViewRoleContext         View = "role"
	ViewFullDescription     View = "full"
)

var views = []View{ViewCoreRequirements, ViewTransferableContext, ViewRoleContext, ViewFullDescription}

func validView(v View) bool {
	for _, known := range views {
		if v == known {
			return true
		}
	}
	return false
}

// Request is one line of a batch: a single text to embed.
type Request struct {
	CustomID string
	Text     string
}

// CorrelationID identifies the job and view a request line belongs to.
func CorrelationID(jobID uuid.UUID, v View) string {
	return jobID.String() + ":" + string(v)
}

func ParseCorrelationID(s string) (uuid.UUID, View, error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return uuid.Nil, "", errors.Newf("malformed correlation id %q", s)
	}
	id, err := uuid.Parse(s[:i])
	if err != nil {
		return uuid.Nil, "", errors.Wrapf(err, "correlation id %q", s)
	}
	v := View(s[i+1:])
	if !validView(v) {
		return uuid.Nil, "", errors.Newf("unknown view %q in correlation id", v)
	}
	return id, v, nil
}

// Texts renders the four views of j. A view with nothing to say is empty.
// Core requirements prefer the extraction summary over the raw description.
func Texts(j job.Job) map[View]string {
	desc := ""
	if j.Description != nil {
		desc = strings.TrimSpace(*j.Description)
	}

	core := desc
	if j.Embeddings.Text != nil && strings.TrimSpace(*j.Embeddings.Text) != "" {
		core = strings.TrimSpace(*j.Embeddings.Text)
	}

	role := ""
	if j.HasKnownCompany() {
		role = j.Company
	}
	if j.Location != nil && strings.TrimSpace(*j.Location) != "" {
		role = strings.TrimSpace(strings.Join([]string{role, strings.TrimSpace(*j.Location)}, " "))
	}

	var full strings.Builder
	full.WriteString("Title: ")
	full.WriteString(j.Title)
	full.WriteString("\nCompany: ")
	full.WriteString(j.Company)
	if desc != "" {
		full.WriteString("\nDescription: ")
		full.WriteString(desc)
	}

	return map[View]string{
		ViewCoreRequirements:    core,
		ViewTransferableContext: strings.TrimSpace(j.Title),
		ViewRoleContext:         role,
		ViewFullDescription:     full.String(),
	}
}

// BuildRequests returns one request per non-empty view of j, truncated to maxChars runes.
func BuildRequests(j job.Job, maxChars int) []Request {
	texts := Texts(j)
	out := make([]Request, 0, len(views))
	for _, v := range views {
		t := texts[v]
		if t == "" {
			continue
		}
		out = append(out, Request{CustomID: CorrelationID(j.ID, v), Text: truncateRunes(t, maxChars)})
	}
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
