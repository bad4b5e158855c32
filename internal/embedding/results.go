package embedding

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ResultLine is one parsed line of a batch output file.
type ResultLine struct {
	CustomID string
	JobID    uuid.UUID
	View     View
	Vector   []float32
}

// LineError describes an output line that could not be used.
type LineError struct {
	Line     int
	CustomID string
	Err      error
}

func (e LineError) Error() string {
	return "line " + strconv.Itoa(e.Line) + " (" + e.CustomID + "): " + e.Err.Error()
}

type outputLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int `json:"status_code"`
		Body       struct {
			Data []struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			} `json:"data"`
		} `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResultLines decodes a JSONL batch output. Lines that are malformed,
// carry an error, or have a vector of the wrong size (when dims > 0) are
// returned as LineErrors; the rest as ResultLines.
func ParseResultLines(data []byte, dims int) ([]ResultLine, []LineError) {
	var (
		out  []ResultLine
		bad  []LineError
		line int
	)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}

		var ol outputLine
		if err := json.Unmarshal(raw, &ol); err != nil {
			bad = append(bad, LineError{Line: line, Err: errors.Wrap(err, "decode result line")})
			continue
		}
		fail := func(err error) {
			bad = append(bad, LineError{Line: line, CustomID: ol.CustomID, Err: err})
		}

		id, view, err := ParseCorrelationID(ol.CustomID)
		if err != nil {
			fail(err)
			continue
		}
		if ol.Error != nil {
			fail(errors.Newf("service error %s: %s", ol.Error.Code, ol.Error.Message))
			continue
		}
		if ol.Response == nil || ol.Response.StatusCode != 200 {
			code := 0
			if ol.Response != nil {
				code = ol.Response.StatusCode
			}
			fail(errors.Newf("unexpected status %d", code))
			continue
		}
		if len(ol.Response.Body.Data) == 0 || len(ol.Response.Body.Data[0].Embedding) == 0 {
			fail(errors.New("empty embedding"))
			continue
		}
		vec := ol.Response.Body.Data[0].Embedding
		if dims > 0 && len(vec) != dims {
			fail(errors.Newf("embedding has %d dimensions, want %d", len(vec), dims))
			continue
		}
		out = append(out, ResultLine{CustomID: ol.CustomID, JobID: id, View: view, Vector: vec})
	}
	if err := sc.Err(); err != nil {
		bad = append(bad, LineError{Line: line + 1, Err: errors.Wrap(err, "read result file")})
	}
	return out, bad
}
