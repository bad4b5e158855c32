package embedding

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SubmitBatchUploadsJSONL(t *testing.T) {
	var uploaded []byte
	var created map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/files":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "batch", r.FormValue("purpose"))
			f, _, err := r.FormFile("file")
			require.NoError(t, err)
			uploaded, _ = io.ReadAll(f)
			_, _ = w.Write([]byte(`{"id":"file_in"}`))
		case "/batches":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			_, _ = w.Write([]byte(`{"id":"batch_42","status":"validating"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "sk-test"})
	id := uuid.New()
	batchID, err := c.SubmitBatch(context.Background(), []Request{
		{CustomID: CorrelationID(id, ViewCoreRequirements), Text: "core"},
		{CustomID: CorrelationID(id, ViewRoleContext), Text: "role"},
	})
	require.NoError(t, err)
	assert.Equal(t, "batch_42", batchID)
	assert.Equal(t, "file_in", created["input_file_id"])
	assert.Equal(t, "/v1/embeddings", created["endpoint"])

	sc := bufio.NewScanner(bytes.NewReader(uploaded))
	var lines []batchLine
	for sc.Scan() {
		var l batchLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		lines = append(lines, l)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, CorrelationID(id, ViewCoreRequirements), lines[0].CustomID)
	assert.Equal(t, "POST", lines[0].Method)
	assert.Equal(t, DefaultModel, lines[0].Body.Model)
	assert.Equal(t, "role", lines[1].Body.Input)
}

func TestClient_PollBatchMapsStates(t *testing.T) {
	statuses := map[string]string{
		"b1": `{"id":"b1","status":"finalizing"}`,
		"b2": `{"id":"b2","status":"completed","output_file_id":"file_out"}`,
		"b3": `{"id":"b3","status":"failed","errors":{"data":[{"code":"invalid_file","message":"bad line"}]}}`,
		"b4": `{"id":"b4","status":"expired"}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(statuses[r.URL.Path[len("/batches/"):]]))
	}))
	defer srv.Close()
	c := NewClient(ClientConfig{BaseURL: srv.URL})

	st, err := c.PollBatch(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.State)

	st, err = c.PollBatch(context.Background(), "b2")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, "file_out", st.ResultLocation)

	st, err = c.PollBatch(context.Background(), "b3")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, "invalid_file: bad line", st.Failure)

	st, err = c.PollBatch(context.Background(), "b4")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, "batch expired", st.Failure)
}

func TestClient_DownloadAndEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/file_out/content":
			_, _ = w.Write([]byte("line1\nline2\n"))
		case "/embeddings":
			_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		}
	}))
	defer srv.Close()
	c := NewClient(ClientConfig{BaseURL: srv.URL + "/"})

	b, err := c.DownloadResults(context.Background(), "file_out")
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\n", string(b))

	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)

	_, err = c.DownloadResults(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
