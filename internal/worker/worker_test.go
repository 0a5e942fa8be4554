package worker

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vitalink-health/telehealth/pkg/queue"
)

func TestBuildArchive_Renders_One_Event_Per_Line(t *testing.T) {
	req := require.New(t)
	jobs := []*queue.Job{
		{ID: "a", Type: queue.JobTypeAuditArchive, Payload: json.RawMessage(`{"type":"meeting_created"}`)},
		{ID: "b", Type: queue.JobTypeAuditArchive, Payload: json.RawMessage(" {\"type\":\"participant_joined\"}\n")},
		{ID: "c", Type: queue.JobTypeAuditArchive, Payload: json.RawMessage(`{"type":"meeting_ended"}`)},
	}

	out := buildArchive(jobs)

	req.True(bytes.HasSuffix(out, []byte("\n")))
	lines := bytes.Split(bytes.TrimSuffix(out, []byte("\n")), []byte("\n"))
	req.Len(lines, 3)
	for i, line := range lines {
		var ev struct {
			Type string `json:"type"`
		}
		req.NoError(json.Unmarshal(line, &ev), "line %d", i)
		req.NotEmpty(ev.Type)
	}
	req.Contains(string(lines[1]), "participant_joined")
}
