package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xxxsen/medrag/internal/model"
)

func TestPointIDIsStableUUID(t *testing.T) {
	a := pointID("Diabetes-0")
	require.Equal(t, a, pointID("Diabetes-0"))
	require.NotEqual(t, a, pointID("Diabetes-1"))
	require.Len(t, a, 36)
}

func TestPayloadRoundTrip(t *testing.T) {
	r := model.VectorRecord{
		ID: "Diabetes-0",
		Metadata: model.RecordMetadata{
			DocumentMetadata: model.DocumentMetadata{
				Title:       "Diabetes",
				Author:      "WHO",
				Source:      "who.int",
				PublishDate: "2024-01-01T00:00:00Z",
				Category:    []string{"endocrine", "web-content"},
				URL:         "https://who.int/diabetes",
			},
			Text:            "Diabetes is a chronic disease.",
			IsTextTruncated: true,
		},
	}
	payload := toPayload(r)
	require.Equal(t, "Diabetes-0", payload[payloadRecordID].GetStringValue())
	require.Equal(t, r.Metadata, fromPayload(payload))
}

func TestCreateQdrantBackendDefaults(t *testing.T) {
	b, err := createQdrantBackend(map[string]interface{}{"host": "localhost"}, Deps{})
	require.NoError(t, err)
	q := b.(*qdrantBackend)
	defer q.Close()
	require.Equal(t, defaultQdrantCollection, q.collection)
}
