package mgmt

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedOp struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func newGqlServer(t *testing.T, ops *[]recordedOp) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var op recordedOp
		require.NoError(t, json.NewDecoder(r.Body).Decode(&op))
		*ops = append(*ops, op)

		switch {
		case strings.Contains(op.Query, "createFace"):
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"createFace": map[string]any{
						"id": "face-7",
						"locator": map[string]any{
							"socketName": "/run/ndn/test.sock",
						},
					},
				},
			})
		case strings.Contains(op.Query, "insertFibEntry"):
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"insertFibEntry": map[string]any{"id": "fib-3"},
				},
			})
		default:
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"delete": true}})
		}
	}))
}

func TestCreateAndDeleteFace(t *testing.T) {
	var ops []recordedOp
	srv := newGqlServer(t, &ops)
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.CreateFace(1, 9000))
	assert.Equal(t, "face-7", c.FaceID())
	assert.Equal(t, "/run/ndn/test.sock", c.SocketPath())

	require.NoError(t, c.InsertFibEntry("/ndnc/ft"))
	require.NoError(t, c.DeleteFace())
	assert.Empty(t, c.FaceID())

	// createFace, insertFibEntry, delete fib, delete face
	require.Len(t, ops, 4)

	locator, ok := ops[0].Variables["locator"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "memif", locator["scheme"])
	assert.Equal(t, float64(9000), locator["dataroom"])
}

func TestInsertFibEntryNeedsFace(t *testing.T) {
	c := NewClient("http://127.0.0.1:0/")
	require.Error(t, c.InsertFibEntry("/ndnc"))
}

func TestGqlErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"message": "face limit reached"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	err := c.CreateFace(1, 9000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "face limit reached")
}
