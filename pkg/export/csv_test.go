package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, Table{
		Headers: []string{"id", "action", "actor"},
		Rows: [][]string{
			{"a-1", "approval.decided", "principal-1"},
			{"a-2", "risk_case.resolved"},
			{"a-3", "note, with comma", ""},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "id,action,actor\na-1,approval.decided,principal-1\na-2,risk_case.resolved,\na-3,\"note, with comma\",\n", buf.String())
}

func TestWriteCSVRejectsBadShapes(t *testing.T) {
	require.Error(t, WriteCSV(&bytes.Buffer{}, Table{}))
	require.Error(t, WriteCSV(&bytes.Buffer{}, Table{Headers: []string{"id"}, Rows: [][]string{{"a", "b"}}}))
}
