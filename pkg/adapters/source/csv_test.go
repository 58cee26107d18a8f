package source

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

func TestReadCSV(t *testing.T) {
	data := "\ufeffid,name,notes\n1,Ann,\"multi\nline\"\n2,Bob\n3,Cy,x,extra\n"

	tbl, err := ReadCSV(strings.NewReader(data), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "notes"}, tbl.Columns)
	assert.Equal(t, [][]string{
		{"1", "Ann", "multi\nline"},
		{"2", "Bob", ""},
		{"3", "Cy", "x"},
	}, tbl.Rows)

	head, err := ReadCSV(strings.NewReader(data), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, head.Len())

	empty, err := ReadCSV(strings.NewReader(""), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestCountCSVRows(t *testing.T) {
	n, err := CountCSVRows([]byte("a,b\n1,\"x\ny\"\n2,z\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = CountCSVRows(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, &models.Table{Columns: []string{"a", "b"}, Rows: [][]string{{"1", "x,y"}}})
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,\"x,y\"\n", buf.String())
}
