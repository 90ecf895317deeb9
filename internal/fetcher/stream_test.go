package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// verifyNoLeaks ignores keep-alive connections left by the HTTP tests.
func verifyNoLeaks(t *testing.T) {
	goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func TestStreamCSV_HeaderAndTrim(t *testing.T) {
	input := "title , doi\n Back pain RCT , 10.1000/bp \n# skipped\nNeck trial,10.1000/nt\n"
	headerCh := make(chan []string, 1)

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
		Comment:   '#',
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)

	assert.Equal(t, []string{"title", "doi"}, <-headerCh)
	assert.Equal(t, [][]string{{"Back pain RCT", "10.1000/bp"}, {"Neck trial", "10.1000/nt"}}, rows)
}

func TestStreamCSV_Delimiter(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("a|b\n1|2\n"), CSVOptions{Delimiter: '|'})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestStreamCSV_MalformedRow(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("a,\"b\n"), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestStreamCSV_CancelledConsumerDoesNotLeak(t *testing.T) {
	defer verifyNoLeaks(t)

	var sb strings.Builder
	for range 10000 {
		sb.WriteString("a,b,c\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	rowCh, errCh := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{})

	count := 0
	for range rowCh {
		count++
		if count == 5 {
			cancel()
			break
		}
	}
	for range rowCh { //nolint:revive // drain
	}

	if err := <-errCh; err != nil {
		assert.Contains(t, err.Error(), "context cancelled")
	}
}

type paperRow struct {
	Title string `json:"title"`
	DOI   string `json:"doi"`
}

func TestDecodeJSONArray(t *testing.T) {
	input := `[{"title":"Back pain RCT","doi":"10.1000/bp"},{"title":"Neck trial"}]`

	ch, errCh := DecodeJSONArray[paperRow](context.Background(), strings.NewReader(input))

	var got []paperRow
	for rec := range ch {
		got = append(got, rec)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, []paperRow{{Title: "Back pain RCT", DOI: "10.1000/bp"}, {Title: "Neck trial"}}, got)
}

func TestDecodeJSONArray_EmptyInput(t *testing.T) {
	ch, errCh := DecodeJSONArray[paperRow](context.Background(), strings.NewReader(""))
	for range ch { //nolint:revive // drain
	}
	assert.NoError(t, <-errCh)
}

func TestDecodeJSONArray_NotAnArray(t *testing.T) {
	ch, errCh := DecodeJSONArray[paperRow](context.Background(), strings.NewReader(`{"title":"x"}`))
	for range ch { //nolint:revive // drain
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected '['")
}

func TestDecodeJSONArray_CancelledDoesNotLeak(t *testing.T) {
	defer verifyNoLeaks(t)

	var sb strings.Builder
	sb.WriteString("[")
	for i := range 10000 {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"title":"t"}`)
	}
	sb.WriteString("]")

	ctx, cancel := context.WithCancel(context.Background())
	ch, errCh := DecodeJSONArray[paperRow](ctx, strings.NewReader(sb.String()))
	<-ch
	cancel()
	for range ch { //nolint:revive // drain
	}

	if err := <-errCh; err != nil {
		assert.Contains(t, err.Error(), "context cancelled")
	}
}
