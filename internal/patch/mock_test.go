package patch

import (
	"context"
	"fmt"
	"testing"

	"github.com/goplus/brewer/formula"
	"github.com/stretchr/testify/require"
)

// mockFetcher implements Fetcher over canned content.
type mockFetcher struct {
	content map[string]string
	urls    []string
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	m.urls = append(m.urls, url)
	s, ok := m.content[url]
	if !ok {
		return nil, fmt.Errorf("GET %s: 404 Not Found", url)
	}
	return []byte(s), nil
}

func noOptions(t *testing.T) *formula.OptionSet {
	t.Helper()
	set, err := formula.NewOptionSet(nil, nil)
	require.NoError(t, err)
	return set
}
