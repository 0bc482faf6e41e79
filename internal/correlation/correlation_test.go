package correlation

import (
	"fmt"
	"testing"

	"bte-graphql/internal/reconcile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scored(id string, overall *float64) reconcile.ObjectRecord {
	rec := reconcile.ObjectRecord{ID: id}
	if overall != nil {
		rec.Correlation = &reconcile.Correlation{NGDOverall: overall}
	}
	return rec
}

func ptr(v float64) *float64 { return &v }

func ids(records []reconcile.ObjectRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestFilter_TenResultsTopThree(t *testing.T) {
	values := []float64{0.9, 0.3, 0.7, 0.1, 0.5, 0.8, 0.2, 0.6, 0.4, 0.95}
	records := make([]reconcile.ObjectRecord, len(values))
	for i, v := range values {
		records[i] = scored(fmt.Sprintf("r%d", i), ptr(v))
	}

	got := Filter(records, Options{SortBy: SortNGDOverall, MaxResults: 3})

	require.Len(t, got, 3)
	assert.Equal(t, []string{"r3", "r6", "r1"}, ids(got))
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, Score(got[i-1], SortNGDOverall), Score(got[i], SortNGDOverall))
	}
	assert.Equal(t, "r0", records[0].ID, "input must not be reordered")
}

func TestFilter_MissingScoresSortLast(t *testing.T) {
	records := []reconcile.ObjectRecord{
		scored("none-a", nil),
		scored("high", ptr(0.8)),
		{ID: "starred-only", Correlation: &reconcile.Correlation{NGDStarred: ptr(0.1)}},
		scored("low", ptr(0.2)),
		scored("none-b", nil),
	}

	got := Filter(records, Options{SortBy: SortNGDOverall})
	assert.Equal(t, []string{"low", "high", "none-a", "starred-only", "none-b"}, ids(got))

	got = Filter(records, Options{SortBy: SortNGDStarred, MaxResults: 2})
	assert.Equal(t, []string{"starred-only", "none-a"}, ids(got))
}

func TestFilter_LimitWithoutSort(t *testing.T) {
	records := []reconcile.ObjectRecord{scored("a", nil), scored("b", nil), scored("c", nil)}

	assert.Equal(t, []string{"a", "b"}, ids(Filter(records, Options{MaxResults: 2})))
	assert.Equal(t, []string{"a", "b", "c"}, ids(Filter(records, Options{MaxResults: 10})))
	assert.Equal(t, []string{"a", "b", "c"}, ids(Filter(records, Options{})))
}

func TestApply_PerBucket(t *testing.T) {
	buckets := reconcile.Buckets{
		"g1": {scored("a", ptr(0.5)), scored("b", ptr(0.1)), scored("c", ptr(0.3))},
		"g2": {scored("d", ptr(0.2))},
	}

	got := Apply(buckets, Options{SortBy: SortNGDOverall, MaxResults: 2})

	assert.Equal(t, []string{"b", "c"}, ids(got["g1"]))
	assert.Equal(t, []string{"d"}, ids(got["g2"]))
	assert.Len(t, buckets["g1"], 3)

	assert.Equal(t, buckets, Apply(buckets, Options{}))
}

func TestParseSortKey(t *testing.T) {
	key, err := ParseSortKey("ngd_starred")
	require.NoError(t, err)
	assert.Equal(t, SortNGDStarred, key)

	_, err = ParseSortKey("pvalue")
	assert.Error(t, err)
}
