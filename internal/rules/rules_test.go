package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testTable() *Table {
	return NewTable("clinical",
		Rule{Category: "administrative", Keywords: []string{"Documentation", "claim"}},
		Rule{Category: "operational", Keywords: []string{"efficiency", "scheduling"}},
		Rule{Category: "administrative", Keywords: []string{"billing"}},
	)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "return to work", Normalize("  Return\tTO   Work "))
	assert.Equal(t, "strasse", Normalize("STRASSE"))
	assert.Equal(t, "", Normalize("   "))
}

func TestClassify_FirstMatchWins(t *testing.T) {
	tbl := testTable()
	assert.Equal(t, "administrative", tbl.Classify("Improve claim scheduling"))
	assert.Equal(t, "operational", tbl.Classify("Clinic EFFICIENCY gains"))
	assert.Equal(t, "clinical", tbl.Classify("Early mobilization after surgery"))
}

func TestMatchAll_OrderedAndDeduplicated(t *testing.T) {
	tbl := testTable()
	assert.Equal(t, []string{"administrative", "operational"}, tbl.MatchAll("billing and scheduling documentation"))
	assert.Nil(t, tbl.MatchAll("nothing relevant"))
	assert.Equal(t, []string{"clinical"}, tbl.MatchAllOrFallback("nothing relevant"))
}

func TestNewTable_DropsBlankKeywords(t *testing.T) {
	tbl := NewTable("", Rule{Category: "x", Keywords: []string{" ", ""}})
	assert.Equal(t, 1, tbl.Len())
	assert.Equal(t, "", tbl.Classify("anything"))
	assert.Nil(t, tbl.MatchAllOrFallback("anything"))
	assert.Equal(t, "", tbl.Fallback())
}
