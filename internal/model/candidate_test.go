package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawField_DecodeString(t *testing.T) {
	var f RawField
	require.NoError(t, json.Unmarshal([]byte(`"$129.99"`), &f))
	assert.Equal(t, "$129.99", f.String())
}

func TestRawField_DecodeNumber(t *testing.T) {
	var f RawField
	require.NoError(t, json.Unmarshal([]byte(`129.99`), &f))
	assert.Equal(t, "129.99", f.String())

	v, ok := f.Float()
	require.True(t, ok)
	assert.InDelta(t, 129.99, v, 0.001)
}

func TestRawField_DecodeNull(t *testing.T) {
	var f RawField = "stale"
	require.NoError(t, json.Unmarshal([]byte(`null`), &f))
	assert.True(t, f.IsEmpty())
}

func TestRawField_DecodeBool(t *testing.T) {
	var f RawField
	require.NoError(t, json.Unmarshal([]byte(`true`), &f))
	assert.Equal(t, "true", f.String())
}

func TestRawField_FloatRejectsText(t *testing.T) {
	f := RawField("about forty")
	_, ok := f.Float()
	assert.False(t, ok)
}

func TestProductCandidate_MixedFieldTypes(t *testing.T) {
	// The extraction service is inconsistent about strings vs numbers.
	raw := `{
		"product_name": "Trail Pack",
		"price": 129.99,
		"rating": "4.5",
		"review_count": 1204,
		"launch_date": null
	}`

	var p ProductCandidate
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, "Trail Pack", p.ProductName.String())
	assert.Equal(t, "129.99", p.Price.String())
	assert.Equal(t, "4.5", p.Rating.String())
	assert.Equal(t, "1204", p.ReviewCount.String())
	assert.True(t, p.LaunchDate.IsEmpty())
}
