package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendlens/graphcache/pkg/apperrors"
)

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("schema")
	require.NoError(t, err)
	assert.Equal(t, ModeSchema, mode)

	mode, err = ParseMode("data")
	require.NoError(t, err)
	assert.Equal(t, ModeData, mode)

	_, err = ParseMode("Schema")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOption, "modes are case sensitive")

	_, err = ParseMode("")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOption)
}

func TestEdgeDedupeKey(t *testing.T) {
	a := Edge{SourceNodeKey: "PurchaseOrder", TargetNodeKey: "Supplier", Label: "Supplier"}
	b := Edge{SourceNodeKey: "PurchaseOrder", TargetNodeKey: "Supplier", Label: "Supplier", EdgeType: EdgeTypeReference}
	c := Edge{SourceNodeKey: "PurchaseOrder", TargetNodeKey: "Supplier", Label: "Vendor"}

	assert.Equal(t, a.DedupeKey(), b.DedupeKey(), "edge type is not part of identity")
	assert.NotEqual(t, a.DedupeKey(), c.DedupeKey())
}

func TestPropertiesRoundTrip(t *testing.T) {
	n := Node{Properties: map[string]any{"column_count": 2, "group": "Supplier"}}

	raw, err := n.PropertiesJSON()
	require.NoError(t, err)

	props, err := UnmarshalProperties(raw)
	require.NoError(t, err)
	assert.Equal(t, float64(2), props["column_count"])
	assert.Equal(t, "Supplier", props["group"])
}

func TestPropertiesJSON_EmptyBag(t *testing.T) {
	n := Node{}
	raw, err := n.PropertiesJSON()
	require.NoError(t, err)
	assert.Equal(t, "{}", raw)

	props, err := UnmarshalProperties(raw)
	require.NoError(t, err)
	assert.Nil(t, props)

	props, err = UnmarshalProperties("")
	require.NoError(t, err)
	assert.Nil(t, props)
}
