package analytics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifySetOperations(t *testing.T) {
	id := NewIdentify().
		Set("plan", "pro").
		SetOnce("signup_date", "2026-01-15").
		Add("logins", 1)

	require.True(t, id.IsValid())

	data, err := json.Marshal(id.Properties())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"$set": {"plan": "pro"},
		"$setOnce": {"signup_date": "2026-01-15"},
		"$add": {"logins": 1}
	}`, string(data))
}

func TestIdentifyLastOperatorWinsPerKey(t *testing.T) {
	id := NewIdentify().
		Set("plan", "pro").
		Unset("plan")

	data, err := json.Marshal(id.Properties())
	require.NoError(t, err)

	// The $set claim on "plan" is replaced by $unset; the empty $set bucket
	// is removed entirely.
	assert.JSONEq(t, `{"$unset": {"plan": "-"}}`, string(data))
}

func TestIdentifySameOperatorOverwrites(t *testing.T) {
	id := NewIdentify().
		Set("plan", "free").
		Set("plan", "pro")

	data, err := json.Marshal(id.Properties())
	require.NoError(t, err)
	assert.JSONEq(t, `{"$set": {"plan": "pro"}}`, string(data))
}

func TestIdentifyClearAll(t *testing.T) {
	id := NewIdentify().
		Set("plan", "pro").
		ClearAll().
		Set("ignored", "value")

	data, err := json.Marshal(id.Properties())
	require.NoError(t, err)
	assert.JSONEq(t, `{"$clearAll": "-"}`, string(data))
}

func TestIdentifyEmptyIsInvalid(t *testing.T) {
	assert.False(t, NewIdentify().IsValid())

	var nilID *Identify
	assert.False(t, nilID.IsValid())
	assert.Nil(t, nilID.Properties())
}

func TestIdentifyPropertiesReturnsClone(t *testing.T) {
	id := NewIdentify().Set("plan", "pro")
	p := id.Properties()
	p.Set("$set", "corrupted")

	fresh, err := json.Marshal(id.Properties())
	require.NoError(t, err)
	assert.JSONEq(t, `{"$set": {"plan": "pro"}}`, string(fresh))
}
