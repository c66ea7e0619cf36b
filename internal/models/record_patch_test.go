package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecordPatchRejectsUnknownFields(t *testing.T) {
	_, err := DecodeRecordPatch(EntityFinance, json.RawMessage(`{"amountGHS":500,"fullName":"x"}`))
	require.Error(t, err)
}

func TestDecodeRecordPatchNull(t *testing.T) {
	patch, err := DecodeRecordPatch(EntityMembers, json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Nil(t, patch)
	assert.True(t, patch.Empty())
}

func TestRecordPatchMergeLeavesAbsentFields(t *testing.T) {
	patch, err := DecodeRecordPatch(EntityFinance, json.RawMessage(`{"amountGHS":500}`))
	require.NoError(t, err)
	require.False(t, patch.Empty())

	merged, err := patch.Merge(json.RawMessage(`{"date":"2024-03-01","category":"Tithe","notes":"first service","amountGHS":120}`))
	require.NoError(t, err)

	var doc FinanceEntry
	require.NoError(t, json.Unmarshal(merged, &doc))
	assert.Equal(t, 500.0, doc.AmountGHS)
	assert.Equal(t, "Tithe", doc.Category)
	assert.Equal(t, "first service", doc.Notes)
	assert.Equal(t, "2024-03-01", doc.Date)
}

func TestRecordPatchMergeMember(t *testing.T) {
	patch, err := DecodeRecordPatch(EntityMembers, json.RawMessage(`{"phone":"0244000000","age":31}`))
	require.NoError(t, err)

	merged, err := patch.Merge(json.RawMessage(`{"fullName":"Ama Mensah","phone":"0200000000"}`))
	require.NoError(t, err)

	var doc Member
	require.NoError(t, json.Unmarshal(merged, &doc))
	assert.Equal(t, "Ama Mensah", doc.FullName)
	assert.Equal(t, "0244000000", doc.Phone)
	require.NotNil(t, doc.Age)
	assert.Equal(t, 31, *doc.Age)
}

func TestRecordPatchEntityName(t *testing.T) {
	member, _ := DecodeRecordPatch(EntityMembers, json.RawMessage(`{"fullName":"Kofi"}`))
	assert.Equal(t, "Kofi", member.EntityName("m1"))

	finance, _ := DecodeRecordPatch(EntityFinance, json.RawMessage(`{"amountGHS":10}`))
	assert.Equal(t, "f1", finance.EntityName("f1"))

	var none *RecordPatch
	assert.Equal(t, "g1", none.EntityName("g1"))
}

func TestRecordPatchMarshalJSON(t *testing.T) {
	patch, err := DecodeRecordPatch(EntityGroups, json.RawMessage(`{"leader":"Esi"}`))
	require.NoError(t, err)

	raw, err := json.Marshal(EditRequest{Payload: patch})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"payload":{"leader":"Esi"}`)

	empty, err := DecodeRecordPatch(EntityGroups, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, empty.Empty())
}

func TestResolveOrderWhitelist(t *testing.T) {
	order, ok := ResolveOrder(CollectionMembers, "password", "")
	require.True(t, ok)
	assert.Equal(t, OrderSpec{Field: "fullName", Direction: SortAsc}, order)

	order, ok = ResolveOrder(CollectionFinance, "amountGHS", "ASC")
	require.True(t, ok)
	assert.Equal(t, OrderSpec{Field: "amountGHS", Direction: SortAsc}, order)

	_, ok = ResolveOrder(CollectionChurch, "", "")
	assert.False(t, ok)
}
