package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClone_IsIndependent(t *testing.T) {
	d := DefaultDataset(time.Now())
	d.Expenses = append(d.Expenses, Expense{ID: 1, Category: "Food", Amount: 10})
	d.Budgets["Food"] = Budget{Planned: 100}

	c := d.Clone()
	c.Expenses[0].Amount = 99
	c.Budgets["Food"] = Budget{Planned: 1}

	assert.Equal(t, 10.0, d.Expenses[0].Amount)
	assert.Equal(t, 100.0, d.Budgets["Food"].Planned)
}

func TestClone_NeverNil(t *testing.T) {
	c := Dataset{}.Clone()
	assert.NotNil(t, c.Expenses)
	assert.NotNil(t, c.Investments)
	assert.NotNil(t, c.CustomGoals)
	assert.NotNil(t, c.Budgets)
}

func TestPrivacyToggle(t *testing.T) {
	var p PrivacySettings
	v, ok := p.Toggle(HideSavings)
	require.True(t, ok)
	assert.True(t, v)
	assert.True(t, p.HideSavings)

	_, ok = p.Toggle(PrivacyFlag("hideEverything"))
	assert.False(t, ok)
}

func TestWatchedFields(t *testing.T) {
	assert.True(t, FieldExpenses.Watched())
	assert.True(t, FieldUserProfile.Watched())
	assert.False(t, FieldAISettings.Watched())
}

func TestNewDocument_EncodesEmptyCollections(t *testing.T) {
	doc := NewDocument(Dataset{UserID: "user_1"})

	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.JSONEq(t, `[]`, string(fields["expenses"]))
	assert.JSONEq(t, `{}`, string(fields["budgets"]))
	assert.JSONEq(t, `"user_1"`, string(fields["userId"]))
	assert.Contains(t, fields, "emergencyFund")
}

func TestDocument_AbsentFieldsDecodeNil(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(`{"expenses":[],"goals":null,"userId":"u"}`), &doc))

	assert.NotNil(t, doc.Expenses)
	assert.Nil(t, doc.Investments)
	assert.Nil(t, doc.Goals)
	assert.Nil(t, doc.UserProfile)
}

func TestValidateExpenses(t *testing.T) {
	assert.NoError(t, ValidateExpenses([]Expense{{ID: 1, Category: "Food", Amount: 0}}))
	assert.Error(t, ValidateExpenses([]Expense{{ID: 1, Category: "Food", Amount: -1}}))
	assert.Error(t, ValidateExpenses([]Expense{{ID: 1, Category: "A"}, {ID: 1, Category: "B"}}))
	assert.NoError(t, ValidateInvestments([]Investment{{ID: 1, Amount: 10, Returns: -4}}))
}
