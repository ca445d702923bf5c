package models

// Document is the wire form of a dataset stored remotely under its user id.
//
// Nil slices, maps and pointers mean the field was absent (or null) in the
// stored document; an empty but non-nil value means it was present and empty.
type Document struct {
	Expenses        []Expense         `bson:"expenses" json:"expenses"`
	Investments     []Investment      `bson:"investments" json:"investments"`
	Budgets         map[string]Budget `bson:"budgets" json:"budgets"`
	EmergencyFund   *EmergencyFund    `bson:"emergencyFund,omitempty" json:"emergencyFund,omitempty"`
	Goals           *Goals            `bson:"goals,omitempty" json:"goals,omitempty"`
	CustomGoals     []CustomGoal      `bson:"customGoals" json:"customGoals"`
	PrivacySettings *PrivacySettings  `bson:"privacySettings,omitempty" json:"privacySettings,omitempty"`
	UserProfile     *UserProfile      `bson:"userProfile,omitempty" json:"userProfile,omitempty"`
	LastUpdated     string            `bson:"lastUpdated,omitempty" json:"lastUpdated,omitempty"`
	UserID          string            `bson:"userId" json:"userId"`
}

// NewDocument converts a dataset into a fully populated document.
func NewDocument(d Dataset) *Document {
	c := d.Clone()
	ef, goals, privacy, profile := c.EmergencyFund, c.Goals, c.PrivacySettings, c.UserProfile
	return &Document{
		Expenses:        c.Expenses,
		Investments:     c.Investments,
		Budgets:         c.Budgets,
		EmergencyFund:   &ef,
		Goals:           &goals,
		CustomGoals:     c.CustomGoals,
		PrivacySettings: &privacy,
		UserProfile:     &profile,
		LastUpdated:     c.LastUpdated,
		UserID:          c.UserID,
	}
}
