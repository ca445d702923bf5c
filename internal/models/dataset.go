package models

import "time"

// DateLayout is the calendar-day format used by expense and investment dates.
const DateLayout = "2006-01-02"

// Field names a top-level member of the dataset, using its wire name.
type Field string

const (
	FieldExpenses        Field = "expenses"
	FieldInvestments     Field = "investments"
	FieldBudgets         Field = "budgets"
	FieldEmergencyFund   Field = "emergencyFund"
	FieldGoals           Field = "goals"
	FieldCustomGoals     Field = "customGoals"
	FieldPrivacySettings Field = "privacySettings"
	FieldUserProfile     Field = "userProfile"
	FieldAISettings      Field = "aiSettings"
)

// WatchedFields are the fields whose mutation schedules a remote sync.
var WatchedFields = []Field{
	FieldExpenses,
	FieldInvestments,
	FieldBudgets,
	FieldEmergencyFund,
	FieldGoals,
	FieldCustomGoals,
	FieldPrivacySettings,
	FieldUserProfile,
}

// Watched reports whether a change to f should be pushed upstream.
func (f Field) Watched() bool {
	for _, w := range WatchedFields {
		if w == f {
			return true
		}
	}
	return false
}

// Expense is a single spending record.
type Expense struct {
	ID       int64   `bson:"id" json:"id"`
	Date     string  `bson:"date" json:"date"`
	Category string  `bson:"category" json:"category"`
	Amount   float64 `bson:"amount" json:"amount"`
	Note     string  `bson:"note" json:"note"`
}

// Investment is a holding with its realised or unrealised returns.
type Investment struct {
	ID      int64   `bson:"id" json:"id"`
	Name    string  `bson:"name" json:"name"`
	Type    string  `bson:"type" json:"type"`
	Amount  float64 `bson:"amount" json:"amount"`
	Date    string  `bson:"date" json:"date"`
	Returns float64 `bson:"returns" json:"returns"`
}

// Budget is the planned spend for a category. Actual is derived from expenses.
type Budget struct {
	Planned float64 `bson:"planned" json:"planned"`
	Actual  float64 `bson:"actual" json:"actual"`
}

type EmergencyFund struct {
	Target              float64 `bson:"target" json:"target"`
	Current             float64 `bson:"current" json:"current"`
	MonthlyContribution float64 `bson:"monthlyContribution" json:"monthlyContribution"`
}

type Goals struct {
	MonthlySavingsTarget float64 `bson:"monthlySavingsTarget" json:"monthlySavingsTarget"`
	TotalSavingsGoal     float64 `bson:"totalSavingsGoal" json:"totalSavingsGoal"`
	CurrentStreak        int     `bson:"currentStreak" json:"currentStreak"`
}

type CustomGoal struct {
	ID      int64   `bson:"id" json:"id"`
	Name    string  `bson:"name" json:"name"`
	Target  float64 `bson:"target" json:"target"`
	Current float64 `bson:"current" json:"current"`
}

// PrivacyFlag names one of the display-masking toggles.
type PrivacyFlag string

const (
	HideIncome      PrivacyFlag = "hideIncome"
	HideSavings     PrivacyFlag = "hideSavings"
	HideExpenses    PrivacyFlag = "hideExpenses"
	HideInvestments PrivacyFlag = "hideInvestments"
)

type PrivacySettings struct {
	HideIncome      bool `bson:"hideIncome" json:"hideIncome"`
	HideSavings     bool `bson:"hideSavings" json:"hideSavings"`
	HideExpenses    bool `bson:"hideExpenses" json:"hideExpenses"`
	HideInvestments bool `bson:"hideInvestments" json:"hideInvestments"`
}

// Toggle flips the named flag and returns its new value. Unknown flags are ignored.
func (p *PrivacySettings) Toggle(flag PrivacyFlag) (bool, bool) {
	var target *bool
	switch flag {
	case HideIncome:
		target = &p.HideIncome
	case HideSavings:
		target = &p.HideSavings
	case HideExpenses:
		target = &p.HideExpenses
	case HideInvestments:
		target = &p.HideInvestments
	default:
		return false, false
	}
	*target = !*target
	return *target, true
}

type UserProfile struct {
	MonthlyIncome  float64 `bson:"monthlyIncome" json:"monthlyIncome"`
	FamilySupport  float64 `bson:"familySupport" json:"familySupport"`
	BrotherSupport float64 `bson:"brotherSupport" json:"brotherSupport"`
	LastUpdated    string  `bson:"lastUpdated" json:"lastUpdated"`
}

// Dataset is the unit of synchronization and backup.
type Dataset struct {
	Expenses        []Expense         `json:"expenses"`
	Investments     []Investment      `json:"investments"`
	Budgets         map[string]Budget `json:"budgets"`
	EmergencyFund   EmergencyFund     `json:"emergencyFund"`
	Goals           Goals             `json:"goals"`
	CustomGoals     []CustomGoal      `json:"customGoals"`
	PrivacySettings PrivacySettings   `json:"privacySettings"`
	UserProfile     UserProfile       `json:"userProfile"`
	LastUpdated     string            `json:"lastUpdated,omitempty"`
	UserID          string            `json:"userId,omitempty"`
}

// Clone returns a deep copy whose slices and map are never nil.
func (d Dataset) Clone() Dataset {
	out := d
	out.Expenses = append(make([]Expense, 0, len(d.Expenses)), d.Expenses...)
	out.Investments = append(make([]Investment, 0, len(d.Investments)), d.Investments...)
	out.CustomGoals = append(make([]CustomGoal, 0, len(d.CustomGoals)), d.CustomGoals...)
	out.Budgets = make(map[string]Budget, len(d.Budgets))
	for k, v := range d.Budgets {
		out.Budgets[k] = v
	}
	return out
}

// HasRecords reports whether at least one expense or investment exists.
func (d Dataset) HasRecords() bool {
	return len(d.Expenses) > 0 || len(d.Investments) > 0
}

func DefaultEmergencyFund() EmergencyFund {
	return EmergencyFund{Target: 200000, Current: 45000, MonthlyContribution: 5000}
}

func DefaultGoals() Goals {
	return Goals{MonthlySavingsTarget: 20000, TotalSavingsGoal: 500000, CurrentStreak: 15}
}

func DefaultUserProfile(now time.Time) UserProfile {
	return UserProfile{
		MonthlyIncome:  35000,
		FamilySupport:  5000,
		BrotherSupport: 2000,
		LastUpdated:    Timestamp(now),
	}
}

// DefaultDataset is the dataset seeded for a user with nothing stored remotely.
func DefaultDataset(now time.Time) Dataset {
	return Dataset{
		Expenses:      []Expense{},
		Investments:   []Investment{},
		Budgets:       map[string]Budget{},
		EmergencyFund: DefaultEmergencyFund(),
		Goals:         DefaultGoals(),
		CustomGoals:   []CustomGoal{},
		UserProfile:   DefaultUserProfile(now),
	}
}

// Timestamp formats t as an ISO-8601 UTC instant with millisecond precision.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ParseTimestamp accepts the formats produced by Timestamp and RFC 3339.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
