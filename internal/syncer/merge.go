package syncer

import (
	"time"

	"finance-tracker/internal/models"
)

// MergeDocument overlays the fields present in incoming onto current and
// reports which fields it replaced. Absent fields keep their current value.
func MergeDocument(current models.Dataset, incoming *models.Document) (models.Dataset, []models.Field) {
	merged := current.Clone()
	if incoming == nil {
		return merged, nil
	}

	var applied []models.Field
	if incoming.Expenses != nil {
		merged.Expenses = append([]models.Expense{}, incoming.Expenses...)
		applied = append(applied, models.FieldExpenses)
	}
	if incoming.Investments != nil {
		merged.Investments = append([]models.Investment{}, incoming.Investments...)
		applied = append(applied, models.FieldInvestments)
	}
	if incoming.Budgets != nil {
		merged.Budgets = make(map[string]models.Budget, len(incoming.Budgets))
		for k, v := range incoming.Budgets {
			merged.Budgets[k] = v
		}
		applied = append(applied, models.FieldBudgets)
	}
	if incoming.EmergencyFund != nil {
		merged.EmergencyFund = *incoming.EmergencyFund
		applied = append(applied, models.FieldEmergencyFund)
	}
	if incoming.Goals != nil {
		merged.Goals = *incoming.Goals
		applied = append(applied, models.FieldGoals)
	}
	if incoming.CustomGoals != nil {
		merged.CustomGoals = append([]models.CustomGoal{}, incoming.CustomGoals...)
		applied = append(applied, models.FieldCustomGoals)
	}
	if incoming.PrivacySettings != nil {
		merged.PrivacySettings = *incoming.PrivacySettings
		applied = append(applied, models.FieldPrivacySettings)
	}
	if incoming.UserProfile != nil {
		merged.UserProfile = *incoming.UserProfile
		applied = append(applied, models.FieldUserProfile)
	}
	if incoming.LastUpdated != "" {
		merged.LastUpdated = incoming.LastUpdated
	}
	if merged.UserID == "" {
		merged.UserID = incoming.UserID
	}
	return merged, applied
}

// partialFallback seeds only the singleton sections a UI needs to render.
func partialFallback(d *models.Dataset, now time.Time) []models.Field {
	d.EmergencyFund = models.DefaultEmergencyFund()
	d.Goals = models.DefaultGoals()
	d.UserProfile = models.DefaultUserProfile(now)
	return []models.Field{models.FieldEmergencyFund, models.FieldGoals, models.FieldUserProfile}
}
