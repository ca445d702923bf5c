// Package state owns the in-memory dataset and serializes every mutation.
package state

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"finance-tracker/internal/models"
)

var ErrNotFound = errors.New("record not found")

// Listener receives the fields changed by one mutation.
type Listener func(changed []models.Field)

// Mutation edits the dataset and settings in place and returns the fields it changed.
type Mutation func(d *models.Dataset, ai *models.AISettings) []models.Field

// Store is the application state: one dataset plus the non-synced AI settings.
type Store struct {
	mu        sync.RWMutex
	data      models.Dataset
	ai        models.AISettings
	listeners []Listener
	lastID    int64
	now       func() time.Time
}

func New(initial models.Dataset) *Store {
	return &Store{data: initial.Clone(), now: time.Now}
}

// Subscribe registers l for every subsequent mutation.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Snapshot returns a deep copy of the current dataset.
func (s *Store) Snapshot() models.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

func (s *Store) AISettings() models.AISettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ai
}

// Apply runs fn under the write lock and notifies listeners of the fields it reports.
func (s *Store) Apply(fn Mutation) []models.Field {
	s.mu.Lock()
	changed := fn(&s.data, &s.ai)
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if len(changed) > 0 {
		for _, l := range listeners {
			l(changed)
		}
	}
	return changed
}

// Replace swaps in a whole dataset. Budget actuals are recomputed.
func (s *Store) Replace(d models.Dataset) {
	s.Apply(func(cur *models.Dataset, _ *models.AISettings) []models.Field {
		*cur = d.Clone()
		cur.Budgets = models.RecomputeBudgetActuals(cur.Expenses, cur.Budgets, s.now())
		return append([]models.Field(nil), models.WatchedFields...)
	})
}

// Reinitialize re-derives budget actuals, as after a restore or at the start of a month.
func (s *Store) Reinitialize() {
	s.Apply(func(d *models.Dataset, _ *models.AISettings) []models.Field {
		budgets := models.RecomputeBudgetActuals(d.Expenses, d.Budgets, s.now())
		if reflect.DeepEqual(budgets, d.Budgets) {
			return nil
		}
		d.Budgets = budgets
		return []models.Field{models.FieldBudgets}
	})
}

// nextID returns a timestamp-derived id larger than floor and every id issued before.
// Callers hold the write lock.
func (s *Store) nextID(floor int64) int64 {
	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	if id <= floor {
		id = floor + 1
	}
	s.lastID = id
	return id
}

func (s *Store) today() string {
	return s.now().Format(models.DateLayout)
}

// mutate runs a fallible edit; listeners are only notified when it succeeds.
func (s *Store) mutate(fn func(d *models.Dataset, ai *models.AISettings) ([]models.Field, error)) error {
	var err error
	s.Apply(func(d *models.Dataset, ai *models.AISettings) []models.Field {
		var changed []models.Field
		changed, err = fn(d, ai)
		if err != nil {
			return nil
		}
		return changed
	})
	return err
}

func (s *Store) expensesChanged(d *models.Dataset) []models.Field {
	d.Budgets = models.RecomputeBudgetActuals(d.Expenses, d.Budgets, s.now())
	return []models.Field{models.FieldExpenses, models.FieldBudgets}
}

func (s *Store) AddExpense(e models.Expense) (models.Expense, error) {
	e.Category = strings.TrimSpace(e.Category)
	if e.Date == "" {
		e.Date = s.today()
	}
	if err := e.Validate(); err != nil {
		return models.Expense{}, err
	}
	err := s.mutate(func(d *models.Dataset, _ *models.AISettings) ([]models.Field, error) {
		var max int64
		for _, x := range d.Expenses {
			if x.ID > max {
				max = x.ID
			}
		}
		e.ID = s.nextID(max)
		d.Expenses = append(d.Expenses, e)
		return s.expensesChanged(d), nil
	})
	return e, err
}

func (s *Store) UpdateExpense(e models.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return s.mutate(func(d *models.Dataset, _ *models.AISettings) ([]models.Field, error) {
		for i := range d.Expenses {
			if d.Expenses[i].ID == e.ID {
				d.Expenses[i] = e
				return s.expensesChanged(d), nil
			}
		}
		return nil, fmt.Errorf("expense %d: %w", e.ID, ErrNotFound)
	})
}

func (s *Store) DeleteExpense(id int64) error {
	return s.mutate(func(d *models.Dataset, _ *models.AISettings) ([]models.Field, error) {
		for i := range d.Expenses {
			if d.Expenses[i].ID == id {
				d.Expenses = append(d.Expenses[:i:i], d.Expenses[i+1:]...)
				return s.expensesChanged(d), nil
			}
		}
		return nil, fmt.Errorf("expense %d: %w", id, ErrNotFound)
	})
}

func (s *Store) AddInvestment(inv models.Investment) (models.Investment, error) {
	if inv.Date == "" {
		inv.Date = s.today()
	}
	if err := inv.Validate(); err != nil {
		return models.Investment{}, err
	}
	err := s.mutate(func(d *models.Dataset, _ *models.AISettings) ([]models.Field, error) {
		var max int64
		for _, x := range d.Investments {
			if x.ID > max {
				max = x.ID
			}
		}
		inv.ID = s.nextID(max)
		d.Investments = append(d.Investments, inv)
		return []models.Field{models.FieldInvestments}, nil
	})
	return inv, err
}

func (s *Store) UpdateInvestment(inv models.Investment) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	return s.mutate(func(d *models.Dataset, _ *models.AISettings) ([]models.Field, error) {
		for i := range d.Investments {
			if d.Investments[i].ID == inv.ID {
				d.Investments[i] = inv
				return []models.Field{models.FieldInvestments}, nil
			}
		}
		return nil, fmt.Errorf("investment %d: %w", inv.ID, ErrNotFound)
	})
}

func (s *Store) DeleteInvestment(id int64) error {
	return s.mutate(func(d *models.Dataset, _ *models.AISettings) ([]models.Field, error) {
		for i := range d.Investments {
			if d.Investments[i].ID == id {
				d.Investments = append(d.Investments[:i:i], d.Investments[i+1:]...)
				return []models.Field{models.FieldInvestments}, nil
			}
		}
		return nil, fmt.Errorf("investment %d: %w", id, ErrNotFound)
	})
}

// SetBudget adds or updates the planned amount for a category.
func (s *Store) SetBudget(category string, planned float64) error {
	category = strings.TrimSpace(category)
	if category == "" {
		return errors.New("budget category is required")
	}
	if err := (models.Budget{Planned: planned}).Validate(); err != nil {
		return err
	}
	return s.mutate(func(d *models.Dataset, _ *models.AISettings) ([]models.Field, error) {
		if d.Budgets == nil {
			d.Budgets = map[string]models.Budget{}
		}
		b := d.Budgets[category]
		b.Planned = planned
		d.Budgets[category] = b
		d.Budgets = models.RecomputeBudgetActuals(d.Expenses, d.Budgets, s.now())
		return []models.Field{models.FieldBudgets}, nil
	})
}

func (s *Store) DeleteBudget(category string) error {
	return s.mutate(func(d *models.Dataset, _ *models.AISettings) ([]models.Field, error) {
		if _, ok := d.Budgets[category]; !ok {
			return nil, fmt.Errorf("budget %q: %w", category, ErrNotFound)
		}
		delete(d.Budgets, category)
		return []models.Field{models.FieldBudgets}, nil
	})
}

func (s *Store) SetGoals(g models.Goals) error {
	if err := g.Validate(); err != nil {
		return err
	}
	return s.mutate(func(d *models.Dataset, _ *models.AISettings) ([]models.Field, error) {
		d.Goals = g
		return []models.Field{models.FieldGoals}, nil
	})
}

func (s *Store) SetEmergencyFund(f models.EmergencyFund) error {
	if err := f.Validate(); err != nil {
		return err
	}
	return s.mutate(func(d *models.Dataset, _ *models.AISettings) ([]models.Field, error) {
		d.EmergencyFund = f
		return []models.Field{models.FieldEmergencyFund}, nil
	})
}

func (s *Store) AddCustomGoal(g models.CustomGoal) (models.CustomGoal, error) {
	if err := g.Validate(); err != nil {
		return models.CustomGoal{}, err
	}
	err := s.mutate(func(d *models.Dataset, _ *models.AISettings) ([]models.Field, error) {
		var max int64
		for _, x := range d.CustomGoals {
			if x.ID > max {
				max = x.ID
			}
		}
		g.ID = s.nextID(max)
		d.CustomGoals = append(d.CustomGoals, g)
		return []models.Field{models.FieldCustomGoals}, nil
	})
	return g, err
}

func (s *Store) UpdateCustomGoal(g models.CustomGoal) error {
	if err := g.Validate(); err != nil {
		return err
	}
	return s.mutate(func(d *models.Dataset, _ *models.AISettings) ([]models.Field, error) {
		for i := range d.CustomGoals {
			if d.CustomGoals[i].ID == g.ID {
				d.CustomGoals[i] = g
				return []models.Field{models.FieldCustomGoals}, nil
			}
		}
		return nil, fmt.Errorf("custom goal %d: %w", g.ID, ErrNotFound)
	})
}

func (s *Store) DeleteCustomGoal(id int64) error {
	return s.mutate(func(d *models.Dataset, _ *models.AISettings) ([]models.Field, error) {
		for i := range d.CustomGoals {
			if d.CustomGoals[i].ID == id {
				d.CustomGoals = append(d.CustomGoals[:i:i], d.CustomGoals[i+1:]...)
				return []models.Field{models.FieldCustomGoals}, nil
			}
		}
		return nil, fmt.Errorf("custom goal %d: %w", id, ErrNotFound)
	})
}

// TogglePrivacy flips a masking flag and returns its new value.
func (s *Store) TogglePrivacy(flag models.PrivacyFlag) (bool, error) {
	var value bool
	err := s.mutate(func(d *models.Dataset, _ *models.AISettings) ([]models.Field, error) {
		v, ok := d.PrivacySettings.Toggle(flag)
		if !ok {
			return nil, fmt.Errorf("unknown privacy flag %q", flag)
		}
		value = v
		return []models.Field{models.FieldPrivacySettings}, nil
	})
	return value, err
}

// UpdateProfile replaces the profile and stamps its lastUpdated.
func (s *Store) UpdateProfile(p models.UserProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.mutate(func(d *models.Dataset, _ *models.AISettings) ([]models.Field, error) {
		p.LastUpdated = models.Timestamp(s.now())
		d.UserProfile = p
		return []models.Field{models.FieldUserProfile}, nil
	})
}

// SetAISettings replaces the AI settings. They are never synced.
func (s *Store) SetAISettings(ai models.AISettings) {
	s.Apply(func(_ *models.Dataset, cur *models.AISettings) []models.Field {
		*cur = ai
		return []models.Field{models.FieldAISettings}
	})
}
