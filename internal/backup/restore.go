package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"finance-tracker/internal/models"
)

// Outcome classifies one field of a restore or import.
type Outcome string

const (
	OutcomeValid   Outcome = "valid"
	OutcomeInvalid Outcome = "invalid"
	OutcomeAbsent  Outcome = "absent"
)

// ValidationResult is the verdict for one field of the input file.
type ValidationResult struct {
	Field   models.Field
	Outcome Outcome
	Reason  string
}

// Result describes what a restore or import applied.
type Result struct {
	Fields  []ValidationResult
	Applied []models.Field
	// NeedsReinitialize is set when derived values must be recomputed
	// (state.Store.Reinitialize) before the dataset is shown.
	NeedsReinitialize bool
}

// Skipped returns the fields that were present but rejected.
func (r *Result) Skipped() []ValidationResult {
	var out []ValidationResult
	for _, f := range r.Fields {
		if f.Outcome == OutcomeInvalid {
			out = append(out, f)
		}
	}
	return out
}

type shape int

const (
	shapeArray shape = iota
	shapeObject
)

type fieldSpec struct {
	field models.Field
	shape shape
	// decode parses raw and validates it, returning a function that applies the value.
	decode func(raw json.RawMessage) (func(p *Payload), error)
}

func decodeInto[T any](raw json.RawMessage, validate func(T) error, set func(p *Payload, v T)) (func(p *Payload), error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if validate != nil {
		if err := validate(v); err != nil {
			return nil, err
		}
	}
	return func(p *Payload) { set(p, v) }, nil
}

var fieldSpecs = []fieldSpec{
	{models.FieldExpenses, shapeArray, func(raw json.RawMessage) (func(*Payload), error) {
		return decodeInto(raw, models.ValidateExpenses, func(p *Payload, v []models.Expense) { p.Expenses = v })
	}},
	{models.FieldInvestments, shapeArray, func(raw json.RawMessage) (func(*Payload), error) {
		return decodeInto(raw, models.ValidateInvestments, func(p *Payload, v []models.Investment) { p.Investments = v })
	}},
	{models.FieldBudgets, shapeObject, func(raw json.RawMessage) (func(*Payload), error) {
		return decodeInto(raw, models.ValidateBudgets, func(p *Payload, v map[string]models.Budget) { p.Budgets = v })
	}},
	{models.FieldEmergencyFund, shapeObject, func(raw json.RawMessage) (func(*Payload), error) {
		return decodeInto(raw, models.EmergencyFund.Validate, func(p *Payload, v models.EmergencyFund) { p.EmergencyFund = v })
	}},
	{models.FieldGoals, shapeObject, func(raw json.RawMessage) (func(*Payload), error) {
		return decodeInto(raw, models.Goals.Validate, func(p *Payload, v models.Goals) { p.Goals = v })
	}},
	{models.FieldCustomGoals, shapeArray, func(raw json.RawMessage) (func(*Payload), error) {
		return decodeInto(raw, models.ValidateCustomGoals, func(p *Payload, v []models.CustomGoal) { p.CustomGoals = v })
	}},
	{models.FieldPrivacySettings, shapeObject, func(raw json.RawMessage) (func(*Payload), error) {
		return decodeInto(raw, nil, func(p *Payload, v models.PrivacySettings) { p.PrivacySettings = v })
	}},
	{models.FieldUserProfile, shapeObject, func(raw json.RawMessage) (func(*Payload), error) {
		return decodeInto(raw, models.UserProfile.Validate, func(p *Payload, v models.UserProfile) { p.UserProfile = v })
	}},
	{models.FieldAISettings, shapeObject, func(raw json.RawMessage) (func(*Payload), error) {
		return decodeInto(raw, nil, func(p *Payload, v models.AISettings) { p.AISettings = v })
	}},
}

// RestoreFromFile applies a snapshot file. Both the wrapped form ({"data": ...})
// and a bare dataset are accepted.
func (m *Manager) RestoreFromFile(r io.Reader) (*Result, error) {
	return m.apply(r)
}

// ImportSnapshot applies an export file with the same per-field policy as
// RestoreFromFile. Imports are not recorded in the backup history.
func (m *Manager) ImportSnapshot(r io.Reader) (*Result, error) {
	return m.apply(r)
}

func (m *Manager) apply(r io.Reader) (*Result, error) {
	fields, err := readPayload(r)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	var setters []func(*Payload)
	for _, spec := range fieldSpecs {
		vr, set := validateField(spec, fields[string(spec.field)])
		res.Fields = append(res.Fields, vr)
		if set != nil {
			setters = append(setters, set)
			res.Applied = append(res.Applied, spec.field)
		}
	}

	present := false
	for _, f := range res.Fields {
		if f.Outcome != OutcomeAbsent {
			present = true
			break
		}
	}
	if !present {
		return nil, fmt.Errorf("%w: no dataset fields found", ErrInvalidBackupFormat)
	}
	if len(setters) == 0 {
		return res, nil
	}

	m.state.Apply(func(d *models.Dataset, ai *models.AISettings) []models.Field {
		p := Payload{Dataset: *d, AISettings: *ai}
		for _, set := range setters {
			set(&p)
		}
		key := ai.GeminiAPIKey
		*d = p.Dataset
		*ai = p.AISettings
		ai.GeminiAPIKey = key
		return res.Applied
	})
	res.NeedsReinitialize = true
	return res, nil
}

func readPayload(r io.Reader) (map[string]json.RawMessage, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil || top == nil {
		return nil, ErrInvalidBackupFormat
	}

	if data, ok := top["data"]; ok && isShape(data, shapeObject) {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, ErrInvalidBackupFormat
		}
		return inner, nil
	}
	return top, nil
}

func validateField(spec fieldSpec, raw json.RawMessage) (ValidationResult, func(*Payload)) {
	vr := ValidationResult{Field: spec.field}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		vr.Outcome = OutcomeAbsent
		return vr, nil
	}
	if !isShape(trimmed, spec.shape) {
		vr.Outcome = OutcomeInvalid
		if spec.shape == shapeArray {
			vr.Reason = "expected an array"
		} else {
			vr.Reason = "expected an object"
		}
		return vr, nil
	}

	set, err := spec.decode(trimmed)
	if err != nil {
		vr.Outcome = OutcomeInvalid
		vr.Reason = err.Error()
		return vr, nil
	}
	vr.Outcome = OutcomeValid
	return vr, set
}

func isShape(raw json.RawMessage, s shape) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	switch s {
	case shapeArray:
		return trimmed[0] == '['
	default:
		return trimmed[0] == '{'
	}
}
