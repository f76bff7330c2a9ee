package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dentalbook/marketplace-api/internal/model"
)

type triageRepository struct {
	BaseRepository
}

func (r *triageRepository) Create(ctx context.Context, t *model.TriageAssessment) error {
	query := `
		INSERT INTO triage_assessments (
			pain_level, urgency_level, symptoms, symptom_duration,
			has_swelling, has_trauma, has_bleeding, has_infection, anxiety_level,
			medical_conditions, current_medications, allergies, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	t.CreatedAt = time.Now().UTC()
	if t.Symptoms == nil {
		t.Symptoms = []string{}
	}

	err := sqlx.GetContext(ctx, r.q, &t.ID, query,
		t.PainLevel,
		t.UrgencyLevel,
		t.Symptoms,
		t.SymptomDuration,
		t.HasSwelling,
		t.HasTrauma,
		t.HasBleeding,
		t.HasInfection,
		t.AnxietyLevel,
		t.MedicalConditions,
		t.CurrentMedications,
		t.Allergies,
		t.CreatedAt,
	)
	return mapError(err, "create triage assessment")
}

func (r *triageRepository) Get(ctx context.Context, id int64) (*model.TriageAssessment, error) {
	query := `
		SELECT id, pain_level, urgency_level, symptoms, symptom_duration,
			has_swelling, has_trauma, has_bleeding, has_infection, anxiety_level,
			medical_conditions, current_medications, allergies, created_at
		FROM triage_assessments
		WHERE id = $1
	`
	var t model.TriageAssessment
	if err := sqlx.GetContext(ctx, r.q, &t, query, id); err != nil {
		return nil, mapError(err, "get triage assessment")
	}
	return &t, nil
}
