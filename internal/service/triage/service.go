// Package triage stores clinical intake data. Medical history fields are
// encrypted at rest and assessments are never modified once written.
package triage

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
	"github.com/dentalbook/marketplace-api/pkg/errors"
	"github.com/dentalbook/marketplace-api/pkg/httputil"
	"github.com/dentalbook/marketplace-api/pkg/security"
)

type Service struct {
	validate *validator.Validate
	enc      security.Encryptor
}

func NewService(enc security.Encryptor) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{validate: v, enc: enc}
}

// Validate checks in without encrypting anything.
func (s *Service) Validate(in *model.TriageInput) error {
	if in == nil {
		return errors.Validation("triage assessment is required")
	}
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) {
			fields := httputil.ValidationFields(verrs)
			for i := range fields {
				fields[i].Field = "triage." + fields[i].Field
			}
			return errors.Validation("invalid triage assessment", fields...)
		}
		return errors.Internal(err)
	}
	return nil
}

// Prepare validates in and returns the assessment to store, with the
// medical history encrypted.
func (s *Service) Prepare(in *model.TriageInput) (*model.TriageAssessment, error) {
	if err := s.Validate(in); err != nil {
		return nil, err
	}

	a := &model.TriageAssessment{
		PainLevel:       *in.PainLevel,
		UrgencyLevel:    in.UrgencyLevel,
		Symptoms:        pq.StringArray(append([]string{}, in.Symptoms...)),
		SymptomDuration: in.SymptomDuration,
		HasSwelling:     in.HasSwelling,
		HasTrauma:       in.HasTrauma,
		HasBleeding:     in.HasBleeding,
		HasInfection:    in.HasInfection,
		AnxietyLevel:    in.AnxietyLevel,
	}

	var err error
	if a.MedicalConditions, err = s.seal(in.MedicalConditions); err != nil {
		return nil, err
	}
	if a.CurrentMedications, err = s.seal(in.CurrentMedications); err != nil {
		return nil, err
	}
	if a.Allergies, err = s.seal(in.Allergies); err != nil {
		return nil, err
	}
	return a, nil
}

// CreateAssessment prepares in and stores it through repo.
func (s *Service) CreateAssessment(ctx context.Context, repo repository.TriageRepository, in *model.TriageInput) (*model.TriageAssessment, error) {
	a, err := s.Prepare(in)
	if err != nil {
		return nil, err
	}
	if err := repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create triage assessment: %w", err)
	}
	return a, nil
}

// Reveal returns a copy of a with the medical history decrypted.
func (s *Service) Reveal(a *model.TriageAssessment) (*model.TriageAssessment, error) {
	if a == nil {
		return nil, nil
	}
	out := *a
	var err error
	if out.MedicalConditions, err = s.open(a.MedicalConditions); err != nil {
		return nil, err
	}
	if out.CurrentMedications, err = s.open(a.CurrentMedications); err != nil {
		return nil, err
	}
	if out.Allergies, err = s.open(a.Allergies); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) seal(v string) (string, error) {
	out, err := security.EncryptString(s.enc, v)
	if err != nil {
		return "", errors.Internal(fmt.Errorf("encrypt triage field: %w", err))
	}
	return out, nil
}

func (s *Service) open(v string) (string, error) {
	out, err := security.DecryptString(s.enc, v)
	if err != nil {
		return "", errors.Internal(fmt.Errorf("decrypt triage field: %w", err))
	}
	return out, nil
}
