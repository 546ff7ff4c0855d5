package store

import (
	"context"

	"github.com/Health-Tracking/Mobile/internal/domain"
)

type ProfileRepository interface {
	UpsertPatient(ctx context.Context, p domain.Patient) (domain.Patient, error)
	GetPatient(ctx context.Context, patientID string) (domain.Patient, error)

	SaveAdherence(ctx context.Context, patientID string, history *domain.DoseHistory) error
	LoadAdherence(ctx context.Context, patientID string) (*domain.DoseHistory, error)
}
