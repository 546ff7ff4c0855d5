package store

import (
	"context"

	"github.com/Health-Tracking/Mobile/internal/domain"
)

// ProfileTx runs inside a transaction holding the patient's advisory lock.
type ProfileTx interface {
	GetPatient(ctx context.Context, patientID string) (domain.Patient, error)
	ListDoseDays(ctx context.Context, patientID string) ([]domain.DoseDay, error)
	UpsertDoseDays(ctx context.Context, rows []domain.DoseDay) error
}
