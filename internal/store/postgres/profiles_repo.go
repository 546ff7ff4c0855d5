package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"github.com/Health-Tracking/Mobile/internal/domain"
	"github.com/Health-Tracking/Mobile/internal/store"
)

type ProfileRepo struct {
	db *bun.DB
}

var _ store.ProfileRepository = (*ProfileRepo)(nil)

func NewProfileRepo(db *bun.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

type profileTx struct {
	tx bun.Tx
}

func (r *ProfileRepo) UpsertPatient(ctx context.Context, p domain.Patient) (domain.Patient, error) {
	return upsertPatient(ctx, r.db, p)
}

func (r *ProfileRepo) GetPatient(ctx context.Context, patientID string) (domain.Patient, error) {
	return getPatient(ctx, r.db, patientID)
}

func upsertPatient(ctx context.Context, db bun.IDB, p domain.Patient) (domain.Patient, error) {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if strings.TrimSpace(p.Name) == "" {
		return domain.Patient{}, store.ErrInvalidProfile
	}

	_, err := db.NewInsert().
		Model(&p).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("gender = EXCLUDED.gender").
		Set("age = EXCLUDED.age").
		Set("height_cm = EXCLUDED.height_cm").
		Set("weight_kg = EXCLUDED.weight_kg").
		Set("blood_type = EXCLUDED.blood_type").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.Patient{}, mapPgError(err)
	}
	return p, nil
}

// SaveAdherence pushes local counts to the remote store. Remote counts that are
// already higher are left alone.
func (r *ProfileRepo) SaveAdherence(ctx context.Context, patientID string, history *domain.DoseHistory) error {
	if history.Len() == 0 {
		return nil
	}
	return r.InPatientTransaction(ctx, patientID, func(ctx context.Context, tx store.ProfileTx) error {
		existing, err := tx.ListDoseDays(ctx, patientID)
		if err != nil {
			return err
		}
		rows := mergeDoseDays(patientID, existing, history)
		if len(rows) == 0 {
			return nil
		}
		return tx.UpsertDoseDays(ctx, rows)
	})
}

func (r *ProfileRepo) LoadAdherence(ctx context.Context, patientID string) (*domain.DoseHistory, error) {
	var rows []domain.DoseDay
	err := r.db.NewSelect().
		Model(&rows).
		Where("patient_id = ?", patientID).
		OrderExpr("day ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return historyFromRows(rows), nil
}

func (r *ProfileRepo) InPatientTransaction(ctx context.Context, patientID string, fn func(ctx context.Context, tx store.ProfileTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockPatient(ctx, tx, patientID); err != nil {
			return err
		}
		return fn(ctx, profileTx{tx: tx})
	})
}

func lockPatient(ctx context.Context, tx bun.Tx, patientID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", patientID).Exec(ctx)
	return err
}

func (r profileTx) GetPatient(ctx context.Context, patientID string) (domain.Patient, error) {
	return getPatient(ctx, r.tx, patientID)
}

func (r profileTx) ListDoseDays(ctx context.Context, patientID string) ([]domain.DoseDay, error) {
	var rows []domain.DoseDay
	err := r.tx.NewSelect().
		Model(&rows).
		Where("patient_id = ?", patientID).
		OrderExpr("day ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r profileTx) UpsertDoseDays(ctx context.Context, rows []domain.DoseDay) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := r.tx.NewInsert().
		Model(&rows).
		On("CONFLICT (patient_id, day) DO UPDATE").
		Set("count = GREATEST(dd.count, EXCLUDED.count)").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return mapPgError(err)
}

func getPatient(ctx context.Context, db bun.IDB, patientID string) (domain.Patient, error) {
	var p domain.Patient
	err := db.NewSelect().
		Model(&p).
		Where("id = ?", patientID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Patient{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Patient{}, err
	}
	return p, nil
}

func mergeDoseDays(patientID string, existing []domain.DoseDay, local *domain.DoseHistory) []domain.DoseDay {
	remote := historyFromRows(existing)
	var out []domain.DoseDay
	for _, d := range local.Days() {
		n := local.Count(d)
		if n <= remote.Count(d) {
			continue
		}
		out = append(out, domain.DoseDay{
			PatientID: patientID,
			Day:       d.Time(time.UTC),
			Count:     n,
		})
	}
	return out
}

func historyFromRows(rows []domain.DoseDay) *domain.DoseHistory {
	h := domain.NewDoseHistory()
	for _, row := range rows {
		if row.Count <= 0 {
			continue
		}
		h.Raise(domain.DayOf(row.Day, time.UTC), row.Count)
	}
	return h
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			return store.ErrNotFound
		case "23514":
			return store.ErrInvalidProfile
		}
	}
	return err
}
