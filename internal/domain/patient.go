package domain

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type Patient struct {
	bun.BaseModel `bun:"table:patients,alias:p"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	Gender    string    `bun:"gender"`
	Age       int       `bun:"age"`
	HeightCM  float64   `bun:"height_cm"`
	WeightKG  float64   `bun:"weight_kg"`
	BloodType string    `bun:"blood_type"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (p *Patient) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
	case *bun.UpdateQuery:
		p.UpdatedAt = now
	}
	return nil
}

type DoseDay struct {
	bun.BaseModel `bun:"table:dose_days,alias:dd"`

	PatientID string    `bun:"patient_id,pk"`
	Day       time.Time `bun:"day,pk,type:date"`
	Count     int       `bun:"count,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (d *DoseDay) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery, *bun.UpdateQuery:
		d.UpdatedAt = time.Now().UTC()
	}
	return nil
}
