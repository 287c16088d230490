package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"sessionbook/backend/internal/domain"
	"sessionbook/backend/internal/identity"
)

type participantRow struct {
	bun.BaseModel `bun:"table:participants"`

	ID                 string                    `bun:"id,pk"`
	Kind               domain.ParticipantKind    `bun:"kind,notnull"`
	DisplayName        string                    `bun:"display_name,notnull"`
	UTCOffsetMinutes   *int                      `bun:"utc_offset_minutes"`
	WeeklyAvailability domain.WeeklyAvailability `bun:"weekly_availability,type:jsonb"`
	RateMinor          int64                     `bun:"rate_minor,notnull"`
	CreatedAt          time.Time                 `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt          time.Time                 `bun:"updated_at,notnull,default:current_timestamp"`
}

// ParticipantRepo is the participant directory backed by the participants table.
// Participants without a stored offset get defaultLoc.
type ParticipantRepo struct {
	db         *bun.DB
	defaultLoc *time.Location
}

func NewParticipantRepo(db *bun.DB, defaultLoc *time.Location) *ParticipantRepo {
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &ParticipantRepo{db: db, defaultLoc: defaultLoc}
}

var _ identity.Directory = (*ParticipantRepo)(nil)

func (r *ParticipantRepo) GetParticipant(ctx context.Context, id string) (domain.Participant, error) {
	var row participantRow
	err := r.db.NewSelect().Model(&row).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrUnknownParticipant
		}
		return nil, err
	}
	return row.toDomain(r.defaultLoc), nil
}

func (r *ParticipantRepo) Upsert(ctx context.Context, p domain.Participant) error {
	return upsertParticipant(ctx, r.db, p)
}

func upsertParticipant(ctx context.Context, db bun.IDB, p domain.Participant) error {
	row := participantFromDomain(p)
	row.UpdatedAt = time.Now().UTC()
	_, err := db.NewInsert().
		Model(&row).
		On("CONFLICT (id) DO UPDATE").
		Set("kind = EXCLUDED.kind").
		Set("display_name = EXCLUDED.display_name").
		Set("utc_offset_minutes = EXCLUDED.utc_offset_minutes").
		Set("weekly_availability = EXCLUDED.weekly_availability").
		Set("rate_minor = EXCLUDED.rate_minor").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (row participantRow) toDomain(defaultLoc *time.Location) domain.Participant {
	loc := defaultLoc
	if row.UTCOffsetMinutes != nil {
		loc = domain.FixedOffset(*row.UTCOffsetMinutes)
	}
	if row.Kind == domain.KindProvider {
		return domain.Provider{
			ID:           row.ID,
			DisplayName:  row.DisplayName,
			Location:     loc,
			Availability: row.WeeklyAvailability,
			RateMinor:    row.RateMinor,
		}
	}
	return domain.Consumer{ID: row.ID, DisplayName: row.DisplayName, Location: loc}
}

func participantFromDomain(p domain.Participant) participantRow {
	row := participantRow{ID: p.ParticipantID(), Kind: p.Kind()}
	var loc *time.Location
	switch v := p.(type) {
	case domain.Provider:
		row.DisplayName = v.DisplayName
		row.WeeklyAvailability = v.Availability
		row.RateMinor = v.RateMinor
		loc = v.Location
	case domain.Consumer:
		row.DisplayName = v.DisplayName
		loc = v.Location
	}
	if loc != nil {
		_, offset := time.Now().In(loc).Zone()
		minutes := offset / 60
		row.UTCOffsetMinutes = &minutes
	}
	return row
}
