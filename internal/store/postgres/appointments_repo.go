package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"sessionbook/backend/internal/domain"
	"sessionbook/backend/internal/store"
)

const noOverlapConstraint = "appointments_no_overlap"

var activeStatuses = bun.In(domain.ActiveStatuses)

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

var _ store.AppointmentRepository = (*AppointmentRepo)(nil)

type calendarTx struct {
	tx         bun.Tx
	providerID string
}

func (r *AppointmentRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProviderCalendar(ctx, tx, providerID); err != nil {
			return err
		}
		return fn(ctx, calendarTx{tx: tx, providerID: providerID})
	})
}

func lockProviderCalendar(ctx context.Context, tx bun.Tx, providerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", providerID).Exec(ctx)
	return err
}

func (r *AppointmentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.db.NewSelect().Model(&a).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapNoRows(err)
	}
	return a, nil
}

func (r *AppointmentRepo) ListActive(ctx context.Context, providerID string, window domain.Interval) ([]domain.Appointment, error) {
	return listActive(ctx, r.db, providerID, window, uuid.Nil)
}

func (r *AppointmentRepo) ListConfirmationExpired(ctx context.Context, now time.Time, after store.Cursor, limit int) ([]domain.Appointment, error) {
	return listDue(ctx, r.db, domain.StatusPendingConfirmation, "confirmation_deadline", now.UTC(), after, limit)
}

func (r *AppointmentRepo) ListPaymentExpired(ctx context.Context, createdBefore time.Time, after store.Cursor, limit int) ([]domain.Appointment, error) {
	return listDue(ctx, r.db, domain.StatusPendingPayment, "created_at", createdBefore.UTC(), after, limit)
}

func (r *AppointmentRepo) ListEnded(ctx context.Context, now time.Time, after store.Cursor, limit int) ([]domain.Appointment, error) {
	return listDue(ctx, r.db, domain.StatusScheduled, "end_time", now.UTC(), after, limit)
}

// listDue pages through rows in status whose key column is before cutoff, ordered by
// (key, id) so a batch that only fails still moves the cursor forward.
func listDue(ctx context.Context, db bun.IDB, status domain.Status, column string, cutoff time.Time, after store.Cursor, limit int) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := db.NewSelect().
		Model(&rows).
		Where("status = ?", status).
		Where("? < ?", bun.Ident(column), cutoff).
		OrderExpr("? ASC, id ASC", bun.Ident(column))
	if !after.IsZero() {
		q = q.Where("(?, id) > (?, ?)", bun.Ident(column), after.At.UTC(), after.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func listActive(ctx context.Context, db bun.IDB, providerID string, window domain.Interval, exclude uuid.UUID) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("status IN (?)", activeStatuses).
		Where("start_time < ?", window.End.UTC()).
		Where("end_time > ?", window.Start.UTC()).
		OrderExpr("start_time ASC")
	if exclude != uuid.Nil {
		q = q.Where("id <> ?", exclude)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c calendarTx) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := c.tx.NewSelect().
		Model(&a).
		Where("id = ?", id).
		Where("provider_id = ?", c.providerID).
		For("UPDATE").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapNoRows(err)
	}
	return a, nil
}

func (c calendarTx) ListActive(ctx context.Context, providerID string, window domain.Interval, exclude uuid.UUID) ([]domain.Appointment, error) {
	return listActive(ctx, c.tx, providerID, window, exclude)
}

// Insert writes appt. A row that already holds the id (a replayed idempotency key)
// is returned when it describes the same booking, and ErrIdempotencyConflict otherwise.
// ON CONFLICT keeps the transaction usable for that lookup.
func (c calendarTx) Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := c.tx.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 1 {
		return m, nil
	}

	var existing domain.Appointment
	err = c.tx.NewSelect().
		Model(&existing).
		Where("id = ?", appt.ID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapNoRows(err)
	}
	if !store.SameBooking(existing, appt) {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}
	return existing, nil
}

func (c calendarTx) UpdateStatus(ctx context.Context, appt domain.Appointment, from domain.Status) error {
	res, err := c.tx.NewUpdate().
		Model(&appt).
		ExcludeColumn("id", "provider_id", "consumer_id", "created_at").
		Where("id = ?", appt.ID).
		Where("provider_id = ?", c.providerID).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return mapWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := c.GetForUpdate(ctx, appt.ID); err != nil {
			return err
		}
		return store.ErrStaleStatus
	}
	return nil
}

func (c calendarTx) Update(ctx context.Context, appt domain.Appointment) error {
	res, err := c.tx.NewUpdate().
		Model(&appt).
		ExcludeColumn("id", "provider_id", "consumer_id", "created_at").
		Where("id = ?", appt.ID).
		Where("provider_id = ?", c.providerID).
		Exec(ctx)
	if err != nil {
		return mapWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23P01" && pgErr.ConstraintName == noOverlapConstraint {
		return store.ErrConflict
	}
	return err
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
