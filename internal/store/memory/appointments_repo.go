// Package memory is an in-process appointment store. Writes for one provider are
// serialized by a per-provider mutex, and a unit of work is applied only when its
// callback returns nil.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sessionbook/backend/internal/domain"
	"sessionbook/backend/internal/store"
)

type AppointmentRepo struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]domain.Appointment

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewAppointmentRepo() *AppointmentRepo {
	return &AppointmentRepo{
		rows:  make(map[uuid.UUID]domain.Appointment),
		locks: make(map[string]*sync.Mutex),
	}
}

var _ store.AppointmentRepository = (*AppointmentRepo)(nil)

func (r *AppointmentRepo) providerLock(providerID string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[providerID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[providerID] = l
	}
	return l
}

func (r *AppointmentRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	l := r.providerLock(providerID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &calendarTx{repo: r, providerID: providerID, staged: make(map[uuid.UUID]domain.Appointment)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range tx.staged {
		r.rows[id] = a
	}
	return nil
}

func (r *AppointmentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.rows[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return clone(a), nil
}

func (r *AppointmentRepo) ListActive(ctx context.Context, providerID string, window domain.Interval) ([]domain.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filterLocked(func(a domain.Appointment) bool {
		return a.ProviderID == providerID && a.Status.Active() && domain.Overlaps(a.Interval(), window)
	}, byStart, 0), nil
}

func (r *AppointmentRepo) ListConfirmationExpired(ctx context.Context, now time.Time, after store.Cursor, limit int) ([]domain.Appointment, error) {
	return r.listDue(func(a domain.Appointment) (time.Time, bool) {
		if a.Status != domain.StatusPendingConfirmation || a.ConfirmationDeadline == nil {
			return time.Time{}, false
		}
		return *a.ConfirmationDeadline, a.ConfirmationDeadline.Before(now)
	}, after, limit), nil
}

func (r *AppointmentRepo) ListPaymentExpired(ctx context.Context, createdBefore time.Time, after store.Cursor, limit int) ([]domain.Appointment, error) {
	return r.listDue(func(a domain.Appointment) (time.Time, bool) {
		return a.CreatedAt, a.Status == domain.StatusPendingPayment && a.CreatedAt.Before(createdBefore)
	}, after, limit), nil
}

func (r *AppointmentRepo) ListEnded(ctx context.Context, now time.Time, after store.Cursor, limit int) ([]domain.Appointment, error) {
	return r.listDue(func(a domain.Appointment) (time.Time, bool) {
		return a.EndTime, a.Status == domain.StatusScheduled && a.EndTime.Before(now)
	}, after, limit), nil
}

// listDue returns due rows after the cursor ordered by (key, id).
func (r *AppointmentRepo) listDue(due func(domain.Appointment) (time.Time, bool), after store.Cursor, limit int) []domain.Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make(map[uuid.UUID]time.Time)
	return r.filterLocked(func(a domain.Appointment) bool {
		at, ok := due(a)
		if !ok || !after.Precedes(at, a.ID) {
			return false
		}
		keys[a.ID] = at
		return true
	}, func(a, b domain.Appointment) bool {
		ka, kb := keys[a.ID], keys[b.ID]
		if !ka.Equal(kb) {
			return ka.Before(kb)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	}, limit)
}

func (r *AppointmentRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}

func byStart(a, b domain.Appointment) bool {
	return a.StartTime.Before(b.StartTime)
}

func (r *AppointmentRepo) filterLocked(keep func(domain.Appointment) bool, less func(a, b domain.Appointment) bool, limit int) []domain.Appointment {
	out := make([]domain.Appointment, 0)
	for _, a := range r.rows {
		if keep(a) {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

type calendarTx struct {
	repo       *AppointmentRepo
	providerID string
	staged     map[uuid.UUID]domain.Appointment
}

func (t *calendarTx) lookup(id uuid.UUID) (domain.Appointment, bool) {
	if a, ok := t.staged[id]; ok {
		return a, true
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	a, ok := t.repo.rows[id]
	return a, ok
}

func (t *calendarTx) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	a, ok := t.lookup(id)
	if !ok || a.ProviderID != t.providerID {
		return domain.Appointment{}, store.ErrNotFound
	}
	return clone(a), nil
}

func (t *calendarTx) ListActive(ctx context.Context, providerID string, window domain.Interval, exclude uuid.UUID) ([]domain.Appointment, error) {
	merged := t.snapshot()
	out := make([]domain.Appointment, 0)
	for _, a := range merged {
		if a.ID == exclude || a.ProviderID != providerID || !a.Status.Active() {
			continue
		}
		if domain.Overlaps(a.Interval(), window) {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return byStart(out[i], out[j]) })
	return out, nil
}

func (t *calendarTx) snapshot() map[uuid.UUID]domain.Appointment {
	t.repo.mu.RLock()
	merged := make(map[uuid.UUID]domain.Appointment, len(t.repo.rows)+len(t.staged))
	for id, a := range t.repo.rows {
		merged[id] = a
	}
	t.repo.mu.RUnlock()
	for id, a := range t.staged {
		merged[id] = a
	}
	return merged
}

// overlapsActive mirrors the storage-level exclusion constraint.
func (t *calendarTx) overlapsActive(appt domain.Appointment) bool {
	if !appt.Status.Active() {
		return false
	}
	for id, a := range t.snapshot() {
		if id == appt.ID || a.ProviderID != appt.ProviderID || !a.Status.Active() {
			continue
		}
		if domain.Overlaps(a.Interval(), appt.Interval()) {
			return true
		}
	}
	return false
}

func (t *calendarTx) Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.ProviderID != t.providerID {
		return domain.Appointment{}, store.ErrNotFound
	}
	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}
	if existing, ok := t.lookup(appt.ID); ok {
		if !store.SameBooking(existing, appt) {
			return domain.Appointment{}, store.ErrIdempotencyConflict
		}
		return clone(existing), nil
	}
	if t.overlapsActive(appt) {
		return domain.Appointment{}, store.ErrConflict
	}
	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	if appt.UpdatedAt.IsZero() {
		appt.UpdatedAt = now
	}
	t.staged[appt.ID] = clone(appt)
	return clone(appt), nil
}

func (t *calendarTx) UpdateStatus(ctx context.Context, appt domain.Appointment, from domain.Status) error {
	current, ok := t.lookup(appt.ID)
	if !ok || current.ProviderID != t.providerID {
		return store.ErrNotFound
	}
	if current.Status != from {
		return store.ErrStaleStatus
	}
	return t.write(current, appt)
}

func (t *calendarTx) Update(ctx context.Context, appt domain.Appointment) error {
	current, ok := t.lookup(appt.ID)
	if !ok || current.ProviderID != t.providerID {
		return store.ErrNotFound
	}
	return t.write(current, appt)
}

func (t *calendarTx) write(current, appt domain.Appointment) error {
	if t.overlapsActive(appt) {
		return store.ErrConflict
	}
	appt.ProviderID = current.ProviderID
	appt.ConsumerID = current.ConsumerID
	appt.CreatedAt = current.CreatedAt
	if appt.UpdatedAt.IsZero() {
		appt.UpdatedAt = time.Now().UTC()
	}
	t.staged[appt.ID] = clone(appt)
	return nil
}

func clone(a domain.Appointment) domain.Appointment {
	if a.ConfirmationDeadline != nil {
		d := *a.ConfirmationDeadline
		a.ConfirmationDeadline = &d
	}
	if a.FollowUp != nil {
		f := *a.FollowUp
		a.FollowUp = &f
	}
	if a.FollowUpOf != nil {
		id := *a.FollowUpOf
		a.FollowUpOf = &id
	}
	return a
}
