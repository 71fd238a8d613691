package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ruralhealthconnect/telecare/libs/db"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/conflict"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
)

// Names of the exclusion constraints in migrations/001_scheduling.sql.
const (
	doctorOverlapConstraint  = "appointments_doctor_no_overlap"
	patientOverlapConstraint = "appointments_patient_no_overlap"
)

// queryable is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	queries
	pool *db.Pool
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{queries: queries{q: pool}, pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx runs fn in a read-committed transaction. Serialization failures and
// deadlocks are retried by db.Pool.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.pool.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgTx{queries: queries{q: tx}})
	})
}

type pgTx struct {
	queries
}

// LockScopes takes transaction scoped advisory locks keyed by a 64-bit hash
// of each scope, in sorted order.
func (t *pgTx) LockScopes(ctx context.Context, scopes ...Scope) error {
	for _, key := range sortedKeys(scopes) {
		if _, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
	}
	return nil
}

func (t *pgTx) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return t.getAppointment(ctx, id, " FOR UPDATE")
}

func (t *pgTx) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO appointments
			(id, doctor_id, patient_id, appointment_type, status, scheduled_date, start_minute,
			 reason, notes, prescription, external_meeting_ref, meeting_link)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), NULLIF($12, ''))
		RETURNING created_at, updated_at
	`, a.ID, a.DoctorID, a.PatientID, string(a.Kind), string(a.Status), a.Date.Time(), int(a.Time),
		a.Reason, a.Notes, a.Prescription, a.ExternalMeetingRef, a.MeetingLink,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return mapWriteErr(err)
}

func (t *pgTx) UpdateAppointment(ctx context.Context, a *model.Appointment) error {
	err := t.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			scheduled_date = $3,
			start_minute = $4,
			reason = $5,
			notes = $6,
			prescription = $7,
			external_meeting_ref = NULLIF($8, ''),
			meeting_link = NULLIF($9, ''),
			cancelled_at = $10,
			completed_at = $11,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, string(a.Status), a.Date.Time(), int(a.Time), a.Reason, a.Notes, a.Prescription,
		a.ExternalMeetingRef, a.MeetingLink, a.CancelledAt, a.CompletedAt,
	).Scan(&a.UpdatedAt)
	if db.IsNotFound(err) {
		return notFound("appointment", a.ID)
	}
	return mapWriteErr(err)
}

func (t *pgTx) UpsertDoctor(ctx context.Context, d *model.Doctor) error {
	return t.q.QueryRow(ctx, `
		INSERT INTO doctors (id, name, email, is_available)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			email = EXCLUDED.email,
			is_available = EXCLUDED.is_available,
			updated_at = now()
		RETURNING updated_at
	`, d.ID, d.Name, d.Email, d.Available).Scan(&d.UpdatedAt)
}

func (t *pgTx) UpsertWindow(ctx context.Context, w model.AvailabilityWindow) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO availability_windows (doctor_id, weekday, start_minute, end_minute, is_available)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (doctor_id, weekday) DO UPDATE
		SET start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			is_available = EXCLUDED.is_available,
			updated_at = now()
	`, w.DoctorID, int(w.Weekday), int(w.Start), int(w.End), w.Enabled)
	if db.IsForeignKeyViolation(err) {
		return notFound("doctor", w.DoctorID)
	}
	return err
}

func (t *pgTx) DeleteWindow(ctx context.Context, doctorID string, day time.Weekday) error {
	tag, err := t.q.Exec(ctx, `
		DELETE FROM availability_windows WHERE doctor_id = $1 AND weekday = $2
	`, doctorID, int(day))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("availability window", doctorID+"/"+model.WeekdayName(day))
	}
	return nil
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if name, ok := db.ExclusionViolation(err); ok {
		switch name {
		case doctorOverlapConstraint:
			return conflict.ErrDoctorConflict
		case patientOverlapConstraint:
			return conflict.ErrPatientConflict
		}
	}
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: doctor", ErrNotFound)
	}
	return err
}

type queries struct {
	q queryable
}

const appointmentColumns = `
	id::text, doctor_id, patient_id, appointment_type, status, scheduled_date, start_minute,
	reason, notes, prescription, COALESCE(external_meeting_ref, ''), COALESCE(meeting_link, ''),
	created_at, updated_at, cancelled_at, completed_at`

const activeStatusSQL = `status IN ('scheduled', 'confirmed', 'in_progress')`

type scanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row scanner) (model.Appointment, error) {
	var (
		a      model.Appointment
		kind   string
		status string
		date   time.Time
		start  int
	)
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &kind, &status, &date, &start,
		&a.Reason, &a.Notes, &a.Prescription, &a.ExternalMeetingRef, &a.MeetingLink,
		&a.CreatedAt, &a.UpdatedAt, &a.CancelledAt, &a.CompletedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Kind = model.Kind(kind)
	a.Status = model.Status(status)
	a.Date = model.DateOf(date)
	a.Time = model.Clock(start)
	return a, nil
}

func (s queries) collectAppointments(ctx context.Context, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s queries) GetDoctor(ctx context.Context, id string) (model.Doctor, error) {
	var d model.Doctor
	err := s.q.QueryRow(ctx, `
		SELECT id, name, email, is_available, updated_at FROM doctors WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Email, &d.Available, &d.UpdatedAt)
	if db.IsNotFound(err) {
		return model.Doctor{}, notFound("doctor", id)
	}
	return d, err
}

func (s queries) GetWindow(ctx context.Context, doctorID string, day time.Weekday) (model.AvailabilityWindow, error) {
	w := model.AvailabilityWindow{DoctorID: doctorID, Weekday: day}
	var start, end int
	err := s.q.QueryRow(ctx, `
		SELECT start_minute, end_minute, is_available
		FROM availability_windows
		WHERE doctor_id = $1 AND weekday = $2
	`, doctorID, int(day)).Scan(&start, &end, &w.Enabled)
	if db.IsNotFound(err) {
		return model.AvailabilityWindow{}, notFound("availability window", doctorID+"/"+model.WeekdayName(day))
	}
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	w.Start, w.End = model.Clock(start), model.Clock(end)
	return w, nil
}

func (s queries) ListWindows(ctx context.Context, doctorID string) ([]model.AvailabilityWindow, error) {
	rows, err := s.q.Query(ctx, `
		SELECT weekday, start_minute, end_minute, is_available
		FROM availability_windows
		WHERE doctor_id = $1
		ORDER BY weekday
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.AvailabilityWindow{}
	for rows.Next() {
		var day, start, end int
		w := model.AvailabilityWindow{DoctorID: doctorID}
		if err := rows.Scan(&day, &start, &end, &w.Enabled); err != nil {
			return nil, err
		}
		w.Weekday, w.Start, w.End = time.Weekday(day), model.Clock(start), model.Clock(end)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s queries) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return s.getAppointment(ctx, id, "")
}

func (s queries) getAppointment(ctx context.Context, id, suffix string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, notFound("appointment", id)
	}
	a, err := scanAppointment(s.q.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`+suffix, id))
	if db.IsNotFound(err) {
		return model.Appointment{}, notFound("appointment", id)
	}
	return a, err
}

func (s queries) ListAppointments(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.DoctorID != "" {
		add("doctor_id = $%d", f.DoctorID)
	}
	if f.PatientID != "" {
		add("patient_id = $%d", f.PatientID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Kind != "" {
		add("appointment_type = $%d", string(f.Kind))
	}
	if !f.Date.IsZero() {
		add("scheduled_date = $%d", f.Date.Time())
	}

	sql := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.limit())
	sql += fmt.Sprintf(` ORDER BY scheduled_date DESC, start_minute DESC LIMIT $%d`, len(args))
	return s.collectAppointments(ctx, sql, args...)
}

func (s queries) ActiveForDoctor(ctx context.Context, doctorID string, d model.Date) ([]model.Appointment, error) {
	return s.collectAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND scheduled_date = $2 AND `+activeStatusSQL+`
		ORDER BY start_minute
	`, doctorID, d.Time())
}

func (s queries) ActiveForPatient(ctx context.Context, patientID string, d model.Date) ([]model.Appointment, error) {
	return s.collectAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1 AND scheduled_date = $2 AND `+activeStatusSQL+`
		ORDER BY start_minute
	`, patientID, d.Time())
}

func (s queries) ActiveOn(ctx context.Context, d model.Date) ([]model.Appointment, error) {
	return s.collectAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE scheduled_date = $1 AND `+activeStatusSQL+`
		ORDER BY start_minute, doctor_id
	`, d.Time())
}
