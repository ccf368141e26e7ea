package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/metrofleet/induction/internal/apperr"
	"github.com/metrofleet/induction/internal/domain"
	"github.com/metrofleet/induction/internal/store"
)

const timeFormat = time.RFC3339

// AuditLog is the narrow seam sqlstore delegates decision and
// optimization-run persistence to, so the append-only audit trail can
// live in a different backend (internal/store/auditlog) without this
// package knowing its storage format.
type AuditLog interface {
	PutDecision(ctx context.Context, decision domain.InductionDecision) error
	GetDecision(ctx context.Context, decisionID string) (domain.InductionDecision, error)
	PutRun(ctx context.Context, run domain.OptimizationRun) error
	GetRun(ctx context.Context, runID string) (domain.OptimizationRun, error)
}

// Store is the SQLite-backed implementation of store.Store.
type Store struct {
	db    *sql.DB
	audit AuditLog
}

// Open opens (creating if necessary) the database at dbPath, applies
// pending migrations, and returns a Store that delegates decision and
// run audit rows to audit.
func Open(dbPath string, audit AuditLog, cfg ConnConfig) (*Store, error) {
	db, err := openDB(dbPath, cfg)
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: migration failed: %w", err)
	}
	return &Store{db: db, audit: audit}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(timeFormat), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(timeFormat, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func parseNullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

// Snapshot returns the mutually-consistent Context for date/shift. The
// relational tables are not themselves partitioned by shift; date/shift
// are only recorded on the returned Context and every prior schedule is
// returned, mirroring the in-memory reference store's semantics.
func (s *Store) Snapshot(ctx context.Context, date domain.ScheduleDate, shift domain.Shift) (domain.Context, error) {
	trainsets, err := s.selectTrainsets(ctx, "")
	if err != nil {
		return domain.Context{}, err
	}
	certs, err := s.selectCertificates(ctx)
	if err != nil {
		return domain.Context{}, err
	}
	jobCards, err := s.selectJobCards(ctx)
	if err != nil {
		return domain.Context{}, err
	}
	branding, err := s.selectBranding(ctx)
	if err != nil {
		return domain.Context{}, err
	}
	slots, err := s.selectCleaningSlots(ctx)
	if err != nil {
		return domain.Context{}, err
	}
	schedules, err := s.selectSchedules(ctx)
	if err != nil {
		return domain.Context{}, err
	}

	return domain.Context{
		Date:           date,
		Shift:          shift,
		Trainsets:      trainsets,
		Certificates:   certs,
		JobCards:       jobCards,
		CleaningSlots:  slots,
		Branding:       branding,
		PriorSchedules: schedules,
	}, nil
}

// ActiveTrainsets returns every trainset with is_active set.
func (s *Store) ActiveTrainsets(ctx context.Context) ([]domain.Trainset, error) {
	return s.selectTrainsets(ctx, "WHERE is_active = 1")
}

func (s *Store) selectTrainsets(ctx context.Context, where string) ([]domain.Trainset, error) {
	query := `SELECT id, number, manufacturer, model, year_built, capacity, max_speed, status, depot, location,
		current_mileage, total_mileage, operational_hours, last_maintenance_at, next_maintenance_due_at,
		last_cleaning_at, next_cleaning_at, fitness_expiry_at, is_active
		FROM trainsets ` + where + ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Trainset
	for rows.Next() {
		var t domain.Trainset
		var lastMaint, nextMaint, lastClean, nextClean, fitnessExpiry sql.NullString
		var isActive int
		if err := rows.Scan(&t.ID, &t.Number, &t.Manufacturer, &t.Model, &t.YearBuilt, &t.Capacity, &t.MaxSpeed,
			&t.Status, &t.Depot, &t.Location, &t.CurrentMileage, &t.TotalMileage, &t.OperationalHours,
			&lastMaint, &nextMaint, &lastClean, &nextClean, &fitnessExpiry, &isActive); err != nil {
			return nil, err
		}
		if t.LastMaintenanceAt, err = parseNullTime(lastMaint); err != nil {
			return nil, err
		}
		if t.NextMaintenanceDueAt, err = parseNullTime(nextMaint); err != nil {
			return nil, err
		}
		if t.LastCleaningAt, err = parseNullTime(lastClean); err != nil {
			return nil, err
		}
		if t.NextCleaningAt, err = parseNullTime(nextClean); err != nil {
			return nil, err
		}
		if t.FitnessExpiryAt, err = parseNullTime(fitnessExpiry); err != nil {
			return nil, err
		}
		t.IsActive = isActive != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) selectCertificates(ctx context.Context) ([]domain.FitnessCertificate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trainset_id, issued_at, expires_at, status, issuing_authority FROM certificates ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FitnessCertificate
	for rows.Next() {
		var c domain.FitnessCertificate
		var issuedAt, expiresAt string
		if err := rows.Scan(&c.ID, &c.TrainsetID, &issuedAt, &expiresAt, &c.Status, &c.IssuingAuthority); err != nil {
			return nil, err
		}
		if c.IssuedAt, err = time.Parse(timeFormat, issuedAt); err != nil {
			return nil, err
		}
		if c.ExpiresAt, err = time.Parse(timeFormat, expiresAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) selectJobCards(ctx context.Context) ([]domain.JobCard, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trainset_id, external_id, title, description, priority, status, category,
		estimated_hours, actual_hours, scheduled_at, due_at, completed_at FROM job_cards ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.JobCard
	for rows.Next() {
		var j domain.JobCard
		var estimated, actual sql.NullFloat64
		var scheduledAt, dueAt, completedAt sql.NullString
		if err := rows.Scan(&j.ID, &j.TrainsetID, &j.ExternalID, &j.Title, &j.Description, &j.Priority, &j.Status,
			&j.Category, &estimated, &actual, &scheduledAt, &dueAt, &completedAt); err != nil {
			return nil, err
		}
		j.EstimatedHours = parseNullFloat(estimated)
		j.ActualHours = parseNullFloat(actual)
		if j.ScheduledAt, err = parseNullTime(scheduledAt); err != nil {
			return nil, err
		}
		if j.DueAt, err = parseNullTime(dueAt); err != nil {
			return nil, err
		}
		if j.CompletedAt, err = parseNullTime(completedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Store) selectBranding(ctx context.Context) ([]domain.BrandingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trainset_id, campaign, priority, target_hours_per_day, delivered_hours, contract_start, contract_end
		FROM branding ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BrandingRecord
	for rows.Next() {
		var b domain.BrandingRecord
		var start, end string
		if err := rows.Scan(&b.ID, &b.TrainsetID, &b.Campaign, &b.Priority, &b.TargetHoursPerDay, &b.DeliveredHours,
			&start, &end); err != nil {
			return nil, err
		}
		if b.ContractStart, err = time.Parse(timeFormat, start); err != nil {
			return nil, err
		}
		if b.ContractEnd, err = time.Parse(timeFormat, end); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) selectCleaningSlots(ctx context.Context) ([]domain.CleaningSlot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, bay, starts_at, ends_at, capacity FROM cleaning_slots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CleaningSlot
	for rows.Next() {
		var slot domain.CleaningSlot
		var starts, ends string
		if err := rows.Scan(&slot.ID, &slot.Bay, &starts, &ends, &slot.Capacity); err != nil {
			return nil, err
		}
		if slot.StartsAt, err = time.Parse(timeFormat, starts); err != nil {
			return nil, err
		}
		if slot.EndsAt, err = time.Parse(timeFormat, ends); err != nil {
			return nil, err
		}
		assignRows, err := s.db.QueryContext(ctx,
			`SELECT trainset_id FROM cleaning_slot_assignments WHERE slot_id = ? ORDER BY trainset_id`, slot.ID)
		if err != nil {
			return nil, err
		}
		for assignRows.Next() {
			var id string
			if err := assignRows.Scan(&id); err != nil {
				assignRows.Close()
				return nil, err
			}
			slot.AssignedTrainsetIDs = append(slot.AssignedTrainsetIDs, id)
		}
		if err := assignRows.Err(); err != nil {
			assignRows.Close()
			return nil, err
		}
		assignRows.Close()
		out = append(out, slot)
	}
	return out, rows.Err()
}

func (s *Store) selectSchedules(ctx context.Context) ([]domain.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, date, shift FROM schedules ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type row struct {
		id    int64
		date  string
		shift string
	}
	var schedRows []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.date, &r.shift); err != nil {
			return nil, err
		}
		schedRows = append(schedRows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []domain.Schedule
	for _, r := range schedRows {
		date, err := time.Parse(timeFormat, r.date)
		if err != nil {
			return nil, err
		}
		entries, err := s.selectScheduleEntries(ctx, r.id)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Schedule{Date: date, Shift: domain.Shift(r.shift), Entries: entries})
	}
	return out, nil
}

func (s *Store) selectScheduleEntries(ctx context.Context, scheduleID int64) ([]domain.ScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT trainset_id, decision, rank, route, start_time, end_time, reasons_json, conflicts_json
		FROM schedule_entries WHERE schedule_id = ? ORDER BY rank`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ScheduleEntry
	for rows.Next() {
		var e domain.ScheduleEntry
		var start, end, reasonsJSON, conflictsJSON string
		if err := rows.Scan(&e.TrainsetID, &e.Decision, &e.Rank, &e.Route, &start, &end, &reasonsJSON, &conflictsJSON); err != nil {
			return nil, err
		}
		if e.StartTime, err = time.Parse(timeFormat, start); err != nil {
			return nil, err
		}
		if e.EndTime, err = time.Parse(timeFormat, end); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(reasonsJSON), &e.Reasons); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(conflictsJSON), &e.Conflicts); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ApplyTransition persists one trainset status change and its audit row
// in a single database transaction.
func (s *Store) ApplyTransition(ctx context.Context, update domain.StatusTransition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE trainsets SET status = ?,
			last_cleaning_at = COALESCE(?, last_cleaning_at),
			next_cleaning_at = COALESCE(?, next_cleaning_at)
		WHERE id = ?`,
		update.NewStatus, nullTime(update.LastCleaningAt), nullTime(update.NextCleaningAt), update.TrainsetID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.New(apperr.KindNotFound, "trainset not found").WithDetails(update.TrainsetID)
	}

	at := update.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO status_audit (trainset_id, old_status, new_status, reason, at) VALUES (?, ?, ?, ?, ?)`,
		update.TrainsetID, update.OldStatus, update.NewStatus, update.Reason, at.Format(timeFormat)); err != nil {
		return err
	}

	return tx.Commit()
}

// Commit applies a logical transaction: the idempotency key, if set, is
// checked and recorded inside the same SQLite transaction as the
// schedule write; decision and run rows are handed to the audit backend
// after the SQLite transaction commits, since they live in a different
// storage engine and cannot share its atomicity.
func (s *Store) Commit(ctx context.Context, tx store.Tx) error {
	if tx.IdempotencyKey != "" {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM idempotency_keys WHERE key = ?`, tx.IdempotencyKey).Scan(&exists)
		if err != nil {
			return err
		}
		if exists > 0 {
			return nil
		}
	}

	if tx.Schedule != nil {
		if err := s.insertSchedule(ctx, *tx.Schedule); err != nil {
			return err
		}
	}

	if tx.IdempotencyKey != "" {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO idempotency_keys (key, applied_at) VALUES (?, ?)`,
			tx.IdempotencyKey, time.Now().UTC().Format(timeFormat)); err != nil {
			return err
		}
	}

	if tx.Decision != nil && s.audit != nil {
		if err := s.audit.PutDecision(ctx, *tx.Decision); err != nil {
			return err
		}
	}
	if tx.Run != nil && s.audit != nil {
		if err := s.audit.PutRun(ctx, *tx.Run); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertSchedule(ctx context.Context, sched domain.Schedule) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	res, err := sqlTx.ExecContext(ctx, `INSERT INTO schedules (date, shift) VALUES (?, ?)`,
		sched.Date.Format(timeFormat), sched.Shift)
	if err != nil {
		return err
	}
	scheduleID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, e := range sched.Entries {
		reasonsJSON, err := json.Marshal(e.Reasons)
		if err != nil {
			return err
		}
		conflictsJSON, err := json.Marshal(e.Conflicts)
		if err != nil {
			return err
		}
		if _, err := sqlTx.ExecContext(ctx,
			`INSERT INTO schedule_entries (schedule_id, trainset_id, decision, rank, route, start_time, end_time, reasons_json, conflicts_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			scheduleID, e.TrainsetID, e.Decision, e.Rank, e.Route, e.StartTime.Format(timeFormat), e.EndTime.Format(timeFormat),
			string(reasonsJSON), string(conflictsJSON)); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// GetOptimizationRun delegates to the audit backend.
func (s *Store) GetOptimizationRun(ctx context.Context, runID string) (domain.OptimizationRun, error) {
	if s.audit == nil {
		return domain.OptimizationRun{}, apperr.New(apperr.KindNotFound, "optimization run not found").WithDetails(runID)
	}
	return s.audit.GetRun(ctx, runID)
}

// GetInductionDecision delegates to the audit backend.
func (s *Store) GetInductionDecision(ctx context.Context, decisionID string) (domain.InductionDecision, error) {
	if s.audit == nil {
		return domain.InductionDecision{}, apperr.New(apperr.KindNotFound, "induction decision not found").WithDetails(decisionID)
	}
	return s.audit.GetDecision(ctx, decisionID)
}

// SeedTrainsets inserts or replaces trainset rows; used by tests.
func (s *Store) SeedTrainsets(ctx context.Context, trainsets ...domain.Trainset) error {
	for _, t := range trainsets {
		isActive := 0
		if t.IsActive {
			isActive = 1
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO trainsets (id, number, manufacturer, model, year_built, capacity, max_speed, status, depot, location,
				current_mileage, total_mileage, operational_hours, last_maintenance_at, next_maintenance_due_at,
				last_cleaning_at, next_cleaning_at, fitness_expiry_at, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				number = excluded.number, manufacturer = excluded.manufacturer, model = excluded.model,
				year_built = excluded.year_built, capacity = excluded.capacity, max_speed = excluded.max_speed,
				status = excluded.status, depot = excluded.depot, location = excluded.location,
				current_mileage = excluded.current_mileage, total_mileage = excluded.total_mileage,
				operational_hours = excluded.operational_hours, last_maintenance_at = excluded.last_maintenance_at,
				next_maintenance_due_at = excluded.next_maintenance_due_at, last_cleaning_at = excluded.last_cleaning_at,
				next_cleaning_at = excluded.next_cleaning_at, fitness_expiry_at = excluded.fitness_expiry_at,
				is_active = excluded.is_active`,
			t.ID, t.Number, t.Manufacturer, t.Model, t.YearBuilt, t.Capacity, t.MaxSpeed, t.Status, t.Depot, t.Location,
			t.CurrentMileage, t.TotalMileage, t.OperationalHours, nullTime(t.LastMaintenanceAt), nullTime(t.NextMaintenanceDueAt),
			nullTime(t.LastCleaningAt), nullTime(t.NextCleaningAt), nullTime(t.FitnessExpiryAt), isActive); err != nil {
			return err
		}
	}
	return nil
}

// SeedCertificates inserts or replaces certificate rows; used by tests.
func (s *Store) SeedCertificates(ctx context.Context, certs ...domain.FitnessCertificate) error {
	for _, c := range certs {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO certificates (id, trainset_id, issued_at, expires_at, status, issuing_authority) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET trainset_id=excluded.trainset_id, issued_at=excluded.issued_at,
				expires_at=excluded.expires_at, status=excluded.status, issuing_authority=excluded.issuing_authority`,
			c.ID, c.TrainsetID, c.IssuedAt.Format(timeFormat), c.ExpiresAt.Format(timeFormat), c.Status, c.IssuingAuthority); err != nil {
			return err
		}
	}
	return nil
}

var _ store.Store = (*Store)(nil)
