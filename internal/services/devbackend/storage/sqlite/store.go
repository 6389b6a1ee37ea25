// Package sqlite provides the SQLite-backed storage behind the development
// backend.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlitemigrate "github.com/louisbranch/cargo.space/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/cargo.space/internal/services/devbackend/filter"
	"github.com/louisbranch/cargo.space/internal/services/devbackend/storage"
	"github.com/louisbranch/cargo.space/internal/services/devbackend/storage/sqlite/migrations"
	"go.einride.tech/aip/ordering"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// MaxLimit caps the rows returned by one query.
const MaxLimit = 1000

// Store persists devbackend records in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides primary key generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies embedded migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	s := &Store{
		sqlDB: sqlDB,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// Get returns one record by primary key.
func (s *Store) Get(ctx context.Context, resourceName, id string) (storage.Record, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	res, ok := resources[resourceName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownResource, resourceName)
	}
	return getRecord(ctx, s.sqlDB, res, id)
}

// Schema returns the filterable fields of a resource.
func (s *Store) Schema(resourceName string) (filter.Schema, bool) {
	return FilterSchema(resourceName)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getRecord(ctx context.Context, db queryer, res *resource, id string) (storage.Record, error) {
	records, err := selectRecords(ctx, db, res, res.columns,
		`SELECT `+columnList(res.columns)+` FROM `+res.table+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, storage.ErrNotFound
	}
	return records[0], nil
}

// Query runs a filtered, ordered and limited read over one resource.
func (s *Store) Query(ctx context.Context, q storage.Query) (storage.Result, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Result{}, err
	}
	res, ok := resources[q.Resource]
	if !ok {
		return storage.Result{}, fmt.Errorf("%w: %s", storage.ErrUnknownResource, q.Resource)
	}
	if q.Limit < 0 {
		return storage.Result{}, fmt.Errorf("%w: limit must not be negative", storage.ErrInvalidQuery)
	}
	cond, err := filter.ToSQL(q.Filter, res.schema)
	if err != nil {
		return storage.Result{}, fmt.Errorf("%w: %v", storage.ErrInvalidQuery, err)
	}
	where := ""
	if cond.Clause != "" {
		where = " WHERE " + cond.Clause
	}

	if q.CountOnly {
		var count int64
		if err := s.sqlDB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM `+res.table+where, cond.Params...,
		).Scan(&count); err != nil {
			return storage.Result{}, fmt.Errorf("count %s: %w", q.Resource, err)
		}
		return storage.Result{Count: count}, nil
	}

	columns, err := res.selectColumns(q.Columns)
	if err != nil {
		return storage.Result{}, err
	}
	orderBy, err := res.orderClause(q.OrderBy)
	if err != nil {
		return storage.Result{}, err
	}
	limit := q.Limit
	if limit == 0 || limit > MaxLimit {
		limit = MaxLimit
	}
	stmt := `SELECT ` + columnList(columns) + ` FROM ` + res.table + where + orderBy + ` LIMIT ?`
	params := append(slices.Clone(cond.Params), limit)
	records, err := selectRecords(ctx, s.sqlDB, res, columns, stmt, params...)
	if err != nil {
		return storage.Result{}, fmt.Errorf("query %s: %w", q.Resource, err)
	}
	return storage.Result{Records: records, Count: int64(len(records))}, nil
}

func (r *resource) selectColumns(names []string) ([]column, error) {
	if len(names) == 0 {
		return r.columns, nil
	}
	columns := make([]column, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "*" {
			return r.columns, nil
		}
		c, ok := r.column(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown column %q", storage.ErrInvalidQuery, name)
		}
		columns = append(columns, c)
	}
	return columns, nil
}

// orderClause parses an AIP-132 ordering. Ties break on id so pages are
// stable. The default is newest first when the resource has created_at.
func (r *resource) orderClause(raw string) (string, error) {
	var orderBy ordering.OrderBy
	if err := orderBy.UnmarshalString(raw); err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidQuery, err)
	}
	paths := make([]string, 0, len(r.columns))
	for _, c := range r.columns {
		if c.kind != kindJSON {
			paths = append(paths, c.name)
		}
	}
	if err := orderBy.ValidateForPaths(paths...); err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidQuery, err)
	}
	fields := orderBy.Fields
	if len(fields) == 0 {
		if _, ok := r.column("created_at"); ok {
			fields = []ordering.Field{{Path: "created_at", Desc: true}}
		}
	}
	parts := make([]string, 0, len(fields)+1)
	for _, field := range fields {
		direction := "ASC"
		if field.Desc {
			direction = "DESC"
		}
		parts = append(parts, field.Path+" "+direction)
	}
	parts = append(parts, "id ASC")
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func columnList(columns []column) string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.name
	}
	return strings.Join(names, ", ")
}

func selectRecords(ctx context.Context, db queryer, res *resource, columns []column, stmt string, args ...any) ([]storage.Record, error) {
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.Record
	for rows.Next() {
		dest := make([]any, len(columns))
		for i, c := range columns {
			dest[i] = c.scanTarget()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", res.table, err)
		}
		record := make(storage.Record, len(columns))
		for i, c := range columns {
			value, err := c.decode(dest[i])
			if err != nil {
				return nil, err
			}
			record[c.name] = value
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// CreateBooking inserts a booking in the placed status.
func (s *Store) CreateBooking(ctx context.Context, booking storage.Booking) (storage.Change, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Change{}, err
	}
	userID := strings.TrimSpace(booking.UserID)
	itemName := strings.TrimSpace(booking.ItemName)
	if userID == "" {
		return storage.Change{}, fmt.Errorf("user id is required")
	}
	if itemName == "" {
		return storage.Change{}, fmt.Errorf("item name is required")
	}
	if booking.TotalWeight < 0 || booking.TotalCharge < 0 {
		return storage.Change{}, fmt.Errorf("weight and charge must not be negative")
	}
	if booking.ID == "" {
		booking.ID = s.newID()
	}
	if booking.BookingID == "" {
		booking.BookingID = bookingReference(booking.ID)
	}
	status := booking.Status
	if status == "" {
		status = storage.BookingStatuses[0]
	}
	if !slices.Contains(storage.BookingStatuses, status) {
		return storage.Change{}, fmt.Errorf("unknown booking status %q", status)
	}
	now := s.now().UTC()
	createdAt := booking.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	tracking, err := encodeJSON(booking.TrackingNumbers)
	if err != nil {
		return storage.Change{}, err
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO bookings (
		   id, booking_id, user_id, item_name, category,
		   shipping_method, delivery_method, shipping_mark, special_notes,
		   city, district, street, status,
		   total_weight, total_quantity, total_carton, total_charge,
		   tracking_numbers, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.ID, booking.BookingID, userID, itemName, booking.Category,
		booking.ShippingMethod, booking.DeliveryMethod, booking.ShippingMark, booking.SpecialNotes,
		booking.City, booking.District, booking.Street, status,
		booking.TotalWeight, booking.TotalQuantity, booking.TotalCarton, booking.TotalCharge,
		tracking, toMillis(createdAt), toMillis(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.Change{}, storage.ErrAlreadyExists
		}
		return storage.Change{}, fmt.Errorf("create booking: %w", err)
	}
	return s.change(ctx, s.sqlDB, storage.ResourceBookings, booking.ID, storage.ChangeInsert, now)
}

// UpdateBookingStatus moves a booking to a new status and appends a history
// row in the same transaction. It returns the booking change followed by the
// history change.
func (s *Store) UpdateBookingStatus(ctx context.Context, update storage.StatusUpdate) ([]storage.Change, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if !slices.Contains(storage.BookingStatuses, update.NewStatus) {
		return nil, fmt.Errorf("unknown booking status %q", update.NewStatus)
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin status update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var oldStatus string
	err = tx.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ?`, update.BookingID).Scan(&oldStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load booking status: %w", err)
	}

	now := s.now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
		update.NewStatus, toMillis(now), update.BookingID,
	); err != nil {
		return nil, fmt.Errorf("update booking status: %w", err)
	}
	historyID := s.newID()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO booking_status_history (id, booking_id, old_status, new_status, changed_by, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		historyID, update.BookingID, oldStatus, update.NewStatus,
		nullString(update.ChangedBy), nullString(update.Notes), toMillis(now),
	); err != nil {
		return nil, fmt.Errorf("insert status history: %w", err)
	}

	bookingChange, err := s.change(ctx, tx, storage.ResourceBookings, update.BookingID, storage.ChangeUpdate, now)
	if err != nil {
		return nil, err
	}
	historyChange, err := s.change(ctx, tx, storage.ResourceStatusHistory, historyID, storage.ChangeInsert, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}
	return []storage.Change{bookingChange, historyChange}, nil
}

// DeleteBooking removes a booking and its history.
func (s *Store) DeleteBooking(ctx context.Context, id string) (storage.Change, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Change{}, err
	}
	record, err := getRecord(ctx, s.sqlDB, resources[storage.ResourceBookings], id)
	if err != nil {
		return storage.Change{}, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Change{}, fmt.Errorf("begin delete booking: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_status_history WHERE booking_id = ?`, id); err != nil {
		return storage.Change{}, fmt.Errorf("delete status history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id); err != nil {
		return storage.Change{}, fmt.Errorf("delete booking: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Change{}, fmt.Errorf("commit delete booking: %w", err)
	}
	return storage.Change{
		Resource: storage.ResourceBookings,
		Kind:     storage.ChangeDelete,
		Record:   record,
		At:       s.now().UTC(),
	}, nil
}

// UpsertProfile creates or updates the profile keyed by user id.
func (s *Store) UpsertProfile(ctx context.Context, profile storage.Profile) (storage.Change, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Change{}, err
	}
	userID := strings.TrimSpace(profile.UserID)
	if userID == "" {
		return storage.Change{}, fmt.Errorf("user id is required")
	}
	role := profile.Role
	if role == "" {
		role = "customer"
	}
	kind := storage.ChangeUpdate
	var id string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT id FROM profiles WHERE user_id = ?`, userID).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		kind = storage.ChangeInsert
		id = profile.ID
		if id == "" {
			id = s.newID()
		}
	case err != nil:
		return storage.Change{}, fmt.Errorf("load profile: %w", err)
	}

	now := s.now().UTC()
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO profiles (id, user_id, username, first_name, last_name, phone, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   username = excluded.username,
		   first_name = excluded.first_name,
		   last_name = excluded.last_name,
		   phone = excluded.phone,
		   role = excluded.role,
		   updated_at = excluded.updated_at`,
		id, userID, profile.Username, profile.FirstName, profile.LastName, profile.Phone, role,
		toMillis(now), toMillis(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.Change{}, storage.ErrAlreadyExists
		}
		return storage.Change{}, fmt.Errorf("upsert profile: %w", err)
	}
	return s.change(ctx, s.sqlDB, storage.ResourceProfiles, id, kind, now)
}

// RecordAdminAction appends one audit-log entry.
func (s *Store) RecordAdminAction(ctx context.Context, action storage.AdminAction) (storage.Change, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Change{}, err
	}
	if strings.TrimSpace(action.AdminID) == "" {
		return storage.Change{}, fmt.Errorf("admin id is required")
	}
	if strings.TrimSpace(action.ActionType) == "" {
		return storage.Change{}, fmt.Errorf("action type is required")
	}
	if action.ID == "" {
		action.ID = s.newID()
	}
	oldValues, err := encodeJSON(action.OldValues)
	if err != nil {
		return storage.Change{}, err
	}
	newValues, err := encodeJSON(action.NewValues)
	if err != nil {
		return storage.Change{}, err
	}
	now := s.now().UTC()
	createdAt := action.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO admin_actions (id, admin_id, action_type, target_type, target_id, description, old_values, new_values, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		action.ID, action.AdminID, action.ActionType, action.TargetType, action.TargetID,
		nullString(action.Description), oldValues, newValues, toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.Change{}, storage.ErrAlreadyExists
		}
		return storage.Change{}, fmt.Errorf("record admin action: %w", err)
	}
	return s.change(ctx, s.sqlDB, storage.ResourceAdminActions, action.ID, storage.ChangeInsert, now)
}

// UpsertPricing creates or replaces one pricing band.
func (s *Store) UpsertPricing(ctx context.Context, pricing storage.Pricing) (storage.Change, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Change{}, err
	}
	if strings.TrimSpace(pricing.ShippingMethod) == "" {
		return storage.Change{}, fmt.Errorf("shipping method is required")
	}
	if pricing.PricePerKg <= 0 {
		return storage.Change{}, fmt.Errorf("price per kg must be greater than zero")
	}
	if pricing.WeightTo != 0 && pricing.WeightTo < pricing.WeightFrom {
		return storage.Change{}, fmt.Errorf("weight to must be greater than or equal to weight from")
	}
	kind := storage.ChangeUpdate
	if pricing.ID == "" {
		pricing.ID = s.newID()
		kind = storage.ChangeInsert
	} else if _, err := getRecord(ctx, s.sqlDB, resources[storage.ResourcePricing], pricing.ID); errors.Is(err, storage.ErrNotFound) {
		kind = storage.ChangeInsert
	} else if err != nil {
		return storage.Change{}, err
	}
	currency := pricing.Currency
	if currency == "" {
		currency = "BDT"
	}
	var weightTo any
	if pricing.WeightTo != 0 {
		weightTo = pricing.WeightTo
	}
	now := s.now().UTC()
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO dynamic_pricing (id, shipping_method, weight_from, weight_to, price_per_kg, currency, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   shipping_method = excluded.shipping_method,
		   weight_from = excluded.weight_from,
		   weight_to = excluded.weight_to,
		   price_per_kg = excluded.price_per_kg,
		   currency = excluded.currency,
		   is_active = excluded.is_active,
		   updated_at = excluded.updated_at`,
		pricing.ID, pricing.ShippingMethod, pricing.WeightFrom, weightTo, pricing.PricePerKg,
		currency, pricing.IsActive, toMillis(now), toMillis(now),
	)
	if err != nil {
		return storage.Change{}, fmt.Errorf("upsert pricing: %w", err)
	}
	return s.change(ctx, s.sqlDB, storage.ResourcePricing, pricing.ID, kind, now)
}

func (s *Store) change(ctx context.Context, db queryer, resourceName, id string, kind storage.ChangeKind, at time.Time) (storage.Change, error) {
	record, err := getRecord(ctx, db, resources[resourceName], id)
	if err != nil {
		return storage.Change{}, fmt.Errorf("reload %s %s: %w", resourceName, id, err)
	}
	return storage.Change{Resource: resourceName, Kind: kind, Record: record, At: at}, nil
}

func encodeJSON(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		if v == nil {
			return nil, nil
		}
	case map[string]any:
		if v == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return string(data), nil
}

// bookingReference derives the customer-facing booking id from the key.
func bookingReference(id string) string {
	ref := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(ref) > 8 {
		ref = ref[:8]
	}
	return "BK" + ref
}

func nullString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
