package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/cargo.space/internal/services/devbackend/filter"
	"github.com/louisbranch/cargo.space/internal/services/devbackend/storage"
)

type columnKind int

const (
	kindText columnKind = iota
	kindInt
	kindFloat
	kindBool
	kindTime
	kindJSON
)

type column struct {
	name string
	kind columnKind
}

type resource struct {
	table   string
	columns []column
	// aliases are extra filter identifiers mapped onto a column.
	aliases map[string]string
	schema  filter.Schema
	byName  map[string]column
}

func newResource(table string, aliases map[string]string, columns ...column) *resource {
	r := &resource{
		table:   table,
		columns: columns,
		aliases: aliases,
		schema:  filter.Schema{},
		byName:  make(map[string]column, len(columns)),
	}
	for _, c := range columns {
		r.byName[c.name] = c
		if ft, ok := c.kind.filterType(); ok {
			r.schema[c.name] = filter.Field{Type: ft}
		}
	}
	for alias, target := range aliases {
		if field, ok := r.schema[target]; ok {
			r.schema[alias] = filter.Field{Type: field.Type, Column: target}
		}
	}
	return r
}

func (k columnKind) filterType() (filter.FieldType, bool) {
	switch k {
	case kindText:
		return filter.FieldString, true
	case kindInt:
		return filter.FieldInt, true
	case kindFloat:
		return filter.FieldFloat, true
	case kindBool:
		return filter.FieldBool, true
	case kindTime:
		return filter.FieldTimestamp, true
	default:
		return "", false
	}
}

// FilterSchema returns the filterable fields of a resource.
func FilterSchema(name string) (filter.Schema, bool) {
	r, ok := resources[name]
	if !ok {
		return nil, false
	}
	return r.schema, true
}

func (r *resource) column(name string) (column, bool) {
	c, ok := r.byName[name]
	return c, ok
}

var resources = map[string]*resource{
	storage.ResourceBookings: newResource("bookings", nil,
		column{"id", kindText},
		column{"booking_id", kindText},
		column{"user_id", kindText},
		column{"item_name", kindText},
		column{"category", kindText},
		column{"shipping_method", kindText},
		column{"delivery_method", kindText},
		column{"shipping_mark", kindText},
		column{"special_notes", kindText},
		column{"city", kindText},
		column{"district", kindText},
		column{"street", kindText},
		column{"status", kindText},
		column{"total_weight", kindFloat},
		column{"total_quantity", kindInt},
		column{"total_carton", kindInt},
		column{"total_charge", kindFloat},
		column{"tracking_numbers", kindJSON},
		column{"created_at", kindTime},
		column{"updated_at", kindTime},
	),
	storage.ResourceProfiles: newResource("profiles", nil,
		column{"id", kindText},
		column{"user_id", kindText},
		column{"username", kindText},
		column{"first_name", kindText},
		column{"last_name", kindText},
		column{"phone", kindText},
		column{"role", kindText},
		column{"created_at", kindTime},
		column{"updated_at", kindTime},
	),
	storage.ResourceAdminActions: newResource("admin_actions", map[string]string{"type": "action_type"},
		column{"id", kindText},
		column{"admin_id", kindText},
		column{"action_type", kindText},
		column{"target_type", kindText},
		column{"target_id", kindText},
		column{"description", kindText},
		column{"old_values", kindJSON},
		column{"new_values", kindJSON},
		column{"created_at", kindTime},
	),
	storage.ResourceStatusHistory: newResource("booking_status_history", nil,
		column{"id", kindText},
		column{"booking_id", kindText},
		column{"old_status", kindText},
		column{"new_status", kindText},
		column{"changed_by", kindText},
		column{"notes", kindText},
		column{"created_at", kindTime},
	),
	storage.ResourcePricing: newResource("dynamic_pricing", nil,
		column{"id", kindText},
		column{"shipping_method", kindText},
		column{"weight_from", kindFloat},
		column{"weight_to", kindFloat},
		column{"price_per_kg", kindFloat},
		column{"currency", kindText},
		column{"is_active", kindBool},
		column{"created_at", kindTime},
		column{"updated_at", kindTime},
	),
}

// scanTarget returns a destination suited to the column's storage class.
func (c column) scanTarget() any {
	switch c.kind {
	case kindInt, kindTime, kindBool:
		return new(sql.NullInt64)
	case kindFloat:
		return new(sql.NullFloat64)
	default:
		return new(sql.NullString)
	}
}

// decode converts a scanned destination to the Record value for c. NULL
// becomes nil.
func (c column) decode(dest any) (any, error) {
	switch v := dest.(type) {
	case *sql.NullInt64:
		if !v.Valid {
			return nil, nil
		}
		switch c.kind {
		case kindTime:
			return fromMillis(v.Int64), nil
		case kindBool:
			return v.Int64 != 0, nil
		default:
			return v.Int64, nil
		}
	case *sql.NullFloat64:
		if !v.Valid {
			return nil, nil
		}
		return v.Float64, nil
	case *sql.NullString:
		if !v.Valid {
			return nil, nil
		}
		if c.kind != kindJSON {
			return v.String, nil
		}
		if v.String == "" {
			return nil, nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(v.String), &decoded); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c.name, err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unexpected scan target %T", dest)
	}
}
