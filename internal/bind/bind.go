// Package bind is the value conversion registry: it maps a host Go
// type to a BindType that knows how to turn a value of that type into
// something database/sql can carry across the wire, and how to turn a
// column value coming back out of a *sql.Rows into the target Go type.
package bind

import (
	"database/sql"
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Affinity is one of SQLite's five storage classes.
type Affinity int

const (
	Null Affinity = iota
	Integer
	Real
	Text
	Blob
)

func (a Affinity) String() string {
	switch a {
	case Null:
		return "NULL"
	case Integer:
		return "INTEGER"
	case Real:
		return "REAL"
	case Text:
		return "TEXT"
	case Blob:
		return "BLOB"
	default:
		return "UNKNOWN"
	}
}

// DateTimeFormat selects the wire representation used for time.Time
// values. Iso8601SpaceMs is the default, matching the teacher's own
// timestamp convention (RFC3339-with-space is the common SQLite idiom).
type DateTimeFormat int

const (
	Iso8601SpaceMs DateTimeFormat = iota
	Iso8601T
	RFC1123
	RoundTrip
	Ticks
	FileTime
	FileTimeUTC
	OLEAutomation
	JulianDay
	UnixSeconds
	UnixMillis
)

// ticksEpoch is the .NET epoch (0001-01-01) used by the Ticks format;
// a tick is 100 nanoseconds.
var ticksEpoch = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)

// fileTimeEpoch is the Windows FILETIME epoch (1601-01-01) used by the
// FileTime and FileTimeUTC formats, counted in 100-nanosecond units.
var fileTimeEpoch = time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC)

// Options carries the per-connection conversion policy.
type Options struct {
	// GUIDAsBlob binds a uuid.UUID as a 16-byte little-endian blob
	// (the first three fields, of 4, 2 and 2 bytes, byte-reversed)
	// instead of its canonical string form.
	GUIDAsBlob bool

	// GUIDStringFormat selects the string layout when GUIDAsBlob is
	// false; empty means the canonical "xxxxxxxx-xxxx-..." form.
	GUIDStringFormat string

	// DecimalAsBlob is carried for parity with the source format's
	// connection options; no bound Go type in this module's registry
	// exercises it, since the registry has no decimal type.
	DecimalAsBlob bool

	// TimeSpanAsTicks binds a time.Duration as int64 ticks (100ns
	// units) instead of its canonical Go string form.
	TimeSpanAsTicks bool

	// DateTimeFormat selects the wire representation for time.Time.
	DateTimeFormat DateTimeFormat

	// CaseInsensitiveStrings is carried on the options but is not read
	// anywhere: it does not affect binding, the predicate translator or
	// the schema synchronizer. Case-insensitive equality is chosen per
	// comparison with query's EQNoCase.
	CaseInsensitiveStrings bool
}

// DefaultOptions returns the zero-value policy plus the documented
// default DateTimeFormat.
func DefaultOptions() Options {
	return Options{DateTimeFormat: Iso8601SpaceMs}
}

// Context carries everything a BindType's conversion functions need:
// the host value and the options in effect for the owning connection.
type Context struct {
	Value   any
	Options Options
}

// BindType converts between one or more host Go types and the
// database/sql value domain (nil, int64, float64, bool, []byte,
// string, time.Time).
type BindType struct {
	// Types is the ordered set of host types this BindType handles;
	// Registry.Lookup tries them in this order.
	Types []reflect.Type

	// Affinity is the SQLite storage class this BindType prefers for
	// column declarations (component E's affinity-resolution rule).
	Affinity Affinity

	// Bind converts a host value into a database/sql-ready value.
	Bind func(Context) (any, error)

	// Extract converts a raw column value back into a value
	// assignable to target. Implementations may return a value of a
	// different but assignable/convertible type; the caller narrows.
	Extract func(raw any, target reflect.Type) (any, error)
}

// Registry is a reflect.Type-keyed lookup table of BindTypes, with a
// fallback chain: exact type, then first registered type the value is
// convertible to, then the object-to-string fallback.
type Registry struct {
	exact    map[reflect.Type]*BindType
	ordered  []*BindType
	fallback *BindType
}

// NewRegistry returns an empty registry with no fallback configured.
func NewRegistry() *Registry {
	return &Registry{exact: make(map[reflect.Type]*BindType)}
}

// Register adds a BindType to the registry under every type it claims.
func (r *Registry) Register(bt *BindType) {
	for _, t := range bt.Types {
		r.exact[t] = bt
	}
	r.ordered = append(r.ordered, bt)
}

// SetFallback installs the BindType consulted when no registered type
// matches, exactly or convertibly.
func (r *Registry) SetFallback(bt *BindType) {
	r.fallback = bt
}

// Lookup resolves t to a BindType using the exact-match → first
// convertible-base-type → object-fallback chain spec.md prescribes.
func (r *Registry) Lookup(t reflect.Type) (*BindType, bool) {
	if bt, ok := r.exact[t]; ok {
		return bt, true
	}
	for _, bt := range r.ordered {
		for _, candidate := range bt.Types {
			if t.ConvertibleTo(candidate) {
				return bt, true
			}
		}
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// Bind converts value using the registry's lookup chain. A type with
// no matching BindType is reported as ok == false; internal/stmt turns
// that into *rkerrors.BindNotSupportedError.
func (r *Registry) Bind(ctx Context) (any, bool, error) {
	if ctx.Value == nil {
		return nil, true, nil
	}
	t := reflect.TypeOf(ctx.Value)
	bt, ok := r.Lookup(t)
	if !ok {
		return nil, false, nil
	}
	v, err := bt.Bind(ctx)
	return v, true, err
}

// Extract converts raw into a value assignable to target using the
// registry's lookup chain keyed on target's type.
func (r *Registry) Extract(raw any, target reflect.Type) (any, bool, error) {
	bt, ok := r.Lookup(target)
	if !ok {
		return nil, false, nil
	}
	v, err := bt.Extract(raw, target)
	return v, true, err
}

var (
	typeBool       = reflect.TypeOf(bool(false))
	typeInt8       = reflect.TypeOf(int8(0))
	typeInt16      = reflect.TypeOf(int16(0))
	typeInt32      = reflect.TypeOf(int32(0))
	typeInt64      = reflect.TypeOf(int64(0))
	typeInt        = reflect.TypeOf(int(0))
	typeUint8      = reflect.TypeOf(uint8(0))
	typeUint16     = reflect.TypeOf(uint16(0))
	typeUint32     = reflect.TypeOf(uint32(0))
	typeUint64     = reflect.TypeOf(uint64(0))
	typeUint       = reflect.TypeOf(uint(0))
	typeFloat32    = reflect.TypeOf(float32(0))
	typeFloat64    = reflect.TypeOf(float64(0))
	typeString     = reflect.TypeOf("")
	typeBytes      = reflect.TypeOf([]byte(nil))
	typeUUID       = reflect.TypeOf(uuid.UUID{})
	typeDuration   = reflect.TypeOf(time.Duration(0))
	typeTime       = reflect.TypeOf(time.Time{})
	typeNullString = reflect.TypeOf(sql.NullString{})
	typeNullInt64  = reflect.TypeOf(sql.NullInt64{})
	typeNullFloat  = reflect.TypeOf(sql.NullFloat64{})
	typeNullBool   = reflect.TypeOf(sql.NullBool{})
	typeNullTime   = reflect.TypeOf(sql.NullTime{})
)

// Default returns the registry populated with every built-in BindType
// spec.md §4.B enumerates for the host types this module offers.
func Default() *Registry {
	r := NewRegistry()

	r.Register(&BindType{
		Types:    []reflect.Type{typeBool},
		Affinity: Integer,
		Bind:     func(c Context) (any, error) { return c.Value.(bool), nil },
		Extract: func(raw any, target reflect.Type) (any, error) {
			switch v := raw.(type) {
			case bool:
				return v, nil
			case int64:
				return v != 0, nil
			default:
				return nil, fmt.Errorf("bind: cannot extract bool from %T", raw)
			}
		},
	})

	// Every signed and unsigned integer kind binds as int64, the only
	// integer type database/sql carries; UInt64 reinterprets bitwise
	// into int64 (Open Question #1: the
	// unsigned-comparison caveat applies to values above math.MaxInt64
	// — they round-trip bitwise but compare incorrectly as signed).
	r.Register(&BindType{
		Types:    []reflect.Type{typeInt8, typeInt16, typeInt32},
		Affinity: Integer,
		Bind: func(c Context) (any, error) {
			return reflect.ValueOf(c.Value).Convert(typeInt64).Int(), nil
		},
		Extract: func(raw any, target reflect.Type) (any, error) {
			i, err := asInt64(raw)
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(i).Convert(target).Interface(), nil
		},
	})

	r.Register(&BindType{
		Types:    []reflect.Type{typeInt64, typeInt},
		Affinity: Integer,
		Bind: func(c Context) (any, error) {
			return reflect.ValueOf(c.Value).Convert(typeInt64).Int(), nil
		},
		Extract: func(raw any, target reflect.Type) (any, error) {
			i, err := asInt64(raw)
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(i).Convert(target).Interface(), nil
		},
	})

	r.Register(&BindType{
		Types:    []reflect.Type{typeUint8, typeUint16, typeUint32},
		Affinity: Integer,
		Bind: func(c Context) (any, error) {
			return int64(reflect.ValueOf(c.Value).Convert(typeUint64).Uint()), nil
		},
		Extract: func(raw any, target reflect.Type) (any, error) {
			i, err := asInt64(raw)
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(uint64(i)).Convert(target).Interface(), nil
		},
	})

	r.Register(&BindType{
		// uint64/uint: bitwise reinterpretation into int64. Values above
		// math.MaxInt64 round-trip exactly but are stored as negative
		// integers, so SQL ordering comparisons on them are signed.
		Types:    []reflect.Type{typeUint64, typeUint},
		Affinity: Integer,
		Bind: func(c Context) (any, error) {
			u := reflect.ValueOf(c.Value).Convert(typeUint64).Uint()
			return int64(u), nil
		},
		Extract: func(raw any, target reflect.Type) (any, error) {
			i, err := asInt64(raw)
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(uint64(i)).Convert(target).Interface(), nil
		},
	})

	r.Register(&BindType{
		Types:    []reflect.Type{typeFloat32, typeFloat64},
		Affinity: Real,
		Bind: func(c Context) (any, error) {
			return reflect.ValueOf(c.Value).Convert(typeFloat64).Float(), nil
		},
		Extract: func(raw any, target reflect.Type) (any, error) {
			switch v := raw.(type) {
			case float64:
				return reflect.ValueOf(v).Convert(target).Interface(), nil
			case int64:
				return reflect.ValueOf(float64(v)).Convert(target).Interface(), nil
			default:
				return nil, fmt.Errorf("bind: cannot extract float from %T", raw)
			}
		},
	})

	r.Register(&BindType{
		Types:    []reflect.Type{typeString},
		Affinity: Text,
		Bind:     func(c Context) (any, error) { return c.Value.(string), nil },
		Extract: func(raw any, target reflect.Type) (any, error) {
			switch v := raw.(type) {
			case string:
				return v, nil
			case []byte:
				return string(v), nil
			default:
				return fmt.Sprintf("%v", v), nil
			}
		},
	})

	r.Register(&BindType{
		Types:    []reflect.Type{typeBytes},
		Affinity: Blob,
		Bind: func(c Context) (any, error) {
			b, _ := c.Value.([]byte)
			return b, nil
		},
		Extract: func(raw any, target reflect.Type) (any, error) {
			b, ok := raw.([]byte)
			if !ok {
				return nil, fmt.Errorf("bind: cannot extract []byte from %T", raw)
			}
			cp := make([]byte, len(b))
			copy(cp, b)
			return cp, nil
		},
	})

	r.Register(&BindType{
		Types:    []reflect.Type{typeUUID},
		Affinity: Blob,
		Bind: func(c Context) (any, error) {
			id := c.Value.(uuid.UUID)
			if c.Options.GUIDAsBlob {
				b := id[:]
				cp := make([]byte, 16)
				copy(cp, b)
				cp[0], cp[1], cp[2], cp[3] = cp[3], cp[2], cp[1], cp[0]
				cp[4], cp[5] = cp[5], cp[4]
				cp[6], cp[7] = cp[7], cp[6]
				return cp, nil
			}
			return formatUUID(id, c.Options.GUIDStringFormat), nil
		},
		Extract: func(raw any, target reflect.Type) (any, error) {
			switch v := raw.(type) {
			case []byte:
				if len(v) != 16 {
					return nil, fmt.Errorf("bind: uuid blob has %d bytes, want 16", len(v))
				}
				var id uuid.UUID
				copy(id[:], v)
				id[0], id[1], id[2], id[3] = id[3], id[2], id[1], id[0]
				id[4], id[5] = id[5], id[4]
				id[6], id[7] = id[7], id[6]
				return id, nil
			case string:
				id, err := uuid.Parse(v)
				if err != nil {
					return nil, err
				}
				return id, nil
			default:
				return nil, fmt.Errorf("bind: cannot extract uuid.UUID from %T", raw)
			}
		},
	})

	r.Register(&BindType{
		Types:    []reflect.Type{typeDuration},
		Affinity: Text,
		Bind: func(c Context) (any, error) {
			d := c.Value.(time.Duration)
			if c.Options.TimeSpanAsTicks {
				return int64(d / 100), nil
			}
			return d.String(), nil
		},
		Extract: func(raw any, target reflect.Type) (any, error) {
			switch v := raw.(type) {
			case int64:
				return time.Duration(v * 100), nil
			case string:
				d, err := time.ParseDuration(v)
				if err != nil {
					return nil, err
				}
				return d, nil
			default:
				return nil, fmt.Errorf("bind: cannot extract time.Duration from %T", raw)
			}
		},
	})

	r.Register(&BindType{
		Types:    []reflect.Type{typeTime},
		Affinity: Text,
		Bind: func(c Context) (any, error) {
			t := c.Value.(time.Time)
			return formatTime(t, c.Options.DateTimeFormat), nil
		},
		Extract: func(raw any, target reflect.Type) (any, error) {
			return parseTime(raw)
		},
	})

	r.Register(&BindType{
		Types:    []reflect.Type{typeNullString, typeNullInt64, typeNullFloat, typeNullBool, typeNullTime},
		Affinity: Null,
		Bind: func(c Context) (any, error) {
			return bindSQLNull(c.Value)
		},
		Extract: func(raw any, target reflect.Type) (any, error) {
			return extractSQLNull(raw, target)
		},
	})

	r.SetFallback(&BindType{
		Affinity: Text,
		Bind: func(c Context) (any, error) {
			if tm, ok := c.Value.(encoding.TextMarshaler); ok {
				b, err := tm.MarshalText()
				if err != nil {
					return nil, err
				}
				return string(b), nil
			}
			return fmt.Sprintf("%v", c.Value), nil
		},
		Extract: func(raw any, target reflect.Type) (any, error) {
			s, err := asString(raw)
			if err != nil {
				return nil, err
			}
			if reflect.PointerTo(target).Implements(reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()) {
				v := reflect.New(target)
				if err := v.Interface().(interface{ UnmarshalText([]byte) error }).UnmarshalText([]byte(s)); err != nil {
					return nil, err
				}
				return v.Elem().Interface(), nil
			}
			return s, nil
		},
	})

	return r
}

func asInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("bind: cannot extract integer from %T", raw)
	}
}

func asString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func formatUUID(id uuid.UUID, format string) string {
	switch format {
	case "N":
		return fmt.Sprintf("%x", id[:])
	default:
		return id.String()
	}
}

func formatTime(t time.Time, format DateTimeFormat) any {
	switch format {
	case Iso8601T:
		return t.UTC().Format("2006-01-02T15:04:05.000")
	case RFC1123:
		return t.UTC().Format(time.RFC1123)
	case RoundTrip:
		return t.Format(time.RFC3339Nano)
	case Ticks:
		return t.UTC().Sub(ticksEpoch).Nanoseconds() / 100
	case FileTime, FileTimeUTC:
		return t.UTC().Sub(fileTimeEpoch).Nanoseconds() / 100
	case OLEAutomation:
		return oleAutomationDate(t.UTC())
	case JulianDay:
		return julianDay(t.UTC())
	case UnixSeconds:
		return t.UTC().Unix()
	case UnixMillis:
		return t.UTC().UnixMilli()
	case Iso8601SpaceMs:
		fallthrough
	default:
		return t.UTC().Format("2006-01-02 15:04:05.000")
	}
}

func parseTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case string:
		layouts := []string{
			"2006-01-02 15:04:05.000",
			"2006-01-02T15:04:05.000",
			time.RFC3339Nano,
			time.RFC3339,
			time.RFC1123,
			"2006-01-02 15:04:05",
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("bind: cannot parse time %q", v)
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case time.Time:
		return v, nil
	default:
		return time.Time{}, fmt.Errorf("bind: cannot extract time.Time from %T", raw)
	}
}

// oleAutomationDate converts t into an OLE Automation date: the
// number of days since 1899-12-30, with the fractional part encoding
// time-of-day.
func oleAutomationDate(t time.Time) float64 {
	oleEpoch := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	return t.Sub(oleEpoch).Hours() / 24
}

// julianDay converts t into an astronomical Julian day number.
func julianDay(t time.Time) float64 {
	const unixEpochJulianDay = 2440587.5
	return unixEpochJulianDay + float64(t.Unix())/86400.0
}

func bindSQLNull(value any) (any, error) {
	switch v := value.(type) {
	case sql.NullString:
		if !v.Valid {
			return nil, nil
		}
		return v.String, nil
	case sql.NullInt64:
		if !v.Valid {
			return nil, nil
		}
		return v.Int64, nil
	case sql.NullFloat64:
		if !v.Valid {
			return nil, nil
		}
		return v.Float64, nil
	case sql.NullBool:
		if !v.Valid {
			return nil, nil
		}
		return v.Bool, nil
	case sql.NullTime:
		if !v.Valid {
			return nil, nil
		}
		return formatTime(v.Time, Iso8601SpaceMs), nil
	default:
		return nil, fmt.Errorf("bind: unsupported Null* type %T", value)
	}
}

func extractSQLNull(raw any, target reflect.Type) (any, error) {
	switch target {
	case typeNullString:
		if raw == nil {
			return sql.NullString{}, nil
		}
		s, err := asString(raw)
		return sql.NullString{String: s, Valid: err == nil}, err
	case typeNullInt64:
		if raw == nil {
			return sql.NullInt64{}, nil
		}
		i, err := asInt64(raw)
		return sql.NullInt64{Int64: i, Valid: err == nil}, err
	case typeNullFloat:
		if raw == nil {
			return sql.NullFloat64{}, nil
		}
		f, ok := raw.(float64)
		if !ok {
			return sql.NullFloat64{}, fmt.Errorf("bind: cannot extract NullFloat64 from %T", raw)
		}
		return sql.NullFloat64{Float64: f, Valid: true}, nil
	case typeNullBool:
		if raw == nil {
			return sql.NullBool{}, nil
		}
		b, ok := raw.(bool)
		if !ok {
			i, err := asInt64(raw)
			if err != nil {
				return sql.NullBool{}, err
			}
			return sql.NullBool{Bool: i != 0, Valid: true}, nil
		}
		return sql.NullBool{Bool: b, Valid: true}, nil
	case typeNullTime:
		if raw == nil {
			return sql.NullTime{}, nil
		}
		t, err := parseTime(raw)
		if err != nil {
			return sql.NullTime{}, err
		}
		return sql.NullTime{Time: t, Valid: true}, nil
	default:
		return nil, fmt.Errorf("bind: unsupported Null* target %s", target)
	}
}
