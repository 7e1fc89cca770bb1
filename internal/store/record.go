package store

import (
	"errors"
	"fmt"
	"maps"
	"sort"
)

// Reserved record keys.
const (
	KeyVersion   = "_version"
	KeyName      = "_NAME"
	KeyWPID      = "_wpid"
	KeySerial    = "_serial"
	KeyModelID   = "_modelId"
	KeyUnitID    = "_unitId"
	KeyAbsent    = "_absent"
	KeyBattery   = "_battery"
	KeySensitive = "_sensitive"
)

// ErrReservedType is returned when a reserved key is set to a value of the wrong type.
var ErrReservedType = errors.New("wrong type for reserved key")

// Sensitivity is the policy recorded for a setting in the _sensitive map.
type Sensitivity int

const (
	NotSensitive Sensitivity = iota
	Sensitive
	IgnoreSensitivity
)

func (s Sensitivity) String() string {
	switch s {
	case Sensitive:
		return "true"
	case IgnoreSensitivity:
		return "ignore"
	default:
		return "false"
	}
}

// MarshalYAML writes the policy as false, true or "ignore".
func (s Sensitivity) MarshalYAML() (any, error) {
	switch s {
	case Sensitive:
		return true, nil
	case IgnoreSensitivity:
		return "ignore", nil
	default:
		return false, nil
	}
}

// ParseSensitivity reads a policy written as a bool, "true", "false" or "ignore".
func ParseSensitivity(v any) (Sensitivity, error) {
	switch t := v.(type) {
	case nil:
		return NotSensitive, nil
	case bool:
		if t {
			return Sensitive, nil
		}
		return NotSensitive, nil
	case Sensitivity:
		return t, nil
	case string:
		switch t {
		case "ignore":
			return IgnoreSensitivity, nil
		case "true", "True":
			return Sensitive, nil
		case "false", "False":
			return NotSensitive, nil
		}
	}
	return NotSensitive, fmt.Errorf("unknown sensitivity %v (%T)", v, v)
}

// Record holds the stored settings of one device. Identity fields and the
// sensitivity map are typed; everything else lives in an open settings map.
//
// Records attached to a Store share its lock and request a deferred save on
// every mutation.
type Record struct {
	owner *Store

	name    string
	wpid    string
	serial  string
	modelID string
	unitID  string

	// nil means the key is unset, which differs from an empty map on disk.
	sensitive map[string]Sensitivity
	settings  map[string]any
}

func newRecord(owner *Store) *Record {
	return &Record{owner: owner, settings: make(map[string]any)}
}

func (r *Record) lock() {
	if r.owner != nil {
		r.owner.mu.Lock()
	}
}

func (r *Record) unlock() {
	if r.owner != nil {
		r.owner.mu.Unlock()
	}
}

func (r *Record) requestSave() {
	if r.owner != nil {
		r.owner.scheduler.RequestSave(false)
	}
}

func (r *Record) Name() string {
	r.lock()
	defer r.unlock()
	return r.name
}

func (r *Record) WPID() string {
	r.lock()
	defer r.unlock()
	return r.wpid
}

func (r *Record) Serial() string {
	r.lock()
	defer r.unlock()
	return r.serial
}

func (r *Record) ModelID() string {
	r.lock()
	defer r.unlock()
	return r.modelID
}

func (r *Record) UnitID() string {
	r.lock()
	defer r.unlock()
	return r.unitID
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	r.lock()
	defer r.unlock()
	return r.getLocked(key)
}

func (r *Record) getLocked(key string) (any, bool) {
	switch key {
	case KeyName:
		return r.name, r.name != ""
	case KeyWPID:
		return r.wpid, r.wpid != ""
	case KeySerial:
		return r.serial, r.serial != ""
	case KeyModelID:
		return r.modelID, r.modelID != ""
	case KeyUnitID:
		return r.unitID, r.unitID != ""
	case KeySensitive:
		if r.sensitive == nil {
			return nil, false
		}
		return maps.Clone(r.sensitive), true
	}
	v, ok := r.settings[key]
	return v, ok
}

// Keys returns the keys present in the record, sorted.
func (r *Record) Keys() []string {
	r.lock()
	defer r.unlock()
	return r.keysLocked()
}

func (r *Record) keysLocked() []string {
	keys := make([]string, 0, len(r.settings)+6)
	for _, k := range []string{KeyName, KeyWPID, KeySerial, KeyModelID, KeyUnitID, KeySensitive} {
		if _, ok := r.getLocked(k); ok {
			keys = append(keys, k)
		}
	}
	for k := range r.settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set stores value under key and schedules a deferred save.
// Identity keys take strings and _sensitive takes a map[string]Sensitivity.
func (r *Record) Set(key string, value any) error {
	r.lock()
	err := r.setLocked(key, value)
	r.unlock()
	if err != nil {
		return err
	}
	r.requestSave()
	return nil
}

func (r *Record) setLocked(key string, value any) error {
	switch key {
	case KeyName, KeyWPID, KeySerial, KeyModelID, KeyUnitID:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s wants a string, got %T", ErrReservedType, key, value)
		}
		*r.identityField(key) = s
	case KeySensitive:
		m, ok := value.(map[string]Sensitivity)
		if !ok {
			return fmt.Errorf("%w: %s wants map[string]Sensitivity, got %T", ErrReservedType, key, value)
		}
		r.sensitive = maps.Clone(m)
		if r.sensitive == nil {
			r.sensitive = make(map[string]Sensitivity)
		}
	default:
		r.settings[key] = value
	}
	return nil
}

func (r *Record) identityField(key string) *string {
	switch key {
	case KeyName:
		return &r.name
	case KeyWPID:
		return &r.wpid
	case KeySerial:
		return &r.serial
	case KeyModelID:
		return &r.modelID
	default:
		return &r.unitID
	}
}

// UpdateIdentity records the identity fields that are non-empty and differ
// from the stored ones. A save is requested only if something changed.
func (r *Record) UpdateIdentity(name, wpid, serial, modelID, unitID string) {
	r.lock()
	changed := r.updateIdentityLocked(name, wpid, serial, modelID, unitID)
	r.unlock()
	if changed {
		r.requestSave()
	}
}

func (r *Record) updateIdentityLocked(name, wpid, serial, modelID, unitID string) bool {
	changed := false
	for _, f := range []struct {
		dst *string
		v   string
	}{
		{&r.name, name},
		{&r.wpid, wpid},
		{&r.serial, serial},
		{&r.modelID, modelID},
		{&r.unitID, unitID},
	} {
		if f.v != "" && f.v != *f.dst {
			*f.dst = f.v
			changed = true
		}
	}
	return changed
}

// Sensitivity returns the policy recorded for the named setting.
func (r *Record) Sensitivity(name string) Sensitivity {
	r.lock()
	defer r.unlock()
	return r.sensitive[name]
}

// SetSensitivity records policy for the named setting, saving only on change.
func (r *Record) SetSensitivity(name string, policy Sensitivity) {
	r.lock()
	if cur, ok := r.sensitive[name]; ok && cur == policy {
		r.unlock()
		return
	}
	if r.sensitive == nil {
		r.sensitive = make(map[string]Sensitivity)
	}
	r.sensitive[name] = policy
	r.unlock()
	r.requestSave()
}

// Absent reports whether the device was last seen unreachable.
func (r *Record) Absent() bool {
	r.lock()
	defer r.unlock()
	b, _ := r.settings[KeyAbsent].(bool)
	return b
}

func (r *Record) SetAbsent(absent bool) {
	_ = r.Set(KeyAbsent, absent)
}
