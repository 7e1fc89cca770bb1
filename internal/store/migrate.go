package store

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrMalformedRecord marks a document element that cannot be turned into a Record.
var ErrMalformedRecord = errors.New("malformed record")

const (
	keyDivertKeys    = "divert-keys"
	keyDPISliding    = "dpi-sliding"
	keyMouseGestures = "mouse-gestures"
	keyLegacyName    = "_name"

	divertSliding  = 3
	divertGestures = 2
)

// Scroll wheel settings start out ignored by the sensitivity policy.
func defaultSensitive() map[string]any {
	return map[string]any{
		"hires-smooth-resolution": "ignore",
		"hires-smooth-invert":     "ignore",
		"hires-scroll-mode":       "ignore",
	}
}

func defaultSensitivity() map[string]Sensitivity {
	m := make(map[string]Sensitivity, 3)
	for k := range defaultSensitive() {
		m[k] = IgnoreSensitivity
	}
	return m
}

// parse turns a decoded on-disk document into a Document for the current
// version. A missing document yields an empty one. If any record is malformed
// the whole content is dropped and only the version survives.
func parse(raw any, source, current string, logger *slog.Logger) *Document {
	doc := &Document{Version: current}
	if raw == nil {
		return doc
	}
	items, ok := raw.([]any)
	if !ok {
		logger.Warn("ignoring contents of configuration file", "path", source,
			"err", fmt.Errorf("%w: document is %T, not a sequence", ErrMalformedRecord, raw))
		return doc
	}
	if len(items) == 0 {
		return doc
	}

	loaded := versionString(items[0])
	discardDerived := loaded != current
	if discardDerived {
		logger.Info("configuration was generated by another version, refreshing detected device capabilities",
			"path", source, "config", loaded, "current", current)
	}

	records := make([]*Record, 0, len(items)-1)
	for i, item := range items[1:] {
		r, err := migrateRecord(item, discardDerived, logger)
		if err != nil {
			logger.Warn("ignoring contents of configuration file", "path", source,
				"element", i+1, "err", err)
			return doc
		}
		records = append(records, r)
	}
	doc.Records = records
	return doc
}

func versionString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// migrateRecord normalizes one loaded element and builds its Record.
func migrateRecord(item any, discardDerived bool, logger *slog.Logger) (*Record, error) {
	data, ok := stringKeyed(item)
	if !ok {
		return nil, fmt.Errorf("%w: element is %T, not a mapping", ErrMalformedRecord, item)
	}

	if divert := data[keyDivertKeys]; truthy(divert) {
		table, err := intKeyed(divert)
		if err != nil {
			return nil, err
		}
		if sliding := data[keyDPISliding]; truthy(sliding) {
			key, err := toInt(sliding)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, keyDPISliding, err)
			}
			table[key] = divertSliding
		}
		delete(data, keyDPISliding)
		if gestures := data[keyMouseGestures]; truthy(gestures) {
			key, err := toInt(gestures)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, keyMouseGestures, err)
			}
			table[key] = divertGestures
		}
		delete(data, keyMouseGestures)
		data[keyDivertKeys] = table
	}

	if data[KeySensitive] == nil {
		data[KeySensitive] = defaultSensitive()
	}

	if discardDerived {
		delete(data, KeyAbsent)
		delete(data, KeyBattery)
	}
	return recordFromMap(data, logger), nil
}

// recordFromMap builds a detached Record from a normalized mapping. Reserved
// keys holding unexpected values are coerced rather than rejected.
func recordFromMap(data map[string]any, logger *slog.Logger) *Record {
	r := newRecord(nil)
	for k, v := range data {
		switch k {
		case KeyName, KeyWPID, KeySerial, KeyModelID, KeyUnitID:
			*r.identityField(k) = identityString(v)
		case KeySensitive:
			r.sensitive = sensitivityMap(v, logger)
		default:
			r.settings[k] = normalizeValue(v)
		}
	}
	return r
}

func identityString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// sensitivityMap reads a stored _sensitive value. Unknown policies count as
// not sensitive; a value that is not a mapping falls back to the defaults.
func sensitivityMap(v any, logger *slog.Logger) map[string]Sensitivity {
	m, ok := stringKeyed(v)
	if !ok {
		logger.Warn("replacing unreadable sensitivity map with defaults", "type", fmt.Sprintf("%T", v))
		return defaultSensitivity()
	}
	out := make(map[string]Sensitivity, len(m))
	for name, policy := range m {
		p, err := ParseSensitivity(policy)
		if err != nil {
			logger.Warn("treating unknown sensitivity as not sensitive", "setting", name, "err", err)
		}
		out[name] = p
	}
	return out
}

// normalizeValue gives nested mappings a uniform key type where possible:
// all-integer keys become map[int]any, all-string keys map[string]any.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = normalizeValue(x)
		}
		return out
	case map[int]any:
		out := make(map[int]any, len(t))
		for k, x := range t {
			out[k] = normalizeValue(x)
		}
		return out
	case map[any]any:
		ints, strs := true, true
		for k := range t {
			switch k.(type) {
			case int:
				strs = false
			case string:
				ints = false
			default:
				ints, strs = false, false
			}
		}
		switch {
		case ints:
			out := make(map[int]any, len(t))
			for k, x := range t {
				out[k.(int)] = normalizeValue(x)
			}
			return out
		case strs:
			out := make(map[string]any, len(t))
			for k, x := range t {
				out[k.(string)] = normalizeValue(x)
			}
			return out
		default:
			out := make(map[any]any, len(t))
			for k, x := range t {
				out[k] = normalizeValue(x)
			}
			return out
		}
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = normalizeValue(x)
		}
		return out
	}
	return v
}

func stringKeyed(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			s, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[s] = x
		}
		return out, true
	}
	return nil, false
}

// intKeyed copies a diversion table keeping only integer keys.
func intKeyed(v any) (map[int]any, error) {
	out := make(map[int]any)
	switch t := v.(type) {
	case map[int]any:
		for k, x := range t {
			out[k] = x
		}
	case map[any]any:
		for k, x := range t {
			if i, ok := k.(int); ok {
				out[i] = x
			}
		}
	case map[string]any:
		// string keys are leftovers of bad conversions
	default:
		return nil, fmt.Errorf("%w: %s is %T, not a mapping", ErrMalformedRecord, keyDivertKeys, v)
	}
	return out, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case map[string]any:
		return len(t) > 0
	case map[int]any:
		return len(t) > 0
	case map[any]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	return true
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case float64:
		return int(t), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	case NamedInt:
		return t.Value, nil
	}
	return 0, fmt.Errorf("cannot convert %T to int", v)
}

// convertLegacy rewrites the flat JSON layout, keyed by "wpid:serial", into
// the sequence layout. Entry order follows the file.
func convertLegacy(legacy *orderedmap.OrderedMap[string, any], logger *slog.Logger) []any {
	version, _ := legacy.Get(KeyVersion)
	out := []any{version}
	for pair := legacy.Oldest(); pair != nil; pair = pair.Next() {
		parts := strings.Split(pair.Key, ":")
		if len(parts) != 2 {
			continue
		}
		dev, ok := pair.Value.(map[string]any)
		if !ok {
			logger.Warn("skipping legacy entry", "key", pair.Key, "type", fmt.Sprintf("%T", pair.Value))
			continue
		}
		out = append(out, convertLegacyDevice(dev, parts[0], parts[1]))
	}
	return out
}

func convertLegacyDevice(dev map[string]any, wpid, serial string) map[string]any {
	out := make(map[string]any, len(dev)+2)
	for k, v := range dev {
		v = fromJSON(v)
		if nested, ok := v.(map[string]any); ok && !strings.HasPrefix(k, "_") {
			converted := make(map[any]any, len(nested))
			for dk, dv := range nested {
				if n, err := strconv.Atoi(dk); err == nil {
					converted[n] = dv
				} else {
					converted[dk] = dv
				}
			}
			v = converted
		}
		out[k] = v
	}
	if s, _ := out[KeyWPID].(string); s == "" {
		out[KeyWPID] = wpid
	}
	if s, _ := out[KeySerial].(string); s == "" {
		out[KeySerial] = serial
	}
	for _, k := range []string{keyMouseGestures, keyDPISliding} {
		if _, ok := out[k].(bool); ok {
			delete(out, k)
		}
	}
	if name, ok := out[keyLegacyName]; ok {
		out[KeyName] = name
		delete(out, keyLegacyName)
	}
	return out
}

// fromJSON turns integral JSON numbers back into ints.
func fromJSON(v any) any {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int(t)
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = fromJSON(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = fromJSON(x)
		}
		return out
	}
	return v
}
