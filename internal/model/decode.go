package model

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/normalize"
)

// Raw is a loosely-typed row as it comes back from the store or an import
// file. Decode* functions are the single place where missing or malformed
// fields become defaults; everything downstream sees fully-typed values.
type Raw = map[string]any

// AsString coerces a raw value to a trimmed string.
func AsString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// AsInt coerces a raw value to a non-negative int. Malformed or negative
// input parses to 0, reported via the second return.
func AsInt(v any) (int, bool) {
	n, ok := asIntSigned(v)
	if !ok {
		return 0, false
	}
	if n < 0 {
		return 0, false
	}
	return n, true
}

func asIntSigned(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case string:
		cleaned := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
		if cleaned == "" {
			return 0, false
		}
		i, err := strconv.Atoi(cleaned)
		if err != nil {
			f, ferr := strconv.ParseFloat(cleaned, 64)
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return i, true
	default:
		return 0, false
	}
}

// AsFloat coerces a raw value to a float64, accepting currency-style strings
// ("$550,000"). Malformed input parses to 0.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		cleaned := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
		cleaned = strings.TrimPrefix(cleaned, "$")
		if cleaned == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// AsTime coerces a raw value to a UTC time. Accepts time.Time, RFC3339, and
// plain dates.
func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// intField reads a numeric field leniently, logging malformed input once at
// debug level so data-quality issues stay visible without failing the row.
func intField(raw Raw, key, rowID string) int {
	v, present := raw[key]
	if !present || v == nil {
		return 0
	}
	n, ok := AsInt(v)
	if !ok {
		zap.L().Debug("model: malformed numeric field",
			zap.String("field", key),
			zap.String("row", rowID),
			zap.Any("value", v),
		)
	}
	return n
}

// DecodePlan builds a Plan from a loosely-typed row. Street lists are
// deduplicated by normalized street key; the first occurrence wins.
func DecodePlan(raw Raw) Plan {
	id := AsString(raw["id"])
	p := Plan{
		ID:                         id,
		AgentRef:                   AsString(raw["agent_ref"]),
		Suburb:                     AsString(raw["suburb"]),
		TargetConnects:             intField(raw, "target_connects", id),
		TargetDesktopAppraisals:    intField(raw, "target_desktop_appraisals", id),
		TargetFaceToFaceAppraisals: intField(raw, "target_face_to_face_appraisals", id),
	}
	p.StartDate, _ = AsTime(raw["start_date"])
	p.EndDate, _ = AsTime(raw["end_date"])

	if streets, ok := raw["door_knock_streets"].([]any); ok {
		p.DoorKnockStreets = DecodeDoorKnockStreets(streets, id)
	}
	if streets, ok := raw["phone_call_streets"].([]any); ok {
		p.PhoneCallStreets = DecodePhoneCallStreets(streets, id)
	}

	return p
}

// DecodeDoorKnockStreets decodes a loose street list, deduplicating by
// normalized street key. First occurrence wins; duplicates are logged.
func DecodeDoorKnockStreets(raw []any, planID string) []DoorKnockStreet {
	var out []DoorKnockStreet
	seen := make(map[string]bool)
	for _, sv := range raw {
		sr, ok := sv.(map[string]any)
		if !ok {
			continue
		}
		name := AsString(sr["name"])
		key := normalize.Street(name)
		if key == "" || seen[key] {
			if seen[key] {
				zap.L().Debug("model: duplicate door-knock street dropped",
					zap.String("plan", planID), zap.String("street", name))
			}
			continue
		}
		seen[key] = true
		out = append(out, DoorKnockStreet{
			Name:          name,
			Why:           AsString(sr["why"]),
			HouseCount:    intField(sr, "house_count", planID),
			TargetKnocks:  intField(sr, "target_knocks", planID),
			TargetAnswers: intField(sr, "target_answers", planID),
		})
	}
	return out
}

// DecodePhoneCallStreets decodes a loose phone-call street list with the
// same dedupe rule as DecodeDoorKnockStreets.
func DecodePhoneCallStreets(raw []any, planID string) []PhoneCallStreet {
	var out []PhoneCallStreet
	seen := make(map[string]bool)
	for _, sv := range raw {
		sr, ok := sv.(map[string]any)
		if !ok {
			continue
		}
		name := AsString(sr["name"])
		key := normalize.Street(name)
		if key == "" || seen[key] {
			if seen[key] {
				zap.L().Debug("model: duplicate phone-call street dropped",
					zap.String("plan", planID), zap.String("street", name))
			}
			continue
		}
		seen[key] = true
		out = append(out, PhoneCallStreet{
			Name:        name,
			Why:         AsString(sr["why"]),
			TargetCalls: intField(sr, "target_calls", planID),
		})
	}
	return out
}

// DecodeActivity builds an Activity from a loosely-typed row.
func DecodeActivity(raw Raw) Activity {
	id := AsString(raw["id"])
	a := Activity{
		ID:                   id,
		AgentRef:             AsString(raw["agent_ref"]),
		Type:                 ActivityType(AsString(raw["activity_type"])),
		Suburb:               AsString(raw["suburb"]),
		Street:               AsString(raw["street_name"]),
		PropertyRef:          AsString(raw["property_ref"]),
		KnocksMade:           intField(raw, "knocks_made", id),
		CallsConnected:       intField(raw, "calls_connected", id),
		CallsAnswered:        intField(raw, "calls_answered", id),
		DesktopAppraisals:    intField(raw, "desktop_appraisals", id),
		FaceToFaceAppraisals: intField(raw, "face_to_face_appraisals", id),
	}
	a.Date, _ = AsTime(raw["activity_date"])
	if tags, ok := raw["tags"].([]any); ok {
		for _, t := range tags {
			if s := AsString(t); s != "" {
				a.Tags = append(a.Tags, s)
			}
		}
	}
	return a
}

// DecodeProperty builds a Property from a loosely-typed row.
func DecodeProperty(raw Raw) Property {
	p := Property{
		ID:             AsString(raw["id"]),
		AgencyName:     AsString(raw["agency_name"]),
		AgentName:      AsString(raw["agent_name"]),
		Suburb:         AsString(raw["suburb"]),
		Street:         AsString(raw["street_name"]),
		PropertyType:   AsString(raw["property_type"]),
		ContractStatus: ContractStatus(AsString(raw["contract_status"])),
	}
	p.Price, _ = AsFloat(raw["price"])
	p.SoldPrice, _ = AsFloat(raw["sold_price"])
	p.CommissionRate, _ = AsFloat(raw["commission_rate"])
	p.ListedDate, _ = AsTime(raw["listed_date"])
	if t, ok := AsTime(raw["sold_date"]); ok {
		p.SoldDate = &t
	}
	return p
}
