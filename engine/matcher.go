package engine

import (
	"strings"

	"github.com/orchehq/orchepy/model"
)

// MatchFlows returns the flows triggered by the event: active, same event
// type, and all trigger filters passing against the event data.
func MatchFlows(event *model.Event, flows []model.Flow) []model.Flow {
	var matched []model.Flow
	for _, flow := range flows {
		if flowMatches(event, &flow) {
			matched = append(matched, flow)
		}
	}
	return matched
}

func flowMatches(event *model.Event, flow *model.Flow) bool {
	if !flow.Active {
		return false
	}
	if event.EventType != flow.Trigger.EventType {
		return false
	}
	return checkFilters(event.Data, flow.Trigger.Filters)
}

// checkFilters applies the suffix filter DSL: a key of the form <field>_gt,
// _lt, _gte, _lte or _ne compares the event field against the filter value; a
// bare key tests deep equality. A missing event field fails every comparison
// suffix.
func checkFilters(data map[string]any, filters map[string]any) bool {
	for key, filterValue := range filters {
		if field, ok := strings.CutSuffix(key, "_gte"); ok {
			if !compareField(data, field, filterValue, func(ord int) bool { return ord >= 0 }) {
				return false
			}
		} else if field, ok := strings.CutSuffix(key, "_lte"); ok {
			if !compareField(data, field, filterValue, func(ord int) bool { return ord <= 0 }) {
				return false
			}
		} else if field, ok := strings.CutSuffix(key, "_gt"); ok {
			if !compareField(data, field, filterValue, func(ord int) bool { return ord > 0 }) {
				return false
			}
		} else if field, ok := strings.CutSuffix(key, "_lt"); ok {
			if !compareField(data, field, filterValue, func(ord int) bool { return ord < 0 }) {
				return false
			}
		} else if field, ok := strings.CutSuffix(key, "_ne"); ok {
			value, present := data[field]
			if !present || jsonEqual(value, filterValue) {
				return false
			}
		} else {
			value, present := data[key]
			if !present || !jsonEqual(value, filterValue) {
				return false
			}
		}
	}
	return true
}

func compareField(data map[string]any, field string, filter any, pass func(int) bool) bool {
	value, present := data[field]
	if !present {
		return false
	}
	ord, ok := compareValues(value, filter)
	return ok && pass(ord)
}

// compareValues orders two JSON values: numbers by 64-bit float comparison,
// strings lexicographically. Mixed or unsupported types do not compare.
func compareValues(a, b any) (int, bool) {
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	return 0, false
}
