package diagnostics

import (
	"sort"
	"strings"

	"github.com/nuntissura/handshake/pkg/canonicalize"
	"golang.org/x/text/unicode/norm"
)

// normalizeText collapses CRLF to LF, trims, and applies NFC — matching the
// original's normalize_text (DIAG-SCHEMA-002).
func normalizeText(input string) string {
	collapsed := strings.ReplaceAll(input, "\r\n", "\n")
	return norm.NFC.String(strings.TrimSpace(collapsed))
}

// normalizePath normalizes backslashes to forward slashes before NFC.
func normalizePath(path string) string {
	return norm.NFC.String(strings.ReplaceAll(path, "\\", "/"))
}

// normalizeTags NFC-normalizes, sorts, and dedupes tags.
func normalizeTags(tags []string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = normalizeText(t)
	}
	sort.Strings(out)
	return dedupeSorted(out)
}

func dedupeSorted(in []string) []string {
	out := in[:0:0]
	for i, v := range in {
		if i == 0 || v != in[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// normalizeLocations normalizes path/uri/wsid/entity_id fields and sorts by
// the composite key path|uri|entity_id|wsid, matching normalize_locations.
func normalizeLocations(locations []Location) []Location {
	out := make([]Location, len(locations))
	for i, loc := range locations {
		out[i] = Location{
			Path:        emptyOr(loc.Path, normalizePath),
			URI:         emptyOr(loc.URI, func(s string) string { return norm.NFC.String(s) }),
			WorkspaceID: emptyOr(loc.WorkspaceID, func(s string) string { return norm.NFC.String(s) }),
			EntityID:    emptyOr(loc.EntityID, func(s string) string { return norm.NFC.String(s) }),
			Range:       loc.Range,
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return locationSortKey(out[i]) < locationSortKey(out[j])
	})
	return out
}

func emptyOr(s string, f func(string) string) string {
	if s == "" {
		return s
	}
	return f(s)
}

func locationSortKey(l Location) string {
	return l.Path + "|" + l.URI + "|" + l.EntityID + "|" + l.WorkspaceID
}

// canonicalizeLocations builds the JCS-ready value for the fingerprint
// tuple: nil if locations is nil, an empty array if empty, else a sorted
// array of {path,uri,entity_id,wsid,range}, matching
// canonicalize_locations. The sort key additionally folds in the range so
// that same-position-different-range locations still order deterministically.
func canonicalizeLocations(locations []Location) any {
	if locations == nil {
		return nil
	}
	if len(locations) == 0 {
		return []any{}
	}

	type keyed struct {
		key string
		val map[string]any
	}
	items := make([]keyed, len(locations))
	for i, loc := range locations {
		path := emptyOr(loc.Path, normalizePath)
		uri := emptyOr(loc.URI, func(s string) string { return norm.NFC.String(s) })
		entityID := emptyOr(loc.EntityID, func(s string) string { return norm.NFC.String(s) })
		wsid := emptyOr(loc.WorkspaceID, func(s string) string { return norm.NFC.String(s) })

		m := map[string]any{
			"path":      nullableString(path),
			"uri":       nullableString(uri),
			"entity_id": nullableString(entityID),
			"wsid":      nullableString(wsid),
		}
		rangeKey := ""
		if loc.Range != nil {
			m["range"] = map[string]any{
				"startLine":   loc.Range.StartLine,
				"startColumn": loc.Range.StartColumn,
				"endLine":     loc.Range.EndLine,
				"endColumn":   loc.Range.EndColumn,
			}
			rangeKey = rangeKeyString(*loc.Range)
		} else {
			m["range"] = nil
		}

		items[i] = keyed{
			key: path + "|" + uri + "|" + entityID + "|" + wsid + "|" + rangeKey,
			val: m,
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].key < items[j].key })

	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it.val
	}
	return out
}

func rangeKeyString(r Range) string {
	return intStr(r.StartLine) + ":" + intStr(r.StartColumn) + ":" + intStr(r.EndLine) + ":" + intStr(r.EndColumn)
}

func intStr(n int) string {
	neg := n < 0
	if n == 0 {
		return "0"
	}
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// canonicalTuple builds the ordered fingerprint input per DIAG-SCHEMA-003.
func canonicalTuple(source Source, surface Surface, tool, code string, severity Severity, title string, locations []Location, capabilityID, policyDecisionID string) map[string]any {
	return map[string]any{
		"source":             source.String(),
		"surface":            string(surface),
		"tool":               nullableString(norm.NFC.String(tool)),
		"code":               nullableString(norm.NFC.String(code)),
		"severity":           string(severity),
		"title":              title,
		"locations":          canonicalizeLocations(locations),
		"capability_id":      nullableString(norm.NFC.String(capabilityID)),
		"policy_decision_id": nullableString(norm.NFC.String(policyDecisionID)),
	}
}

// ComputeFingerprint is the deterministic, field-order-independent hash
// that dedupes diagnostics (DIAG-SCHEMA-003): identical source, surface,
// tool, code, severity, title, and location set (regardless of original
// location order) always hash the same.
func ComputeFingerprint(source Source, surface Surface, tool, code string, severity Severity, title string, locations []Location, capabilityID, policyDecisionID string) (string, error) {
	tuple := canonicalTuple(source, surface, tool, code, severity, title, locations, capabilityID, policyDecisionID)
	return canonicalize.CanonicalHash(tuple)
}
