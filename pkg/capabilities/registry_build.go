package capabilities

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nuntissura/handshake/pkg/canonicalize"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CapabilityKind classifies a registry entry's place in the system.
type CapabilityKind string

const (
	KindSurface     CapabilityKind = "surface"
	KindEngine      CapabilityKind = "engine"
	KindRuntime     CapabilityKind = "runtime"
	KindIntegration CapabilityKind = "integration"
	KindModel       CapabilityKind = "model"
	KindWorkflow    CapabilityKind = "workflow"
)

// GovernanceMode is the default governance mode a capability publishes
// with, before any per-operation override.
type GovernanceMode string

const (
	GovStrict   GovernanceMode = "gov_strict"
	GovStandard GovernanceMode = "gov_standard"
	GovLight    GovernanceMode = "gov_light"
)

// RiskClass drives the default governance mode (Risk -> Mode mapping below).
type RiskClass string

const (
	RiskLow      RiskClass = "low"
	RiskMedium   RiskClass = "medium"
	RiskHigh     RiskClass = "high"
	RiskCritical RiskClass = "critical"
)

// DefaultGovernanceMode maps a risk class to its default mode: Low -> Light,
// Medium/High -> Standard, Critical -> Strict.
func DefaultGovernanceMode(risk RiskClass) GovernanceMode {
	switch risk {
	case RiskLow:
		return GovLight
	case RiskCritical:
		return GovStrict
	default:
		return GovStandard
	}
}

// RegistryEntry is one published capability description.
type RegistryEntry struct {
	CapabilityID           string         `json:"capability_id"`
	Kind                   CapabilityKind `json:"kind"`
	DisplayName            string         `json:"display_name"`
	SectionRef             string         `json:"section_ref"`
	RequiredCapabilities   []string       `json:"required_capabilities"`
	DefaultGovernanceMode  GovernanceMode `json:"default_governance_mode"`
	RiskClass              RiskClass      `json:"risk_class"`
	Tags                   []string       `json:"tags"`
}

// RegistryDocument is the full capability registry as built/published.
type RegistryDocument struct {
	Entries []RegistryEntry `json:"entries"`
}

var sectionRefPattern = regexp.MustCompile(`^\d+(\.\d+)*$`)

var (
	ErrDuplicateCapabilityID = errors.New("capabilities: duplicate capability_id in registry")
	ErrInvalidSectionRef     = errors.New("capabilities: invalid section_ref")
	ErrEmptyDisplayName      = errors.New("capabilities: empty display_name")
)

// ValidateIntegrity checks that capability ids are unique, section_ref
// matches a dotted-numeric form, and display names are non-blank —
// ported from the build pipeline's validate_integrity.
func ValidateIntegrity(doc *RegistryDocument) error {
	seen := make(map[string]bool, len(doc.Entries))
	for _, e := range doc.Entries {
		if seen[e.CapabilityID] {
			return fmt.Errorf("%w: %s", ErrDuplicateCapabilityID, e.CapabilityID)
		}
		seen[e.CapabilityID] = true

		if !sectionRefPattern.MatchString(e.SectionRef) {
			return fmt.Errorf("%w: %s (for %s)", ErrInvalidSectionRef, e.SectionRef, e.CapabilityID)
		}
		if strings.TrimSpace(e.DisplayName) == "" {
			return fmt.Errorf("%w: %s", ErrEmptyDisplayName, e.CapabilityID)
		}
	}
	return nil
}

// registryDocumentSchema is compiled once; it validates only the shape a
// consumer of the published registry actually depends on (the six scalar
// fields present, capability_id/display_name non-empty strings), not the full domain
// vocabulary enforced separately by ValidateIntegrity/Classify.
const registryDocumentSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["entries"],
  "properties": {
    "entries": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["capability_id", "kind", "display_name", "section_ref", "default_governance_mode", "risk_class"],
        "properties": {
          "capability_id": {"type": "string", "minLength": 1},
          "display_name": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

var compiledRegistrySchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("capability_registry.schema.json", bytes.NewReader([]byte(registryDocumentSchemaJSON))); err != nil {
		panic(fmt.Sprintf("capabilities: compile embedded registry schema: %v", err))
	}
	compiledRegistrySchema = compiler.MustCompile("capability_registry.schema.json")
}

// ValidateSchema validates doc against the embedded structural schema.
func ValidateSchema(doc *RegistryDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("capabilities: marshal registry document: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("capabilities: decode registry document: %w", err)
	}
	if err := compiledRegistrySchema.Validate(instance); err != nil {
		return fmt.Errorf("capabilities: schema validation failed: %w", err)
	}
	return nil
}

// Classify assigns a kind, risk class, section reference, and tag set to a
// capability id by prefix/exact-match convention, ported 1:1 from the
// build pipeline's classify().
func Classify(capabilityID string) (CapabilityKind, RiskClass, string, []string) {
	tags := map[string]bool{"capability": true}

	var kind CapabilityKind
	var risk RiskClass
	var sectionRef string

	switch {
	case strings.HasPrefix(capabilityID, "engine."):
		tags["engine"] = true
		kind, risk, sectionRef = KindEngine, RiskMedium, "11.8"
	case strings.HasPrefix(capabilityID, "terminal.") || capabilityID == "terminal.exec":
		tags["terminal"] = true
		kind, risk, sectionRef = KindSurface, RiskHigh, "11.7.1"
	case strings.HasPrefix(capabilityID, "export."):
		tags["workflow"] = true
		kind, risk, sectionRef = KindWorkflow, RiskMedium, "11.5"
	case strings.HasPrefix(capabilityID, "doc."):
		tags["docs"] = true
		kind, risk, sectionRef = KindSurface, RiskMedium, "7.1.1"
	case strings.HasPrefix(capabilityID, "fr.") || strings.HasPrefix(capabilityID, "diagnostics."):
		tags["observability"] = true
		kind, risk, sectionRef = KindRuntime, RiskMedium, "11.5"
	case strings.HasPrefix(capabilityID, "jobs."):
		tags["jobs"] = true
		kind, risk, sectionRef = KindRuntime, RiskMedium, "2.6"
	case strings.HasPrefix(capabilityID, "CALENDAR_"):
		tags["calendar"] = true
		kind, sectionRef = KindSurface, "11.9"
		if strings.Contains(capabilityID, "DELETE") {
			risk = RiskHigh
		} else {
			risk = RiskMedium
		}
	default:
		switch capabilityID {
		case "fs.read":
			kind, risk, sectionRef = KindRuntime, RiskMedium, "11.1"
		case "fs.write":
			kind, risk, sectionRef = KindRuntime, RiskHigh, "11.1"
		case "proc.exec":
			kind, risk, sectionRef = KindRuntime, RiskHigh, "11.1"
		case "net.http":
			kind, risk, sectionRef = KindRuntime, RiskHigh, "11.1"
		case "device":
			kind, risk, sectionRef = KindRuntime, RiskMedium, "11.1"
		case "secrets.use":
			kind, risk, sectionRef = KindRuntime, RiskCritical, "11.1"
		case "creative":
			kind, risk, sectionRef = KindRuntime, RiskLow, "11.1"
		default:
			kind, risk, sectionRef = KindIntegration, RiskMedium, "11.1"
		}
	}

	tagList := make([]string, 0, len(tags))
	for t := range tags {
		tagList = append(tagList, t)
	}
	sort.Strings(tagList)
	return kind, risk, sectionRef, tagList
}

// DisplayNameFor derives a human-readable title from a capability id,
// splitting on '.', ':', '_', and treating all-caps/hyphen runs as a
// single lowercased word, then capitalizing the first letter of every word
// (so "CALENDAR_DELETE" -> "Calendar Delete", "fs.read" -> "Fs Read") —
// ported from display_name_for.
func DisplayNameFor(capabilityID string) string {
	var words []string
	var current []rune

	pushWord := func() {
		if len(current) == 0 {
			return
		}
		allUpperOrDash := true
		for _, c := range current {
			if !unicode.IsUpper(c) && c != '-' {
				allUpperOrDash = false
				break
			}
		}
		w := string(current)
		if allUpperOrDash {
			w = strings.ToLower(w)
		}
		words = append(words, w)
		current = current[:0]
	}

	for _, ch := range capabilityID {
		normalized := ch
		switch ch {
		case '.', ':', '_':
			normalized = ' '
		}
		if unicode.IsSpace(normalized) {
			pushWord()
		} else {
			current = append(current, normalized)
		}
	}
	pushWord()

	var out strings.Builder
	for i, w := range words {
		if i > 0 {
			out.WriteByte(' ')
		}
		if w == "" {
			continue
		}
		r := []rune(w)
		out.WriteString(strings.ToUpper(string(r[0])))
		out.WriteString(string(r[1:]))
	}
	return out.String()
}

// BuildDraft constructs a RegistryDocument entry for every axis and id
// known to reg, classifying each with Classify/DisplayNameFor.
func BuildDraft(reg *CapabilityRegistry) *RegistryDocument {
	seen := make(map[string]bool)
	var entries []RegistryEntry

	addEntry := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		kind, risk, sectionRef, tags := Classify(id)
		entries = append(entries, RegistryEntry{
			CapabilityID:          id,
			Kind:                  kind,
			DisplayName:           DisplayNameFor(id),
			SectionRef:            sectionRef,
			RequiredCapabilities:  nil,
			DefaultGovernanceMode: DefaultGovernanceMode(risk),
			RiskClass:             risk,
			Tags:                  tags,
		})
	}

	for _, a := range reg.Axes() {
		addEntry(a)
	}
	for _, id := range reg.IDs() {
		addEntry(id)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].CapabilityID < entries[j].CapabilityID })
	return &RegistryDocument{Entries: entries}
}

// RegistryDiff summarizes the change between a previously published
// registry and a new draft.
type RegistryDiff struct {
	PreviousRegistrySHA256 string   `json:"previous_registry_sha256,omitempty"`
	NextRegistrySHA256     string   `json:"next_registry_sha256"`
	Added                  []string `json:"added"`
	Removed                []string `json:"removed"`
	Changed                []string `json:"changed"`
}

// DocumentHash returns the SHA-256 hex digest of doc's canonical form —
// this is the "capability_registry_version" identifier.
func DocumentHash(doc *RegistryDocument) (string, error) {
	return canonicalize.CanonicalHash(doc)
}

// BuildDiff compares previous (nil if there is no published registry yet)
// against next, reporting added/removed/changed capability ids. "changed"
// means the entry's canonical form differs, not merely that it exists in
// both.
func BuildDiff(previous, next *RegistryDocument) (*RegistryDiff, error) {
	nextHash, err := DocumentHash(next)
	if err != nil {
		return nil, err
	}

	prevByID := map[string]RegistryEntry{}
	var prevHash string
	if previous != nil {
		for _, e := range previous.Entries {
			prevByID[e.CapabilityID] = e
		}
		prevHash, err = DocumentHash(previous)
		if err != nil {
			return nil, err
		}
	}
	nextByID := map[string]RegistryEntry{}
	for _, e := range next.Entries {
		nextByID[e.CapabilityID] = e
	}

	diff := &RegistryDiff{PreviousRegistrySHA256: prevHash, NextRegistrySHA256: nextHash}
	for id := range nextByID {
		if _, ok := prevByID[id]; !ok {
			diff.Added = append(diff.Added, id)
		}
	}
	for id := range prevByID {
		if _, ok := nextByID[id]; !ok {
			diff.Removed = append(diff.Removed, id)
		}
	}
	for id, nextEntry := range nextByID {
		if prevEntry, ok := prevByID[id]; ok {
			prevCanon, _ := canonicalize.JCS(prevEntry)
			nextCanon, _ := canonicalize.JCS(nextEntry)
			if !bytes.Equal(prevCanon, nextCanon) {
				diff.Changed = append(diff.Changed, id)
			}
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Changed)
	return diff, nil
}

// Review records a human reviewer's approval (or rejection) of a diff.
type Review struct {
	Approved                  bool   `json:"approved"`
	ReviewerID                string `json:"reviewer_id,omitempty"`
	DiffSHA256                string `json:"diff_sha256"`
	CapabilityRegistryVersion string `json:"capability_registry_version"`
}

var (
	ErrReviewerIDRequired    = errors.New("capabilities: reviewer_id required to approve")
	ErrPublishDiffSHAMismatch = errors.New("capabilities: diff sha256 does not match the diff under review")
)

// registryClaims is the JWT payload signed over a published registry,
// binding the publish event to the reviewer and the exact document hash.
type registryClaims struct {
	jwt.RegisteredClaims
	CapabilityRegistryVersion string `json:"capability_registry_version"`
	ReviewerID                string `json:"reviewer_id"`
	DiffSHA256                string `json:"diff_sha256"`
}

// SignPublication signs a Review as a JWT, binding the reviewer identity to
// the exact registry version and diff being published.
func SignPublication(review Review, signingKey []byte, issuedAt time.Time) (string, error) {
	if !review.Approved {
		return "", errors.New("capabilities: cannot sign an unapproved review")
	}
	if strings.TrimSpace(review.ReviewerID) == "" {
		return "", ErrReviewerIDRequired
	}
	claims := registryClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(issuedAt),
			Subject:  "capability_registry_publish",
		},
		CapabilityRegistryVersion: review.CapabilityRegistryVersion,
		ReviewerID:                review.ReviewerID,
		DiffSHA256:                review.DiffSHA256,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingKey)
}

// VerifyPublication checks a signature produced by SignPublication and
// returns the bound registry version.
func VerifyPublication(tokenString string, signingKey []byte) (string, error) {
	var claims registryClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("capabilities: verify publication signature: %w", err)
	}
	return claims.CapabilityRegistryVersion, nil
}

// sha256Hex is a small local helper kept distinct from canonicalize's
// hashing so raw (non-JCS) byte buffers — like an already-serialized diff
// file — can still be hashed for the publish-time integrity check.
func sha256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// Publish checks that review approves the given diffBytes (the exact bytes
// previously hashed into review.DiffSHA256) and returns the final document
// hash to record as the published capability_registry_version. It does not
// perform any filesystem I/O itself — callers own where the published
// document and signature are persisted (local file, object storage, etc.),
// matching this repo's artifact-handle model rather than the original's
// fixed on-disk asset path.
func Publish(review Review, diffBytes []byte) (string, error) {
	if !review.Approved {
		return "", errors.New("capabilities: review not approved")
	}
	if strings.TrimSpace(review.ReviewerID) == "" {
		return "", ErrReviewerIDRequired
	}
	if review.DiffSHA256 != sha256Hex(diffBytes) {
		return "", ErrPublishDiffSHAMismatch
	}
	return review.CapabilityRegistryVersion, nil
}
