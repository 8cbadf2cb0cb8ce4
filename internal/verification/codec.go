// Package verification implements the VBH confirmation envelope: a
// hash-linked header that lets downstream consumers verify a response was
// generated against an expected, agreed-upon set of contextual facts.
package verification

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"taskhive/internal/facts"
	"taskhive/internal/logging"
)

const (
	// HeaderSentinel prefixes the counter+digest line.
	HeaderSentinel = "#VBH"
	// ConfirmSentinel prefixes the confirmed-facts JSON line.
	ConfirmSentinel = "CONFIRM:"
	// DigestLength is the number of hex characters kept from the digest.
	DigestLength = 8
)

// Kind discriminates validation failures.
type Kind string

const (
	KindMissingHeader         Kind = "missing_header"
	KindMissingConfirmation   Kind = "missing_confirmation"
	KindMalformedConfirmation Kind = "malformed_confirmation"
	KindHeaderFormatInvalid   Kind = "header_format_invalid"
	KindDigestMismatch        Kind = "digest_mismatch"
	KindFactMismatch          Kind = "fact_mismatch"
)

// Result is the outcome of validating an envelope. Validation never panics
// or returns a Go error for bad input; everything is expressed here.
type Result struct {
	Valid            bool           `json:"valid"`
	Kind             Kind           `json:"kind,omitempty"`
	Error            string         `json:"error,omitempty"`
	Counter          uint64         `json:"counter,omitempty"`
	ConfirmedFacts   *facts.FactSet `json:"confirmed_facts,omitempty"`
	MismatchedFields []string       `json:"mismatched_fields,omitempty"`
}

var headerPattern = regexp.MustCompile(`^#VBH:(\d+):([0-9a-f]{8})$`)

// Codec produces and validates VBH envelopes against a live fact store.
type Codec struct {
	store *facts.Store
}

// NewCodec creates a codec bound to the given fact store.
func NewCodec(store *facts.Store) *Codec {
	return &Codec{store: store}
}

// Digest computes the short digest over the canonical serialization of the
// fact set. The open-task count participates in the digest even though it
// is not compared during validation.
func Digest(fs facts.FactSet) string {
	canonical, _ := json.Marshal(fs) // struct field order is stable
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:DigestLength]
}

// GenerateHeader increments the fact counter and returns the header line
// plus the new counter value.
func (c *Codec) GenerateHeader(fs facts.FactSet) (string, uint64) {
	counter := c.store.Next()
	header := fmt.Sprintf("%s:%d:%s", HeaderSentinel, counter, Digest(fs))
	logging.VerificationDebug("generated header %s", header)
	return header, counter
}

// Wrap produces the full envelope around content:
//
//	#VBH:<counter>:<digest>
//	CONFIRM:{"scope":...,"site":...,"open_tasks":...,"provider":...}
//
//	<content>
//
// extra fields are merged into the CONFIRM payload but do not affect the
// digest, so envelopes with annotations still validate.
func (c *Codec) Wrap(content string, fs facts.FactSet, extra map[string]interface{}) string {
	header, _ := c.GenerateHeader(fs)
	return header + "\n" + ConfirmSentinel + confirmJSON(fs, extra) + "\n\n" + content
}

func confirmJSON(fs facts.FactSet, extra map[string]interface{}) string {
	if len(extra) == 0 {
		data, _ := json.Marshal(fs)
		return string(data)
	}

	merged := map[string]interface{}{}
	base, _ := json.Marshal(fs)
	_ = json.Unmarshal(base, &merged)
	for k, v := range extra {
		merged[k] = v
	}
	data, _ := json.Marshal(merged) // map keys sort, stable output
	return string(data)
}

// Validate scans text for the header and confirmation lines (in any order),
// checks the header format, recomputes the digest over the confirmed facts,
// and compares scope, site and provider against the expected fact set.
func (c *Codec) Validate(text string, expected facts.FactSet) Result {
	var headerLine, confirmLine string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if headerLine == "" && strings.HasPrefix(trimmed, HeaderSentinel+":") {
			headerLine = trimmed
		}
		if confirmLine == "" && strings.HasPrefix(trimmed, ConfirmSentinel) {
			confirmLine = trimmed
		}
	}

	if headerLine == "" {
		return failure(KindMissingHeader, "no verification header found")
	}
	if confirmLine == "" {
		return failure(KindMissingConfirmation, "no confirmation line found")
	}

	var confirmed facts.FactSet
	payload := strings.TrimPrefix(confirmLine, ConfirmSentinel)
	if err := json.Unmarshal([]byte(payload), &confirmed); err != nil {
		return failure(KindMalformedConfirmation, fmt.Sprintf("confirmation does not parse: %v", err))
	}

	m := headerPattern.FindStringSubmatch(headerLine)
	if m == nil {
		return failure(KindHeaderFormatInvalid, fmt.Sprintf("header %q does not match %s:<counter>:<%d-hex>", headerLine, HeaderSentinel, DigestLength))
	}
	counter, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return failure(KindHeaderFormatInvalid, fmt.Sprintf("counter %q does not parse", m[1]))
	}

	if recomputed := Digest(confirmed); recomputed != m[2] {
		logging.Verification("digest mismatch: header=%s recomputed=%s", m[2], recomputed)
		return failure(KindDigestMismatch, "digest does not match confirmed facts")
	}

	// Open-task counts are informational only and are not compared.
	var mismatched []string
	if confirmed.Scope != expected.Scope {
		mismatched = append(mismatched, "scope")
	}
	if confirmed.Site != expected.Site {
		mismatched = append(mismatched, "site")
	}
	if confirmed.Provider != expected.Provider {
		mismatched = append(mismatched, "provider")
	}
	if len(mismatched) > 0 {
		logging.Verification("fact mismatch on %v", mismatched)
		return Result{
			Kind:             KindFactMismatch,
			Error:            fmt.Sprintf("confirmed facts differ on %s", strings.Join(mismatched, ", ")),
			MismatchedFields: mismatched,
		}
	}

	return Result{
		Valid:          true,
		Counter:        counter,
		ConfirmedFacts: &confirmed,
	}
}

func failure(kind Kind, msg string) Result {
	return Result{Kind: kind, Error: msg}
}
