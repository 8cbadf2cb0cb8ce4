package verification

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"taskhive/internal/facts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) (*Codec, *facts.Store) {
	t.Helper()
	store := facts.NewStore(filepath.Join(t.TempDir(), "facts.json"))
	return NewCodec(store), store
}

func TestWrapValidateRoundTrip(t *testing.T) {
	codec, store := newTestCodec(t)
	fs := store.Load()

	wrapped := codec.Wrap("hello from the hive", fs, nil)

	result := codec.Validate(wrapped, fs)
	require.True(t, result.Valid, "round-trip should validate: %s", result.Error)
	assert.Equal(t, uint64(1), result.Counter)
	require.NotNil(t, result.ConfirmedFacts)
	assert.Equal(t, fs.Scope, result.ConfirmedFacts.Scope)
}

func TestWrapWithExtraFieldsStillValidates(t *testing.T) {
	codec, store := newTestCodec(t)
	fs := store.Load()

	wrapped := codec.Wrap("annotated", fs, map[string]interface{}{
		"worker": "scout",
		"note":   "extra fields ride along",
	})

	result := codec.Validate(wrapped, fs)
	require.True(t, result.Valid, result.Error)
}

func TestEnvelopeFormat(t *testing.T) {
	codec, store := newTestCodec(t)
	fs := store.Load()

	wrapped := codec.Wrap("body", fs, nil)
	lines := strings.Split(wrapped, "\n")

	require.GreaterOrEqual(t, len(lines), 4)
	assert.Regexp(t, `^#VBH:\d+:[0-9a-f]{8}$`, lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "CONFIRM:{"))
	assert.Equal(t, "", lines[2])
	assert.Equal(t, "body", lines[3])
}

func TestTamperDetection(t *testing.T) {
	codec, store := newTestCodec(t)
	fs := store.Load()

	wrapped := codec.Wrap("content", fs, nil)

	// Mutate one character of the CONFIRM JSON without recomputing the header.
	idx := strings.Index(wrapped, `"scope":"workspace"`)
	require.Greater(t, idx, 0)
	tampered := wrapped[:idx] + `"scope":"wOrkspace"` + wrapped[idx+len(`"scope":"workspace"`):]

	result := codec.Validate(tampered, fs)
	assert.False(t, result.Valid)
	assert.Equal(t, KindDigestMismatch, result.Kind)
}

func TestValidateFailureKinds(t *testing.T) {
	codec, store := newTestCodec(t)
	fs := store.Load()
	goodDigest := Digest(fs)

	cases := []struct {
		name string
		text string
		want Kind
	}{
		{
			name: "missing_header",
			text: "CONFIRM:{\"scope\":\"workspace\"}\n\nbody",
			want: KindMissingHeader,
		},
		{
			name: "missing_confirmation",
			text: "#VBH:1:" + goodDigest + "\n\nbody",
			want: KindMissingConfirmation,
		},
		{
			name: "malformed_confirmation",
			text: "#VBH:1:" + goodDigest + "\nCONFIRM:not json\n\nbody",
			want: KindMalformedConfirmation,
		},
		{
			name: "header_format_invalid_short_digest",
			text: "#VBH:1:abc\nCONFIRM:{\"scope\":\"workspace\"}\n\nbody",
			want: KindHeaderFormatInvalid,
		},
		{
			name: "header_format_invalid_counter",
			text: "#VBH:x:" + goodDigest + "\nCONFIRM:{\"scope\":\"workspace\"}\n\nbody",
			want: KindHeaderFormatInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := codec.Validate(tc.text, fs)
			assert.False(t, result.Valid)
			assert.Equal(t, tc.want, result.Kind)
		})
	}
}

func TestFactMismatchReportsFields(t *testing.T) {
	codec, store := newTestCodec(t)
	fs := store.Load()

	wrapped := codec.Wrap("content", fs, nil)

	expected := fs
	expected.Scope = "other-scope"
	expected.Provider = "other-provider"

	result := codec.Validate(wrapped, expected)
	assert.False(t, result.Valid)
	assert.Equal(t, KindFactMismatch, result.Kind)
	assert.ElementsMatch(t, []string{"scope", "provider"}, result.MismatchedFields)
}

func TestOpenTasksNotCompared(t *testing.T) {
	codec, store := newTestCodec(t)
	fs := store.Load()

	wrapped := codec.Wrap("content", fs, nil)

	expected := fs
	expected.OpenTasks = fs.OpenTasks + 40

	result := codec.Validate(wrapped, expected)
	assert.True(t, result.Valid, "open task counts are informational only")
}

func TestHeaderAndConfirmFoundInAnyOrder(t *testing.T) {
	codec, store := newTestCodec(t)
	fs := store.Load()

	wrapped := codec.Wrap("content", fs, nil)
	lines := strings.Split(wrapped, "\n")
	reordered := lines[1] + "\n" + lines[0] + "\n\ncontent"

	result := codec.Validate(reordered, fs)
	assert.True(t, result.Valid, result.Error)
}

func TestCounterMonotonicity(t *testing.T) {
	codec, store := newTestCodec(t)
	fs := store.Load()

	var last uint64
	for i := 0; i < 25; i++ {
		header, counter := codec.GenerateHeader(fs)
		require.Greater(t, counter, last, "counter must strictly increase")
		assert.Equal(t, fmt.Sprintf("#VBH:%d:%s", counter, Digest(fs)), header)
		last = counter
	}
}

func TestCounterSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facts.json")
	store := facts.NewStore(path)
	codec := NewCodec(store)
	fs := store.Load()

	for i := 0; i < 5; i++ {
		codec.GenerateHeader(fs)
	}

	reloaded := facts.NewStore(path)
	_, counter := NewCodec(reloaded).GenerateHeader(reloaded.Load())
	assert.Equal(t, uint64(6), counter)
}
