package keys_test

import (
	"testing"

	"termsync/core/keys"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodeID(t *testing.T) {
	tests := []struct {
		name    string
		tid     string
		code    string
		want    keys.CodeID
		wantErr bool
	}{
		{"Simple", "T1", "A", "T1/A", false},
		{"TrimsWhitespace", " T1 ", "  A\t", "T1/A", false},
		{"PreservesCase", "T1", "ExO:0001", "T1/ExO:0001", false},
		{"CodeWithSlash", "T1", "a/b", "T1/a/b", false},
		{"EmptyTerminology", "", "A", "", true},
		{"TerminologyWithSlash", "T/1", "A", "", true},
		{"EmptyCode", "T1", "   ", "", true},
		{"CodeWithSeparator", "T1", "A<-B", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := keys.NewCodeID(tt.tid, tt.code)
			if tt.wantErr {
				assert.ErrorIs(t, err, keys.ErrMalformedKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewCodeID_Deterministic(t *testing.T) {
	a, err := keys.NewCodeID("T1", "A")
	require.NoError(t, err)
	b, err := keys.NewCodeID("T1", "A")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := keys.NewCodeID("T1", "a")
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "codes differing by case must not collide")
}

func TestParseCodeID(t *testing.T) {
	tid, code, err := keys.ParseCodeID("T1/a/b")
	require.NoError(t, err)
	assert.Equal(t, "T1", tid)
	assert.Equal(t, "a/b", code)

	for _, bad := range []keys.CodeID{"T1", "T1/", "/A", " T1/A", "T1/A "} {
		_, _, err := keys.ParseCodeID(bad)
		assert.ErrorIs(t, err, keys.ErrMalformedKey, "input %q", bad)
	}
}

func TestMappingID_RoundTrip(t *testing.T) {
	id, err := keys.MappingIDFor("T1", "A", "B")
	require.NoError(t, err)
	assert.Equal(t, keys.MappingID("T1/A<-T1/B"), id)

	source, target, err := keys.ParseMappingID(id)
	require.NoError(t, err)
	assert.Equal(t, keys.CodeID("T1/A"), source)
	assert.Equal(t, keys.CodeID("T1/B"), target)
}

func TestParseMappingID_Malformed(t *testing.T) {
	for _, bad := range []keys.MappingID{
		"T1/A",
		"T1/A<-T1/B<-T1/C",
		"T1/A<-",
		"<-T1/B",
		"T1/A<-B",
	} {
		_, _, err := keys.ParseMappingID(bad)
		assert.ErrorIs(t, err, keys.ErrMalformedKey, "input %q", bad)
	}
}
