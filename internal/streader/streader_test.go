package streader

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kunquat/kunquat-go/internal/kqterror"
)

func TestRoundTripInt64(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Int64().Draw(t, "v")
		s := New([]byte(fmt.Sprintf("%d", v)), "mem")
		got, err := s.ReadInt64()
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.True(t, s.AtEnd())
	})
}

func TestRoundTripFloat64(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Float64Range(-1e6, 1e6).Draw(t, "v")
		s := New([]byte(fmt.Sprintf("%g", v)), "mem")
		got, err := s.ReadFloat64()
		require.NoError(t, err)
		assert.InDelta(t, v, got, 1e-9*(1+abs(v)))
	})
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestRoundTripString(t *testing.T) {
	s := New([]byte(`"hello world"`), "mem")
	got, err := s.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
}

func TestInt64OverflowRejected(t *testing.T) {
	s := New([]byte("92233720368547758071"), "mem") // INT64_MAX followed by extra digit
	_, err := s.ReadInt64()
	assert.Error(t, err)
}

func TestUnicodeEscapeOutsidePrintableRangeRejected(t *testing.T) {
	s := New([]byte(`"\u2603"`), "mem") // snowman, outside [0x0020, 0x007E]
	_, err := s.ReadString()
	assert.Error(t, err)
}

func TestUnicodeEscapeInPrintableRangeAccepted(t *testing.T) {
	s := New([]byte("\"\x5cu0041\x5cu0042\x5cu0043\""), "mem") // escaped "ABC"
	got, err := s.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "ABC", got)
}

func TestTrailingGarbageRejected(t *testing.T) {
	for _, src := range []string{"nullx", "truex", "falsex", "123x"} {
		s := New([]byte(src), "mem")
		var err error
		switch src[0] {
		case 'n':
			err = s.ReadNull()
		case 't', 'f':
			_, err = s.ReadBool()
		default:
			_, err = s.ReadInt64()
		}
		assert.Error(t, err, "source %q should be rejected", src)
	}
}

func TestTstampRoundTrip(t *testing.T) {
	s := New([]byte("[4, 123]"), "mem")
	ts, err := s.ReadTstamp()
	require.NoError(t, err)
	assert.EqualValues(t, 4, ts.Beats)
	assert.EqualValues(t, 123, ts.Rem)
}

func TestPatternInstanceRef(t *testing.T) {
	s := New([]byte("[2, 7]"), "mem")
	ref, err := s.ReadPatternInstance()
	require.NoError(t, err)
	assert.Equal(t, PatternInstanceRef{Pattern: 2, Instance: 7}, ref)
}

func TestReadListVisitsInOrder(t *testing.T) {
	s := New([]byte("[1, 2, 3]"), "mem")
	var got []int64
	err := s.ReadList(func(_ int, s *Streader) error {
		v, err := s.ReadInt64()
		got = append(got, v)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestReadDictVisitsAllKeys(t *testing.T) {
	s := New([]byte(`{"a": 1, "b": 2}`), "mem")
	got := map[string]int64{}
	err := s.ReadDict(func(key string, s *Streader) error {
		v, err := s.ReadInt64()
		got[key] = v
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a": 1, "b": 2}, got)
}

func TestMarkRestart(t *testing.T) {
	s := New([]byte("[1, 2]"), "mem")
	require.NoError(t, s.expect('['))
	mark := s.Mark()
	v1, err := s.ReadInt64()
	require.NoError(t, err)
	assert.EqualValues(t, 1, v1)
	s.Restart(mark)
	v2, err := s.ReadInt64()
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestErrorCarriesLineNumber(t *testing.T) {
	s := New([]byte("{\n  \"a\": tru\n}"), "mem")
	err := s.ReadDict(func(_ string, s *Streader) error {
		_, err := s.ReadBool()
		return err
	})
	require.Error(t, err)
	var kerr *kqterror.Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, 2, kerr.Line)
}
