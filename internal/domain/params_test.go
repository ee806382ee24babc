package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsNumbersFromAnySource(t *testing.T) {
	p := Params{"a": 3, "b": float64(4), "c": "5", "d": int64(6)}

	for key, want := range map[string]int{"a": 3, "b": 4, "c": 5, "d": 6} {
		got, ok, err := p.Int(key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, want, got, key)
	}

	_, ok, err := p.Int("missing")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestParamsIntRejectsFractions(t *testing.T) {
	p := Params{"retry": 2.7, "small": float32(0.5), "whole": float32(3)}

	for _, key := range []string{"retry", "small"} {
		_, ok, err := p.Int(key)
		assert.False(t, ok, key)
		assert.Equal(t, KindTypeMismatch, KindOf(err), key)
	}

	got, ok, err := p.Int("whole")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, got)
}

func TestParamsDuration(t *testing.T) {
	p := Params{"d": time.Second, "n": 2, "f": 0.5, "s": "150ms", "bare": "3"}

	cases := map[string]time.Duration{
		"d":    time.Second,
		"n":    2 * time.Second,
		"f":    500 * time.Millisecond,
		"s":    150 * time.Millisecond,
		"bare": 3 * time.Second,
	}
	for key, want := range cases {
		got, ok, err := p.Duration(key)
		require.NoError(t, err, key)
		assert.True(t, ok)
		assert.Equal(t, want, got, key)
	}

	_, _, err := Params{"x": "soon"}.Duration("x")
	assert.True(t, errors.Is(err, ErrTypeMismatch))
}

func TestParamsStrings(t *testing.T) {
	got, ok, err := Params{"c": "a, b,c"}.Strings("c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	got, _, err = Params{"c": []any{"x", "y"}}.Strings("c")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, got)

	_, _, err = Params{"c": []any{"x", 1}}.Strings("c")
	assert.Equal(t, KindTypeMismatch, KindOf(err))
}

func TestParamsStringTypeMismatch(t *testing.T) {
	_, _, err := Params{"url": 42}.String("url")
	assert.Equal(t, KindTypeMismatch, KindOf(err))

	s, ok, err := Params{"url": ""}.String("url")
	assert.NoError(t, err)
	assert.False(t, ok, "empty string counts as absent")
	assert.Empty(t, s)
}

func TestParamsBoolAndMap(t *testing.T) {
	b, ok, err := Params{"x": "true"}.Bool("x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, b)

	m, ok, err := Params{"h": map[string]string{"k": "v"}}.Map("h")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", m["k"])
}
