// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

func TestTokenAlphabet(t *testing.T) {
	alphabet := auth.TokenAlphabet()

	assert.Len(t, alphabet, 94-8)
	for _, excluded := range "\\\"'{}()` " {
		assert.NotContains(t, alphabet, string(excluded))
	}
	for _, c := range []byte(alphabet) {
		assert.True(t, c >= '!' && c <= '~', "character %q outside printable range", c)
	}
}

func TestRandomTokenGenerator_Generate(t *testing.T) {
	gen := auth.NewRandomTokenGenerator()

	t.Run("exact length from alphabet", func(t *testing.T) {
		for _, n := range []int{1, auth.DefaultTokenLength, 200} {
			token, err := gen.Generate(n)
			require.NoError(t, err)
			assert.Len(t, token, n)
			for _, c := range token {
				assert.True(t, strings.ContainsRune(auth.TokenAlphabet(), c), "unexpected character %q", c)
			}
		}
	})

	t.Run("tokens are distinct", func(t *testing.T) {
		seen := make(map[string]struct{})
		for range 100 {
			token, err := gen.Generate(auth.DefaultTokenLength)
			require.NoError(t, err)
			_, dup := seen[token]
			require.False(t, dup)
			seen[token] = struct{}{}
		}
	})

	t.Run("rejects non-positive length", func(t *testing.T) {
		for _, n := range []int{0, -1} {
			_, err := gen.Generate(n)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_TOKEN_LENGTH")
		}
	})
}

func TestRandomTokenGenerator_EntropyFailure(t *testing.T) {
	boom := errors.New("entropy exhausted")
	gen := auth.NewRandomTokenGeneratorFrom(iotest.ErrReader(boom))

	_, err := gen.Generate(8)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	errutil.AssertErrorCode(t, err, "AUTH_TOKEN_FAILED")
}

func TestRandomTokenGenerator_DeterministicSource(t *testing.T) {
	seed := bytes.Repeat([]byte{0x00}, 64)
	a, err := auth.NewRandomTokenGeneratorFrom(bytes.NewReader(seed)).Generate(4)
	require.NoError(t, err)
	b, err := auth.NewRandomTokenGeneratorFrom(bytes.NewReader(seed)).Generate(4)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, strings.Repeat(auth.TokenAlphabet()[:1], 4), a)
}
