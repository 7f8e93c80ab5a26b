package credential_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kiranshivaraju/inventomatic/internal/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAlphabet(t *testing.T) {
	assert.Len(t, credential.Alphabet, 72)
	seen := map[rune]bool{}
	for _, c := range credential.Alphabet {
		assert.False(t, seen[c], "duplicate %q", c)
		seen[c] = true
	}
}

func TestGenerate_LengthAndCharset(t *testing.T) {
	issuer := credential.NewIssuer(bcrypt.MinCost)

	for i := 0; i < 50; i++ {
		got, err := issuer.Generate()
		require.NoError(t, err)
		assert.Len(t, got, credential.Length)
		for _, c := range got {
			assert.True(t, strings.ContainsRune(credential.Alphabet, c), "unexpected %q", c)
		}
	}
}

func TestGenerate_Independent(t *testing.T) {
	issuer := credential.NewIssuer(bcrypt.MinCost)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		got, err := issuer.Generate()
		require.NoError(t, err)
		assert.False(t, seen[got], "credential repeated")
		seen[got] = true
	}
}

func TestGenerate_RejectsBiasedBytes(t *testing.T) {
	// 0xFF is above the rejection limit and must be skipped.
	src := bytes.NewReader(append(bytes.Repeat([]byte{0xFF}, 16), bytes.Repeat([]byte{0x00}, 16)...))
	issuer := credential.NewIssuer(bcrypt.MinCost, credential.WithRandom(src))

	got, err := issuer.Generate()
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 16), got)
}

func TestGenerate_WrapsByteModulo(t *testing.T) {
	// 72 maps back to the first symbol, 73 to the second.
	src := bytes.NewReader(append(bytes.Repeat([]byte{72}, 8), bytes.Repeat([]byte{73}, 8)...))
	issuer := credential.NewIssuer(bcrypt.MinCost, credential.WithRandom(src))

	got, err := issuer.Generate()
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaabbbbbbbb", got)
}

func TestGenerate_RandomSourceFailure(t *testing.T) {
	issuer := credential.NewIssuer(bcrypt.MinCost, credential.WithRandom(iotestErrReader{}))

	_, err := issuer.Generate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read random")
}

func TestHashVerify(t *testing.T) {
	issuer := credential.NewIssuer(bcrypt.MinCost)

	hash, err := issuer.Hash("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret!", hash)

	assert.NoError(t, issuer.Verify(hash, "s3cret!"))
	assert.ErrorIs(t, issuer.Verify(hash, "wrong"), credential.ErrMismatch)
	assert.ErrorIs(t, issuer.Verify("", "s3cret!"), credential.ErrMismatch)
}

func TestHash_TooLong(t *testing.T) {
	issuer := credential.NewIssuer(bcrypt.MinCost)
	_, err := issuer.Hash(strings.Repeat("x", credential.MaxLength+1))
	assert.ErrorIs(t, err, credential.ErrTooLong)
}

func TestIssue_NeverReissuesCurrentCredential(t *testing.T) {
	src := bytes.NewReader(append(bytes.Repeat([]byte{1}, 16), bytes.Repeat([]byte{2}, 16)...))
	issuer := credential.NewIssuer(bcrypt.MinCost, credential.WithRandom(src))

	currentHash, err := bcrypt.GenerateFromPassword([]byte(strings.Repeat("b", 16)), bcrypt.MinCost)
	require.NoError(t, err)

	plain, hash, err := issuer.Issue(string(currentHash))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("c", 16), plain)
	assert.NoError(t, issuer.Verify(hash, plain))
}

func TestIssue_GivesUpAfterRepeatedCollisions(t *testing.T) {
	src := bytes.NewReader(bytes.Repeat([]byte{1}, 16*10))
	issuer := credential.NewIssuer(bcrypt.MinCost, credential.WithRandom(src))

	currentHash, err := bcrypt.GenerateFromPassword([]byte(strings.Repeat("b", 16)), bcrypt.MinCost)
	require.NoError(t, err)

	_, _, err = issuer.Issue(string(currentHash))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fresh credential")
}

func TestIssue_NoCurrentCredential(t *testing.T) {
	issuer := credential.NewIssuer(bcrypt.MinCost)

	plain, hash, err := issuer.Issue("")
	require.NoError(t, err)
	assert.Len(t, plain, credential.Length)
	assert.NoError(t, issuer.Verify(hash, plain))
}

type iotestErrReader struct{}

func (iotestErrReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

var _ io.Reader = iotestErrReader{}
