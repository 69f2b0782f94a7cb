package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonical(t *testing.T) {
	t.Run("lowercases and trims", func(t *testing.T) {
		assert.Equal(t, "diallo", Canonical("  DIALLO "))
	})

	t.Run("strips accents", func(t *testing.T) {
		assert.Equal(t, "therese", Canonical("Thérèse"))
		assert.Equal(t, "francois", Canonical("FRANÇOIS"))
	})

	t.Run("drops punctuation and symbols", func(t *testing.T) {
		assert.Equal(t, "ndiaye", Canonical("N'Diaye"))
		assert.Equal(t, "sarl kabore freres", Canonical("S.A.R.L. Kaboré & Frères"))
	})

	t.Run("collapses interior whitespace", func(t *testing.T) {
		assert.Equal(t, "abou bakar", Canonical("Abou   \t Bakar"))
	})

	t.Run("empty and whitespace only", func(t *testing.T) {
		assert.Equal(t, "", Canonical(""))
		assert.Equal(t, "", Canonical("   "))
		assert.Equal(t, "", Canonical("..."))
	})

	t.Run("keeps digits", func(t *testing.T) {
		assert.Equal(t, "bf12345", Canonical("BF-12345"))
	})
}

func TestApply(t *testing.T) {
	t.Run("known normalizer", func(t *testing.T) {
		assert.Equal(t, "22670123456", Apply("+226 70 12 34 56", "nphone"))
	})

	t.Run("unknown normalizer returns value unchanged", func(t *testing.T) {
		assert.Equal(t, "Unchanged", Apply("Unchanged", "nope"))
	})
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@example.com", NormalizeEmail("  User@Example.COM "))
}
