package normalize

import "testing"

import "github.com/stretchr/testify/assert"

func TestText_DigitAndLetterFolding(t *testing.T) {
	assert.Equal(t, "0123456789", Text("۰۱۲۳۴۵۶۷۸۹"))
	assert.Equal(t, "0123456789", Text("٠١٢٣٤٥٦٧٨٩"))
	assert.Equal(t, "کیان", Text("كيان"))
}

func TestText_StripsZeroWidthJoiner(t *testing.T) {
	assert.Equal(t, "میشود", Text("می‌شود"))
}

func TestNationalCode_StripsSeparatorsAndWhitespace(t *testing.T) {
	assert.Equal(t, "0012345678", NationalCode(" 001-234 5678 "))
}

func TestInt_FoldsPersianDigits(t *testing.T) {
	v, ok := Int("۱۲۳")
	assert.True(t, ok)
	assert.Equal(t, 123, v)
}

func TestInt_RejectsNonNumeric(t *testing.T) {
	_, ok := Int("abc")
	assert.False(t, ok)
}

func TestInt_RejectsEmpty(t *testing.T) {
	_, ok := Int("   ")
	assert.False(t, ok)
}

func TestNaturalSortKey_TrailingDigitsDecomposed(t *testing.T) {
	assert.Equal(t, SortKey{Prefix: "EMP-", Digits: 2, Raw: "EMP-2"}, NaturalSortKey("EMP-2"))
	assert.Equal(t, SortKey{Prefix: "EMP-", Digits: 10, Raw: "EMP-10"}, NaturalSortKey("EMP-10"))
	assert.Equal(t, SortKey{Prefix: "EMP-", Digits: 10, Raw: "EMP-010"}, NaturalSortKey("EMP-010"))
}

func TestNaturalSortKey_NoTrailingDigits(t *testing.T) {
	assert.Equal(t, SortKey{Prefix: "MENTOR", Digits: 0, Raw: "MENTOR"}, NaturalSortKey("MENTOR"))
}

func TestSortKey_Less_NaturalOrder(t *testing.T) {
	k1 := NaturalSortKey("EMP-2")
	k10 := NaturalSortKey("EMP-10")
	k010 := NaturalSortKey("EMP-010")

	assert.True(t, k1.Less(k10))
	assert.True(t, k1.Less(k010))
	// EMP-10 and EMP-010 share numeric value 10; tie is broken by raw
	// string, and "EMP-010" < "EMP-10" lexicographically.
	assert.True(t, k010.Less(k10))
	assert.False(t, k10.Less(k010))
}

func TestSchoolTokens_SplitsOnCommonDelimiters(t *testing.T) {
	assert.Equal(t, []string{"101", "202", "303"}, SchoolTokens("101, 202 ; 303"))
	assert.Equal(t, []string{"101", "202"}, SchoolTokens("101|202"))
}

func TestSchoolTokens_DropsEmptyTokens(t *testing.T) {
	assert.Equal(t, []string{"101"}, SchoolTokens("101,, ,"))
}

func TestNationalCodeHash_DeterministicAndDistinct(t *testing.T) {
	h1 := NationalCodeHash("0012345678")
	h2 := NationalCodeHash("0012345678")
	h3 := NationalCodeHash("0012345679")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Empty(t, NationalCodeHash(""))
}
