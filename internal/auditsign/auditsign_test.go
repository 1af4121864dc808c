package auditsign_test

import (
	"testing"
	"time"

	"github.com/rezahh107/matrix2/internal/auditsign"
	"github.com/rezahh107/matrix2/internal/batch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSummary() batch.Summary {
	return batch.Summary{
		TotalStudents: 10,
		SuccessCount:  8,
		FailedCount:   2,
		ChannelCounts: map[string]int{"generic": 8},
	}
}

func TestSigner_SignAndVerifyRoundTrip(t *testing.T) {
	signer := auditsign.NewSigner("receipt-secret")
	summary := testSummary()

	receipt, err := signer.Sign("run-1", summary, time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, receipt)

	claims, err := signer.Verify(receipt, summary)
	require.NoError(t, err)
	assert.Equal(t, "run-1", claims.RunID)
}

func TestSigner_VerifyDetectsTamperedSummary(t *testing.T) {
	signer := auditsign.NewSigner("receipt-secret")
	summary := testSummary()

	receipt, err := signer.Sign("run-1", summary, time.Now())
	require.NoError(t, err)

	tampered := summary
	tampered.SuccessCount = 999

	_, err = signer.Verify(receipt, tampered)
	assert.ErrorIs(t, err, auditsign.ErrSummaryMismatch)
}

func TestSigner_VerifyRejectsWrongSecret(t *testing.T) {
	issuer := auditsign.NewSigner("receipt-secret")
	summary := testSummary()
	receipt, err := issuer.Sign("run-1", summary, time.Now())
	require.NoError(t, err)

	verifier := auditsign.NewSigner("different-secret")
	_, err = verifier.Verify(receipt, summary)
	assert.ErrorIs(t, err, auditsign.ErrInvalidReceipt)
}

func TestSummaryHash_IsStableForIdenticalInput(t *testing.T) {
	summary := testSummary()
	h1, err := auditsign.SummaryHash(summary)
	require.NoError(t, err)
	h2, err := auditsign.SummaryHash(summary)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestSummaryHash_DiffersOnChangedInput(t *testing.T) {
	summary := testSummary()
	h1, err := auditsign.SummaryHash(summary)
	require.NoError(t, err)

	summary.SuccessCount = 7
	h2, err := auditsign.SummaryHash(summary)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
