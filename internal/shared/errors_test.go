package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

var allKinds = []Kind{
	KindInvalidAmount, KindInvalidInstallmentCount, KindInvalidFrequency,
	KindInvalidStartDate, KindAmountMismatch, KindTermsNotAccepted,
	KindInvoiceNotFound, KindAlreadyPaid, KindNoOutstandingBalance,
	KindPlanAlreadyExists, KindPlanNotFound, KindPlanNotActive,
	KindInstallmentNotFound, KindInstallmentAlreadyPaid,
	KindInstallmentCreationFailed, KindStorageFailure, KindChargeFailure,
}

func TestEveryKindHasBothMessages(t *testing.T) {
	for _, kind := range allKinds {
		ar := Message(kind, Arabic)
		en := Message(kind, English)
		require.NotEmpty(t, ar, "missing Arabic message for %s", kind)
		require.NotEmpty(t, en, "missing English message for %s", kind)
		require.NotEqual(t, ar, en, "identical messages for %s", kind)
		require.NotEqual(t, string(kind), ar, "catalog miss for %s", kind)
	}
}

func TestNewErrorCarriesBothLanguages(t *testing.T) {
	err := NewError(KindInvalidInstallmentCount)
	require.Equal(t, KindInvalidInstallmentCount, err.Kind)
	require.Equal(t, Message(KindInvalidInstallmentCount, Arabic), err.MessageAR)
	require.Equal(t, Message(KindInvalidInstallmentCount, English), err.MessageEN)
}

func TestWrapErrorExposesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(KindStorageFailure, cause)

	require.True(t, errors.Is(err, cause))
	require.True(t, IsKind(err, KindStorageFailure))
	require.Contains(t, err.Error(), "connection refused")

	wrapped := fmt.Errorf("outer: %w", err)
	require.True(t, IsKind(wrapped, KindStorageFailure))

	got, ok := AsError(wrapped)
	require.True(t, ok)
	require.Equal(t, KindStorageFailure, got.Kind)
}

func TestClassOf(t *testing.T) {
	require.Equal(t, ClassValidation, ClassOf(KindInvalidInstallmentCount))
	require.Equal(t, ClassValidation, ClassOf(KindTermsNotAccepted))
	require.Equal(t, ClassConflict, ClassOf(KindAlreadyPaid))
	require.Equal(t, ClassConflict, ClassOf(KindPlanAlreadyExists))
	require.Equal(t, ClassNotFound, ClassOf(KindPlanNotFound))
	require.Equal(t, ClassDownstream, ClassOf(KindStorageFailure))
	require.Equal(t, ClassDownstream, ClassOf(KindChargeFailure))
}

func TestMessageFallsBackToEnglish(t *testing.T) {
	require.Equal(t, Message(KindPlanNotFound, English), Message(KindPlanNotFound, language.French))
}
