package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
)

type amountsBody struct {
	Amount decimal.Decimal  `json:"amount" validate:"money"`
	Total  decimal.Decimal  `json:"total" validate:"money_nonneg"`
	Fee    *decimal.Decimal `json:"fee" validate:"omitempty,percentage"`
	Reason string           `json:"reason" validate:"required,max=20"`
}

func decode(t *testing.T, body string) error {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var dest amountsBody
	return DecodeJSONBody(req, &dest)
}

func validationDetails(t *testing.T, err error) map[string]string {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok, "details %T", typed.Details())
	return details
}

func TestDecodeJSONBodyAcceptsValidAmounts(t *testing.T) {
	err := decode(t, `{"amount":"-125.50","total":"300","fee":"12.5","reason":"chargeback"}`)
	require.NoError(t, err)
}

func TestDecodeJSONBodyRejectsSubCentAndNegativeAmounts(t *testing.T) {
	err := decode(t, `{"amount":"1.005","total":"-1","reason":"x"}`)
	details := validationDetails(t, err)
	assert.Contains(t, details["amount"], "2 decimal places")
	assert.Contains(t, details["total"], "non-negative")
}

func TestDecodeJSONBodyRejectsPercentageAboveHundred(t *testing.T) {
	err := decode(t, `{"amount":"1","total":"1","fee":"100.01","reason":"x"}`)
	details := validationDetails(t, err)
	assert.Equal(t, "must be between 0 and 100", details["fee"])
}

func TestDecodeJSONBodyRejectsUnknownFieldsAndMissingRequired(t *testing.T) {
	err := decode(t, `{"amount":"1","total":"1","reason":"x","extra":true}`)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	details := validationDetails(t, decode(t, `{"amount":"1","total":"1"}`))
	assert.Equal(t, "is required", details["reason"])
}
