package normalize

import (
	"testing"

	"jobradar/internal/domain/job"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSalary(t *testing.T) {
	cases := []struct {
		in       string
		typ      string
		min, max float64
		currency string
		period   string
	}{
		{"$120,000 - $150,000 a year", job.SalaryRange, 120000, 150000, "USD", "year"},
		{"$50k-$70k", job.SalaryRange, 50000, 70000, "USD", "year"},
		{"€45 - €60 per hour", job.SalaryRange, 45, 60, "EUR", "hour"},
		{"£3,500 monthly", job.SalaryRange, 3500, 3500, "GBP", "month"},
		{"From 90000 USD", job.SalaryStarting, 90000, 0, "USD", "year"},
		{"$150k+", job.SalaryStarting, 150000, 0, "USD", "year"},
		{"200,000 - 150,000 CAD", job.SalaryRange, 150000, 200000, "CAD", "year"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got := ParseSalary(tc.in)
			assert.Equal(t, tc.typ, got.Type)
			require.NotNil(t, got.Min)
			assert.Equal(t, tc.min, *got.Min)
			if tc.max == 0 {
				assert.Nil(t, got.Max)
			} else {
				require.NotNil(t, got.Max)
				assert.Equal(t, tc.max, *got.Max)
			}
			require.NotNil(t, got.Currency)
			assert.Equal(t, tc.currency, *got.Currency)
			require.NotNil(t, got.Period)
			assert.Equal(t, tc.period, *got.Period)
		})
	}
}

func TestParseSalary_NoAmounts(t *testing.T) {
	assert.Equal(t, job.SalaryNegotiable, ParseSalary("Competitive, DOE").Type)
	assert.Equal(t, job.SalaryNegotiable, ParseSalary("Negotiable").Type)

	got := ParseSalary("see listing")
	assert.Equal(t, job.SalaryNotSpecified, got.Type)
	assert.Nil(t, got.Min)
	assert.Nil(t, got.Period)

	assert.Equal(t, job.SalaryNotSpecified, ParseSalary("").Type)
}
