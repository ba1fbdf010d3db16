package fees

import "errors"

var ErrUnsupportedMethod = errors.New("fees: unsupported payment method")

type Method string

const (
	MethodCreditCard Method = "credit_card"
	MethodDebitCard  Method = "debit_card"
	MethodPix        Method = "pix"
	MethodBoleto     Method = "boleto"
)

// Fee is the per-method pricing: a percentage rate in basis points
// (1 bp = 0.01%) plus a fixed surcharge in cents. Rates are kept as
// fixed-point integers so totals stay reproducible.
type Fee struct {
	RateBasisPoints int64
	FixedFeeCents   int64
}

type Schedule map[Method]Fee

// DefaultSchedule mirrors the acquirer's published Brazilian rates.
func DefaultSchedule() Schedule {
	return Schedule{
		MethodCreditCard: {RateBasisPoints: 340, FixedFeeCents: 60},
		MethodDebitCard:  {RateBasisPoints: 290, FixedFeeCents: 60},
		MethodPix:        {RateBasisPoints: 99, FixedFeeCents: 0},
		MethodBoleto:     {RateBasisPoints: 0, FixedFeeCents: 349},
	}
}

type Breakdown struct {
	Method          Method `json:"method"`
	RateBasisPoints int64  `json:"rate_basis_points"`
	PercentageCents int64  `json:"percentage_fee_cents"`
	FixedCents      int64  `json:"fixed_fee_cents"`
	TotalCents      int64  `json:"total_fee_cents"`
}

type Calculator struct {
	schedule Schedule
}

func NewCalculator(s Schedule) *Calculator {
	if s == nil {
		s = DefaultSchedule()
	}
	return &Calculator{schedule: s}
}

// Compute returns the transaction fee in cents for a subtotal in cents.
// The percentage part rounds half-up to the nearest cent.
func (c *Calculator) Compute(subtotalCents int64, method Method) (int64, error) {
	b, err := c.Breakdown(subtotalCents, method)
	if err != nil {
		return 0, err
	}
	return b.TotalCents, nil
}

func (c *Calculator) Breakdown(subtotalCents int64, method Method) (Breakdown, error) {
	f, ok := c.schedule[method]
	if !ok {
		return Breakdown{}, ErrUnsupportedMethod
	}
	pct := roundHalfUpBP(subtotalCents, f.RateBasisPoints)
	return Breakdown{
		Method:          method,
		RateBasisPoints: f.RateBasisPoints,
		PercentageCents: pct,
		FixedCents:      f.FixedFeeCents,
		TotalCents:      pct + f.FixedFeeCents,
	}, nil
}

// Fee returns the configured pricing for a method.
func (c *Calculator) Fee(method Method) (Fee, error) {
	f, ok := c.schedule[method]
	if !ok {
		return Fee{}, ErrUnsupportedMethod
	}
	return f, nil
}

// Methods lists the configured method tags.
func (c *Calculator) Methods() []Method {
	out := make([]Method, 0, len(c.schedule))
	for _, m := range []Method{MethodCreditCard, MethodDebitCard, MethodPix, MethodBoleto} {
		if _, ok := c.schedule[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// roundHalfUpBP computes amount*bp/10000 rounded half-up.
// Amounts are non-negative, so adding half the divisor before the
// integer division is exact.
func roundHalfUpBP(amount, bp int64) int64 {
	return (amount*bp + 5000) / 10000
}
