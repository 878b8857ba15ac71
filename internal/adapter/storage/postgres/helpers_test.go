package postgres

import (
	"wallet-ledger/pkg/money"

	"github.com/pashagolub/pgxmock/v4"
)

func strPtr(s string) *string { return &s }

// anyArgs matches n query arguments of any value.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

// moneyArg matches a money.Money query argument by value, not representation.
type moneyArg struct {
	want money.Money
}

func moneyEq(s string) moneyArg { return moneyArg{want: money.MustParse(s)} }

func (a moneyArg) Match(v any) bool {
	switch got := v.(type) {
	case money.Money:
		return got.Equal(a.want)
	case string:
		m, err := money.Parse(got)
		return err == nil && m.Equal(a.want)
	}
	return false
}
