package domain

import "github.com/shopspring/decimal"

// MoneyPlaces is the precision of every price and balance.
const MoneyPlaces = 2

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

func LineSubtotal(unitPrice decimal.Decimal, qty int) decimal.Decimal {
	return RoundMoney(unitPrice.Mul(decimal.NewFromInt(int64(qty))))
}
