package store

import (
	"fatture/internal/core"
	"fatture/internal/gateway"
)

func noErr[T any](f func(T) gateway.Row) func(T) (gateway.Row, error) {
	return func(v T) (gateway.Row, error) { return f(v), nil }
}

// Newest expenses first, as the expense table shows them.
func ExpenseCodec() Codec[core.Expense] {
	return Codec[core.Expense]{
		Table:  gateway.Expenses,
		Order:  gateway.OrderByDesc("date_incurred"),
		Encode: noErr(gateway.ExpenseRow),
		Decode: gateway.ExpenseFromRow,
	}
}

func CategoryCodec() Codec[core.Category] {
	return Codec[core.Category]{
		Table:  gateway.ExpenseCategories,
		Order:  gateway.OrderBy("name"),
		Encode: noErr(gateway.CategoryRow),
		Decode: gateway.CategoryFromRow,
	}
}

func InvoiceCodec() Codec[core.Invoice] {
	return Codec[core.Invoice]{
		Table:  gateway.Invoices,
		Order:  gateway.OrderByDesc("date_issued"),
		Encode: gateway.InvoiceRow,
		Decode: gateway.InvoiceFromRow,
	}
}

func ClientCodec() Codec[core.Client] {
	return Codec[core.Client]{
		Table:  gateway.Clients,
		Order:  gateway.OrderBy("name"),
		Encode: noErr(gateway.ClientRow),
		Decode: gateway.ClientFromRow,
	}
}

func SettingsCodec() Codec[core.Settings] {
	return Codec[core.Settings]{
		Table:  gateway.Settings,
		Encode: noErr(gateway.SettingsRow),
		Decode: gateway.SettingsFromRow,
	}
}

func BalanceCodec() Codec[core.BalanceSummary] {
	return Codec[core.BalanceSummary]{
		Table:  gateway.BalanceSummary,
		Encode: noErr(gateway.BalanceRow),
		Decode: gateway.BalanceFromRow,
	}
}
