package enums

import "fmt"

// WalletTransactionType classifies wallet ledger rows.
type WalletTransactionType string

const (
	WalletTransactionTypeTopUp          WalletTransactionType = "top_up"
	WalletTransactionTypeOrderPayment   WalletTransactionType = "order_payment"
	WalletTransactionTypeDriverEarning  WalletTransactionType = "driver_earning"
	WalletTransactionTypeStationEarning WalletTransactionType = "station_earning"
	WalletTransactionTypeRefund         WalletTransactionType = "refund"
	WalletTransactionTypeWithdrawal     WalletTransactionType = "withdrawal"
	WalletTransactionTypeAdjustment     WalletTransactionType = "adjustment"
)

var validWalletTransactionTypes = []WalletTransactionType{
	WalletTransactionTypeTopUp,
	WalletTransactionTypeOrderPayment,
	WalletTransactionTypeDriverEarning,
	WalletTransactionTypeStationEarning,
	WalletTransactionTypeRefund,
	WalletTransactionTypeWithdrawal,
	WalletTransactionTypeAdjustment,
}

// String implements fmt.Stringer.
func (w WalletTransactionType) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WalletTransactionType.
func (w WalletTransactionType) IsValid() bool {
	for _, candidate := range validWalletTransactionTypes {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWalletTransactionType converts raw input into a WalletTransactionType.
func ParseWalletTransactionType(value string) (WalletTransactionType, error) {
	for _, candidate := range validWalletTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction type %q", value)
}
