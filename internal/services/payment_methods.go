package services

import (
	"regexp"
	"strings"

	"adearn-backend/internal/models"
)

type MethodClass string

const (
	MethodClassLocal  MethodClass = "local"
	MethodClassCrypto MethodClass = "crypto"
)

var (
	mobileNumberPattern = regexp.MustCompile(`^01[3-9]\d{8}$`)
	evmAddressPattern   = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	tronAddressPattern  = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)
	bep2AddressPattern  = regexp.MustCompile(`(?i)^bnb[0-9a-z]{39}$`)
)

type Network struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	Fee            string `json:"fee,omitempty"`
	ProcessingTime string `json:"processingTime,omitempty"`
	RequiresMemo   bool   `json:"requiresMemo,omitempty"`

	address *regexp.Regexp
}

type PaymentMethod struct {
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Class          MethodClass     `json:"class"`
	Currency       models.Currency `json:"currency"`
	ProcessingTime string          `json:"processingTime"`
	Networks       []Network       `json:"networks,omitempty"`

	recipient *regexp.Regexp
}

func bep20(fee, eta string) Network {
	return Network{Code: "bep20", Name: "BNB Smart Chain (BEP20)", Fee: fee, ProcessingTime: eta, address: evmAddressPattern}
}

func erc20(fee, eta string) Network {
	return Network{Code: "erc20", Name: "Ethereum (ERC20)", Fee: fee, ProcessingTime: eta, address: evmAddressPattern}
}

func trc20(fee, eta string) Network {
	return Network{Code: "trc20", Name: "TRON (TRC20)", Fee: fee, ProcessingTime: eta, address: tronAddressPattern}
}

var paymentMethods = []PaymentMethod{
	{
		Code:           "bkash",
		Name:           "bKash",
		Class:          MethodClassLocal,
		Currency:       models.CurrencyBDT,
		ProcessingTime: "24-48 hours",
		recipient:      mobileNumberPattern,
	},
	{
		Code:           "nagad",
		Name:           "Nagad",
		Class:          MethodClassLocal,
		Currency:       models.CurrencyBDT,
		ProcessingTime: "24-48 hours",
		recipient:      mobileNumberPattern,
	},
	{
		Code:           "binance",
		Name:           "Binance",
		Class:          MethodClassCrypto,
		Currency:       models.CurrencyUSDT,
		ProcessingTime: "24-48 hours",
		Networks: []Network{
			bep20("0.5 USDT", "15-30 mins"),
			{Code: "bep2", Name: "BNB Beacon Chain (BEP2)", Fee: "1 USDT", ProcessingTime: "5-15 mins", RequiresMemo: true, address: bep2AddressPattern},
			erc20("15-25 USDT", "30-60 mins"),
			trc20("1 USDT", "3-10 mins"),
		},
	},
	{
		Code:           "bitget",
		Name:           "Bitget",
		Class:          MethodClassCrypto,
		Currency:       models.CurrencyUSDT,
		ProcessingTime: "24-48 hours",
		Networks: []Network{
			trc20("", ""),
			erc20("", ""),
			bep20("", ""),
		},
	},
}

func PaymentMethods() []PaymentMethod {
	out := make([]PaymentMethod, len(paymentMethods))
	copy(out, paymentMethods)
	return out
}

func LookupPaymentMethod(code string) (*PaymentMethod, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for i := range paymentMethods {
		if paymentMethods[i].Code == code {
			return &paymentMethods[i], true
		}
	}
	return nil, false
}

func (m *PaymentMethod) IsCrypto() bool {
	return m.Class == MethodClassCrypto
}

func (m *PaymentMethod) Network(code string) (*Network, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for i := range m.Networks {
		if m.Networks[i].Code == code {
			return &m.Networks[i], true
		}
	}
	return nil, false
}

// ValidateRecipient checks the payout target and returns the canonical
// network code, empty for local methods.
func (m *PaymentMethod) ValidateRecipient(network, recipient string) (string, error) {
	recipient = strings.TrimSpace(recipient)

	if !m.IsCrypto() {
		if !m.recipient.MatchString(recipient) {
			return "", ErrInvalidRecipient.Detail("Invalid mobile number")
		}
		return "", nil
	}

	n, ok := m.Network(network)
	if !ok {
		return "", ErrUnsupportedNetwork
	}
	if !n.address.MatchString(recipient) {
		return "", ErrInvalidRecipient.Detail("Invalid " + strings.ToUpper(n.Code) + " address")
	}
	return n.Code, nil
}
