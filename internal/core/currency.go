package core

import (
	"strconv"
	"strings"
)

type (
	Currency string
	Language string
)

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	RUB Currency = "RUB"
	GBP Currency = "GBP"
)

const (
	English Language = "en"
	Russian Language = "ru"
)

const (
	DefaultCurrency = USD
	DefaultLanguage = English
)

// CurrencyDetails is the display metadata of a currency.
type CurrencyDetails struct {
	Code   Currency `json:"code"`
	Symbol string   `json:"symbol"`
	Name   string   `json:"name"`
}

// LanguageDetails is the display metadata of a language.
type LanguageDetails struct {
	Code Language `json:"code"`
	Name string   `json:"name"`
}

// Settings are the per-device display preferences.
type Settings struct {
	Currency Currency `json:"currency"`
	Language Language `json:"language"`
}

var currencies = map[Currency]CurrencyDetails{
	USD: {Code: USD, Symbol: "$", Name: "US Dollar"},
	EUR: {Code: EUR, Symbol: "€", Name: "Euro"},
	RUB: {Code: RUB, Symbol: "₽", Name: "Russian Ruble"},
	GBP: {Code: GBP, Symbol: "£", Name: "British Pound"},
}

// Currencies lists supported currencies in display order.
func Currencies() []CurrencyDetails {
	return []CurrencyDetails{currencies[USD], currencies[EUR], currencies[RUB], currencies[GBP]}
}

// Languages lists supported languages in display order.
func Languages() []LanguageDetails {
	return []LanguageDetails{
		{Code: English, Name: "English"},
		{Code: Russian, Name: "Russian"},
	}
}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool {
	_, ok := currencies[c]
	return ok
}

// Info returns the currency metadata; unknown codes fall back to USD.
func (c Currency) Info() CurrencyDetails {
	if d, ok := currencies[c]; ok {
		return d
	}
	return currencies[USD]
}

func (l Language) String() string { return string(l) }

func (l Language) IsValid() bool {
	return l == English || l == Russian
}

// DefaultSettings are the preferences of a fresh install.
func DefaultSettings() Settings {
	return Settings{Currency: DefaultCurrency, Language: DefaultLanguage}
}

func (s Settings) Validate() error {
	var v validator
	v.check(s.Currency.IsValid(), "currency", "must be one of USD, EUR, RUB, GBP")
	v.check(s.Language.IsValid(), "language", "must be one of en, ru")
	return v.err()
}

const nbsp = "\u00a0"

// FormatCurrency renders m the way the mobile app does: en-US style with two
// fraction digits ("$1,234.56"), except RUB which uses ru-RU style with whole
// rubles ("1 235 ₽", non-breaking spaces).
func FormatCurrency(m Money, c Currency) string {
	info := c.Info()
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}

	if info.Code == RUB {
		whole := (cents + 50) / 100
		b.WriteString(group(whole, nbsp))
		b.WriteString(nbsp)
		b.WriteString(info.Symbol)
		return b.String()
	}

	b.WriteString(info.Symbol)
	b.WriteString(group(cents/100, ","))
	b.WriteByte('.')
	frac := cents % 100
	if frac < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(frac, 10))
	return b.String()
}

func group(n int64, sep string) string {
	digits := strconv.FormatInt(n, 10)
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
