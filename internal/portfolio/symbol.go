package portfolio

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/stockfolio/internal/model"
)

// tickerPattern は受け付けるシンボルの形式。
// 例: AAPL, BRK.B, RDS-A, ^GSPC, EURUSD=X
var tickerPattern = regexp.MustCompile(`^[A-Z0-9.\-^=]{1,15}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("ticker", func(fl validator.FieldLevel) bool {
		return tickerPattern.MatchString(fl.Field().String())
	})
	return v
}

type symbolInput struct {
	Symbol string `validate:"required,ticker"`
}

// ParseSymbol は入力を前後の空白除去と大文字化で正規化し、形式を検証する。
// 不正な場合はINVALID_SYMBOLのAPIErrorを返す。
func ParseSymbol(raw string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	if err := validate.Struct(symbolInput{Symbol: symbol}); err != nil {
		return "", model.NewInvalidSymbolError(symbol)
	}
	return symbol, nil
}

// ParseSymbols はカンマ区切りのシンボル列を正規化する。空要素は無視する。
func ParseSymbols(csv string) ([]string, error) {
	var symbols []string
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		s, err := ParseSymbol(part)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}
	return symbols, nil
}
