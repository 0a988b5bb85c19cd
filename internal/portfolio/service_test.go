package portfolio

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hitoshi/stockfolio/internal/model"
	"github.com/hitoshi/stockfolio/internal/repository"
)

func TestParseSymbol(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"aapl", "AAPL", false},
		{"  tsla ", "TSLA", false},
		{"brk.b", "BRK.B", false},
		{"^gspc", "^GSPC", false},
		{"eurusd=x", "EURUSD=X", false},
		{"", "", true},
		{"   ", "", true},
		{"AAPL;DROP", "", true},
		{"A B", "", true},
		{"ABCDEFGHIJKLMNOP", "", true},
		{"日本", "", true},
	}

	for _, tt := range tests {
		got, err := ParseSymbol(tt.in)
		if tt.wantErr {
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidSymbol {
				t.Errorf("ParseSymbol(%q) error = %v, want INVALID_SYMBOL", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSymbol(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSymbol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseSymbols(t *testing.T) {
	got, err := ParseSymbols("aapl, msft,,tsla")
	if err != nil {
		t.Fatalf("ParseSymbols() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"AAPL", "MSFT", "TSLA"}) {
		t.Errorf("ParseSymbols() = %v", got)
	}
	if _, err := ParseSymbols("AAPL,<script>"); err == nil {
		t.Error("ParseSymbols() should reject invalid entries")
	}
}

func TestService_AddNormalizesAndIsIdempotent(t *testing.T) {
	svc := NewService(repository.NewMemoryPortfolioRepo())
	ctx := context.Background()

	got, err := svc.Add(ctx, "alice@example.com", " tsla ")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if got != "TSLA" {
		t.Errorf("Add() = %q, want TSLA", got)
	}
	if _, err := svc.Add(ctx, "alice@example.com", "TSLA"); err != nil {
		t.Fatalf("second Add() error = %v", err)
	}
	svc.Add(ctx, "alice@example.com", "aapl")

	symbols, err := svc.List(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if !reflect.DeepEqual(symbols, []string{"AAPL", "TSLA"}) {
		t.Errorf("List() = %v, want [AAPL TSLA]", symbols)
	}
}

func TestService_AddRejectsInvalidSymbol(t *testing.T) {
	svc := NewService(repository.NewMemoryPortfolioRepo())
	if _, err := svc.Add(context.Background(), "alice@example.com", "not a symbol"); err == nil {
		t.Fatal("Add() should fail")
	}
	symbols, _ := svc.List(context.Background(), "alice@example.com")
	if len(symbols) != 0 {
		t.Errorf("invalid symbol must not be stored: %v", symbols)
	}
}

type failingRepo struct{}

func (failingRepo) Put(context.Context, string, string) error { return errors.New("db down") }
func (failingRepo) ListSymbols(context.Context, string) ([]string, error) {
	return nil, errors.New("db down")
}

func TestService_PropagatesStoreErrors(t *testing.T) {
	svc := NewService(failingRepo{})
	if _, err := svc.Add(context.Background(), "alice@example.com", "AAPL"); err == nil {
		t.Error("Add() should fail when the store fails")
	}
	if _, err := svc.List(context.Background(), "alice@example.com"); err == nil {
		t.Error("List() should fail when the store fails")
	}
}
