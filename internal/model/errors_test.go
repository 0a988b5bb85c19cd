package model

import (
	"errors"
	"strings"
	"testing"
)

func TestAPIError_ImplementsError(t *testing.T) {
	var err error = NewNoDataError()

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("errors.As should extract *APIError")
	}
	if apiErr.Code != ErrCodeNoData {
		t.Errorf("Code = %q, want %q", apiErr.Code, ErrCodeNoData)
	}
	if !strings.Contains(err.Error(), "[NO_DATA]") {
		t.Errorf("Error() = %q, should contain code", err.Error())
	}
}

func TestNewInvalidSymbolError_EmptySymbol(t *testing.T) {
	apiErr := NewInvalidSymbolError("")
	if apiErr.Message != "Symbol is required." {
		t.Errorf("Message = %q, want %q", apiErr.Message, "Symbol is required.")
	}
	if apiErr.Category != "validation" {
		t.Errorf("Category = %q, want %q", apiErr.Category, "validation")
	}
}

func TestNewUnauthorizedError_DoesNotLeakReason(t *testing.T) {
	a := NewUnauthorizedError()
	b := NewUnauthorizedError()
	if *a != *b {
		t.Errorf("unauthorized errors should be identical: %+v vs %+v", a, b)
	}
}
