package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlyingStore := NewMockStore()
	// Mask keys containing "password" or "ssn"
	mw, err := middleware.NewPIIMiddleware([]string{"password", "ssn"})
	if err != nil {
		t.Fatal(err)
	}
	secureStore := mw(underlyingStore)

	ctx := context.Background()
	snap := &domain.SessionSnapshot{
		ID: "pii-session",
		Variables: map[string]any{
			"username":      "jdoe",
			"user_password": "secret123",
			"details": map[string]any{
				"address":    "123 St",
				"ssn_number": "999-99-9999",
			},
		},
		Contexts: map[string]domain.ContextSnapshot{
			"signup": {Lifespan: 2, Values: map[string]any{"password": "hunter2", "email": "a@b.c"}},
		},
	}

	if err := secureStore.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// The live snapshot is not modified.
	if snap.Variables["user_password"] != "secret123" || snap.Contexts["signup"].Values["password"] != "hunter2" {
		t.Error("Middleware modified original snapshot in memory!")
	}

	stored, err := underlyingStore.Load(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if stored.Variables["username"] != "jdoe" {
		t.Error("Username shouldn't be masked")
	}
	if stored.Variables["user_password"] != middleware.Mask {
		t.Errorf("Password should be masked, got: %v", stored.Variables["user_password"])
	}
	details := stored.Variables["details"].(map[string]any)
	if details["ssn_number"] != middleware.Mask {
		t.Errorf("Nested SSN should be masked, got: %v", details["ssn_number"])
	}
	signup := stored.Contexts["signup"].Values
	if signup["password"] != middleware.Mask || signup["email"] != "a@b.c" {
		t.Errorf("Context values not masked as expected: %v", signup)
	}
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	if _, err := middleware.NewPIIMiddleware([]string{"("}); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}
