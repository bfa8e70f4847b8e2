package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"fatture/internal/core"
	"fatture/internal/gateway"
	"fatture/internal/store"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", core.Invalid("amount", core.ErrInvalidAmount), http.StatusUnprocessableEntity},
		{"wrapped validation", fmt.Errorf("save: %w", core.Invalid("date", core.ErrInvalidDate)), http.StatusUnprocessableEntity},
		{"busy", store.ErrBusy, http.StatusConflict},
		{"duplicate", gateway.Wrap(gateway.Invoices, gateway.OpInsert, "INV-1", gateway.ErrDuplicate), http.StatusConflict},
		{"id changed", store.ErrIDChanged, http.StatusConflict},
		{"not found", gateway.Wrap(gateway.Expenses, gateway.OpDelete, "x", gateway.ErrNotFound), http.StatusNotFound},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"backend", gateway.Wrap(gateway.Clients, gateway.OpUpdate, "c1", errors.New("EOF")), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
