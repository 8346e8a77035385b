package models_test

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/models"
)

// NOTE: These tests are intentionally DB-free. They validate the order
// status machine itself; full end-to-end transition behavior (stock
// release, tier updates) is covered by the integration tests.

func TestCanTransition_AllowedEdges(t *testing.T) {
	allowed := []struct {
		from models.OrderStatus
		to   models.OrderStatus
	}{
		{models.OrderStatusPending, models.OrderStatusProcessing},
		{models.OrderStatusPending, models.OrderStatusCancelled},
		{models.OrderStatusProcessing, models.OrderStatusShipping},
		{models.OrderStatusProcessing, models.OrderStatusCancelled},
		{models.OrderStatusShipping, models.OrderStatusCompleted},
		{models.OrderStatusShipping, models.OrderStatusReturning},
		{models.OrderStatusShipping, models.OrderStatusReturned},
		{models.OrderStatusCompleted, models.OrderStatusReturning},
		{models.OrderStatusReturning, models.OrderStatusInspection},
		{models.OrderStatusInspection, models.OrderStatusReturned},
	}
	for _, edge := range allowed {
		if !models.CanTransition(edge.from, edge.to) {
			t.Errorf("expected %s -> %s to be allowed", edge.from, edge.to)
		}
	}
}

func TestCanTransition_RejectedEdges(t *testing.T) {
	rejected := []struct {
		from models.OrderStatus
		to   models.OrderStatus
	}{
		{models.OrderStatusPending, models.OrderStatusShipping},
		{models.OrderStatusPending, models.OrderStatusCompleted},
		{models.OrderStatusShipping, models.OrderStatusCancelled},
		{models.OrderStatusCompleted, models.OrderStatusCancelled},
		{models.OrderStatusReturning, models.OrderStatusReturned},
		{models.OrderStatusInspection, models.OrderStatusCompleted},
		{models.OrderStatusCancelled, models.OrderStatusPending},
		{models.OrderStatusCancelled, models.OrderStatusProcessing},
		{models.OrderStatusReturned, models.OrderStatusReturning},
		{models.OrderStatusReturned, models.OrderStatusPending},
	}
	for _, edge := range rejected {
		if models.CanTransition(edge.from, edge.to) {
			t.Errorf("expected %s -> %s to be rejected", edge.from, edge.to)
		}
	}
}

func TestCanTransition_TerminalStatesHaveNoExits(t *testing.T) {
	all := []models.OrderStatus{
		models.OrderStatusPending, models.OrderStatusProcessing,
		models.OrderStatusShipping, models.OrderStatusCompleted,
		models.OrderStatusCancelled, models.OrderStatusReturning,
		models.OrderStatusInspection, models.OrderStatusReturned,
	}
	for _, terminal := range []models.OrderStatus{models.OrderStatusCancelled, models.OrderStatusReturned} {
		if !terminal.IsTerminal() {
			t.Errorf("expected %s to be terminal", terminal)
		}
		for _, to := range all {
			if models.CanTransition(terminal, to) {
				t.Errorf("terminal %s must not transition to %s", terminal, to)
			}
		}
	}
}

func TestIsTerminal_NonTerminalStatuses(t *testing.T) {
	for _, status := range []models.OrderStatus{
		models.OrderStatusPending, models.OrderStatusProcessing,
		models.OrderStatusShipping, models.OrderStatusCompleted,
		models.OrderStatusReturning, models.OrderStatusInspection,
	} {
		if status.IsTerminal() {
			t.Errorf("%s must not be terminal", status)
		}
	}
}

func TestWithinReturnWindow(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		createdAt time.Time
		want      bool
	}{
		{"same day", now.Add(-2 * time.Hour), true},
		{"day 29", now.Add(-29 * 24 * time.Hour), true},
		{"day 30 exactly", now.Add(-models.ReturnWindow), true},
		{"one second past", now.Add(-models.ReturnWindow - time.Second), false},
		{"day 31", now.Add(-31 * 24 * time.Hour), false},
	}
	for _, tc := range cases {
		if got := models.WithinReturnWindow(tc.createdAt, now); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
