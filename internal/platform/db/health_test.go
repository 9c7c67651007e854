package db

import (
	"context"
	"errors"
	"testing"
)

func TestEvaluate_AllHealthy(t *testing.T) {
	report := Evaluate(context.Background(),
		func(context.Context) error { return nil },
		map[string]DependencyCheck{
			"queue": func(context.Context) error { return nil },
		})

	if report.Status != "healthy" {
		t.Errorf("expected healthy, got %s", report.Status)
	}
	if report.Dependencies["database"] != "ok" {
		t.Errorf("expected database ok, got %q", report.Dependencies["database"])
	}
	if report.Dependencies["queue"] != "ok" {
		t.Errorf("expected queue ok, got %q", report.Dependencies["queue"])
	}
}

func TestEvaluate_DatabaseDown(t *testing.T) {
	report := Evaluate(context.Background(),
		func(context.Context) error { return errors.New("connection refused") },
		nil)

	if report.Status != "unhealthy" {
		t.Errorf("expected unhealthy, got %s", report.Status)
	}
	if report.Dependencies["database"] != "connection refused" {
		t.Errorf("unexpected database entry: %q", report.Dependencies["database"])
	}
}

func TestEvaluate_DependencyDown(t *testing.T) {
	report := Evaluate(context.Background(),
		func(context.Context) error { return nil },
		map[string]DependencyCheck{
			"queue":   func(context.Context) error { return errors.New("channel closed") },
			"storage": func(context.Context) error { return nil },
		})

	if report.Status != "unhealthy" {
		t.Errorf("expected unhealthy, got %s", report.Status)
	}
	if report.Dependencies["queue"] != "channel closed" {
		t.Errorf("unexpected queue entry: %q", report.Dependencies["queue"])
	}
	if report.Dependencies["storage"] != "ok" {
		t.Errorf("unexpected storage entry: %q", report.Dependencies["storage"])
	}
}

func TestPoolStats_UnhealthyState(t *testing.T) {
	stats := &PoolStats{MaxConns: 20, AcquireDuration: "0s"}
	if stats.Healthy {
		t.Error("expected zero-value stats to be unhealthy")
	}
}
