package main

import (
	"testing"
	"time"
)

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--batch-size", "25", "--interval", "30s", "--timezone", "UTC"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if v, _ := cmd.Flags().GetInt("batch-size"); v != 25 {
		t.Fatalf("expected batch size 25, got %d", v)
	}
	if v, _ := cmd.Flags().GetDuration("interval"); v != 30*time.Second {
		t.Fatalf("expected 30s interval, got %s", v)
	}
}

func TestRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cmd := newRootCmd()
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error without a database url")
	}
}
