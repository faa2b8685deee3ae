package config

import (
	"testing"
	"time"
)

func TestValidateRejectsBadLogLevel(t *testing.T) {
	c := &Config{
		Addr: ":4000", MaxSessions: 1, SessionTimeout: 1, ReapInterval: 1,
		LogLevel: "verbose", LogFormat: "json",
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error for bad log level")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	c := &Config{
		Addr: ":8888", MaxSessions: 1000, SessionTimeout: time.Hour, ReapInterval: time.Minute,
		LogLevel: "info", LogFormat: "json",
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsEmptyAddr(t *testing.T) {
	c := &Config{
		Addr: "", MaxSessions: 1, SessionTimeout: 1, ReapInterval: 1,
		LogLevel: "info", LogFormat: "json",
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error for empty addr")
	}
}
