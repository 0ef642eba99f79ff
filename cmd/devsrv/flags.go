package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
	JSON       bool
}

// ServeFlags Flag structs to decouple cobra from logic for testing.
type ServeFlags struct {
	Daemonize bool
	PidFile   string
	LogFile   string
}

type CreateFlags struct {
	Type string
}

type LogFlags struct {
	Follow bool
}

type UsageFlags struct {
	Watch    bool
	Interval time.Duration
}
