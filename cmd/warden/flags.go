package main

import "time"

// Flag structs decouple cobra's binding from the handler logic, the same
// split the teacher's cmd/provisr/flags.go uses so each command can be unit
// tested without constructing a cobra.Command.

type startFlags struct {
	Name        string
	Daemon      bool
	AutoRestart bool
	Port        uint16
}

type stopFlags struct {
	Name string
}

type statusFlags struct {
	Name string
	Port bool
}

type listFlags struct {
	NameFilter string
	Status     string
	MinUptime  time.Duration
	MaxUptime  time.Duration
	MinCPU     float64
	MaxCPU     float64
	MinMemMB   float64
	MaxMemMB   float64
	JSON       bool
	Watch      bool
}

type logsFlags struct {
	Name    string
	Follow  bool
	Stream  string
	Date    string
}

type systemLogsFlags struct {
	Follow bool
	Date   string
}

type monitorFlags struct {
	ProcessName string
	Program     string
	ConfigPath  string
	WorkingDir  string
	Workspace   string
	Args        []string
	Env         []string
	AutoRestart bool
}
