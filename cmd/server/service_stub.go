//go:build !windows

package main

// Windows service support is a no-op elsewhere.

func isWindowsService() bool { return false }

func runService(configPath string) error { return nil }

func handleServiceCommand(args []string, configPath string) bool { return false }
