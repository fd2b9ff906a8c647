package main

// Shared CLI flags (used across multiple command files)
var (
	cfgFile   string
	vaultDir  string
	debugFlag bool
)
