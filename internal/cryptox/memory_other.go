//go:build !linux && !darwin

package cryptox

func lockMemory([]byte) error   { return nil }
func unlockMemory([]byte) error { return nil }
