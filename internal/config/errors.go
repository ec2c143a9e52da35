package config

import (
	"fmt"
	"os"
)

func errInvalidIP(ip string) error {
	return fmt.Errorf("config: invalid external-ip %q", ip)
}

func errInvalidNetworkID(n int) error {
	return fmt.Errorf("config: network-id %d out of range [0, 65535]", n)
}

func errNonPositive(field string) error {
	return fmt.Errorf("config: %s must be positive", field)
}

func homeDir() (string, error) {
	if h := os.Getenv("HOME"); h != "" {
		return h, nil
	}
	return os.UserHomeDir()
}
