// Package config provides configuration management for muriprog. It
// reads settings from muriprog.yaml using multiple search paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration settings for muriprog.
type Config struct {
	// Device identification.
	VendorID  uint16
	ProductID uint16

	// Protocol timing.
	SyncWaitSeconds int
	SendRetryBudget int
	GetRetryBudget  int

	// Write-mode defaults.
	WriteFlash  bool
	WriteEEPROM bool

	// Session polling.
	PollIntervalSeconds int

	path string
}

func defaults(v *viper.Viper) {
	v.SetDefault("vid", 0x04D8)
	v.SetDefault("pid", 0x003C)
	v.SetDefault("sync_wait_seconds", 40)
	v.SetDefault("send_retry_budget", 5)
	v.SetDefault("get_retry_budget", 3)
	v.SetDefault("write_flash", true)
	v.SetDefault("write_eeprom", false)
	v.SetDefault("poll_interval_seconds", 1)
}

// Load reads configuration from muriprog.yaml in the following search
// order:
//  1. Current directory (./muriprog.yaml)
//  2. $MURIPROG directory ($MURIPROG/muriprog.yaml)
//  3. Home directory (~/muriprog.yaml)
//
// A missing file at every search path is not an error: Load returns the
// compiled-in defaults, matching the device's factory bootloader
// configuration.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("muriprog")
	v.SetConfigType("yaml")
	defaults(v)

	v.AddConfigPath(".")
	if dir := os.Getenv("MURIPROG"); dir != "" {
		v.AddConfigPath(dir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}

	var loadedFrom string
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: reading muriprog.yaml: %w", err)
		}
	} else {
		loadedFrom = v.ConfigFileUsed()
	}

	return &Config{
		VendorID:            uint16(v.GetUint32("vid")),
		ProductID:           uint16(v.GetUint32("pid")),
		SyncWaitSeconds:     v.GetInt("sync_wait_seconds"),
		SendRetryBudget:     v.GetInt("send_retry_budget"),
		GetRetryBudget:      v.GetInt("get_retry_budget"),
		WriteFlash:          v.GetBool("write_flash"),
		WriteEEPROM:         v.GetBool("write_eeprom"),
		PollIntervalSeconds: v.GetInt("poll_interval_seconds"),
		path:                loadedFrom,
	}, nil
}

// Path returns the config file that was loaded, or "" if none was found
// and defaults are in effect.
func (c *Config) Path() string { return c.path }

// SyncWait is SyncWaitSeconds as a time.Duration, for direct use with
// hidproto.Client.WithBudgets.
func (c *Config) SyncWait() time.Duration {
	return time.Duration(c.SyncWaitSeconds) * time.Second
}

// PollInterval is PollIntervalSeconds as a time.Duration, for direct use
// with session.Controller.SetPollInterval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ConfigPath reports the first muriprog.yaml found on the standard
// search path without loading it, mirroring Load's precedence.
func ConfigPath() (string, error) {
	paths := []string{filepath.Join(".", "muriprog.yaml")}
	if dir := os.Getenv("MURIPROG"); dir != "" {
		paths = append(paths, filepath.Join(dir, "muriprog.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "muriprog.yaml"))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("config: no muriprog.yaml found in current directory, $MURIPROG, or home directory")
}
