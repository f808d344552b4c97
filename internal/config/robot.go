// Package config provides environment helpers for go-luckycat commands.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// Default robot endpoint configuration.
const (
	DefaultRobotHost   = "127.0.0.1"
	DefaultRobotPort   = 3000
	DefaultControlPath = "/control"
)

// RobotHost returns the robot host from the ROBOT_HOST env var.
// ROBOT_IP is accepted as an alias. Falls back to defaultHost.
func RobotHost(defaultHost string) string {
	if host := os.Getenv("ROBOT_HOST"); host != "" {
		return host
	}
	if ip := os.Getenv("ROBOT_IP"); ip != "" {
		return ip
	}
	return defaultHost
}

// ControlURL returns the websocket URL of the robot control channel.
func ControlURL(host string, port int) string {
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, strconv.Itoa(port)), DefaultControlPath)
}

// RobotAPIURL returns the robot HTTP API URL.
func RobotAPIURL(host string, port int) string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(port)))
}

// String returns the env var value or def when unset.
func String(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// Int returns the env var parsed as an int, or def when unset or invalid.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Duration returns the env var parsed with time.ParseDuration, or def.
func Duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Bool returns the env var parsed with strconv.ParseBool, or def.
func Bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
