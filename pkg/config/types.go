// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

// OrreryConfig is the on-disk configuration, read from
// ~/.orrery/orrery.yaml by default.
type OrreryConfig struct {
	// Server: listen addresses and the outer HTTP surface
	Server ServerConfig `yaml:"server"`

	// Sim: tick rate and ship tuning
	Sim SimConfig `yaml:"sim"`

	// Snapshots: where the snapshot store lives
	Snapshots SnapshotConfig `yaml:"snapshots"`

	// Logging: level and optional file output
	Logging LoggingConfig `yaml:"logging"`

	// Bodies: the star system to simulate. Empty means the built-in
	// default system.
	Bodies []BodyConfig `yaml:"bodies"`
}

type ServerConfig struct {
	HTTPAddr  string `yaml:"http_addr" validate:"required"` // e.g. :8000
	HTTPSAddr string `yaml:"https_addr"`                    // empty disables TLS
	TCPAddr   string `yaml:"tcp_addr"`                      // empty disables the TCP listener
	CertFile  string `yaml:"cert_file"`
	KeyFile   string `yaml:"key_file"`

	// AdminToken guards the snapshot endpoints. Empty leaves them open,
	// which is only sensible on a trusted network.
	AdminToken string `yaml:"admin_token"`

	// StaticDir serves the web client under /ui when set.
	StaticDir string `yaml:"static_dir"`

	// OTLPEndpoint enables tracing export when set, e.g. localhost:4317.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

type SimConfig struct {
	TickRate   float64 `yaml:"tick_rate" validate:"gte=0"` // Hz, 0 means the engine default
	MaxAccel   float64 `yaml:"max_accel" validate:"gte=0"` // m/s^2 thrust limit for ships
	ShipRadius float64 `yaml:"ship_radius" validate:"gte=0"`
}

type SnapshotConfig struct {
	Path string `yaml:"path"` // empty disables persistence
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File  string `yaml:"file"`
}

// BodyConfig seeds one body. Either give Position/Velocity directly, or
// set Orbit to place the body in a circular orbit of that radius around
// the system's most massive body.
type BodyConfig struct {
	Name     string     `yaml:"name" validate:"required"`
	Class    string     `yaml:"class" validate:"required,oneof=star planet"`
	Mass     float64    `yaml:"mass" validate:"gte=0"`
	Radius   float64    `yaml:"radius" validate:"gte=0"`
	Position [3]float64 `yaml:"position"`
	Velocity [3]float64 `yaml:"velocity"`
	Orbit    float64    `yaml:"orbit" validate:"gte=0"`
}

// DefaultConfig returns the config written on first run.
func DefaultConfig() OrreryConfig {
	return OrreryConfig{
		Server: ServerConfig{
			HTTPAddr: ":8000",
			TCPAddr:  ":8001",
		},
		Sim: SimConfig{
			TickRate: 15,
		},
		Snapshots: SnapshotConfig{},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
