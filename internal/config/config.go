// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config describes the JSON configuration document consumed
// by the acquisition controller and the analyzer: a global block, the
// cards array, the channels array, and the optional scripts array of
// pre/post state hooks.
package config

import (
	"encoding/json"
	"fmt"
)

// Config is the top-level JSON configuration document (§3).
// Unknown keys are ignored by encoding/json's default decoding.
type Config struct {
	Global   Global    `json:"global"`
	Cards    []Card    `json:"cards"`
	Channels []Channel `json:"channels"`
	Scripts  []Script  `json:"scripts,omitempty"`
}

// Global holds settings shared by every card and channel.
type Global struct {
	BasePeriodMS          int    `json:"base_period_ms,omitempty"`
	PublishTimeoutMS      int    `json:"publish_timeout_ms,omitempty"`
	WaveformsBufferMax    int    `json:"waveforms_buffer_max,omitempty"`
	StatusPeriodS         int    `json:"status_period_s,omitempty"`
	ForwardWaveforms      bool   `json:"forward_waveforms,omitempty"`
	DiscardMessages       bool   `json:"discard_messages,omitempty"`
	ChannelsPerBoard      int    `json:"channels_per_board,omitempty"`
	AlertEmail            string `json:"alert_email,omitempty"`
	AcquisitionErrorLimit int    `json:"acquisition_error_limit,omitempty"`
}

// Card describes one digitizer board.
type Card struct {
	Serial   string          `json:"serial"`
	UserID   int             `json:"user_id"`
	Enabled  bool            `json:"enable"`
	Model    string          `json:"model"` // one of the Digitizer variant names
	Settings json.RawMessage `json:"settings,omitempty"`
}

// Channel describes one analysis channel's plugin pair and
// per-channel configuration.
type Channel struct {
	Enabled                 bool            `json:"enable"`
	TimestampLibrary        string          `json:"timestamp_library,omitempty"`
	EnergyLibrary           string          `json:"energy_library,omitempty"`
	UserConfig              json.RawMessage `json:"user_config,omitempty"`
	TriggeringEnabledRaw    json.RawMessage `json:"channels_triggering_enabled,omitempty"`
}

// TriggerMask resolves the open question of §9: this configuration
// treats channels_triggering_enabled as per-channel, not a scalar
// bitfield. A scalar value where an array is expected is a
// configuration error, not silently broadcast to every channel.
func (c Channel) TriggerMask() ([]bool, error) {
	if len(c.TriggeringEnabledRaw) == 0 {
		return nil, nil
	}
	var mask []bool
	if err := json.Unmarshal(c.TriggeringEnabledRaw, &mask); err != nil {
		return nil, fmt.Errorf("config: %w: channels_triggering_enabled must be an array of booleans, not a scalar bitfield: %v", ErrTriggerMaskShape, err)
	}
	return mask, nil
}

// ErrTriggerMaskShape is returned by Channel.TriggerMask when the JSON
// document supplies a scalar where the per-channel array is expected.
var ErrTriggerMaskShape = fmt.Errorf("config: channels_triggering_enabled must be a per-channel array")

// Script is one {state, when, source|file} hook.
type Script struct {
	State  string `json:"state"`
	When   string `json:"when"` // "pre" or "post"
	Source string `json:"source,omitempty"`
	File   string `json:"file,omitempty"`
}

// Parse decodes a JSON configuration document.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: could not parse configuration: %w", err)
	}
	return cfg, nil
}

// ScriptKey identifies a (state, phase) pair in the scripts map built
// by configure_digitizer.
type ScriptKey struct {
	State string
	When  string
}

// ScriptMap indexes Scripts by (state, when) for O(1) lookup during
// the state machine's pre/post hook dispatch.
func (c Config) ScriptMap() map[ScriptKey]Script {
	m := make(map[ScriptKey]Script, len(c.Scripts))
	for _, s := range c.Scripts {
		m[ScriptKey{State: s.State, When: s.When}] = s
	}
	return m
}
