// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conddb

import "encoding/json"

// CardPreset is one digitizer board's archived configuration row,
// mirroring internal/config.Card.
type CardPreset struct {
	Serial   string
	UserID   int
	Enabled  bool
	Model    string
	Settings json.RawMessage
}

// ChannelPreset is one analysis channel's archived plugin
// configuration row, mirroring internal/config.Channel.
type ChannelPreset struct {
	Channel          uint8
	Enabled          bool
	TimestampLibrary string
	EnergyLibrary    string
	UserConfig       json.RawMessage
}
