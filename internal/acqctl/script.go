// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acqctl

import (
	"bytes"
	"encoding/json"
	"os/exec"

	"github.com/abcd-daq/abcd/internal/config"
)

// ScriptRunner runs the pre/post hook configured for a (state, phase)
// pair. Missing scripts are not an error (the caller simply does not
// invoke Run); a failing script is logged and the state machine
// continues regardless.
type ScriptRunner interface {
	Run(ctx Context, script config.Script, stateCtx interface{}) error
}

// ShellScriptRunner shells out to /bin/sh -c, passing the JSON-encoded
// state context on stdin, keeping any embedded scripting engine itself
// out of scope per the spec's Non-goals.
type ShellScriptRunner struct{}

func (ShellScriptRunner) Run(ctx Context, script config.Script, stateCtx interface{}) error {
	src := script.Source
	if src == "" && script.File != "" {
		src = "exec " + script.File
	}
	if src == "" {
		return nil
	}

	cmd := exec.CommandContext(ctx.Ctx, "/bin/sh", "-c", src)

	payload, err := json.Marshal(stateCtx)
	if err == nil {
		cmd.Stdin = bytes.NewReader(payload)
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		ctx.Msg.Warnf("script %s/%s failed: %v: %s", script.State, script.When, err, out)
		return err
	}
	return nil
}

// runScript looks up and runs the hook for (state, when), swallowing
// a missing-entry lookup silently and a runtime failure after logging.
func runScript(ctx Context, runner ScriptRunner, scripts map[config.ScriptKey]config.Script, state State, when string, stateCtx interface{}) {
	if runner == nil {
		return
	}
	key := config.ScriptKey{State: state.String(), When: when}
	script, ok := scripts[key]
	if !ok {
		return
	}
	_ = runner.Run(ctx, script, stateCtx)
}
