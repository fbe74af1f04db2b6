// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command abcd-ctl is an interactive operator console: it sends
// command envelopes to a controller's PULL socket and prints status
// envelopes received from its PUB socket, the human-facing front end
// for the command/status wire contract the rest of the pipeline only
// speaks as JSON.
package main // import "github.com/abcd-daq/abcd/cmd/abcd-ctl"

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/abcd-daq/abcd"
	"github.com/abcd-daq/abcd/internal/transport"
)

var knownCommands = []string{
	transport.CmdStart,
	transport.CmdStop,
	transport.CmdOff,
	transport.CmdQuit,
	transport.CmdReconfigure,
	transport.CmdSpecific,
	transport.CmdSimulateError,
}

func main() {
	log.Fatal(xmain(os.Args[1:]))
}

func xmain(args []string) error {
	var (
		fset = flag.NewFlagSet("abcd-ctl", flag.ContinueOnError)

		pushAddr = fset.String("C", "tcp://127.0.0.1:16180", "commands PUSH socket address to connect to")
		subAddr  = fset.String("S", "tcp://127.0.0.1:16183", "status SUB socket address to connect to")
	)

	log.SetPrefix("abcd-ctl: ")
	log.SetFlags(0)

	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("could not parse input arguments: %w", err)
	}

	push, err := transport.NewPush(*pushAddr)
	if err != nil {
		return fmt.Errorf("could not connect commands socket: %w", err)
	}
	defer push.Close()

	sub, err := transport.NewSub(*subAddr, []string{"status_"}, true)
	if err != nil {
		return fmt.Errorf("could not connect status socket: %w", err)
	}
	defer sub.Close()

	if version, sum := abcd.Version(); version != "" {
		fmt.Printf("abcd-ctl: version=%s sum=%s\n", version, sum)
	}

	stopStatus := make(chan struct{})
	go watchStatus(sub, stopStatus)
	defer close(stopStatus)

	return repl(push)
}

// watchStatus drains status frames and prints them as they arrive,
// polling rather than blocking so the REPL itself stays responsive.
func watchStatus(sub *transport.SubSocket, stop <-chan struct{}) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for {
				msg, ok, err := sub.TryRecv()
				if err != nil {
					fmt.Printf("status: error: %v\n", err)
					break
				}
				if !ok {
					break
				}
				topic, payload, err := transport.SplitFrame(msg)
				if err != nil {
					continue
				}
				fmt.Printf("[%s] %s\n", topic.Prefix, string(payload))
			}
		}
	}
}

func repl(push *transport.PushSocket) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	line.SetCompleter(func(prefix string) []string {
		var out []string
		for _, cmd := range knownCommands {
			if strings.HasPrefix(cmd, prefix) {
				out = append(out, cmd)
			}
		}
		return out
	})

	msgID := 0
	for {
		input, err := line.Prompt("abcd> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not read input: %w", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if input == "exit" || input == "quit" {
			return nil
		}

		cmd := transport.Command{MsgID: msgID, Command: input}
		buf, err := json.Marshal(cmd)
		if err != nil {
			fmt.Printf("error: could not encode command: %v\n", err)
			continue
		}
		if err := push.Send(buf); err != nil {
			fmt.Printf("error: could not send command: %v\n", err)
			continue
		}
		msgID++
	}
}
