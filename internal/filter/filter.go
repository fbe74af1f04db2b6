// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package filter implements the PSD polygon selector (C7): a
// datastream node that subscribes to the events topic, classifies
// every event by PSD = (qlong-qshort)/qlong against a user-supplied
// polygon in the (energy, PSD) plane, and republishes only the events
// that fall inside it.
package filter

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/abcd-daq/abcd/internal/dsp"
	"github.com/abcd-daq/abcd/internal/event"
	"github.com/abcd-daq/abcd/internal/transport"
)

// Msgr mirrors acqctl.Msgr and analyzer.Msgr: the same small
// Infof/Warnf/Errorf logger threaded through every reduced state
// machine in this repository.
type Msgr struct {
	*log.Logger
}

func (m *Msgr) Infof(format string, args ...interface{})  { m.Printf("I: "+format, args...) }
func (m *Msgr) Warnf(format string, args ...interface{})  { m.Printf("W: "+format, args...) }
func (m *Msgr) Errorf(format string, args ...interface{}) { m.Printf("E: "+format, args...) }

// DataSource abstracts the SUB-style input socket.
type DataSource interface {
	TryRecv() ([]byte, bool, error)
}

// TopicSink abstracts a PUB-style topic-framed publisher.
type TopicSink interface {
	SendTopic(prefix string, msgID *uint64, payload []byte) error
}

// jsonPoint mirrors the polygon file's flat {"x":...,"y":...} objects,
// matching pufi's JSON array-of-objects convention.
type jsonPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LoadPolygon parses a JSON array of {"x","y"} points and returns it
// closed (first point repeated at the end) and its bounding box, ready
// for dsp.InPolygon.
func LoadPolygon(raw []byte) ([]dsp.Point, dsp.BoundingBox, error) {
	var pts []jsonPoint
	if err := json.Unmarshal(raw, &pts); err != nil {
		return nil, dsp.BoundingBox{}, fmt.Errorf("filter: invalid polygon JSON: %w", err)
	}
	if len(pts) < 3 {
		return nil, dsp.BoundingBox{}, fmt.Errorf("filter: polygon needs at least 3 points, got %d", len(pts))
	}

	polygon := make([]dsp.Point, len(pts))
	for i, p := range pts {
		polygon[i] = dsp.Point{X: p.X, Y: p.Y}
	}
	polygon = dsp.ClosePolygon(polygon)
	return polygon, dsp.ComputeBoundingBox(polygon), nil
}

// Filter is the PSD polygon selector node: load once, then classify
// every event of every received buffer.
type Filter struct {
	Msg *Msgr

	Data     DataSource
	Events   TopicSink
	Period   time.Duration

	Polygon     []dsp.Point
	BoundingBox dsp.BoundingBox

	msgID uint64

	// counters for the informational throughput line pufi prints.
	TotalEvents, TotalSelected uint64
}

// New returns a Filter ready to classify against polygon (already
// closed, see LoadPolygon).
func New(polygon []dsp.Point, bb dsp.BoundingBox) *Filter {
	return &Filter{
		Msg:         &Msgr{log.New(os.Stdout, "filter: ", 0)},
		Polygon:     polygon,
		BoundingBox: bb,
		Period:      100 * time.Millisecond,
	}
}

// psd returns the (energy, PSD) point for one event, matching pufi's
// PSD = (qlong - qshort) / qlong convention.
func psd(ev event.Event) dsp.Point {
	energy := float64(ev.Qlong)
	if energy == 0 {
		return dsp.Point{X: 0, Y: 0}
	}
	return dsp.Point{X: energy, Y: (energy - float64(ev.Qshort)) / energy}
}

// Select returns the subset of evs that fall inside the filter's
// polygon.
func (f *Filter) Select(evs []event.Event) []event.Event {
	selected := evs[:0:0]
	for _, ev := range evs {
		if dsp.InPolygon(psd(ev), f.Polygon, f.BoundingBox) {
			selected = append(selected, ev)
		}
	}
	return selected
}

// Poll drains every events message currently available on Data,
// classifies it, and republishes the selected subset, returning the
// number of input messages handled.
func (f *Filter) Poll() (int, error) {
	n := 0
	for {
		msg, ok, err := f.Data.TryRecv()
		if err != nil {
			return n, err
		}
		if !ok {
			break
		}
		topic, payload, err := transport.SplitFrame(msg)
		if err != nil {
			f.Msg.Warnf("malformed frame: %v", err)
			continue
		}
		if topic.Prefix != "data_abcd_events" {
			continue
		}
		if err := f.handleMessage(payload); err != nil {
			f.Msg.Warnf("handle message: %v", err)
		}
		n++
	}
	return n, nil
}

func (f *Filter) handleMessage(payload []byte) error {
	evs, err := event.DecodeFile(payload)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	selected := f.Select(evs)
	f.TotalEvents += uint64(len(evs))
	f.TotalSelected += uint64(len(selected))

	if f.Events == nil || len(selected) == 0 {
		return nil
	}
	id := f.msgID
	if err := f.Events.SendTopic("data_abcd_events", &id, event.EncodeFile(selected)); err != nil {
		return err
	}
	f.msgID++
	return nil
}
