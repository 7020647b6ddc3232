// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
)

const barWidth = 30

// progressRenderer prints pull events. On a terminal it redraws one line
// per status with a bar; otherwise it prints one plain line per event so
// logs and pipes stay readable.
type progressRenderer struct {
	out        io.Writer
	tty        bool
	raw        bool
	lastStatus string
	open       bool
}

func newProgressRenderer(out io.Writer, raw bool) *progressRenderer {
	return &progressRenderer{out: out, tty: isTerminal(out), raw: raw}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (r *progressRenderer) render(ev datatypes.StreamEvent) error {
	if r.raw {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(r.out, string(data))
		return err
	}

	switch ev.Type {
	case datatypes.EventProgress:
		if ev.Progress == nil {
			return nil
		}
		return r.progress(*ev.Progress)
	case datatypes.EventEnd:
		return r.line("success")
	case datatypes.EventError:
		return r.line("error: " + ev.Error)
	}
	return nil
}

func (r *progressRenderer) progress(p datatypes.ProgressEvent) error {
	if p.Message != "" {
		return r.line(p.Message)
	}
	if !r.tty {
		if p.Total > 0 {
			return r.line(fmt.Sprintf("%s %.1f%%", p.Status, p.Percent))
		}
		if p.Status == r.lastStatus {
			return nil
		}
		r.lastStatus = p.Status
		return r.line(p.Status)
	}

	if p.Status != r.lastStatus && r.open {
		if _, err := fmt.Fprintln(r.out); err != nil {
			return err
		}
	}
	r.lastStatus = p.Status
	r.open = true
	if p.Total <= 0 {
		_, err := fmt.Fprintf(r.out, "\r%s", p.Status)
		return err
	}
	_, err := fmt.Fprintf(r.out, "\r%s %s %5.1f%%", p.Status, bar(p.Percent), p.Percent)
	return err
}

// line ends any bar in progress and prints s on its own line.
func (r *progressRenderer) line(s string) error {
	if r.open {
		if _, err := fmt.Fprintln(r.out); err != nil {
			return err
		}
		r.open = false
	}
	_, err := fmt.Fprintln(r.out, s)
	return err
}

func bar(percent float64) string {
	filled := int(percent / 100 * barWidth)
	if filled < 0 {
		filled = 0
	}
	if filled > barWidth {
		filled = barWidth
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled) + "]"
}
