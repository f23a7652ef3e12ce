package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aquasecurity/table"

	"github.com/coreman2200/ledmatrix/internal/control"
	"github.com/coreman2200/ledmatrix/internal/led"
	"github.com/coreman2200/ledmatrix/internal/pipeline"
	"github.com/coreman2200/ledmatrix/internal/render"
)

type summary struct {
	Driver   string
	Elapsed  time.Duration
	Engine   render.Stats
	Sync     led.Stats
	Bus      control.Stats
	Pipeline *pipeline.Pipeline
}

func (s summary) fps() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Engine.Frames) / s.Elapsed.Seconds()
}

func printSummary(w io.Writer, s summary) {
	tbl := table.New(w)
	tbl.SetHeaders("Metric", "Value")
	tbl.AddRow("driver", s.Driver)
	tbl.AddRow("device id", fmt.Sprintf("0x%04x", s.Sync.ID))
	tbl.AddRow("pipeline", fmt.Sprintf("%s (%d blocks)", s.Pipeline.Fingerprint, len(s.Pipeline.Blocks)))
	tbl.AddRow("frames", strconv.FormatUint(s.Engine.Frames, 10))
	tbl.AddRow("elapsed", s.Elapsed.Round(time.Millisecond).String())
	tbl.AddRow("fps", strconv.FormatFloat(s.fps(), 'f', 1, 64))
	tbl.AddRow("flush wait", s.Sync.Wait.Round(time.Microsecond).String())
	tbl.AddRow("fifo polls", strconv.FormatUint(s.Sync.Polls, 10))
	tbl.AddRow("events", strconv.FormatUint(s.Engine.Events, 10))
	tbl.AddRow("reconfigs", strconv.FormatUint(s.Engine.Reconfigs, 10))
	tbl.AddRow("rejected", strconv.FormatUint(s.Engine.Rejected, 10))
	tbl.AddRow("dropped", strconv.FormatUint(s.Bus.Dropped, 10))
	tbl.AddRow("slot misses", strconv.FormatUint(s.Engine.Misses, 10))
	tbl.Render()
}
