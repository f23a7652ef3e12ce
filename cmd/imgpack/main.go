// Command imgpack turns an image into the packed RGB buffer image_lookup
// samples, and optionally uploads it to a running ledmatrix.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aquasecurity/table"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ledmatrix/internal/store"
)

func main() {
	var (
		in         = flag.String("in", "", "input image (png, jpeg, gif, bmp, webp)")
		maxW       = flag.Int("max-w", 118, "scale down to at most this width")
		maxH       = flag.Int("max-h", 0, "scale down to at most this height")
		brightness = flag.Float64("brightness", 0.1, "channel scale 0..1")
		post       = flag.String("post", "", "ledmatrix base URL, e.g. http://beaglebone:8080")
		dataSlot   = flag.Int("data", 0, "data slot for the image")
		wSlot      = flag.Int("w-slot", 4, "scalar slot for the width")
		hSlot      = flag.Int("h-slot", 5, "scalar slot for the height")
		modeSlot   = flag.Int("mode-slot", 13, "scalar slot for the lookup mode")
		mode       = flag.Int("mode", 1, "lookup mode: 0 single, 1 tile")
		info       = flag.Bool("info", false, "print an info table and a sketch")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}
	f, err := os.Open(*in)
	if err != nil {
		log.Fatal().Err(err).Msg("open image")
	}
	img, format, err := Decode(f)
	f.Close()
	if err != nil {
		log.Fatal().Err(err).Str("path", *in).Msg("decode")
	}
	p := Pack(Fit(img, *maxW, *maxH), *brightness)

	if *info {
		tbl := table.New(os.Stderr)
		tbl.SetHeaders("Field", "Value")
		tbl.AddRow("format", format)
		tbl.AddRow("source", fmt.Sprintf("%dx%d", img.Bounds().Dx(), img.Bounds().Dy()))
		tbl.AddRow("packed", fmt.Sprintf("%dx%d", p.Width, p.Height))
		tbl.AddRow("bytes", strconv.Itoa(len(p.RGB)))
		tbl.Render()
		fmt.Fprint(os.Stderr, p.Sketch())
	}

	if *post == "" {
		fmt.Println(base64.StdEncoding.EncodeToString(p.RGB))
		return
	}
	c := &http.Client{Timeout: 10 * time.Second}
	u := client{base: *post, http: c}
	steps := []struct {
		op   string
		body any
	}{
		{"set_scalar", slot{*wSlot, float64(p.Width)}},
		{"set_scalar", slot{*hSlot, float64(p.Height)}},
		{"set_scalar", slot{*modeSlot, float64(*mode)}},
		{"set_data", slot{*dataSlot, store.Data(p.RGB)}},
	}
	for _, s := range steps {
		if err := u.send(s.op, s.body); err != nil {
			log.Fatal().Err(err).Str("op", s.op).Msg("upload")
		}
	}
	log.Info().Int("w", p.Width).Int("h", p.Height).Str("to", *post).Msg("image uploaded")
}

type slot struct {
	Index int `json:"index"`
	Value any `json:"value"`
}

type client struct {
	base string
	http *http.Client
}

func (c client) send(op string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.base+"/"+op, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s: %s %s", op, resp.Status, e.Error)
	}
	return nil
}
