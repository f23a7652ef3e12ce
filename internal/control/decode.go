package control

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coreman2200/ledmatrix/internal/store"
)

var (
	ErrUnknownOp = errors.New("unknown op")
	ErrBadBody   = errors.New("bad body")
)

// slotBody is the wire shape of every set_* op except set_config and
// set_white_led: {"index": n, "value": ...}.
type slotBody[T any] struct {
	Index *int `json:"index"`
	Value *T   `json:"value"`
}

type patternBody struct {
	Name string `json:"name"`
}

// Decode turns a transport op and its JSON body into an Event. set_config
// takes the whole pipeline document as its body; it is only checked for
// well-formed JSON here and fully validated when applied.
func Decode(op string, body []byte) (Event, error) {
	switch Kind(op) {
	case KindConfig:
		body = bytes.TrimSpace(body)
		if len(body) == 0 || !json.Valid(body) {
			return Event{}, fmt.Errorf("%w: set_config: not a JSON document", ErrBadBody)
		}
		return SetConfig(append([]byte(nil), body...)), nil
	case KindScalar:
		i, v, err := decodeSlot[float64](op, body)
		return SetScalar(i, v), err
	case KindPosition:
		i, v, err := decodeSlot[store.Position](op, body)
		return SetPosition(i, v), err
	case KindColor:
		i, v, err := decodeSlot[store.Color](op, body)
		return SetColor(i, v), err
	case KindRealColor:
		i, v, err := decodeSlot[store.RealColor](op, body)
		return SetRealColor(i, v), err
	case KindData:
		i, v, err := decodeSlot[store.Data](op, body)
		return SetData(i, v), err
	case KindWhite:
		var c store.RealColor
		if err := strict(body, &c); err != nil {
			return Event{}, fmt.Errorf("%w: %s: %v", ErrBadBody, op, err)
		}
		return SetWhite(c), nil
	case KindPattern:
		var p patternBody
		if err := strict(body, &p); err != nil {
			return Event{}, fmt.Errorf("%w: %s: %v", ErrBadBody, op, err)
		}
		if p.Name == "" {
			return Event{}, fmt.Errorf("%w: %s: missing name", ErrBadBody, op)
		}
		return RunPattern(p.Name), nil
	}
	return Event{}, fmt.Errorf("%w: %q", ErrUnknownOp, op)
}

func decodeSlot[T any](op string, body []byte) (int, T, error) {
	var zero T
	var b slotBody[T]
	if err := strict(body, &b); err != nil {
		return 0, zero, fmt.Errorf("%w: %s: %v", ErrBadBody, op, err)
	}
	switch {
	case b.Index == nil:
		return 0, zero, fmt.Errorf("%w: %s: missing index", ErrBadBody, op)
	case *b.Index < 0:
		return 0, zero, fmt.Errorf("%w: %s: negative index %d", ErrBadBody, op, *b.Index)
	case b.Value == nil:
		return 0, zero, fmt.Errorf("%w: %s: missing value", ErrBadBody, op)
	}
	return *b.Index, *b.Value, nil
}

func strict(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after body")
	}
	return nil
}
