package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/skylink-labs/acarsrouter/pkg/message"
)

// maxPending bounds the bytes buffered for one sender.
const maxPending = MaxLineSize

// fragment is the unfinished tail of one sender's datagrams.
type fragment struct {
	data    []byte
	updated time.Time
}

// assembled is the outcome of feeding one datagram.
type assembled struct {
	messages []message.Message

	// expired counts partial values abandoned unfinished.
	expired int

	// err is set when the datagram itself is not valid JSON.
	err error
}

// reassembler joins JSON values that a sender split across consecutive
// datagrams. A datagram may also carry several complete values.
type reassembler struct {
	window  time.Duration
	now     func() time.Time
	pending map[string]*fragment
}

func newReassembler(window time.Duration) *reassembler {
	return &reassembler{
		window:  window,
		now:     time.Now,
		pending: make(map[string]*fragment),
	}
}

// feed adds a datagram from sender and returns every value it completes.
func (r *reassembler) feed(sender string, datagram []byte) assembled {
	now := r.now()
	var res assembled
	res.expired = r.expire(now)

	if frag, ok := r.pending[sender]; ok {
		delete(r.pending, sender)
		joined := append(frag.data, datagram...)
		msgs, rest, err := decodeValues(joined)
		if err == nil {
			res.messages = msgs
			r.keep(sender, rest, now, &res)
			return res
		}
		// the sender moved on; the datagram is judged on its own
		res.expired++
	}

	// a datagram that does not decode is dropped whole
	msgs, rest, err := decodeValues(datagram)
	if err != nil {
		res.err = err
		return res
	}
	res.messages = msgs
	r.keep(sender, rest, now, &res)
	return res
}

// expire drops fragments older than the window.
func (r *reassembler) expire(now time.Time) int {
	n := 0
	for sender, frag := range r.pending {
		if now.Sub(frag.updated) > r.window {
			delete(r.pending, sender)
			n++
		}
	}
	return n
}

func (r *reassembler) keep(sender string, rest []byte, now time.Time, res *assembled) {
	if len(rest) == 0 {
		return
	}
	if len(rest) > maxPending {
		res.expired++
		return
	}
	r.pending[sender] = &fragment{data: append([]byte(nil), rest...), updated: now}
}

// decodeValues decodes consecutive JSON values from data. An unfinished
// final value is returned as rest.
func decodeValues(data []byte) (msgs []message.Message, rest []byte, err error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	for {
		offset := dec.InputOffset()
		var v any
		decErr := dec.Decode(&v)
		switch {
		case decErr == nil:
			msgs = append(msgs, message.New(v))
		case errors.Is(decErr, io.EOF):
			return msgs, nil, nil
		case errors.Is(decErr, io.ErrUnexpectedEOF):
			return msgs, data[offset:], nil
		default:
			return msgs, nil, decErr
		}
	}
}
