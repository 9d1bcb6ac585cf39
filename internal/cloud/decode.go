package cloud

import (
	"encoding/json"
	"fmt"
)

// Result is the envelope cloud functions encode into resp_data.
type Result struct {
	Code int             `json:"code,omitempty"`
	Msg  json.RawMessage `json:"msg,omitempty"`
	Data json.RawMessage `json:"data"`
}

// Decode checks resp for platform and function errors and unmarshals the
// function's data into dest. dest may be nil when only the check matters.
// A result without data leaves dest unchanged.
func Decode(resp InvokeResponse, dest any) error {
	if resp.ErrCode != 0 {
		return &APIError{Code: resp.ErrCode, Message: resp.ErrMsg}
	}

	var res Result
	if err := json.Unmarshal([]byte(resp.RespData), &res); err != nil {
		return fmt.Errorf("decoding resp_data: %w", err)
	}
	if res.Code >= 400 {
		return &APIError{Code: res.Code, Message: message(res.Msg)}
	}
	// A function may succeed without returning data; dest is left as is.
	if dest == nil || len(res.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Data, dest); err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}
	return nil
}

// message renders a function's msg field, which may be a string or any JSON
// value.
func message(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Buffer is binary data in the JSON form of a Node.js Buffer:
// {"type":"Buffer","data":[137,80,78,71]}.
type Buffer []byte

type nodeBuffer struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

func (b Buffer) MarshalJSON() ([]byte, error) {
	data := make([]int, len(b))
	for i, v := range b {
		data[i] = int(v)
	}
	return json.Marshal(nodeBuffer{Type: "Buffer", Data: data})
}

func (b *Buffer) UnmarshalJSON(p []byte) error {
	var nb nodeBuffer
	if err := json.Unmarshal(p, &nb); err != nil {
		return err
	}
	if nb.Type != "" && nb.Type != "Buffer" {
		return fmt.Errorf("unexpected buffer type %q", nb.Type)
	}
	out := make([]byte, len(nb.Data))
	for i, v := range nb.Data {
		if v < 0 || v > 255 {
			return fmt.Errorf("buffer byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}
