package ipc

import (
	"bufio"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	frameKeyID   = "id"
	frameKeyBody = "body"
)

// WriteFrame encodes one envelope as a varint-delimited protobuf Struct.
func WriteFrame(w io.Writer, env Envelope) error {
	body, err := structpb.NewStruct(plainMap(env.Body))
	if err != nil {
		return fmt.Errorf("encode message body: %w", err)
	}

	frame := &structpb.Struct{Fields: map[string]*structpb.Value{
		frameKeyID:   structpb.NewStringValue(env.ID),
		frameKeyBody: structpb.NewStructValue(body),
	}}
	if _, err := protodelim.MarshalTo(w, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame decodes the next envelope. A clean end of stream returns io.EOF.
// Numbers decode as float64.
func ReadFrame(r *bufio.Reader) (Envelope, error) {
	var frame structpb.Struct
	if err := protodelim.UnmarshalFrom(r, &frame); err != nil {
		if err == io.EOF {
			return Envelope{}, io.EOF
		}
		return Envelope{}, fmt.Errorf("read frame: %w", err)
	}

	env := Envelope{
		ID:   frame.GetFields()[frameKeyID].GetStringValue(),
		Body: Message{},
	}
	if body := frame.GetFields()[frameKeyBody].GetStructValue(); body != nil {
		env.Body = Message(body.AsMap())
	}
	return env, nil
}

// plainMap rewrites named and typed containers into the shapes structpb accepts.
func plainMap(m Message) map[string]any {
	out := make(map[string]any, len(m))
	for key, value := range m {
		out[key] = plainValue(value)
	}
	return out
}

func plainValue(value any) any {
	switch v := value.(type) {
	case Message:
		return plainMap(v)
	case map[string]any:
		return plainMap(Message(v))
	case []Message:
		out := make([]any, len(v))
		for i := range v {
			out[i] = plainMap(v[i])
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = plainMap(Message(v[i]))
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = plainValue(v[i])
		}
		return out
	default:
		return value
	}
}
