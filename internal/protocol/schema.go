package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var ErrUnknownType = errors.New("unknown message type")

const roomIDSchema = `{"type":"string","pattern":"^(world|land_-?[0-9]+_-?[0-9]+)$"}`

const roomOnlySchema = `{
  "type":"object",
  "required":["room_id"],
  "properties":{"room_id":` + roomIDSchema + `}
}`

const signalSchema = `{
  "type":"object",
  "required":["room_id","target_user_id","payload"],
  "properties":{
    "room_id":` + roomIDSchema + `,
    "target_user_id":{"type":"integer","minimum":1},
    "payload":{"type":"object"}
  }
}`

// 客户端 -> 服务端 各类消息 payload 的约束。
var inboundSchemas = map[string]string{
	TypeJoinRoom:   roomOnlySchema,
	TypeLeaveRoom:  roomOnlySchema,
	TypeLiveStatus: roomOnlySchema,
	TypeLiveStop:   roomOnlySchema,
	TypeLocation: `{
  "type":"object",
  "required":["room_id","x","y"],
  "properties":{
    "room_id":` + roomIDSchema + `,
    "x":{"type":"integer"},
    "y":{"type":"integer"}
  }
}`,
	TypeMessage: `{
  "type":"object",
  "required":["room_id","content"],
  "properties":{
    "room_id":` + roomIDSchema + `,
    "content":{"type":"string","minLength":1,"maxLength":500}
  }
}`,
	TypeTyping: `{
  "type":"object",
  "required":["room_id","is_typing"],
  "properties":{
    "room_id":` + roomIDSchema + `,
    "is_typing":{"type":"boolean"}
  }
}`,
	TypeLiveStart: `{
  "type":"object",
  "required":["room_id"],
  "properties":{
    "room_id":` + roomIDSchema + `,
    "media_type":{"enum":["audio","video"]}
  }
}`,
	TypeLiveOffer:  signalSchema,
	TypeLiveAnswer: signalSchema,
	TypeLiveICE:    signalSchema,
	TypeHeartbeat: `{
  "type":"object",
  "properties":{"ctime":{"type":"integer"}}
}`,
}

// Validator 在服务端入口校验 payload，非法报文不进入房间 actor。
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(inboundSchemas))}
	for msgType, src := range inboundSchemas {
		s, err := jsonschema.CompileString(msgType+".schema.json", src)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", msgType, err)
		}
		v.schemas[msgType] = s
	}
	return v, nil
}

// MustValidator 用于进程启动，schema 写错直接 panic。
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate 校验某类消息的 payload。
func (v *Validator) Validate(msgType string, payload json.RawMessage) error {
	s, ok := v.schemas[msgType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, msgType)
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%s: decode payload: %w", msgType, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%s: %w", msgType, err)
	}
	return nil
}

// Known 判断是否是服务端接受的消息类型。
func (v *Validator) Known(msgType string) bool {
	_, ok := v.schemas[msgType]
	return ok
}
