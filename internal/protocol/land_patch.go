package protocol

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// 可以被局部补丁修改的地块字段。
const (
	FieldFenced        = "fenced"
	FieldGuestAccess   = "guest_access"
	FieldOwnerID       = "owner_id"
	FieldOwnerUsername = "owner_username"
	FieldLandID        = "land_id"
	FieldBiome         = "biome"
	FieldBasePrice     = "base_price"
)

// PatchableField 判断字段名是否允许打补丁。
func PatchableField(field string) bool {
	switch field {
	case FieldFenced, FieldGuestAccess, FieldOwnerID, FieldOwnerUsername, FieldLandID, FieldBiome, FieldBasePrice:
		return true
	}
	return false
}

// Patch 修改单个字段。value 可以来自 JSON 解码（float64/string/nil）也可以是 Go 原生类型。
func (l *Land) Patch(field string, value any) error {
	switch field {
	case FieldFenced:
		b, ok := value.(bool)
		if !ok {
			return fieldTypeErr(field, value)
		}
		l.Fenced = b
	case FieldGuestAccess:
		b, ok := value.(bool)
		if !ok {
			return fieldTypeErr(field, value)
		}
		l.GuestAccess = b
	case FieldOwnerID:
		if value == nil {
			l.OwnerID = nil
			return nil
		}
		id, err := toInt64(value)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		l.OwnerID = &id
	case FieldOwnerUsername:
		s, isNil, err := toOptString(value)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if isNil {
			l.OwnerUsername = nil
		} else {
			l.OwnerUsername = &s
		}
	case FieldLandID:
		s, isNil, err := toOptString(value)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if isNil {
			l.LandID = nil
		} else {
			l.LandID = &s
		}
	case FieldBiome:
		s, ok := value.(string)
		if !ok || s == "" {
			return fieldTypeErr(field, value)
		}
		l.Biome = s
	case FieldBasePrice:
		d, err := toDecimal(value)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		l.BasePrice = d
	default:
		return fmt.Errorf("field %q is not patchable", field)
	}
	return nil
}

func fieldTypeErr(field string, value any) error {
	return fmt.Errorf("field %q: unexpected value %T", field, value)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}

func toOptString(v any) (string, bool, error) {
	switch s := v.(type) {
	case nil:
		return "", true, nil
	case string:
		return s, false, nil
	case *string:
		if s == nil {
			return "", true, nil
		}
		return *s, false, nil
	default:
		return "", false, fmt.Errorf("unexpected %T", v)
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch d := v.(type) {
	case decimal.Decimal:
		return d, nil
	case string:
		return decimal.NewFromString(d)
	case float64:
		return decimal.NewFromFloat(d), nil
	case int:
		return decimal.NewFromInt(int64(d)), nil
	case int64:
		return decimal.NewFromInt(d), nil
	case json.Number:
		return decimal.NewFromString(d.String())
	default:
		return decimal.Decimal{}, fmt.Errorf("unexpected %T", v)
	}
}
