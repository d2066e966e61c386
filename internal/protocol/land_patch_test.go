package protocol

import (
	"encoding/json"
	"testing"
)

func TestLandPatch_JSON解码值可直接应用(t *testing.T) {
	var upd LandUpdatePayload
	if err := json.Unmarshal([]byte(`{"x":1,"y":2,"field":"owner_id","value":77}`), &upd); err != nil {
		t.Fatalf("unmarshal err=%v", err)
	}
	l := Land{X: 1, Y: 2}
	if err := l.Patch(upd.Field, upd.Value); err != nil {
		t.Fatalf("Patch err=%v", err)
	}
	if l.OwnerID == nil || *l.OwnerID != 77 {
		t.Fatalf("期望 owner_id=77, got=%v", l.OwnerID)
	}

	if err := l.Patch(FieldOwnerID, nil); err != nil || l.OwnerID != nil {
		t.Fatalf("期望 nil 清空 owner_id, got=%v err=%v", l.OwnerID, err)
	}
	if err := l.Patch(FieldBasePrice, "12.50"); err != nil || l.BasePrice.String() != "12.5" {
		t.Fatalf("期望 base_price=12.5, got=%s err=%v", l.BasePrice, err)
	}
}

func TestLandPatch_类型不匹配与未知字段(t *testing.T) {
	l := Land{}
	if err := l.Patch(FieldFenced, "yes"); err == nil {
		t.Fatalf("期望 fenced 传字符串报错")
	}
	if err := l.Patch(FieldOwnerID, 1.5); err == nil {
		t.Fatalf("期望 owner_id 传小数报错")
	}
	if err := l.Patch("x", 3); err == nil {
		t.Fatalf("期望坐标字段不可修改")
	}
}
