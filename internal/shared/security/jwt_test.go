package security

import (
	"errors"
	"testing"
	"time"
)

func TestAward_缺少JWT_SECRET应失败(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Award(1, "alice"); !errors.Is(err, ErrJWTSecretMissing) {
		t.Fatalf("期望 JWT_SECRET 为空时返回 ErrJWTSecretMissing, got=%v", err)
	}
}

func TestAwardParse_正常签发并解析(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-123")

	token, err := Award(42, "alice")
	if err != nil {
		t.Fatalf("Award err=%v", err)
	}

	_, claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken err=%v", err)
	}
	if claims.UID != 42 || claims.Username != "alice" {
		t.Fatalf("期望 uid=42 username=alice, got=%+v", claims)
	}
}

func TestParseToken_过期Token应失败(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-123")

	token, err := AwardWithTTL(7, "bob", -time.Minute)
	if err != nil {
		t.Fatalf("AwardWithTTL err=%v", err)
	}
	if _, _, err := ParseToken(token); err == nil {
		t.Fatalf("期望过期 token 解析失败")
	}
}

func TestBearerToken_头优先于查询参数(t *testing.T) {
	got, err := BearerToken("Bearer abc", "xyz")
	if err != nil || got != "abc" {
		t.Fatalf("期望取到头里的 abc, got=%q err=%v", got, err)
	}
	got, err = BearerToken("", "xyz")
	if err != nil || got != "xyz" {
		t.Fatalf("期望回退到查询参数 xyz, got=%q err=%v", got, err)
	}
	if _, err := BearerToken("Basic zzz", ""); !errors.Is(err, ErrTokenMissing) {
		t.Fatalf("期望缺少 bearer 时返回 ErrTokenMissing, got=%v", err)
	}
}
