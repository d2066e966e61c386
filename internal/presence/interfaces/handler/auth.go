package handler

import (
	"net/http"

	"LandVerse/internal/shared/security"
	"LandVerse/internal/shared/transport/ws"
	"LandVerse/modules/kit/errx"
)

// JWTAuthenticator 从 Authorization 头或 ?token= 里取凭证，解析出连接身份。
func JWTAuthenticator(r *http.Request) (ws.Identity, error) {
	raw, err := security.BearerToken(r.Header.Get("Authorization"), r.URL.Query().Get("token"))
	if err != nil {
		return ws.Identity{}, errx.ErrUnauthenticated.WithCause(err)
	}
	_, claims, err := security.ParseToken(raw)
	if err != nil {
		return ws.Identity{}, errx.ErrUnauthenticated.WithCause(err)
	}
	return ws.Identity{UserID: claims.UID, Username: claims.Username}, nil
}
