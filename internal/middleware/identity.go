package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"shop/internal/config"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxAccountIDKey    = "account_id"    // int64（未ログインは0）
	CtxSessionTokenKey = "session_token" // string
	CtxRoleKey         = "account_role"  // string（customer / STAFF）
)

// 身元解決のミドルウェア。
// BearerトークンがあればアカウントID、無ければX-Session-Tokenの
// 匿名セッションとして通す。どちらも無いリクエストは弾く。
// 注文の読み取りなどログイン必須の所はRequireAccountを重ねる
func ResolveIdentity(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authz := c.Request().Header.Get("Authorization")
			if authz != "" {
				accountID, role, err := parseBearer(authz, cfg.JWTSecret)
				if err != nil {
					return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
				}
				c.Set(CtxAccountIDKey, accountID)
				c.Set(CtxRoleKey, role)

				//ログイン直後のマージ用に匿名トークンも読めるようにしておく
				if tok := strings.TrimSpace(c.Request().Header.Get("X-Session-Token")); tok != "" {
					c.Set(CtxSessionTokenKey, tok)
				}
				return next(c)
			}

			tok := strings.TrimSpace(c.Request().Header.Get("X-Session-Token"))
			if tok == "" || len(tok) > 255 {
				return c.JSON(http.StatusBadRequest, errorJSON("missing session"))
			}
			c.Set(CtxSessionTokenKey, tok)

			return next(c)
		}
	}
}

// ログイン必須のルート用
func RequireAccount() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := c.Get(CtxAccountIDKey).(int64)
			if !ok || id <= 0 {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			return next(c)
		}
	}
}

// スタッフ専用ルート用。roleクレームがSTAFFのトークンだけ通す。
// 客のトークンにはroleが入っていないので、ここで必ず止まる
func StaffRoleGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxRoleKey).(string)
			if !ok || role != "STAFF" {
				return c.JSON(http.StatusForbidden, errorJSON("staff only"))
			}
			return next(c)
		}
	}
}

func parseBearer(authz string, secret string) (int64, string, error) {
	//Bearer形式か確認してtokenを抜く
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return 0, "", errors.New("not bearer")
	}
	rawToken := strings.TrimSpace(parts[1])
	if rawToken == "" {
		return 0, "", errors.New("empty token")
	}

	//JWTをパースして検証する
	token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || token == nil || !token.Valid {
		return 0, "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", errors.New("invalid claims")
	}

	accountID, err := parseAccountID(claims["sub"])
	if err != nil || accountID <= 0 {
		return 0, "", errors.New("invalid sub")
	}

	//roleは任意。客のトークンには入っていない
	role, _ := claims["role"].(string)

	return accountID, role, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}

// subをint64に変換する
func parseAccountID(v interface{}) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, errors.New("invalid sub")
	}
}
