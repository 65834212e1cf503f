// Package httpapi exposes the login flows and the current-user endpoint
// over JSON HTTP. Session state travels in an http-only "token" cookie;
// the identity middleware resolves it once per request and writes back
// whatever cookie change the auth layer decides on.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/workpass-app/workpass/internal/apiclient/dingtalk"
	"github.com/workpass-app/workpass/internal/apiclient/wechat"
	"github.com/workpass-app/workpass/internal/logging"
	"github.com/workpass-app/workpass/internal/server/auth"
	"github.com/workpass-app/workpass/internal/server/repositories/users"
)

const cookieName = "token"

// DingtalkClient is the slice of the DingTalk API the login flow needs.
type DingtalkClient interface {
	UserIDFromCode(ctx context.Context, code string) (string, error)
	UserInfo(ctx context.Context, userID string) (*dingtalk.UserInfo, error)
}

// WechatClient is the slice of the WeChat miniprogram API the login flow
// needs.
type WechatClient interface {
	CodeToSession(ctx context.Context, code string) (*wechat.SessionInfo, error)
}

type Server struct {
	svc      *auth.Service
	users    users.Repository
	dingtalk DingtalkClient
	wechat   WechatClient
	log      logging.Logger

	// cookieMaxAge is how long the token cookie persists on the client,
	// normally the refresh-token lifetime.
	cookieMaxAge   time.Duration
	allowedOrigins []string
}

func NewServer(
	svc *auth.Service,
	usersRepo users.Repository,
	dd DingtalkClient,
	wx WechatClient,
	cookieMaxAge time.Duration,
	allowedOrigins []string,
	log logging.Logger,
) *Server {
	return &Server{
		svc:            svc,
		users:          usersRepo,
		dingtalk:       dd,
		wechat:         wx,
		log:            log,
		cookieMaxAge:   cookieMaxAge,
		allowedOrigins: allowedOrigins,
	}
}

// Handler assembles the route table and the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login/dingtalk", s.handleLoginDingtalk)
	mux.HandleFunc("POST /api/login/wechat", s.handleLoginWechat)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("GET /api/me", s.handleMe)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowCredentials: true,
	})

	return s.logRequests(c.Handler(s.withIdentity(mux)))
}
