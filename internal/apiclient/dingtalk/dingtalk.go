// Package dingtalk wraps the DingTalk enterprise open API: token-carrying
// endpoints under oapi.dingtalk.com, used here to resolve a scanned QR login
// to an employee profile.
package dingtalk

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/workpass-app/workpass/internal/apiclient"
	"github.com/workpass-app/workpass/internal/logging"
)

const defaultBaseURL = "https://oapi.dingtalk.com"

// Config carries the enterprise app credentials.
type Config struct {
	CorpID    string
	AgentID   int64
	AppKey    string
	AppSecret string
}

// ConfigFromEnv reads credentials from the environment, loading a .env file
// first when one is present.
func ConfigFromEnv() (Config, error) {
	godotenv.Load()

	cfg := Config{
		CorpID:    os.Getenv("DINGTALK_CORP_ID"),
		AppKey:    os.Getenv("DINGTALK_APP_KEY"),
		AppSecret: os.Getenv("DINGTALK_APP_SECRET"),
	}
	if cfg.CorpID == "" {
		return Config{}, fmt.Errorf("DINGTALK_CORP_ID is not set")
	}
	if cfg.AppKey == "" {
		return Config{}, fmt.Errorf("DINGTALK_APP_KEY is not set")
	}
	if cfg.AppSecret == "" {
		return Config{}, fmt.Errorf("DINGTALK_APP_SECRET is not set")
	}

	if v := os.Getenv("DINGTALK_AGENT_ID"); v != "" {
		agentID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("DINGTALK_AGENT_ID is not an integer: %w", err)
		}
		cfg.AgentID = agentID
	}
	return cfg, nil
}

// Dingtalk is the API surface used by the login flow.
type Dingtalk struct {
	cfg     Config
	baseURL string
	client  *apiclient.Client
}

func New(cfg Config, log logging.Logger) *Dingtalk {
	return newWithBaseURL(cfg, defaultBaseURL, log)
}

func newWithBaseURL(cfg Config, baseURL string, log logging.Logger) *Dingtalk {
	tokenURL := fmt.Sprintf("%s/gettoken?appkey=%s&appsecret=%s",
		baseURL, url.QueryEscape(cfg.AppKey), url.QueryEscape(cfg.AppSecret))
	return &Dingtalk{
		cfg:     cfg,
		baseURL: baseURL,
		client:  apiclient.NewClient(tokenURL, log),
	}
}

// AccessToken exposes the cached platform token, mainly for diagnostics.
func (d *Dingtalk) AccessToken(ctx context.Context) (string, error) {
	return d.client.AccessToken(ctx)
}

// UserInfo is the employee profile returned by /user/get.
type UserInfo struct {
	UserID     string     `json:"userid"`
	UnionID    string     `json:"unionid"`
	Name       string     `json:"name"`
	Mobile     string     `json:"mobile"`
	Email      string     `json:"email"`
	Active     bool       `json:"active"`
	IsAdmin    bool       `json:"isAdmin"`
	IsBoss     bool       `json:"isBoss"`
	Department []int      `json:"department"`
	Position   string     `json:"position"`
	Avatar     string     `json:"avatar"`
	JobNumber  string     `json:"jobnumber"`
	StateCode  string     `json:"stateCode"`
	Roles      []UserRole `json:"roles"`
}

type UserRole struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	GroupName string `json:"groupName"`
}

// Microapp describes one workspace application.
type Microapp struct {
	AppIcon        string `json:"appIcon"`
	AgentID        int    `json:"agentId"`
	AppDesc        string `json:"appDesc"`
	IsSelf         bool   `json:"isSelf"`
	Name           string `json:"name"`
	HomepageLink   string `json:"homepageLink"`
	PCHomepageLink string `json:"pcHomepageLink"`
	AppStatus      int    `json:"appStatus"`
	OmpLink        string `json:"ompLink"`
}

// UserIDFromCode exchanges the temporary auth code from a QR or in-app
// login for the employee's platform user id.
func (d *Dingtalk) UserIDFromCode(ctx context.Context, code string) (string, error) {
	u := fmt.Sprintf("%s/topapi/v2/user/getuserinfo?access_token=%s", d.baseURL, apiclient.TokenPlaceholder)

	payload := struct {
		Code string `json:"code"`
	}{Code: code}
	var resp struct {
		Result struct {
			UserID string `json:"userid"`
		} `json:"result"`
	}
	if err := d.client.Post(ctx, u, payload, &resp); err != nil {
		return "", err
	}
	return resp.Result.UserID, nil
}

// UserInfo fetches the employee profile for a platform user id.
func (d *Dingtalk) UserInfo(ctx context.Context, userID string) (*UserInfo, error) {
	u := fmt.Sprintf("%s/user/get?access_token=%s&userid=%s",
		d.baseURL, apiclient.TokenPlaceholder, url.QueryEscape(userID))

	var info UserInfo
	if err := d.client.Get(ctx, u, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// MicroappList lists the workspace applications visible to the app.
func (d *Dingtalk) MicroappList(ctx context.Context) ([]Microapp, error) {
	u := fmt.Sprintf("%s/microapp/list?access_token=%s", d.baseURL, apiclient.TokenPlaceholder)

	var resp struct {
		AppList []Microapp `json:"appList"`
	}
	if err := d.client.Post(ctx, u, nil, &resp); err != nil {
		return nil, err
	}
	return resp.AppList, nil
}
