// Package wechat wraps the WeChat miniprogram server API: login code
// exchange, content moderation and decryption of the phone-number payload
// the miniprogram hands to its backend.
package wechat

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/joho/godotenv"
	"github.com/workpass-app/workpass/internal/apiclient"
	"github.com/workpass-app/workpass/internal/logging"
)

const defaultBaseURL = "https://api.weixin.qq.com"

// Config carries the miniprogram credentials.
type Config struct {
	AppID  string
	Secret string
}

// ConfigFromEnv reads credentials from the environment, loading a .env file
// first when one is present.
func ConfigFromEnv() (Config, error) {
	godotenv.Load()

	cfg := Config{
		AppID:  os.Getenv("WECHAT_WEAPP_APPID"),
		Secret: os.Getenv("WECHAT_WEAPP_SECRET"),
	}
	if cfg.AppID == "" {
		return Config{}, fmt.Errorf("WECHAT_WEAPP_APPID is not set")
	}
	if cfg.Secret == "" {
		return Config{}, fmt.Errorf("WECHAT_WEAPP_SECRET is not set")
	}
	return cfg, nil
}

// Miniprogram is the API surface used by the login flow.
type Miniprogram struct {
	cfg     Config
	baseURL string
	client  *apiclient.Client
}

func New(cfg Config, log logging.Logger) *Miniprogram {
	return newWithBaseURL(cfg, defaultBaseURL, log)
}

func newWithBaseURL(cfg Config, baseURL string, log logging.Logger) *Miniprogram {
	tokenURL := fmt.Sprintf("%s/cgi-bin/token?grant_type=client_credential&appid=%s&secret=%s",
		baseURL, url.QueryEscape(cfg.AppID), url.QueryEscape(cfg.Secret))
	return &Miniprogram{
		cfg:     cfg,
		baseURL: baseURL,
		client:  apiclient.NewClient(tokenURL, log),
	}
}

// AccessToken exposes the cached platform token, mainly for diagnostics.
func (m *Miniprogram) AccessToken(ctx context.Context) (string, error) {
	return m.client.AccessToken(ctx)
}

// SessionInfo is the result of exchanging a miniprogram login code.
type SessionInfo struct {
	OpenID     string `json:"openid"`
	SessionKey string `json:"session_key"`
	UnionID    string `json:"unionid"`
}

// CodeToSession exchanges the wx.login code for the user's open id and
// session key. The endpoint authenticates with appid and secret directly,
// no access token involved.
func (m *Miniprogram) CodeToSession(ctx context.Context, code string) (*SessionInfo, error) {
	u := fmt.Sprintf("%s/sns/jscode2session?appid=%s&secret=%s&js_code=%s&grant_type=authorization_code",
		m.baseURL, url.QueryEscape(m.cfg.AppID), url.QueryEscape(m.cfg.Secret), url.QueryEscape(code))

	var session SessionInfo
	if err := m.client.Get(ctx, u, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// MsgSecCheck submits user-generated text for content moderation. A nil
// error means the content passed.
func (m *Miniprogram) MsgSecCheck(ctx context.Context, content string) error {
	u := fmt.Sprintf("%s/wxa/msg_sec_check?access_token=%s", m.baseURL, apiclient.TokenPlaceholder)

	payload := struct {
		Content string `json:"content"`
	}{Content: content}
	return m.client.Post(ctx, u, payload, nil)
}

// PhoneNumber is the decrypted getPhoneNumber payload.
type PhoneNumber struct {
	PhoneNumber     string `json:"phoneNumber"`
	PurePhoneNumber string `json:"purePhoneNumber"`
	CountryCode     string `json:"countryCode"`
}

// DecryptPhoneNumber decrypts the encrypted phone-number blob the
// miniprogram obtains from getPhoneNumber. sessionKey, iv and data are the
// base64 strings handed over by the client; the payload is AES-128-CBC with
// PKCS#7 padding per the platform's "open data" scheme.
func DecryptPhoneNumber(sessionKey, iv, data string) (*PhoneNumber, error) {
	key, err := base64.StdEncoding.DecodeString(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("decode session key: %w", err)
	}
	ivBytes, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(ivBytes) != block.BlockSize() {
		return nil, fmt.Errorf("bad iv length %d", len(ivBytes))
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("bad ciphertext length %d", len(ciphertext))
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, ivBytes).CryptBlocks(plaintext, ciphertext)

	plaintext, err = pkcs7Unpad(plaintext, block.BlockSize())
	if err != nil {
		return nil, err
	}

	var result PhoneNumber
	if err := json.Unmarshal(plaintext, &result); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &result, nil
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, fmt.Errorf("bad padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("bad padding")
		}
	}
	return data[:len(data)-pad], nil
}
