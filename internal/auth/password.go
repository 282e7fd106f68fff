package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 期限の少し前に取り直す
const refreshSkew = 30 * time.Second

// PasswordProvider は /auth/token にメールとパスワードを送り、
// 受け取った JWT を期限まで使い回す。
type PasswordProvider struct {
	baseURL  string
	email    string
	password string
	http     *http.Client
	now      func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func NewPasswordProvider(baseURL, email, password string, client *http.Client) *PasswordProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &PasswordProvider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		email:    email,
		password: password,
		http:     client,
		now:      time.Now,
	}
}

func (p *PasswordProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Add(refreshSkew).Before(p.expiresAt) {
		return p.token, nil
	}

	tok, exp, err := p.fetch(ctx)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	p.token = tok
	p.expiresAt = exp
	return tok, nil
}

// Invalidate はキャッシュを捨てる（401 を受けたとき用）。
func (p *PasswordProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.expiresAt = time.Time{}
}

func (p *PasswordProvider) fetch(ctx context.Context) (string, time.Time, error) {
	body, err := json.Marshal(tokenRequest{Email: p.email, Password: p.password})
	if err != nil {
		return "", time.Time{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || out.AccessToken == "" {
		msg := out.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", time.Time{}, fmt.Errorf("token endpoint: %s", msg)
	}

	return out.AccessToken, p.expiry(out), nil
}

// exp クレームを優先し、読めなければ expires_in を使う。
func (p *PasswordProvider) expiry(out tokenResponse) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(out.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return p.now().Add(time.Duration(out.ExpiresIn) * time.Second)
}
