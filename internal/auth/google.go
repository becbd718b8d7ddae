package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/hitoshi/catalog/internal/model"
)

const (
	defaultGoogleTokenInfoURL = "https://www.googleapis.com/oauth2/v1/tokeninfo"
	defaultGoogleUserInfoURL  = "https://www.googleapis.com/oauth2/v1/userinfo"
	defaultGoogleRevokeURL    = "https://accounts.google.com/o/oauth2/revoke"

	// postmessageRedirect はワンタイムコードフローで使用するredirect_uri。
	postmessageRedirect = "postmessage"

	defaultHTTPTimeout = 10 * time.Second
)

var defaultScopes = []string{"openid", "email", "profile"}

// GoogleConfig はGoogle IdPとの連携設定。
type GoogleConfig struct {
	// OAuth2 はclient_secrets.jsonから読み込んだクライアント設定。
	OAuth2 *oauth2.Config

	// テスト用にオーバーライド可能なURL
	TokenInfoURL string
	UserInfoURL  string
	RevokeURL    string

	HTTPClient *http.Client
}

// GoogleVerifier はGoogleの認可コードを検証済みの識別情報に交換する。
type GoogleVerifier struct {
	oauth        oauth2.Config
	tokenInfoURL string
	userInfoURL  string
	revokeURL    string
	client       *http.Client
}

// NewGoogleVerifier はGoogleVerifierを生成する。
func NewGoogleVerifier(cfg GoogleConfig) *GoogleVerifier {
	v := &GoogleVerifier{
		tokenInfoURL: cfg.TokenInfoURL,
		userInfoURL:  cfg.UserInfoURL,
		revokeURL:    cfg.RevokeURL,
		client:       cfg.HTTPClient,
	}
	if cfg.OAuth2 != nil {
		v.oauth = *cfg.OAuth2
	}
	v.oauth.RedirectURL = postmessageRedirect
	if len(v.oauth.Scopes) == 0 {
		v.oauth.Scopes = defaultScopes
	}
	if v.tokenInfoURL == "" {
		v.tokenInfoURL = defaultGoogleTokenInfoURL
	}
	if v.userInfoURL == "" {
		v.userInfoURL = defaultGoogleUserInfoURL
	}
	if v.revokeURL == "" {
		v.revokeURL = defaultGoogleRevokeURL
	}
	if v.client == nil {
		v.client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return v
}

// LoginConfig はログインページでサインインを開始するための公開設定を返す。
func (v *GoogleVerifier) LoginConfig() LoginConfig {
	return LoginConfig{
		ClientID: v.oauth.ClientID,
		Scopes:   append([]string(nil), v.oauth.Scopes...),
	}
}

// googleTokenInfo はtokeninfoエンドポイントのレスポンス。
type googleTokenInfo struct {
	Error    string `json:"error"`
	UserID   string `json:"user_id"`
	IssuedTo string `json:"issued_to"`
}

// googleUserInfo はuserinfoエンドポイントのレスポンス。
type googleUserInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// Verify は認可コードを検証し、外部IdPの識別情報を返す。
// stateが一致しない場合はIdPに問い合わせずにANTI_FORGERY_MISMATCHを返す。
func (v *GoogleVerifier) Verify(ctx context.Context, in VerifyInput) (*Verification, error) {
	if in.ExpectedState == "" || in.ReceivedState != in.ExpectedState {
		return nil, model.NewAntiForgeryMismatchError()
	}

	// 1. 認可コードをアクセストークンに交換
	token, err := v.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, v.client), in.Code)
	if err != nil {
		slog.Warn("authorization code exchange failed", slog.String("error", err.Error()))
		return nil, model.NewCodeExchangeFailedError()
	}

	// 2. id_tokenからsubjectを取得
	subject, err := subjectFromIDToken(token)
	if err != nil {
		slog.Warn("id_token missing or malformed", slog.String("error", err.Error()))
		return nil, model.NewCodeExchangeFailedError()
	}

	// 3. アクセストークンの発行先を確認
	info, err := v.fetchTokenInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, model.NewTokenInvalidError(err.Error())
	}
	if info.Error != "" {
		return nil, model.NewTokenInvalidError(info.Error)
	}
	if info.UserID != subject {
		return nil, model.NewTokenSubjectMismatchError()
	}
	if info.IssuedTo != v.oauth.ClientID {
		return nil, model.NewAudienceMismatchError()
	}

	if in.StoredAccessToken != "" && in.StoredSubject == subject {
		return &Verification{
			Outcome:     OutcomeAlreadyConnected,
			AccessToken: in.StoredAccessToken,
			Identity:    model.Identity{Subject: subject},
		}, nil
	}

	// 4. プロフィールを取得
	profile, err := v.fetchUserInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, model.NewTokenInvalidError(err.Error())
	}
	if profile.Email == "" {
		return nil, model.NewTokenInvalidError("userinfo response has no email")
	}

	return &Verification{
		Outcome:     OutcomeConnected,
		AccessToken: token.AccessToken,
		Identity: model.Identity{
			Subject: subject,
			Name:    profile.Name,
			Email:   profile.Email,
			Picture: profile.Picture,
		},
	}, nil
}

// Revoke はIdPにアクセストークンの失効を依頼する。
func (v *GoogleVerifier) Revoke(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		v.revokeURL+"?"+url.Values{"token": {accessToken}}.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		slog.Warn("token revoke request failed", slog.String("error", err.Error()))
		return model.NewRevokeFailedError()
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		slog.Warn("token revoke rejected", slog.Int("status", resp.StatusCode))
		return model.NewRevokeFailedError()
	}
	return nil
}

func subjectFromIDToken(token *oauth2.Token) (string, error) {
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return "", errors.New("no id_token in token response")
	}

	// 署名はtokeninfoでのuser_id照合で代替する
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("failed to parse id_token: %w", err)
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("failed to read sub claim: %w", err)
	}
	if sub == "" {
		return "", errors.New("empty sub claim")
	}
	return sub, nil
}

func (v *GoogleVerifier) fetchTokenInfo(ctx context.Context, accessToken string) (*googleTokenInfo, error) {
	var info googleTokenInfo
	if err := v.getJSON(ctx, v.tokenInfoURL, url.Values{"access_token": {accessToken}}, &info); err != nil {
		return nil, fmt.Errorf("tokeninfo: %w", err)
	}
	return &info, nil
}

func (v *GoogleVerifier) fetchUserInfo(ctx context.Context, accessToken string) (*googleUserInfo, error) {
	var info googleUserInfo
	params := url.Values{"access_token": {accessToken}, "alt": {"json"}}
	if err := v.getJSON(ctx, v.userInfoURL, params, &info); err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	return &info, nil
}

// getJSON はGETリクエストのレスポンスボディをJSONとしてdstにデコードする。
// tokeninfoはエラー時も400でJSONを返すため、ステータスコードでは判定しない。
func (v *GoogleVerifier) getJSON(ctx context.Context, endpoint string, params url.Values, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}

// compile-time interface check
var _ Verifier = (*GoogleVerifier)(nil)
