// Package auth は外部IdPによるログインとログアウトを提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/catalog/internal/model"
)

// Outcome は認可コード検証の結果種別。
type Outcome int

const (
	// OutcomeConnected は新たに識別情報を取得したことを表す。
	OutcomeConnected Outcome = iota
	// OutcomeAlreadyConnected はセッションが既に同じsubjectで接続済みであることを表す。
	OutcomeAlreadyConnected
)

// VerifyInput は認可コード検証の入力。
type VerifyInput struct {
	Code              string
	ExpectedState     string
	ReceivedState     string
	StoredAccessToken string
	StoredSubject     string
}

// Verification は認可コード検証の結果。
type Verification struct {
	Outcome     Outcome
	AccessToken string
	Identity    model.Identity
}

// LoginConfig はログインページに埋め込むクライアント設定。
type LoginConfig struct {
	ClientID string
	Scopes   []string
}

// Verifier は外部IdPとのやり取りを抽象化する。
type Verifier interface {
	Verify(ctx context.Context, in VerifyInput) (*Verification, error)
	Revoke(ctx context.Context, accessToken string) error
	LoginConfig() LoginConfig
}

// UserResolver は検証済みの識別情報をローカルユーザーIDに解決する。
type UserResolver interface {
	ResolveOrCreate(ctx context.Context, identity model.Identity) (string, error)
}

// LoginRecorder はログイン結果を記録する。
type LoginRecorder interface {
	RecordLogin(result string)
}

type noopRecorder struct{}

func (noopRecorder) RecordLogin(string) {}

// Service はログイン・ログアウトのビジネスロジックを提供する。
type Service struct {
	verifier Verifier
	users    UserResolver
	metrics  LoginRecorder
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(verifier Verifier, users UserResolver, metrics LoginRecorder) *Service {
	if metrics == nil {
		metrics = noopRecorder{}
	}
	return &Service{verifier: verifier, users: users, metrics: metrics}
}

// LoginConfig はログインページ用のクライアント設定を返す。
func (s *Service) LoginConfig() LoginConfig {
	return s.verifier.LoginConfig()
}

// Connect は認可コードを検証し、識別情報とローカルユーザーIDをセッションに保存する。
// 既に同じsubjectで接続済みの場合はセッションを変更せずにOutcomeAlreadyConnectedを返す。
// 呼び出し側はstateの変更を永続化する責任を持つ。
func (s *Service) Connect(ctx context.Context, state *model.SessionState, code, receivedState string) (*Verification, error) {
	v, err := s.verifier.Verify(ctx, VerifyInput{
		Code:              code,
		ExpectedState:     state.StateToken,
		ReceivedState:     receivedState,
		StoredAccessToken: state.AccessToken,
		StoredSubject:     state.Subject,
	})
	if err != nil {
		s.metrics.RecordLogin(loginResult(err))
		return nil, err
	}

	if v.Outcome == OutcomeAlreadyConnected {
		s.metrics.RecordLogin("already_connected")
		return v, nil
	}

	state.SetIdentity(v.AccessToken, v.Identity)

	userID, err := s.users.ResolveOrCreate(ctx, v.Identity)
	if err != nil {
		s.metrics.RecordLogin("error")
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	state.UserID = userID
	state.AddFlash(fmt.Sprintf("you are now logged in as %s", v.Identity.Name))

	s.metrics.RecordLogin("connected")
	slog.Info("user logged in",
		slog.String("user_id", userID),
		slog.String("subject", v.Identity.Subject),
	)
	return v, nil
}

// Disconnect はアクセストークンを失効させ、セッションから識別情報を消去する。
// 失効に失敗した場合はセッションを変更しない。
func (s *Service) Disconnect(ctx context.Context, state *model.SessionState) error {
	if !state.IsConnected() {
		return model.NewNotAuthenticatedError()
	}

	if err := s.verifier.Revoke(ctx, state.AccessToken); err != nil {
		return err
	}

	userID := state.UserID
	state.Teardown()

	slog.Info("user logged out", slog.String("user_id", userID))
	return nil
}

// loginResult はエラーをメトリクス用のラベルに変換する。
func loginResult(err error) string {
	for _, code := range []string{
		model.ErrCodeAntiForgeryMismatch,
		model.ErrCodeCodeExchangeFailed,
		model.ErrCodeTokenInvalid,
		model.ErrCodeTokenSubjectMismatch,
		model.ErrCodeAudienceMismatch,
	} {
		if model.HasCode(err, code) {
			return code
		}
	}
	return "error"
}
