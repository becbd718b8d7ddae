package session

import "context"

type contextKey struct{}

// WithState はコンテキストにセッション状態を格納する。
func WithState(ctx context.Context, state *State) context.Context {
	return context.WithValue(ctx, contextKey{}, state)
}

// FromContext はコンテキストからセッション状態を取得する。
// セッションミドルウェアを通過していない場合はnilを返す。
func FromContext(ctx context.Context) *State {
	state, _ := ctx.Value(contextKey{}).(*State)
	return state
}

// UserIDFromContext はログイン中のローカルユーザーIDを返す。匿名の場合は空文字列。
func UserIDFromContext(ctx context.Context) string {
	if state := FromContext(ctx); state != nil {
		return state.UserID
	}
	return ""
}
