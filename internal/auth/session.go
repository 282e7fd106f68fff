package auth

import (
	"context"
	"sync"
)

// Session はログイン状態とトークン取得元を持つ。
// 未ログインの間はトークンを返さない。
type Session struct {
	mu       sync.RWMutex
	provider TokenProvider
	subject  string
}

func NewSession() *Session {
	return &Session{}
}

// Login は provider を有効にする。subject はログ・永続化キー用。
func (s *Session) Login(subject string, p TokenProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = p
	s.subject = subject
}

func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = nil
	s.subject = ""
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider != nil
}

func (s *Session) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subject
}

func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	p := s.provider
	s.mu.RUnlock()
	return Acquire(ctx, p)
}
