package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/internal/domain"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
)

const (
	HeaderRequestID = "X-Request-Id"
	HeaderUserID    = "X-User-Id"
	HeaderUserRole  = "X-User-Role"
)

var errUnauthenticated = errors.New("authentication required")

func requestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// withRequestLog 分配 request id 并记录访问日志
func withRequestLog(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Debug("HTTP request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type userLookup interface {
	Lookup(ctx context.Context, id int64) (*domain.User, error)
}

// withActiveUser X-User-Id 对应 users 表中的用户时：停用返回 403，角色以表中为准
// 表中不存在的 id 按网关注入的身份处理
func withActiveUser(next http.Handler, users userLookup, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.Header.Get(HeaderUserID), 10, 64)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		u, err := users.Lookup(r.Context(), userID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			next.ServeHTTP(w, r)
			return
		case err != nil:
			writeError(w, r, logger, "user lookup", err)
			return
		case !u.IsActive:
			writeJSON(w, http.StatusForbidden, Fail("user is disabled"))
			return
		}
		r = r.Clone(r.Context())
		r.Header.Set(HeaderUserRole, string(u.Role))
		next.ServeHTTP(w, r)
	})
}

// principalFromRequest 身份由前置网关注入 X-User-Id / X-User-Role；缺失时为匿名（nil）
func principalFromRequest(r *http.Request) *domain.Principal {
	userID, err := strconv.ParseInt(r.Header.Get(HeaderUserID), 10, 64)
	if err != nil {
		return nil
	}
	role := domain.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole))))
	switch role {
	case domain.RoleAdmin, domain.RoleEditor, domain.RoleViewer:
	default:
		return nil
	}
	return &domain.Principal{UserID: userID, Role: role, IP: clientIP(r)}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// requireEditor admin / editor
func requireEditor(r *http.Request) (*domain.Principal, error) {
	p := principalFromRequest(r)
	if p == nil {
		return nil, errUnauthenticated
	}
	if !p.CanEdit() {
		return nil, domain.ErrForbidden
	}
	return p, nil
}

// requireAdmin 仅 admin
func requireAdmin(r *http.Request) (*domain.Principal, error) {
	p := principalFromRequest(r)
	if p == nil {
		return nil, errUnauthenticated
	}
	if !p.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return p, nil
}
