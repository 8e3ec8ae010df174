package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		cookie string
		want   string
	}{
		{"none", "/ws", "", "", ""},
		{"bearer", "/ws", "Bearer abc", "", "abc"},
		{"bearer any case", "/ws", "bearer  abc ", "", "abc"},
		{"other scheme ignored", "/ws", "Basic abc", "", ""},
		{"cookie", "/ws", "", "from-cookie", "from-cookie"},
		{"query", "/ws?access_token=from-query", "", "", "from-query"},
		{"header wins", "/ws?access_token=q", "Bearer h", "c", "h"},
		{"cookie before query", "/ws?access_token=q", "", "c", "c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: CookieName, Value: tt.cookie})
			}
			assert.Equal(t, tt.want, TokenFromRequest(r))
		})
	}
}

func TestClearCookie(t *testing.T) {
	w := httptest.NewRecorder()
	ClearCookie(w)

	cookies := w.Result().Cookies()
	if assert.Len(t, cookies, 1) {
		assert.Equal(t, CookieName, cookies[0].Name)
		assert.Equal(t, "", cookies[0].Value)
		assert.True(t, cookies[0].MaxAge < 0)
	}
}
