package utils

import (
	"errors"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/MrSnakeDoc/marksync/internal/logger"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{"remote addr", "10.0.0.1:5555", nil, false, "10.0.0.1"},
		{"headers ignored without trust", "10.0.0.1:5555", map[string]string{"X-Forwarded-For": "1.2.3.4"}, false, "10.0.0.1"},
		{"cloudflare first", "10.0.0.1:5555", map[string]string{"CF-Connecting-IP": "5.6.7.8", "X-Forwarded-For": "1.2.3.4"}, true, "5.6.7.8"},
		{"left-most forwarded", "10.0.0.1:5555", map[string]string{"X-Forwarded-For": " 1.2.3.4 , 9.9.9.9"}, true, "1.2.3.4"},
		{"real ip", "10.0.0.1:5555", map[string]string{"X-Real-IP": "4.3.2.1"}, true, "4.3.2.1"},
		{"no headers with trust", "[::1]:5555", nil, true, "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNetworks(t *testing.T) {
	nets, invalid := ParseNetworks([]string{"10.0.0.0/8", " 192.168.1.7 ", "", "fd00::/8", "not-an-ip"})
	if !reflect.DeepEqual(invalid, []string{"not-an-ip"}) {
		t.Errorf("ParseNetworks() invalid = %v, want [not-an-ip]", invalid)
	}
	if nets.Empty() {
		t.Fatal("Empty() = true, want false")
	}

	tests := []struct {
		ip   string
		want bool
	}{
		{"10.20.30.40", true},
		{"::ffff:10.1.1.1", true},
		{"192.168.1.7", true},
		{"192.168.1.8", false},
		{"fd12::1", true},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := nets.Contains(tt.ip); got != tt.want {
			t.Errorf("Contains(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}

	if empty, _ := ParseNetworks(nil); !empty.Empty() {
		t.Errorf("ParseNetworks(nil).Empty() = false, want true")
	}
}

type closer struct {
	err    error
	closed bool
}

func (c *closer) Close() error {
	c.closed = true
	return c.err
}

func TestCloseLogged(t *testing.T) {
	ok := &closer{}
	CloseLogged(ok, "ok", logger.NewNop())
	if !ok.closed {
		t.Errorf("CloseLogged() did not close")
	}

	failing := &closer{err: errors.New("boom")}
	CloseLogged(failing, "failing", logger.NewNop())
	if !failing.closed {
		t.Errorf("CloseLogged() did not close a failing closer")
	}

	CloseLogged(nil, "nil", logger.NewNop())
}
