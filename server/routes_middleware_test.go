package server

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAllowedHost(t *testing.T) {
	cases := map[string]bool{
		"":                  true,
		"localhost":         true,
		"LOCALHOST":         true,
		"box.local":         true,
		"api.internal":      true,
		"app.localhost":     true,
		"example.com":       false,
		"localhost.example": false,
	}

	for host, want := range cases {
		if got := allowedHost(host); got != want {
			t.Errorf("allowedHost(%q) = %v, erwartet %v", host, got, want)
		}
	}
}

func TestAllowedHostsMiddleware(t *testing.T) {
	loopback := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 11500}
	public := &net.TCPAddr{IP: net.IPv4(0, 0, 0, 0), Port: 11500}

	cases := []struct {
		name string
		addr net.Addr
		host string
		want int
	}{
		{"loopback ip", loopback, "127.0.0.1:11500", http.StatusOK},
		{"localhost", loopback, "localhost:11500", http.StatusOK},
		{"private ip", loopback, "192.168.1.10", http.StatusOK},
		{"fremder Host", loopback, "evil.example.com", http.StatusForbidden},
		{"nicht loopback", public, "evil.example.com", http.StatusOK},
		{"ohne Adresse", nil, "evil.example.com", http.StatusOK},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(allowedHostsMiddleware(tt.addr))
			r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = tt.host
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Status %d, erwartet %d", w.Code, tt.want)
			}
		})
	}
}
