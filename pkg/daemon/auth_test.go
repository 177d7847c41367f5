package daemon

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

const testSecret = "s3cret"

func TestIssueAndVerifyToken(t *testing.T) {
	tok, err := IssueToken(testSecret, "bench-1", RoleViewer, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := VerifyToken(testSecret, tok)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims.Subject != "bench-1" || claims.Role != RoleViewer {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := VerifyToken("other", tok); err == nil {
		t.Error("token verified with the wrong secret")
	}

	expired, err := IssueToken(testSecret, "bench-1", RoleController, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := VerifyToken(testSecret, expired); err == nil {
		t.Error("expired token verified")
	}

	if _, err := IssueToken(testSecret, "x", "admin", time.Hour); err == nil {
		t.Error("IssueToken accepted an unknown role")
	}
	if _, err := IssueToken("", "x", RoleViewer, time.Hour); err == nil {
		t.Error("IssueToken accepted an empty secret")
	}
}

func TestRequireToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(requireToken(testSecret))
	router.GET("/status", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.POST("/calibration", func(c *gin.Context) { c.String(http.StatusAccepted, "ok") })

	viewer, _ := IssueToken(testSecret, "v", RoleViewer, time.Hour)
	controller, _ := IssueToken(testSecret, "c", RoleController, time.Hour)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{name: "no token", method: http.MethodGet, path: "/status", want: http.StatusUnauthorized},
		{name: "garbage", method: http.MethodGet, path: "/status", token: "abc", want: http.StatusUnauthorized},
		{name: "viewer reads", method: http.MethodGet, path: "/status", token: viewer, want: http.StatusOK},
		{name: "viewer writes", method: http.MethodPost, path: "/calibration", token: viewer, want: http.StatusForbidden},
		{name: "controller writes", method: http.MethodPost, path: "/calibration", token: controller, want: http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}
