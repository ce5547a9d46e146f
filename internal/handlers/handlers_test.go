package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"trustguard-client/internal/backend"
	"trustguard-client/internal/logger"
	"trustguard-client/internal/middleware"
	"trustguard-client/internal/prefs"
	"trustguard-client/internal/registry"
	"trustguard-client/internal/session"
	"trustguard-client/internal/stats"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeBackendServer implements just enough of the TrustGuard backend
// contract for the handler flows.
func fakeBackendServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	voted := make(map[string]bool) // userID|adTitle

	mux.HandleFunc("/ads/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ad": map[string]string{
				"title":     "Fitness Tracker",
				"image_url": "https://example.com/tracker.jpg",
				"category":  "health",
			},
			"explanation_needed": false,
			"empathy_analysis":   map[string]interface{}{"filtered_by_emotion": false},
		})
	})
	mux.HandleFunc("/feedback", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode([]map[string]string{
				{"user_id": "u1", "ad_title": "Fitness Tracker", "feedback": "up", "emotion": "happy"},
			})
			return
		}
		var req struct {
			UserID  string `json:"user_id"`
			AdTitle string `json:"ad_title"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		key := req.UserID + "|" + req.AdTitle
		if voted[key] {
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "duplicate"})
			return
		}
		voted[key] = true
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"stats":  map[string]int{"up": 1, "down": 0, "block": 0},
		})
	})
	mux.HandleFunc("/set_preferences", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	})
	mux.HandleFunc("/analytics/user/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"total_interactions": 1,
			"positive_feedback":  1,
			"engagement_rate":    100.0,
		})
	})
	mux.HandleFunc("/blocked_ads", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]string{})
	})
	mux.HandleFunc("/block_ad", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	return httptest.NewServer(mux)
}

func newTestRouter(t *testing.T, backendURL string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.SetupLogger("error")

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "consent.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&prefs.ConsentRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	client := backend.NewClient(backendURL, log)
	store := prefs.NewStore(db, log)
	orchestrator := session.NewOrchestrator(client, store, nil, log, 500*time.Millisecond)
	reg := registry.New(client, log)
	statsService := stats.NewService(client, reg, log)
	server := NewServer(orchestrator, statsService, reg, client, log)

	r := gin.New()
	r.Use(middleware.CORSMiddleware())
	api := r.Group("/api/v1")
	{
		api.GET("/session", server.GetSession)
		api.POST("/session/user", server.SwitchUser)
		api.POST("/session/consent", server.Consent)
		api.PUT("/session/preferences", server.UpdatePreferences)
		api.POST("/session/vote", server.Vote)
		api.POST("/session/next", server.Next)
		api.GET("/admin/dashboard", server.AdminDashboard)
		api.GET("/admin/users/:userId/analytics", server.UserAnalytics)
		api.POST("/admin/block", server.BlockAd)
	}
	r.GET("/health", server.Health)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func waitForPhase(t *testing.T, r *gin.Engine, phase string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w := doJSON(t, r, http.MethodGet, "/api/v1/session", nil)
		var snap map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &snap)
		if snap["phase"] == phase {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for phase %s", phase)
	return nil
}

func TestSessionFlowOverHTTP(t *testing.T) {
	srv := fakeBackendServer(t)
	defer srv.Close()
	r := newTestRouter(t, srv.URL)

	// Fresh user: consent capture.
	w := doJSON(t, r, http.MethodPost, "/api/v1/session/user", map[string]string{"user_id": "u1"})
	if w.Code != http.StatusOK {
		t.Fatalf("switch user: %d %s", w.Code, w.Body.String())
	}

	// Voting before consent is forbidden.
	w = doJSON(t, r, http.MethodPost, "/api/v1/session/vote", map[string]string{"vote": "up"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("vote before consent = %d, want 403", w.Code)
	}

	// Consent and wait for the first ad.
	w = doJSON(t, r, http.MethodPost, "/api/v1/session/consent", map[string]interface{}{
		"preferences": map[string]bool{
			"emotion_filter":   true,
			"data_collection":  true,
			"personalized_ads": true,
			"explanations":     true,
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("consent: %d %s", w.Code, w.Body.String())
	}
	waitForPhase(t, r, "ad_displayed")

	// Vote, then the repeat is rejected with a conflict.
	w = doJSON(t, r, http.MethodPost, "/api/v1/session/vote", map[string]string{"vote": "up"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("vote = %d, want 202: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodPost, "/api/v1/session/vote", map[string]string{"vote": "down"})
	if w.Code != http.StatusConflict {
		t.Fatalf("repeat vote = %d, want 409", w.Code)
	}
}

func TestAdminEndpoints(t *testing.T) {
	srv := fakeBackendServer(t)
	defer srv.Close()
	r := newTestRouter(t, srv.URL)

	w := doJSON(t, r, http.MethodGet, "/api/v1/admin/dashboard", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Report struct {
			TotalInteractions int `json:"total_interactions"`
		} `json:"report"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Report.TotalInteractions != 1 {
		t.Errorf("interactions = %d, want 1", resp.Report.TotalInteractions)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/admin/users/u1/analytics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("analytics = %d", w.Code)
	}

	// Double block: second reports already blocked.
	w = doJSON(t, r, http.MethodPost, "/api/v1/admin/block", map[string]string{"ad_title": "Fitness Tracker"})
	if w.Code != http.StatusOK {
		t.Fatalf("block = %d", w.Code)
	}
	w = doJSON(t, r, http.MethodPost, "/api/v1/admin/block", map[string]string{"ad_title": "Fitness Tracker"})
	var blockResp struct {
		AlreadyBlocked bool `json:"already_blocked"`
	}
	json.Unmarshal(w.Body.Bytes(), &blockResp)
	if !blockResp.AlreadyBlocked {
		t.Error("second block not reported as already blocked")
	}
}

func TestHealth(t *testing.T) {
	srv := fakeBackendServer(t)
	defer srv.Close()
	r := newTestRouter(t, srv.URL)

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["backend"] != "connected" {
		t.Errorf("backend status = %v, want connected", resp["backend"])
	}
}
