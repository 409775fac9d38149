package routes

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/guildmarket/internal/orders"
	"github.com/angelmondragon/guildmarket/internal/stats"
	pkgAuth "github.com/angelmondragon/guildmarket/pkg/auth"
	"github.com/angelmondragon/guildmarket/pkg/config"
	"github.com/angelmondragon/guildmarket/pkg/db/models"
	"github.com/angelmondragon/guildmarket/pkg/enums"
	"github.com/angelmondragon/guildmarket/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubInteractions struct{}

func (stubInteractions) HandleInteraction(context.Context, *discordgo.Interaction) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong}
}

type stubStats struct{}

func (stubStats) Snapshot(context.Context) (*stats.Stats, error) {
	return &stats.Stats{Suppliers: 1}, nil
}

type stubOrders struct {
	orders.Repository
}

func (stubOrders) FindByID(_ context.Context, id int64) (*models.Order, error) {
	if id == 1 {
		return &models.Order{ID: 1, Status: enums.OrderStatusPending}, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type testRouter struct {
	handler http.Handler
	priv    ed25519.PrivateKey
	cfg     *config.Config
}

func newTestRouter(t *testing.T) *testRouter {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "guildmarket", ExpirationMinutes: 10},
	}
	reg := prometheus.NewRegistry()
	handler := NewRouter(cfg, nil, Dependencies{
		DB:           stubPinger{},
		Redis:        stubPinger{},
		Gatherer:     reg,
		HTTPMetrics:  metrics.NewHTTPMetrics(reg),
		Interactions: stubInteractions{},
		VerifyKey:    pub,
		Stats:        stubStats{},
		Orders:       stubOrders{},
	})
	return &testRouter{handler: handler, priv: priv, cfg: cfg}
}

func (tr *testRouter) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	tr.handler.ServeHTTP(resp, req)
	return resp
}

func (tr *testRouter) adminRequest(t *testing.T, path string, role enums.MemberRole) *http.Request {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(tr.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: "1", Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHealthRoutes(t *testing.T) {
	tr := newTestRouter(t)
	for _, path := range []string{"/health/live", "/health/ready"} {
		if resp := tr.do(httptest.NewRequest(http.MethodGet, path, nil)); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestInteractionsRequireSignature(t *testing.T) {
	tr := newTestRouter(t)

	unsigned := httptest.NewRequest(http.MethodPost, "/discord/interactions", strings.NewReader(`{"type":1}`))
	if resp := tr.do(unsigned); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}

	body := `{"id":"1","type":1}`
	timestamp := "1700000000"
	req := httptest.NewRequest(http.MethodPost, "/discord/interactions", strings.NewReader(body))
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(ed25519.Sign(tr.priv, []byte(timestamp+body))))
	req.Header.Set("X-Signature-Timestamp", timestamp)
	resp := tr.do(req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"type":1`) {
		t.Fatalf("expected pong, got %s", resp.Body.String())
	}
}

func TestAdminRoutesEnforceRoles(t *testing.T) {
	tr := newTestRouter(t)

	if resp := tr.do(httptest.NewRequest(http.MethodGet, "/api/admin/v1/stats", nil)); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if resp := tr.do(tr.adminRequest(t, "/api/admin/v1/stats", enums.MemberRoleViewer)); resp.Code != http.StatusOK {
		t.Fatalf("viewer may read stats, got %d", resp.Code)
	}
	if resp := tr.do(tr.adminRequest(t, "/api/admin/v1/orders/1", enums.MemberRoleViewer)); resp.Code != http.StatusForbidden {
		t.Fatalf("viewer must not read orders, got %d", resp.Code)
	}
	if resp := tr.do(tr.adminRequest(t, "/api/admin/v1/stats", enums.MemberRoleAdmin)); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp := tr.do(tr.adminRequest(t, "/api/admin/v1/orders/1", enums.MemberRoleAdmin)); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp := tr.do(tr.adminRequest(t, "/api/admin/v1/orders/2", enums.MemberRoleAdmin)); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestAdminPingEchoesToken(t *testing.T) {
	tr := newTestRouter(t)

	resp := tr.do(tr.adminRequest(t, "/api/admin/ping", enums.MemberRoleViewer))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	body := resp.Body.String()
	for _, want := range []string{`"user_id":"1"`, `"role":"viewer"`, `"expires_at"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	tr := newTestRouter(t)
	tr.do(httptest.NewRequest(http.MethodGet, "/health/live", nil))

	resp := tr.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `http_requests_total{code="200",method="GET",route="/health/live"} 1`) {
		t.Fatalf("expected request counter in metrics output:\n%s", body)
	}
}
