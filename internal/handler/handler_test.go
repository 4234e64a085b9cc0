package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/bookclub-bot/internal/auth"
	"github.com/sakif/bookclub-bot/internal/engagement"
	"github.com/sakif/bookclub-bot/internal/model"
	"github.com/sakif/bookclub-bot/internal/repository/sqlite"
)

// newTestServer wires the handlers against a fresh in-memory store, the
// same way the real server does. No AI client and no cache: both are
// optional by design.
func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracker := engagement.NewTracker(db, nil, nil, logger)

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("failed to create token service: %v", err)
	}
	adminToken, err := tokens.Generate("test-admin")
	if err != nil {
		t.Fatalf("failed to generate admin token: %v", err)
	}

	eh := NewEngagementHandler(tracker, logger)
	bh := NewBookHandler(db, db, nil, logger)

	r := chi.NewRouter()
	r.Route("/api/guilds/{guildID}", func(r chi.Router) {
		r.Post("/messages", eh.HandleTrackMessage)
		r.Get("/leaderboard/weekly", eh.HandleWeeklyLeaderboard)
		r.Get("/leaderboard/alltime", eh.HandleAllTimeLeaderboard)
		r.Get("/stats", eh.HandleGuildStats)
		r.Get("/users/{userID}", eh.HandleUserStats)
		r.Get("/book", bh.HandleGetBook)
		r.Get("/book/questions", bh.HandleDiscussionQuestions)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin(tokens))
			r.Post("/points", eh.HandleAddPoints)
			r.Post("/reset", eh.HandleResetWeekly)
			r.Put("/book", bh.HandleSetBook)
			r.Put("/book/chapter", bh.HandleSetChapter)
			r.Get("/settings", bh.HandleGetSettings)
			r.Put("/settings", bh.HandleUpdateSettings)
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, adminToken
}

func doJSON(t *testing.T, method, url, token, body string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	return resp, data
}

const richTakeaway = `I think the author makes a compelling case because, for example, my own experience trying to apply these ideas at work helped me understand my habits. 'What gets measured gets managed' stuck with me. I realized I can practice this daily!`

// =========================================================================
// MESSAGE TRACKING TESTS
// =========================================================================

func TestTrackMessageAccepted(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/guilds/g1/messages", "",
		`{"userId":"u1","username":"alice","messageId":"m1","channelId":"c1","content":"`+richTakeaway+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	var result trackMessageResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !result.Tracked {
		t.Fatal("Tracked = false, want true")
	}
	// 5 base + 5 quality + 3 first post of the day.
	if result.Award.Points != 13 {
		t.Errorf("Points = %d, want 13", result.Award.Points)
	}
	if !result.Award.Bonuses.QualityBonus || !result.Award.Bonuses.DailyBonus {
		t.Errorf("Bonuses = %+v, want both", result.Award.Bonuses)
	}
}

func TestTrackMessageIneligible(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/guilds/g1/messages", "",
		`{"userId":"u1","username":"alice","content":"lol"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 for ineligible messages", resp.StatusCode)
	}

	var result trackMessageResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result.Tracked {
		t.Error("Tracked = true, want false")
	}
	if result.Award != nil {
		t.Error("Award set for ineligible message")
	}
}

func TestTrackMessageBadJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/guilds/g1/messages", "", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

// =========================================================================
// LEADERBOARD AND STATS TESTS
// =========================================================================

func TestLeaderboardsAfterAwards(t *testing.T) {
	srv, _ := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/guilds/g1/messages", "",
		`{"userId":"u1","username":"alice","content":"`+richTakeaway+`"}`)
	doJSON(t, http.MethodPost, srv.URL+"/api/guilds/g1/messages", "",
		`{"userId":"u2","username":"bob","content":"my main takeaway from chapter two is to slow down and reflect"}`)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/guilds/g1/leaderboard/weekly", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var entries []model.WeeklyLeaderboardEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatalf("decoding leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Username != "alice" {
		t.Errorf("top entry = %+v, want alice", entries[0])
	}
}

func TestWeeklyLeaderboardEmptyIsArray(t *testing.T) {
	srv, _ := newTestServer(t)

	_, body := doJSON(t, http.MethodGet, srv.URL+"/api/guilds/g1/leaderboard/weekly", "", "")
	if got := strings.TrimSpace(string(body)); got != "[]" {
		t.Errorf("empty leaderboard body = %s, want []", got)
	}
}

func TestUserStatsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/guilds/g1/users/nobody", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGuildStats(t *testing.T) {
	srv, _ := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/guilds/g1/messages", "",
		`{"userId":"u1","username":"alice","content":"`+richTakeaway+`"}`)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/guilds/g1/stats", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var stats model.EngagementStats
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats.TotalUsers != 1 || stats.TotalTakeaways != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

// =========================================================================
// ADMIN ENDPOINT TESTS
// =========================================================================

func TestAdminEndpointsRequireToken(t *testing.T) {
	srv, _ := newTestServer(t)

	endpoints := []struct {
		method, path string
	}{
		{http.MethodPost, "/api/guilds/g1/points"},
		{http.MethodPost, "/api/guilds/g1/reset"},
		{http.MethodPut, "/api/guilds/g1/book"},
		{http.MethodPut, "/api/guilds/g1/settings"},
	}
	for _, ep := range endpoints {
		resp, _ := doJSON(t, ep.method, srv.URL+ep.path, "", `{}`)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", ep.method, ep.path, resp.StatusCode)
		}
	}
}

func TestAddManualPoints(t *testing.T) {
	srv, token := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/guilds/g1/points", token,
		`{"userId":"u1","username":"alice","points":10,"reason":"contest prize"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	_, body = doJSON(t, http.MethodGet, srv.URL+"/api/guilds/g1/users/u1", "", "")
	var rec model.EngagementRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatalf("decoding record: %v", err)
	}
	if rec.LifetimePoints != 10 {
		t.Errorf("LifetimePoints = %d, want 10", rec.LifetimePoints)
	}
	if rec.WeeklyPoints != 0 {
		t.Errorf("WeeklyPoints = %d, want 0", rec.WeeklyPoints)
	}
}

func TestResetWeekly(t *testing.T) {
	srv, token := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/guilds/g1/messages", "",
		`{"userId":"u1","username":"alice","content":"`+richTakeaway+`"}`)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/guilds/g1/reset", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	var snapshot model.WeeklyLeaderboardSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if len(snapshot.Entries) != 1 {
		t.Errorf("snapshot entries = %d, want 1", len(snapshot.Entries))
	}

	_, body = doJSON(t, http.MethodGet, srv.URL+"/api/guilds/g1/leaderboard/weekly", "", "")
	if got := strings.TrimSpace(string(body)); got != "[]" {
		t.Errorf("leaderboard after reset = %s, want []", got)
	}
}

// =========================================================================
// BOOK AND SETTINGS TESTS
// =========================================================================

func TestBookLifecycle(t *testing.T) {
	srv, token := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/guilds/g1/book", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("no book yet: status = %d, want 404", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/api/guilds/g1/book", token,
		`{"title":"Deep Work","author":"Cal Newport"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set book: status = %d, body = %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPut, srv.URL+"/api/guilds/g1/book/chapter", token,
		`{"chapter":"Chapter 2"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set chapter: status = %d, body = %s", resp.StatusCode, body)
	}

	var book model.Book
	if err := json.Unmarshal(body, &book); err != nil {
		t.Fatalf("decoding book: %v", err)
	}
	if book.CurrentChapter != "Chapter 2" {
		t.Errorf("CurrentChapter = %q, want %q", book.CurrentChapter, "Chapter 2")
	}
}

func TestSetBookRequiresTitle(t *testing.T) {
	srv, token := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/guilds/g1/book", token, `{"author":"x"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDiscussionQuestionsFallback(t *testing.T) {
	srv, token := newTestServer(t)

	doJSON(t, http.MethodPut, srv.URL+"/api/guilds/g1/book", token,
		`{"title":"Deep Work","author":"Cal Newport"}`)

	// No AI client wired: defaults come back.
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/guilds/g1/book/questions", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var result struct {
		Book      string   `json:"book"`
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decoding questions: %v", err)
	}
	if result.Book != "Deep Work" || len(result.Questions) != 3 {
		t.Errorf("result = %+v", result)
	}
}

func TestSettingsPartialUpdate(t *testing.T) {
	srv, token := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/guilds/g1/settings", token,
		`{"reminderChannelId":"chan-1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first update: status = %d", resp.StatusCode)
	}

	// A second partial update must not clobber the first field.
	resp, body := doJSON(t, http.MethodPut, srv.URL+"/api/guilds/g1/settings", token,
		`{"moderatorRoleId":"role-1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second update: status = %d", resp.StatusCode)
	}

	var settings model.GuildSettings
	if err := json.Unmarshal(body, &settings); err != nil {
		t.Fatalf("decoding settings: %v", err)
	}
	if settings.ReminderChannelID != "chan-1" || settings.ModeratorRoleID != "role-1" {
		t.Errorf("settings = %+v", settings)
	}
}
