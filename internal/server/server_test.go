package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multiplier-synth/multiplier-api/internal/access"
	"github.com/multiplier-synth/multiplier-api/internal/account"
	"github.com/multiplier-synth/multiplier-api/internal/auth"
	"github.com/multiplier-synth/multiplier-api/internal/config"
	"github.com/multiplier-synth/multiplier-api/internal/database/dbtest"
	"github.com/multiplier-synth/multiplier-api/internal/logger"
	"github.com/multiplier-synth/multiplier-api/internal/records"
)

type testEnv struct {
	srv      *Server
	accounts *account.Store
	nonces   *auth.NonceManager
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	db := dbtest.Open(t)
	log := logger.Nop()
	accounts := account.NewStore(db)
	nonces := auth.NewNonceManager("test-secret", time.Hour)
	recs := records.New(db, records.Options{OwnedDeletesOnly: cfg.OwnedDeletesOnly})
	classifier := access.NewClassifier(accounts, nil, log)
	return &testEnv{
		srv:      New(cfg, log, db, accounts, recs, classifier, nonces),
		accounts: accounts,
		nonces:   nonces,
	}
}

func (e *testEnv) createUser(t *testing.T, login string, admin bool) (*account.User, string) {
	t.Helper()
	u, err := e.accounts.Create(context.Background(), account.CreateParams{
		Login:    login,
		Password: "pw-" + login,
		IsAdmin:  admin,
	})
	require.NoError(t, err)
	tok, err := e.nonces.Issue(u.ID)
	require.NoError(t, err)
	return u, tok
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(auth.Header, token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestProtectedRoutesRequireNonce(t *testing.T) {
	env := newTestEnv(t, nil)
	routes := []struct{ method, path string }{
		{http.MethodGet, "/login-status"},
		{http.MethodPost, "/freq-arrays"},
		{http.MethodDelete, "/freq-arrays/delete/1"},
		{http.MethodPost, "/index-arrays"},
		{http.MethodDelete, "/index-arrays/delete/1"},
		{http.MethodPost, "/presets"},
		{http.MethodDelete, "/presets/delete/1"},
	}
	for _, r := range routes {
		for _, tok := range []string{"", "garbage"} {
			rec := env.do(t, r.method, Prefix+r.path, tok, "")
			require.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", r.method, r.path)
			body := decode[errorBody](t, rec)
			assert.Equal(t, "rest_forbidden", body.Code)
			assert.Equal(t, http.StatusUnauthorized, body.Data.Status)
		}
	}
}

func TestSession(t *testing.T) {
	env := newTestEnv(t, &config.Config{RestURL: "https://synth.example.com/multiplier-api/v1/"})
	u, _ := env.createUser(t, "alice", false)

	rec := env.do(t, http.MethodPost, Prefix+"/session", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	anon := decode[sessionResponse](t, rec)
	assert.Equal(t, int64(0), anon.UserID)
	assert.Equal(t, "https://synth.example.com/multiplier-api/v1", anon.RestURL)
	assert.Equal(t, anon.Nonce, rec.Header().Get(auth.Header))
	sess, err := env.nonces.Validate(anon.Nonce)
	require.NoError(t, err)
	assert.False(t, sess.LoggedIn())

	rec = env.do(t, http.MethodPost, Prefix+"/session", "", `{"login":"Alice","password":"pw-alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[sessionResponse](t, rec)
	assert.Equal(t, u.ID, got.UserID)

	rec = env.do(t, http.MethodPost, Prefix+"/session", "", `{"login":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", decode[errorBody](t, rec).Code)

	rec = env.do(t, http.MethodPost, Prefix+"/session", "", `{"login":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decode[errorBody](t, rec).Code)
}

func TestLoginStatus(t *testing.T) {
	env := newTestEnv(t, nil)

	anonTok, err := env.nonces.Issue(0)
	require.NoError(t, err)
	rec := env.do(t, http.MethodGet, Prefix+"/login-status", anonTok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	anon := decode[access.Status](t, rec)
	assert.False(t, anon.LoggedIn)
	assert.Equal(t, access.TierNone, anon.Tier)

	u, tok := env.createUser(t, "bob", false)
	require.NoError(t, env.accounts.SetMeta(context.Background(), u.ID, access.MetaPledgeCents, "500"))
	rec = env.do(t, http.MethodGet, Prefix+"/login-status", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[access.Status](t, rec)
	assert.True(t, st.LoggedIn)
	assert.Equal(t, u.ID, st.UserID)
	assert.Equal(t, access.TierThreeOrHigher, st.Tier)
	assert.True(t, st.PatreonLoggedIn)

	_, adminTok := env.createUser(t, "root", true)
	rec = env.do(t, http.MethodGet, Prefix+"/login-status", adminTok, "")
	st = decode[access.Status](t, rec)
	assert.True(t, st.IsAdmin)
	assert.Equal(t, access.TierAllAccess, st.Tier)

	ghostTok, err := env.nonces.Issue(9999)
	require.NoError(t, err)
	rec = env.do(t, http.MethodGet, Prefix+"/login-status", ghostTok, "")
	st = decode[access.Status](t, rec)
	assert.False(t, st.LoggedIn)
	assert.Equal(t, int64(0), st.UserID)
}

func TestFreqArrayFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	u, tok := env.createUser(t, "carol", false)

	body := `{"name":"Pad","preset_number":"2","base_freq":110,"multiplier":1.5,"params_json":{"wave":"sine","harmonics":[1,2,3]}}`
	rec := env.do(t, http.MethodPost, Prefix+"/freq-arrays", tok, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[records.FreqArrayResult](t, rec)
	assert.True(t, first.Success)
	assert.Nil(t, first.Row)
	require.Len(t, first.UpdatedData, 1)
	assert.Equal(t, u.ID, first.UpdatedData[0].UserID)

	body = `{"name":"Pad 2","preset_number":2,"base_freq":220,"multiplier":2,"params_json":{"wave":"saw"}}`
	rec = env.do(t, http.MethodPost, Prefix+"/freq-arrays", tok, body)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[records.FreqArrayResult](t, rec)
	require.NotNil(t, second.Row)
	assert.Equal(t, "Pad", second.Row.Name)
	assert.Equal(t, first.ArrayID, second.ArrayID)
	require.Len(t, second.UpdatedData, 1)
	assert.Equal(t, map[string]any{"wave": "saw"}, second.UpdatedData[0].ParamsJSON)

	rec = env.do(t, http.MethodGet, Prefix+"/freq-arrays/"+itoa(u.ID), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]records.FrequencyArray](t, rec), 1)

	rec = env.do(t, http.MethodGet, Prefix+"/freq-arrays", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]records.FrequencyArray](t, rec), 1)

	rec = env.do(t, http.MethodGet, Prefix+"/freq-arrays/424242", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestUpsertValidationErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	_, tok := env.createUser(t, "dave", false)

	rec := env.do(t, http.MethodPost, Prefix+"/freq-arrays", tok, `{"preset_number":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "missing_data", body.Code)
	assert.Equal(t, "Missing field: name", body.Message)
	assert.Equal(t, http.StatusBadRequest, body.Data.Status)

	rec = env.do(t, http.MethodPost, Prefix+"/presets", tok, `{"name":"Lead","preset_number":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing field: params_json", decode[errorBody](t, rec).Message)

	rec = env.do(t, http.MethodPost, Prefix+"/presets", tok, `{"name":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decode[errorBody](t, rec).Code)

	anonTok, err := env.nonces.Issue(0)
	require.NoError(t, err)
	rec = env.do(t, http.MethodPost, Prefix+"/presets", anonTok, `{"name":"Lead","preset_number":1,"params_json":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing field: user_id", decode[errorBody](t, rec).Message)
}

func TestNonFiniteFrequencyIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	u, tok := env.createUser(t, "ivy", false)

	for _, value := range []string{`"Infinity"`, `"NaN"`} {
		body := `{"name":"Pad","preset_number":1,"base_freq":` + value + `,"multiplier":1,"params_json":{}}`
		rec := env.do(t, http.MethodPost, Prefix+"/freq-arrays", tok, body)
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		assert.Equal(t, "missing_data", decode[errorBody](t, rec).Code)
	}

	rec := env.do(t, http.MethodGet, Prefix+"/freq-arrays/"+itoa(u.ID), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = env.do(t, http.MethodGet, Prefix+"/freq-arrays", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestDeleteWithTokenOfRemovedUser(t *testing.T) {
	env := newTestEnv(t, nil)
	_, tok := env.createUser(t, "jack", false)

	rec := env.do(t, http.MethodPost, Prefix+"/presets", tok, `{"name":"Keep","preset_number":2,"params_json":{}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	created := decode[records.PresetResult](t, rec)

	ghostTok, err := env.nonces.Issue(9999)
	require.NoError(t, err)
	rec = env.do(t, http.MethodDelete, Prefix+"/presets/delete/"+itoa(created.PresetID), ghostTok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_logged_in":false}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, Prefix+"/presets/"+itoa(created.UpdatedData[0].UserID), "", "")
	assert.Len(t, decode[[]records.Preset](t, rec), 1)
}

func TestPresetAndIndexArrayFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	u, tok := env.createUser(t, "erin", false)

	rec := env.do(t, http.MethodPost, Prefix+"/presets", tok, `{"name":"Bell","preset_number":0,"params_json":[1,2]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preset := decode[records.PresetResult](t, rec)
	assert.True(t, preset.Success)
	assert.NotZero(t, preset.PresetID)

	for i := 0; i < 2; i++ {
		rec = env.do(t, http.MethodPost, Prefix+"/index-arrays", tok, `{"index_array":"[0,3,5]","name":"Arp","preset_number":0}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	idx := decode[records.IndexArrayResult](t, rec)
	assert.Len(t, idx.UpdatedData, 2)

	rec = env.do(t, http.MethodGet, Prefix+"/index-arrays/"+itoa(u.ID), "", "")
	assert.Len(t, decode[[]records.IndexArray](t, rec), 2)

	rec = env.do(t, http.MethodPost, Prefix+"/index-arrays", tok, `{"name":"Arp","preset_number":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Message, "index_array")

	rec = env.do(t, http.MethodGet, Prefix+"/presets/"+itoa(u.ID), "", "")
	presets := decode[[]records.Preset](t, rec)
	require.Len(t, presets, 1)
	assert.Equal(t, []any{1.0, 2.0}, presets[0].ParamsJSON)
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	_, tok := env.createUser(t, "frank", false)

	rec := env.do(t, http.MethodPost, Prefix+"/presets", tok, `{"name":"Bass","preset_number":4,"params_json":{}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	created := decode[records.PresetResult](t, rec)

	rec = env.do(t, http.MethodDelete, Prefix+"/presets/delete/987654", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	noop := decode[records.DeleteResult[records.Preset]](t, rec)
	assert.True(t, noop.Success)
	assert.Len(t, noop.UpdatedData, 1)

	rec = env.do(t, http.MethodDelete, Prefix+"/presets/delete/"+itoa(created.PresetID), tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"updated_data":[]}`, rec.Body.String())

	anonTok, err := env.nonces.Issue(0)
	require.NoError(t, err)
	rec = env.do(t, http.MethodDelete, Prefix+"/freq-arrays/delete/1", anonTok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_logged_in":false}`, rec.Body.String())

	rec = env.do(t, http.MethodDelete, Prefix+"/index-arrays/delete/abc", tok, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errorBody](t, rec).Code)
}

func TestOwnedDeletesOnly(t *testing.T) {
	env := newTestEnv(t, &config.Config{OwnedDeletesOnly: true})
	_, ownerTok := env.createUser(t, "gina", false)
	_, otherTok := env.createUser(t, "hank", false)

	rec := env.do(t, http.MethodPost, Prefix+"/index-arrays", ownerTok, `{"index_array":"[1]","name":"Mine","preset_number":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	created := decode[records.IndexArrayResult](t, rec)

	rec = env.do(t, http.MethodDelete, Prefix+"/index-arrays/delete/"+itoa(created.ArrayID), otherTok, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, Prefix+"/index-arrays/delete/"+itoa(created.ArrayID), ownerTok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[records.DeleteResult[records.IndexArray]](t, rec).UpdatedData, "owner's delete removes the row")
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, Prefix+"/presets/not-a-number", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, Prefix+"/nothing-here", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errorBody](t, rec).Code)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, &config.Config{AllowedOrigins: []string{"https://synth.example.com"}})
	req := httptest.NewRequest(http.MethodOptions, Prefix+"/presets", nil)
	req.Header.Set("Origin", "https://synth.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "https://synth.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), auth.Header)
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestCORSDisabledWithoutOrigins(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, Prefix+"/freq-arrays", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
