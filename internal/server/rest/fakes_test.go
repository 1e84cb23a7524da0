package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/cryptox"
	"github.com/dmitrijs2005/journalkeeper/internal/logging"
	"github.com/dmitrijs2005/journalkeeper/internal/server/auth"
	"github.com/dmitrijs2005/journalkeeper/internal/server/models"
	"github.com/dmitrijs2005/journalkeeper/internal/server/services"
)

const testSecret = "secret"

type fakeUsers struct {
	registered api.RegisterRequest
	putKeys    api.UpdateKeysRequest
	keysUser   string
	err        error
}

func (f *fakeUsers) Register(ctx context.Context, req api.RegisterRequest) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.registered = req
	return &models.User{ID: "u1", UserName: req.Username, Tier: req.Material.Tier}, nil
}

func (f *fakeUsers) GetSalt(ctx context.Context, userName string) ([]byte, cryptox.KDFParams, error) {
	return []byte("salt-" + userName), cryptox.DefaultKDFParams, f.err
}

func (f *fakeUsers) Login(ctx context.Context, userName string, verifier []byte) (*services.TokenPair, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.TokenPair{UserID: "u1", AccessToken: "a", RefreshToken: "r"}, nil
}

func (f *fakeUsers) RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.TokenPair{UserID: "u1", AccessToken: "a2", RefreshToken: refreshToken + "-next"}, nil
}

func (f *fakeUsers) GetKeys(ctx context.Context, userID string) (api.KeyMaterial, error) {
	f.keysUser = userID
	return api.KeyMaterial{Tier: "e2e", PublicKey: []byte{1, 2}}, f.err
}

func (f *fakeUsers) PutKeys(ctx context.Context, userID string, req api.UpdateKeysRequest) error {
	f.keysUser = userID
	f.putKeys = req
	return f.err
}

func (f *fakeUsers) Recover(ctx context.Context, userName, code string) (*services.TokenPair, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.TokenPair{UserID: "u1", AccessToken: "a", RefreshToken: "r"}, nil
}

type fakeEntries struct {
	created   bool
	err       error
	gotUser   string
	gotID     string
	gotSince  int64
	gotLimit  int
	gotPushed []api.Entry
	page      *services.SyncPage
}

func (f *fakeEntries) Create(ctx context.Context, userID string, in api.Entry) (*models.Entry, bool, error) {
	f.gotUser = userID
	if f.err != nil {
		return nil, false, f.err
	}
	e := models.EntryFromAPI(in)
	e.ID = "srv-1"
	e.SyncedAt = 1
	return e, f.created, nil
}

func (f *fakeEntries) Update(ctx context.Context, userID, id string, in api.Entry) (*models.Entry, error) {
	f.gotUser, f.gotID = userID, id
	if f.err != nil {
		return nil, f.err
	}
	e := models.EntryFromAPI(in)
	e.ID = id
	return e, nil
}

func (f *fakeEntries) Delete(ctx context.Context, userID, id string) error {
	f.gotUser, f.gotID = userID, id
	return f.err
}

func (f *fakeEntries) Restore(ctx context.Context, userID, id string) (*models.Entry, error) {
	f.gotUser, f.gotID = userID, id
	if f.err != nil {
		return nil, f.err
	}
	return &models.Entry{ID: id, ClientID: "c1", Content: "env", Mood: "neutral", SyncedAt: 9}, nil
}

func (f *fakeEntries) Sync(ctx context.Context, userID string, since int64, limit int, pushed []api.Entry) (*services.SyncPage, error) {
	f.gotUser, f.gotSince, f.gotLimit, f.gotPushed = userID, since, limit, pushed
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

type fakeMedia struct {
	err     error
	gotUser string
	gotID   string
}

func (f *fakeMedia) Register(ctx context.Context, userID string, req api.MediaRegisterRequest) (*services.Registration, error) {
	f.gotUser = userID
	if f.err != nil {
		return nil, f.err
	}
	return &services.Registration{
		Media:     &models.Media{ID: req.ClientID, ObjectKey: userID + "/2024/05/" + req.ClientID},
		UploadURL: "https://s3/put",
	}, nil
}

func (f *fakeMedia) Complete(ctx context.Context, userID, id string) error {
	f.gotUser, f.gotID = userID, id
	return f.err
}

func (f *fakeMedia) DownloadURL(ctx context.Context, userID, id string) (string, error) {
	f.gotUser, f.gotID = userID, id
	return "https://s3/get/" + id, f.err
}

type testServer struct {
	srv     *HTTPServer
	users   *fakeUsers
	entries *fakeEntries
	media   *fakeMedia
	h       http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{users: &fakeUsers{}, entries: &fakeEntries{}, media: &fakeMedia{}}
	ts.srv = NewHTTPServer("127.0.0.1:0", logging.Nop{}, ts.users, ts.entries, ts.media, testSecret, Options{AuthPerMinute: 1000})
	ts.h = ts.srv.Handler()
	return ts
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, []byte(testSecret), time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return "Bearer " + tok
}

// do sends body (if any) to path below the API base and returns the recorder.
func (ts *testServer) do(t *testing.T, method, path, body, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, api.BasePath+path, nil)
	} else {
		req = httptest.NewRequest(method, api.BasePath+path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, req)
	return rec
}
