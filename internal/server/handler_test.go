package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/execute007/x1punks/internal/config"
	"github.com/execute007/x1punks/internal/ledger"
	"github.com/execute007/x1punks/internal/pipeline"
	"github.com/execute007/x1punks/internal/punks"
	"github.com/execute007/x1punks/internal/state"
	"github.com/execute007/x1punks/internal/wallet"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedMintState writes a mint-state document where every id except the
// given ones is already minted, so allocation can only hand out those.
func seedMintState(t *testing.T, path string, available ...int) {
	t.Helper()

	open := make(map[int]bool, len(available))
	for _, id := range available {
		open[id] = true
	}
	var ids []int
	for i := 0; i < config.TotalSupply; i++ {
		if !open[i] {
			ids = append(ids, i)
		}
	}
	doc := map[string]interface{}{
		"mintedCount": len(ids),
		"mintedIds":   ids,
		"mints":       []state.MintRecord{},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
}

// newTestServer wires a server over a mock ledger. Only the listed punk
// ids remain unminted, and each has a generated image.
func newTestServer(t *testing.T, available ...int) (*Server, *ledger.MockClient) {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.GeneratedDir = filepath.Join(dir, "generated")
	cfg.PublicDir = filepath.Join(dir, "public")
	require.NoError(t, os.MkdirAll(cfg.GeneratedDir, 0o755))
	require.NoError(t, os.MkdirAll(cfg.PublicDir, 0o755))
	for _, id := range available {
		data := []byte(fmt.Sprintf("image-%d", id))
		require.NoError(t, os.WriteFile(punks.ImagePath(cfg.GeneratedDir, id), data, 0o644))
	}

	seedMintState(t, cfg.StatePath(), available...)
	mints, err := state.OpenMintState(cfg.StatePath())
	require.NoError(t, err)
	index, err := state.OpenInscriptionIndex(cfg.InscriptionsPath(), config.ProgramName)
	require.NoError(t, err)
	manifest, err := state.OpenManifest(cfg.ManifestPath())
	require.NoError(t, err)
	traits, err := punks.LoadTraits(filepath.Join(dir, "missing.csv"))
	require.NoError(t, err)
	payer, err := wallet.Generate()
	require.NoError(t, err)

	mock := ledger.NewMockClient()
	pipe := pipeline.New(cfg, mock, payer, traits, manifest, discardLogger())
	return New(cfg, mints, index, pipe, traits, discardLogger()), mock
}

func postInscribe(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/inscribe", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestInscribe_FullSuccess(t *testing.T) {
	srv, mock := newTestServer(t, 100, 200, 300)
	h := srv.Handler()

	rr := postInscribe(t, h, `{"wallet":"buyer","quantity":2,"txSignature":"paysig"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Nil(t, body["partial"])
	minted := body["minted"].([]interface{})
	require.Len(t, minted, 2)
	assert.EqualValues(t, 9999, body["totalMinted"])

	first := minted[0].(map[string]interface{})
	assert.Equal(t, "buyer", first["owner"])
	assert.Equal(t, "paysig", first["txSignature"])
	assert.Equal(t, true, first["onChain"])
	assert.NotEmpty(t, first["mintAddress"])

	// Two asset records minted, four allocations, two memos.
	assert.Len(t, mock.AssetRecords, 2)
	assert.Len(t, mock.Allocations, 4)
	assert.Equal(t, 2, mock.SelfTransfers)
	assert.Equal(t, 2, srv.index.Count())
}

func TestInscribe_SoldOut(t *testing.T) {
	srv, _ := newTestServer(t) // nothing available
	h := srv.Handler()

	rr := postInscribe(t, h, `{"wallet":"buyer","quantity":1,"txSignature":"sig"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, "Sold out!", body["error"])
	assert.Empty(t, body["partialMinted"])
}

func TestInscribe_SoldOutMidBatchKeepsPartial(t *testing.T) {
	srv, _ := newTestServer(t, 7) // one punk left
	h := srv.Handler()

	rr := postInscribe(t, h, `{"wallet":"buyer","quantity":3,"txSignature":"sig"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, "Sold out!", body["error"])
	partial := body["partialMinted"].([]interface{})
	require.Len(t, partial, 1)
	assert.EqualValues(t, 7, partial[0].(map[string]interface{})["id"])

	// The completed mint survived.
	assert.Equal(t, 10000, srv.mints.Count())
	assert.Equal(t, 1, srv.index.Count())
}

func TestInscribe_PartialBatchFailure(t *testing.T) {
	srv, mock := newTestServer(t, 10, 20, 30)
	mock.Err = assert.AnError
	mock.FailAssetAfter = 1
	h := srv.Handler()

	rr := postInscribe(t, h, `{"wallet":"buyer","quantity":3,"txSignature":"sig"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["partial"])
	assert.EqualValues(t, 3, body["requested"])
	assert.EqualValues(t, 1, body["completed"])
	require.Len(t, body["minted"].([]interface{}), 1)
	assert.Contains(t, body["error"], "Completed 1/3. Failed on punk #")
	assert.Contains(t, body["error"], "create nft")
}

func TestInscribe_TotalFailure(t *testing.T) {
	srv, mock := newTestServer(t, 10)
	mock.Err = assert.AnError
	mock.FailOn = "CreateAssetRecord"
	h := srv.Handler()

	rr := postInscribe(t, h, `{"wallet":"buyer","quantity":1,"txSignature":"sig"}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	body := decodeBody(t, rr)
	assert.Contains(t, body["error"], "Inscription failed:")
	assert.EqualValues(t, 10, body["punkId"])
	assert.Equal(t, 9999, srv.mints.Count())
}

func TestInscribe_FailedPunkCanBeRetried(t *testing.T) {
	srv, mock := newTestServer(t, 10)
	mock.Err = assert.AnError
	mock.FailOn = "CreateAssetRecord"
	h := srv.Handler()

	rr := postInscribe(t, h, `{"wallet":"buyer","quantity":1,"txSignature":"sig"}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	// The reservation was released; the same punk mints on retry.
	mock.Err = nil
	mock.FailOn = ""
	rr = postInscribe(t, h, `{"wallet":"buyer","quantity":1,"txSignature":"sig"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 10000, srv.mints.Count())
}

func TestInscribe_ValidatesInput(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	h := srv.Handler()

	rr := postInscribe(t, h, `{"wallet":"buyer","quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], "Missing required fields")

	rr = postInscribe(t, h, `{"wallet":"buyer","quantity":11,"txSignature":"sig"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Quantity must be 1-10", decodeBody(t, rr)["error"])

	rr = postInscribe(t, h, `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMints_IncludesImageURLs(t *testing.T) {
	srv, _ := newTestServer(t, 5)
	h := srv.Handler()

	postInscribe(t, h, `{"wallet":"buyer","quantity":1,"txSignature":"sig"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/mints", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, config.ProgramName, body["program"])
	assert.EqualValues(t, config.TotalSupply, body["totalSupply"])
	assert.EqualValues(t, 10000, body["mintedCount"])
	mints := body["mints"].([]interface{})
	require.Len(t, mints, 1)
	rec := mints[0].(map[string]interface{})
	// No manifest entry: the fallback URL is served.
	assert.Equal(t, srv.cfg.FallbackImage(5), rec["imageUrl"])
}

func TestProgramEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/program", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, config.ProgramName, body["program"])
	assert.Equal(t, "metaplex-inscription", body["protocol"])
	assert.Equal(t, "x1", body["chain"])
	assert.EqualValues(t, 9999, body["mintedCount"])
	assert.EqualValues(t, 0, body["inscribedCount"])
	assert.Nil(t, body["lastUpdated"])
}

func TestInscriptionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, 8)
	h := srv.Handler()

	// Before inscribing: image embedded, not inscribed.
	req := httptest.NewRequest(http.MethodGet, "/api/inscription/8", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, false, body["inscribed"])
	assert.Nil(t, body["onChain"])
	assert.Contains(t, body["image"], "data:image/png;base64,")
	assert.EqualValues(t, len("image-8"), body["imageSize"])
	meta := body["metadata"].(map[string]interface{})
	assert.Equal(t, "X1 Punk #8", meta["name"])

	postInscribe(t, h, `{"wallet":"buyer","quantity":1,"txSignature":"sig"}`)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	body = decodeBody(t, rr)
	assert.Equal(t, true, body["inscribed"])
	onChain := body["onChain"].(map[string]interface{})
	assert.NotEmpty(t, onChain["mintAddress"])
	assert.NotEmpty(t, onChain["memoSignature"])
}

func TestInscriptionEndpoint_InvalidID(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	for _, path := range []string{"/api/inscription/abc", "/api/inscription/-1", "/api/inscription/10000", "/api/image/99999"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
		assert.Equal(t, "Invalid punk ID", decodeBody(t, rr)["error"])
	}
}

func TestImageEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, 3)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/image/3", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.EqualValues(t, 3, body["punkId"])
	assert.Equal(t, srv.cfg.FallbackImage(3), body["imageUrl"])
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/mints", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}
