package tasks

import (
	"crypto"
	"crypto/aes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gamelinkhq/gamelink/internal/artwork"
	"github.com/gamelinkhq/gamelink/internal/config"
	"github.com/gamelinkhq/gamelink/internal/hostdb"
	"github.com/gamelinkhq/gamelink/internal/identity"
	"github.com/gamelinkhq/gamelink/internal/locale"
	"github.com/gamelinkhq/gamelink/internal/nvhttp"
	"github.com/gamelinkhq/gamelink/internal/registry"
	"github.com/gamelinkhq/gamelink/internal/session"
)

func testIdentity(t *testing.T) *identity.Manager {
	t.Helper()
	store, err := config.Load(filepath.Join(t.TempDir(), "general.json"))
	require.NoError(t, err)
	id, err := identity.Load(store)
	require.NoError(t, err)
	return id
}

func testManager(t *testing.T) (*Manager, *registry.Registry, *artwork.Manager) {
	t.Helper()
	id := testIdentity(t)
	reg := registry.New(filepath.Join(t.TempDir(), "hosts.ini"), id)
	t.Cleanup(reg.Close)
	art := artwork.NewManager(t.TempDir(), id)
	t.Cleanup(art.Close)
	m := NewManager(reg, id, art, session.NewManager(nil), nil, nil, "test-device")
	return m, reg, art
}

func addrOf(t *testing.T, raw string) nvhttp.Address {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return nvhttp.Address{Host: u.Hostname(), Port: uint16(port)}
}

func waitResult(t *testing.T, m *Manager, taskID string) Result {
	t.Helper()
	var res Result
	require.Eventually(t, func() bool {
		r, ok := m.TaskResult(taskID)
		res = r
		return ok && r.Completed
	}, 10*time.Second, 20*time.Millisecond)
	return res
}

func TestGeneratePIN(t *testing.T) {
	for i := 0; i < 32; i++ {
		pin := GeneratePIN()
		require.Len(t, pin, 4)
		_, err := strconv.Atoi(pin)
		require.NoError(t, err)
	}
}

func TestTaskResultUnknown(t *testing.T) {
	m, _, _ := testManager(t)
	_, ok := m.TaskResult("no-such-task")
	require.False(t, ok)
}

func TestParseAddress(t *testing.T) {
	require.Equal(t, nvhttp.Address{Host: "192.168.1.5", Port: 47989}, parseAddress("192.168.1.5"))
	require.Equal(t, nvhttp.Address{Host: "192.168.1.5", Port: 48989}, parseAddress("192.168.1.5:48989"))
	require.Equal(t, nvhttp.Address{Host: "fd00::9", Port: 47989}, parseAddress("[fd00::9]"))
	require.Equal(t, nvhttp.Address{Host: "fd00::9", Port: 48010}, parseAddress("[fd00::9]:48010"))
	require.Equal(t, nvhttp.Address{Host: "pc.local", Port: 47989}, parseAddress(" pc.local "))
}

func TestAddHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<root status_code="200">
			<hostname>new-pc</hostname>
			<uniqueid>add-uuid</uniqueid>
			<state>MJOLNIR_STATE_SERVER_AVAILABLE</state>
			<PairStatus>0</PairStatus>
		</root>`)
	}))
	defer srv.Close()

	m, reg, _ := testManager(t)
	addr := addrOf(t, srv.URL)
	raw := fmt.Sprintf("%s:%d", addr.Host, addr.Port)

	taskID, err := m.StartAdd(raw)
	require.NoError(t, err)
	res := waitResult(t, m, taskID)
	require.True(t, res.Succeeded)

	host, ok := reg.Get("add-uuid")
	require.True(t, ok)
	host.RLock()
	defer host.RUnlock()
	require.Equal(t, "new-pc", host.Name)
	require.Equal(t, addr, host.ManualAddress)
	require.Equal(t, hostdb.StateOnline, host.State)
}

func TestAddKeepsPairedState(t *testing.T) {
	// Over plain HTTP the host reports itself unpaired; only the mutual
	// TLS channel shows the real pair status. Re-adding a paired host by
	// address must not lose that status.
	tlsSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<root status_code="200">
			<hostname>known-pc</hostname>
			<uniqueid>readd-uuid</uniqueid>
			<state>MJOLNIR_STATE_SERVER_AVAILABLE</state>
			<PairStatus>1</PairStatus>
		</root>`)
	}))
	defer tlsSrv.Close()
	tlsAddr := addrOf(t, tlsSrv.URL)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<root status_code="200">
			<hostname>known-pc</hostname>
			<uniqueid>readd-uuid</uniqueid>
			<state>MJOLNIR_STATE_SERVER_AVAILABLE</state>
			<PairStatus>0</PairStatus>
			<HttpsPort>%d</HttpsPort>
		</root>`, tlsAddr.Port)
	}))
	defer srv.Close()
	addr := addrOf(t, srv.URL)

	m, reg, _ := testManager(t)
	reg.Upsert(&hostdb.Host{
		UUID:       "readd-uuid",
		Name:       "known-pc",
		State:      hostdb.StateOnline,
		PairState:  hostdb.Paired,
		ServerCert: []byte("CERT"),
	})

	taskID, err := m.StartAdd(fmt.Sprintf("%s:%d", addr.Host, addr.Port))
	require.NoError(t, err)
	res := waitResult(t, m, taskID)
	require.True(t, res.Succeeded)

	host, ok := reg.Get("readd-uuid")
	require.True(t, ok)
	host.RLock()
	defer host.RUnlock()
	require.Equal(t, hostdb.Paired, host.PairState)
}

func TestAddHostUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := addrOf(t, srv.URL)
	srv.Close()

	m, _, _ := testManager(t)
	raw := fmt.Sprintf("%s:%d", addr.Host, addr.Port)
	taskID, err := m.StartAdd(raw)
	require.NoError(t, err)
	res := waitResult(t, m, taskID)
	require.False(t, res.Succeeded)
	require.Equal(t, locale.MsgAddConnectFailed, res.Message)
}

func TestStartPairPreconditions(t *testing.T) {
	m, reg, _ := testManager(t)

	_, err := m.StartPair("missing", "1234", false)
	require.EqualError(t, err, locale.MsgHostNotExist)

	reg.Upsert(&hostdb.Host{UUID: "offline", State: hostdb.StateOffline})
	_, err = m.StartPair("offline", "1234", false)
	require.EqualError(t, err, locale.MsgPairHostOffline)

	reg.Upsert(&hostdb.Host{UUID: "paired", State: hostdb.StateOnline, PairState: hostdb.Paired})
	_, err = m.StartPair("paired", "1234", false)
	require.EqualError(t, err, locale.MsgPairAlreadyPaired)

	reg.Upsert(&hostdb.Host{UUID: "busy", State: hostdb.StateOnline,
		PairState: hostdb.NotPaired, CurrentGameID: 17})
	_, err = m.StartPair("busy", "1234", false)
	require.EqualError(t, err, locale.MsgPairSessionRunning)

	reg.Upsert(&hostdb.Host{UUID: "fed", State: hostdb.StateOnline, PairState: hostdb.NotPaired})
	_, err = m.StartPair("fed", "1234", true)
	require.EqualError(t, err, locale.MsgPairIdentityFailed)
}

func TestStartDelete(t *testing.T) {
	m, reg, art := testManager(t)
	reg.Upsert(&hostdb.Host{UUID: "del-uuid", Name: "PC"})
	require.NoError(t, art.Purge("del-uuid")) // path is exercised below

	taskID, err := m.StartDelete("del-uuid")
	require.NoError(t, err)
	res := waitResult(t, m, taskID)
	require.True(t, res.Succeeded)

	_, ok := reg.Get("del-uuid")
	require.False(t, ok)

	_, err = m.StartDelete("del-uuid")
	require.EqualError(t, err, locale.MsgHostNotExist)
}

func TestStartQuitPreconditions(t *testing.T) {
	m, reg, _ := testManager(t)

	_, err := m.StartQuit("missing")
	require.EqualError(t, err, locale.MsgHostNotExist)

	reg.Upsert(&hostdb.Host{UUID: "unpaired", State: hostdb.StateOnline, PairState: hostdb.NotPaired})
	_, err = m.StartQuit("unpaired")
	require.EqualError(t, err, locale.MsgStreamHostOffline)
}

func TestQuitNotOwner(t *testing.T) {
	// The host keeps reporting the game running after acknowledging the
	// quit, meaning another client owns the session.
	var tlsSrv *httptest.Server
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cancel":
			fmt.Fprint(w, `<root status_code="200"/>`)
		case "/serverinfo":
			fmt.Fprint(w, `<root status_code="200">
				<hostname>pc</hostname>
				<uniqueid>quit-uuid</uniqueid>
				<state>MJOLNIR_STATE_SERVER_BUSY</state>
				<currentgame>17</currentgame>
				<PairStatus>1</PairStatus>
			</root>`)
		case "/applist":
			fmt.Fprint(w, `<root status_code="200"/>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	tlsSrv = httptest.NewTLSServer(handler)
	defer tlsSrv.Close()
	tlsAddr := addrOf(t, tlsSrv.URL)

	m, reg, _ := testManager(t)
	host := &hostdb.Host{
		UUID:            "quit-uuid",
		State:           hostdb.StateOnline,
		PairState:       hostdb.Paired,
		CurrentGameID:   17,
		ActiveAddress:   nvhttp.Address{Host: tlsAddr.Host, Port: 47989},
		ActiveHTTPSPort: tlsAddr.Port,
		ServerCert:      []byte("CERT"),
	}
	reg.Upsert(host)

	taskID, err := m.StartQuit("quit-uuid")
	require.NoError(t, err)
	res := waitResult(t, m, taskID)
	require.False(t, res.Succeeded)
	require.Equal(t, locale.MsgQuitNotOwner, res.Message)

	host.RLock()
	defer host.RUnlock()
	require.False(t, host.PendingQuit)
}

// pairServer implements the host side of the PIN exchange with real
// crypto so the full pair task can run end to end.
type pairServer struct {
	t       *testing.T
	key     *rsa.PrivateKey
	certPEM []byte
	certSig []byte
	pin     string

	serverSecret    []byte
	serverChallenge []byte
	aesKey          []byte
	paired          atomic.Bool
}

func newPairServer(t *testing.T, pin string) *pairServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := x509.Certificate{
		SerialNumber:       big.NewInt(0),
		Subject:            pkix.Name{CommonName: "pair host"},
		NotBefore:          time.Now(),
		NotAfter:           time.Now().AddDate(1, 0, 0),
		SignatureAlgorithm: x509.SHA256WithRSA,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &pairServer{
		t:               t,
		key:             key,
		certPEM:         pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		certSig:         cert.Signature,
		pin:             pin,
		serverSecret:    []byte("server-secret-16"),
		serverChallenge: []byte("server-challng16"),
	}
}

func (s *pairServer) aesECB(data []byte, encrypt bool) []byte {
	s.t.Helper()
	block, err := aes.NewCipher(s.aesKey)
	require.NoError(s.t, err)
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += 16 {
		if encrypt {
			block.Encrypt(out[i:i+16], data[i:i+16])
		} else {
			block.Decrypt(out[i:i+16], data[i:i+16])
		}
	}
	return out
}

func (s *pairServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ok := func(inner string) {
		fmt.Fprintf(w, `<root status_code="200"><paired>1</paired>%s</root>`, inner)
	}
	switch r.URL.Path {
	case "/serverinfo":
		pairStatus := "0"
		if s.paired.Load() {
			pairStatus = "1"
		}
		fmt.Fprintf(w, `<root status_code="200">
			<hostname>pc</hostname>
			<uniqueid>pair-uuid</uniqueid>
			<state>MJOLNIR_STATE_SERVER_AVAILABLE</state>
			<PairStatus>%s</PairStatus>
			<appversion>7.1.431.0</appversion>
		</root>`, pairStatus)
		return
	case "/applist":
		fmt.Fprint(w, `<root status_code="200"/>`)
		return
	case "/unpair":
		fmt.Fprint(w, `<root status_code="200"/>`)
		return
	}

	q := r.URL.Query()
	switch {
	case q.Get("phrase") == "getservercert":
		salt, err := hex.DecodeString(q.Get("salt"))
		require.NoError(s.t, err)
		keyMat := sha256.Sum256(append(salt, []byte(s.pin)...))
		s.aesKey = keyMat[:16]
		ok("<plaincert>" + hex.EncodeToString(s.certPEM) + "</plaincert>")

	case q.Get("clientchallenge") != "":
		enc, err := hex.DecodeString(q.Get("clientchallenge"))
		require.NoError(s.t, err)
		clientChallenge := s.aesECB(enc, false)
		material := append(append(append([]byte(nil), clientChallenge...), s.certSig...), s.serverSecret...)
		response := sha256.Sum256(material)
		ok("<challengeresponse>" +
			hex.EncodeToString(s.aesECB(append(response[:], s.serverChallenge...), true)) +
			"</challengeresponse>")

	case q.Get("serverchallengeresp") != "":
		digest := sha256.Sum256(s.serverSecret)
		sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
		require.NoError(s.t, err)
		ok("<pairingsecret>" +
			hex.EncodeToString(append(append([]byte(nil), s.serverSecret...), sig...)) +
			"</pairingsecret>")

	case q.Get("clientpairingsecret") != "":
		ok("")

	case q.Get("phrase") == "pairchallenge":
		s.paired.Store(true)
		ok("")

	default:
		s.t.Errorf("unexpected pair query %q", r.URL.RawQuery)
	}
}

func TestPairTaskSucceeds(t *testing.T) {
	ps := newPairServer(t, "1234")
	httpSrv := httptest.NewServer(ps)
	defer httpSrv.Close()
	tlsSrv := httptest.NewTLSServer(ps)
	defer tlsSrv.Close()

	httpAddr := addrOf(t, httpSrv.URL)
	tlsAddr := addrOf(t, tlsSrv.URL)

	m, reg, _ := testManager(t)
	host := &hostdb.Host{
		UUID:            "pair-uuid",
		State:           hostdb.StateOnline,
		PairState:       hostdb.NotPaired,
		AppVersion:      "7.1.431.0",
		ActiveAddress:   httpAddr,
		ActiveHTTPSPort: tlsAddr.Port,
	}
	reg.Upsert(host)

	taskID, err := m.StartPair("pair-uuid", "1234", false)
	require.NoError(t, err)
	res := waitResult(t, m, taskID)
	require.True(t, res.Succeeded, "pair failed: %s", res.Message)

	host.RLock()
	defer host.RUnlock()
	require.Equal(t, hostdb.Paired, host.PairState)
	require.Equal(t, ps.certPEM, host.ServerCert)
}

func TestPairTaskWrongPIN(t *testing.T) {
	ps := newPairServer(t, "0000")
	httpSrv := httptest.NewServer(ps)
	defer httpSrv.Close()

	m, reg, _ := testManager(t)
	host := &hostdb.Host{
		UUID:          "pair-uuid",
		State:         hostdb.StateOnline,
		PairState:     hostdb.NotPaired,
		AppVersion:    "7.1.431.0",
		ActiveAddress: addrOf(t, httpSrv.URL),
	}
	reg.Upsert(host)

	taskID, err := m.StartPair("pair-uuid", "1234", false)
	require.NoError(t, err)
	res := waitResult(t, m, taskID)
	require.False(t, res.Succeeded)
	require.Equal(t, locale.MsgPairPinMismatch, res.Message)
}
