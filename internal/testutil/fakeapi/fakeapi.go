// Package fakeapi is an in-process stand-in for the HostelHub REST API and
// push service, for tests. It records every API call and can be told to fail.
package fakeapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/kimhsiao/hostelhub/client/internal/crypto"
	"github.com/kimhsiao/hostelhub/client/internal/models"
)

// Seeded accounts.
const (
	AdminEmail    = "admin@example.com"
	AdminPassword = "admin123"
	AdminID       = models.ID("1")
)

// Call is one recorded API request.
type Call struct {
	Method string
	Path   string
	Body   string
}

func (c Call) String() string {
	return c.Method + " " + c.Path
}

type account struct {
	user     models.User
	password string
}

type failure struct {
	status  int
	message string
	times   int
}

// Server is a fake API backed by httptest.Server.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	hostels       []models.Hostel
	accounts      []*account
	nextHostelID  int
	nextUserID    int
	calls         []Call
	failures      map[string]*failure
	subscriptions map[string]models.PushSubscription
	conns         map[string]*websocket.Conn
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// New starts a fake API seeded with one admin account and no hostels.
func New() *Server {
	s := &Server{
		nextHostelID:  1,
		nextUserID:    2,
		failures:      make(map[string]*failure),
		subscriptions: make(map[string]models.PushSubscription),
		conns:         make(map[string]*websocket.Conn),
	}
	s.accounts = append(s.accounts, &account{
		user:     models.User{ID: AdminID, Name: "Admin", Email: AdminEmail, Role: models.RoleAdmin},
		password: AdminPassword,
	})
	s.Server = httptest.NewServer(s.router())
	return s
}

// APIURL is the base URL clients should be configured with.
func (s *Server) APIURL() string {
	return s.URL + "/api"
}

// PushURL is the push service root; subscription endpoints live below it.
func (s *Server) PushURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/push"
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/push/{device}", s.handlePushConnect).Methods("GET")
	r.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("HEAD", "GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.record)

	api.HandleFunc("/auth/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/auth/register", s.handleRegister).Methods("POST")
	api.HandleFunc("/auth/me", s.authed(s.handleMe)).Methods("GET")

	api.HandleFunc("/hostels", s.authed(s.handleListHostels)).Methods("GET")
	api.HandleFunc("/hostels", s.admin(s.handleCreateHostel)).Methods("POST")
	api.HandleFunc("/hostels/{id}", s.authed(s.handleGetHostel)).Methods("GET")
	api.HandleFunc("/hostels/{id}", s.admin(s.handleUpdateHostel)).Methods("PUT")
	api.HandleFunc("/hostels/{id}", s.admin(s.handleDeleteHostel)).Methods("DELETE")

	api.HandleFunc("/users", s.admin(s.handleListUsers)).Methods("GET")
	api.HandleFunc("/users/{id}", s.admin(s.handleUpdateUser)).Methods("PUT")
	api.HandleFunc("/users/{id}", s.admin(s.handleDeleteUser)).Methods("DELETE")

	api.HandleFunc("/subscriptions/subscribe", s.authed(s.handleSubscribe)).Methods("POST")
	api.HandleFunc("/subscriptions/unsubscribe", s.authed(s.handleUnsubscribe)).Methods("POST")
	return r
}

// =====================================================
// Test controls
// =====================================================

// Fail makes the next times requests matching method and path (below /api)
// answer with status and message. A negative times fails forever.
func (s *Server) Fail(method, path string, status int, message string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = &failure{status: status, message: message, times: times}
}

// Calls returns the recorded API calls in arrival order, excluding HEAD probes.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, 0, len(s.calls))
	for _, c := range s.calls {
		if c.Method != http.MethodHead {
			out = append(out, c)
		}
	}
	return out
}

// Writes returns the recorded POST, PUT and DELETE calls against /hostels.
func (s *Server) Writes() []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method != http.MethodGet && strings.HasPrefix(c.Path, "/hostels") {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets the recorded calls.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// SeedHostel stores h, assigning the next id when h has none.
func (s *Server) SeedHostel(h models.Hostel) models.Hostel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID.IsZero() {
		h.ID = s.newHostelIDLocked()
	}
	now := time.Now().UTC()
	h.CreatedAt, h.UpdatedAt = &now, &now
	s.hostels = append(s.hostels, h)
	return h
}

// Hostels returns the stored hostels.
func (s *Server) Hostels() []models.Hostel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Hostel(nil), s.hostels...)
}

// AddUser creates an account and returns it.
func (s *Server) AddUser(name, email, password string, role models.Role) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(name, email, password, role)
}

// TokenFor returns the session token the fake issues for a user id.
func TokenFor(id models.ID) string {
	return "token-" + id.String()
}

// Subscriptions returns the registered push subscriptions keyed by endpoint.
func (s *Server) Subscriptions() map[string]models.PushSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.PushSubscription, len(s.subscriptions))
	for k, v := range s.subscriptions {
		out[k] = v
	}
	return out
}

// Connected reports whether a push listener is connected for device.
func (s *Server) Connected(device string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conns[device]
	return ok
}

// Push encrypts payload for the subscription registered under endpoint and
// delivers it to the connected listener as a binary frame.
func (s *Server) Push(endpoint string, payload interface{}) error {
	s.mu.Lock()
	sub, ok := s.subscriptions[endpoint]
	conn := s.conns[deviceOf(endpoint)]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no subscription for %s", endpoint)
	}
	if conn == nil {
		return fmt.Errorf("no listener connected for %s", endpoint)
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	pubRaw, err := base64.RawURLEncoding.DecodeString(sub.Keys.P256dh)
	if err != nil {
		return fmt.Errorf("bad p256dh: %w", err)
	}
	pub, err := crypto.ParseP256PublicKey(pubRaw)
	if err != nil {
		return err
	}
	auth, err := base64.RawURLEncoding.DecodeString(sub.Keys.Auth)
	if err != nil {
		return fmt.Errorf("bad auth secret: %w", err)
	}
	body, err := crypto.EncryptPush(plaintext, pub, auth)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, body)
}

// Close disconnects push listeners and shuts the server down.
func (s *Server) Close() {
	s.mu.Lock()
	for id, c := range s.conns {
		c.Close()
		delete(s.conns, id)
	}
	s.mu.Unlock()
	s.Server.Close()
}

func deviceOf(endpoint string) string {
	return endpoint[strings.LastIndex(endpoint, "/")+1:]
}

// =====================================================
// Middleware
// =====================================================

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(strings.NewReader(string(body)))
		}
		path := strings.TrimPrefix(r.URL.Path, "/api")

		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: path, Body: string(body)})
		f := s.failures[r.Method+" "+path]
		if f != nil && f.times != 0 {
			if f.times > 0 {
				f.times--
			}
			s.mu.Unlock()
			writeError(w, f.status, f.message)
			return
		}
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) userFromRequest(r *http.Request) *account {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if TokenFor(a.user.ID) == token {
			return a
		}
	}
	return nil
}

func (s *Server) authed(h func(http.ResponseWriter, *http.Request, *account)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a := s.userFromRequest(r)
		if a == nil {
			writeError(w, http.StatusUnauthorized, "Not authorized to access this route")
			return
		}
		h(w, r, a)
	}
}

func (s *Server) admin(h func(http.ResponseWriter, *http.Request, *account)) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request, a *account) {
		if a.user.Role != models.RoleAdmin {
			writeError(w, http.StatusForbidden, "User role user is not authorized to access this route")
			return
		}
		h(w, r, a)
	})
}

// =====================================================
// Handlers
// =====================================================

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.user.Email, creds.Email) && a.password == creds.Password {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true, "token": TokenFor(a.user.ID), "user": a.user,
			})
			return
		}
	}
	writeError(w, http.StatusUnauthorized, "Invalid credentials")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg models.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.user.Email, reg.Email) {
			writeError(w, http.StatusBadRequest, "User already exists")
			return
		}
	}
	u := s.addUserLocked(reg.Name, reg.Email, reg.Password, models.RoleUser)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true, "token": TokenFor(u.ID), "user": u,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, a *account) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": a.user})
}

func (s *Server) handleListHostels(w http.ResponseWriter, r *http.Request, _ *account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"count":     len(s.hostels),
		"data":      s.hostels,
		"userCount": len(s.accounts),
	})
}

func (s *Server) handleGetHostel(w http.ResponseWriter, r *http.Request, _ *account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.hostelIndexLocked(models.ID(mux.Vars(r)["id"]))
	if i < 0 {
		writeError(w, http.StatusNotFound, "Hostel not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": s.hostels[i]})
}

func (s *Server) handleCreateHostel(w http.ResponseWriter, r *http.Request, a *account) {
	in, ok := decodeHostel(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	h := in.Provisional()
	h.ID = s.newHostelIDLocked()
	h.CreatedAt, h.UpdatedAt = &now, &now
	h.Creator = &models.Creator{ID: a.user.ID, Name: a.user.Name, Email: a.user.Email, Role: a.user.Role}
	s.hostels = append(s.hostels, h)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "data": h})
}

func (s *Server) handleUpdateHostel(w http.ResponseWriter, r *http.Request, _ *account) {
	in, ok := decodeHostel(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.hostelIndexLocked(models.ID(mux.Vars(r)["id"]))
	if i < 0 {
		writeError(w, http.StatusNotFound, "Hostel not found")
		return
	}
	now := time.Now().UTC()
	h := &s.hostels[i]
	h.Name, h.Location, h.Capacity, h.UpdatedAt = in.Name, in.Location, in.Capacity, &now
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": *h})
}

func (s *Server) handleDeleteHostel(w http.ResponseWriter, r *http.Request, _ *account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.hostelIndexLocked(models.ID(mux.Vars(r)["id"]))
	if i < 0 {
		writeError(w, http.StatusNotFound, "Hostel not found")
		return
	}
	s.hostels = append(s.hostels[:i], s.hostels[i+1:]...)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": map[string]interface{}{}})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ *account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]models.User, 0, len(s.accounts))
	for _, a := range s.accounts {
		users = append(users, a.user)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "count": len(users), "data": users})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request, _ *account) {
	var body struct {
		Role models.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !body.Role.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid role")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accountLocked(models.ID(mux.Vars(r)["id"]))
	if a == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	a.user.Role = body.Role
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": a.user})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, _ *account) {
	id := models.ID(mux.Vars(r)["id"])
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.accounts {
		if a.user.ID == id {
			s.accounts = append(s.accounts[:i], s.accounts[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": map[string]interface{}{}})
			return
		}
	}
	writeError(w, http.StatusNotFound, "User not found")
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request, _ *account) {
	var body struct {
		Subscription models.PushSubscription `json:"subscription"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Subscription.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "Invalid subscription")
		return
	}
	s.mu.Lock()
	s.subscriptions[body.Subscription.Endpoint] = body.Subscription
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "message": "Subscription saved"})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request, _ *account) {
	var body struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "Endpoint is required")
		return
	}
	s.mu.Lock()
	delete(s.subscriptions, body.Endpoint)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Unsubscribed"})
}

func (s *Server) handlePushConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	device := mux.Vars(r)["device"]

	s.mu.Lock()
	if old := s.conns[device]; old != nil {
		old.Close()
	}
	s.conns[device] = conn
	s.mu.Unlock()

	// Drain control frames until the listener goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	if s.conns[device] == conn {
		delete(s.conns, device)
	}
	s.mu.Unlock()
	conn.Close()
}

// =====================================================
// Helpers
// =====================================================

func decodeHostel(w http.ResponseWriter, r *http.Request) (models.HostelInput, bool) {
	var in models.HostelInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return in, false
	}
	switch {
	case strings.TrimSpace(in.Name) == "":
		writeError(w, http.StatusBadRequest, "Please add a name")
		return in, false
	case strings.TrimSpace(in.Location) == "":
		writeError(w, http.StatusBadRequest, "Please add a location")
		return in, false
	case in.Capacity < 1:
		writeError(w, http.StatusBadRequest, "Please add capacity")
		return in, false
	}
	return in, true
}

func (s *Server) addUserLocked(name, email, password string, role models.Role) models.User {
	u := models.User{ID: models.ID(strconv.Itoa(s.nextUserID)), Name: name, Email: email, Role: role}
	s.nextUserID++
	s.accounts = append(s.accounts, &account{user: u, password: password})
	return u
}

func (s *Server) accountLocked(id models.ID) *account {
	for _, a := range s.accounts {
		if a.user.ID == id {
			return a
		}
	}
	return nil
}

func (s *Server) newHostelIDLocked() models.ID {
	for s.hostelIndexLocked(models.ID(strconv.Itoa(s.nextHostelID))) >= 0 {
		s.nextHostelID++
	}
	id := models.ID(strconv.Itoa(s.nextHostelID))
	s.nextHostelID++
	return id
}

func (s *Server) hostelIndexLocked(id models.ID) int {
	for i, h := range s.hostels {
		if h.ID == id {
			return i
		}
	}
	return -1
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "message": message})
}
