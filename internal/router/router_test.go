package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	appointmenth "github.com/dentalbook/marketplace-api/internal/handler/appointment"
	authh "github.com/dentalbook/marketplace-api/internal/handler/auth"
	bookingh "github.com/dentalbook/marketplace-api/internal/handler/booking"
	"github.com/dentalbook/marketplace-api/internal/handler/health"
	practiceh "github.com/dentalbook/marketplace-api/internal/handler/practice"
	prometheush "github.com/dentalbook/marketplace-api/internal/handler/prometheus"
	userh "github.com/dentalbook/marketplace-api/internal/handler/user"
	"github.com/dentalbook/marketplace-api/internal/middleware"
	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository/memory"
	"github.com/dentalbook/marketplace-api/internal/service/appointment"
	"github.com/dentalbook/marketplace-api/internal/service/audit"
	authsvc "github.com/dentalbook/marketplace-api/internal/service/auth"
	"github.com/dentalbook/marketplace-api/internal/service/booking"
	"github.com/dentalbook/marketplace-api/internal/service/practice"
	"github.com/dentalbook/marketplace-api/internal/service/triage"
	"github.com/dentalbook/marketplace-api/internal/service/user"
	"github.com/dentalbook/marketplace-api/pkg/auth"
	"github.com/dentalbook/marketplace-api/pkg/security"
)

const testPassword = "Zq8!nightOwl"

// TestResponse mirrors the JSON envelope.
type TestResponse struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	RawData json.RawMessage `json:"data"`

	StatusCode int `json:"-"`
}

func (r TestResponse) IsSuccess() bool {
	return r.Status == "success"
}

func (r TestResponse) Into(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.RawData, v))
}

type testServer struct {
	engine *gin.Engine
	store  *memory.Store
	writer *audit.Writer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	require.NoError(t, middleware.RegisterValidators())

	store := memory.New()
	key, err := security.RandomHex(security.KeySize)
	require.NoError(t, err)
	keyBytes, err := security.ParseKey(key)
	require.NoError(t, err)
	enc, err := security.NewAESEncryptor(keyBytes)
	require.NoError(t, err)
	jwtSvc, err := auth.NewJWTService("router-test-secret", time.Hour)
	require.NoError(t, err)

	retention := 7 * 365 * 24 * time.Hour
	authService := authsvc.NewService(store, security.NewBcryptHasher(bcrypt.MinCost), jwtSvc,
		authsvc.Config{ConsentRetention: retention}, nil, nil)
	bookingService := booking.NewService(store, triage.NewService(enc), retention, nil, nil)
	writer := audit.NewWriter(store.Audit(), audit.WriterConfig{}, nil, nil)

	handlers := Handlers{
		Auth:        authh.NewHandler(authService),
		Practice:    practiceh.NewHandler(practice.NewService(store, nil)),
		Appointment: appointmenth.NewHandler(appointment.NewService(store, nil)),
		Booking:     bookingh.NewHandler(bookingService),
		User:        userh.NewHandler(user.NewService(store, bookingService, retention, nil), bookingService),
		Health:      health.NewHandler(store),
		Metrics:     prometheush.New(nil),
	}

	r := NewRouter(
		middleware.NewAuthMiddleware(authService),
		middleware.NewAuditMiddleware(writer),
		handlers,
		nil,
		RouterConfig{
			CORSConfig: middleware.DefaultCORSConfig(),
			Security:   middleware.DefaultSecurityConfig(),
			SizeLimit:  middleware.DefaultSizeLimitConfig(),
			Timeout:    middleware.DefaultTimeoutConfig(),
		},
	)
	r.Setup()

	return &testServer{engine: r.Engine(), store: store, writer: writer}
}

func (s *testServer) makeRequest(method, path string, body interface{}, token string, headers ...string) TestResponse {
	var reqBody *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewReader(b)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var resp TestResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	resp.StatusCode = w.Code
	return resp
}

// registerAndLogin returns the new user's id and a bearer token.
func (s *testServer) registerAndLogin(t *testing.T, email string, userType model.UserType) (int64, string) {
	t.Helper()
	resp := s.makeRequest(http.MethodPost, "/api/auth/register", map[string]interface{}{
		"email":     email,
		"password":  testPassword,
		"firstName": "Test",
		"lastName":  string(userType),
		"userType":  userType,
	}, "", middleware.HeaderGDPRConsent, "true")
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Message)

	resp = s.makeRequest(http.MethodPost, "/api/auth/login", map[string]interface{}{
		"email":    email,
		"password": testPassword,
		"userType": userType,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Message)

	var login model.LoginResponse
	resp.Into(t, &login)
	require.NotEmpty(t, login.Token)
	return login.User.ID, login.Token
}

// seedSlot creates a practice, a dentist and one available slot.
func (s *testServer) seedSlot(t *testing.T, dentistToken string) (practiceID, slotID int64) {
	t.Helper()
	resp := s.makeRequest(http.MethodPost, "/api/practices", map[string]interface{}{
		"name":    "Harbour Dental",
		"address": "1 Quay Street",
	}, dentistToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Message)
	var p model.Practice
	resp.Into(t, &p)

	resp = s.makeRequest(http.MethodPost, fmt.Sprintf("/api/practices/%d/dentists", p.ID), map[string]interface{}{
		"name":           "Dr Ada Molar",
		"specialization": "general",
	}, dentistToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Message)
	var d model.Dentist
	resp.Into(t, &d)

	resp = s.makeRequest(http.MethodPost, fmt.Sprintf("/api/practice/%d/appointments", p.ID), map[string]interface{}{
		"dentistId":       d.ID,
		"appointmentDate": "2030-03-14",
		"appointmentTime": "09:30",
		"duration":        30,
	}, dentistToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Message)
	var slot model.Appointment
	resp.Into(t, &slot)
	return p.ID, slot.ID
}

func bookingRequest(slotID int64) map[string]interface{} {
	return map[string]interface{}{
		"appointmentId":     slotID,
		"treatmentCategory": "check-up",
		"guest": map[string]interface{}{
			"email":     "walk.in@example.com",
			"firstName": "Walk",
			"lastName":  "In",
		},
		"triage": map[string]interface{}{
			"painLevel":         3,
			"urgencyLevel":      "low",
			"symptoms":          []string{"sensitivity"},
			"medicalConditions": "asthma",
		},
	}
}

func TestBookingFlow(t *testing.T) {
	s := newTestServer(t)
	_, dentistToken := s.registerAndLogin(t, "dentist@example.com", model.UserTypeDentist)
	_, patientToken := s.registerAndLogin(t, "patient@example.com", model.UserTypePatient)
	practiceID, slotID := s.seedSlot(t, dentistToken)

	// Public listing shows the slot.
	resp := s.makeRequest(http.MethodGet, fmt.Sprintf("/api/appointments/%d?date=2030-03-14", practiceID), nil, "")
	require.True(t, resp.IsSuccess())
	var slots []model.Appointment
	resp.Into(t, &slots)
	require.Len(t, slots, 1)

	// Guest submission needs consent.
	resp = s.makeRequest(http.MethodPost, "/api/bookings", bookingRequest(slotID), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.makeRequest(http.MethodPost, "/api/bookings", bookingRequest(slotID), "",
		middleware.HeaderGDPRConsent, "true")
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Message)
	var b model.Booking
	resp.Into(t, &b)
	assert.Equal(t, model.BookingStatusPending, b.Status)

	// A second booking for the same slot conflicts.
	resp = s.makeRequest(http.MethodPost, "/api/bookings", bookingRequest(slotID), "",
		middleware.HeaderGDPRConsent, "true")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Pending list is dentist only and carries decrypted triage.
	pendingPath := fmt.Sprintf("/api/practice/%d/pending-bookings", practiceID)
	assert.Equal(t, http.StatusUnauthorized, s.makeRequest(http.MethodGet, pendingPath, nil, "").StatusCode)
	assert.Equal(t, http.StatusForbidden, s.makeRequest(http.MethodGet, pendingPath, nil, patientToken).StatusCode)
	resp = s.makeRequest(http.MethodGet, pendingPath, nil, dentistToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending []model.BookingDetail
	resp.Into(t, &pending)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].Triage)
	assert.Equal(t, "asthma", pending[0].Triage.MedicalConditions)

	// Approval is dentist only.
	approvePath := fmt.Sprintf("/api/bookings/%d/approve", b.ID)
	assert.Equal(t, http.StatusUnauthorized, s.makeRequest(http.MethodPost, approvePath, nil, "").StatusCode)
	assert.Equal(t, http.StatusForbidden, s.makeRequest(http.MethodPost, approvePath, nil, patientToken).StatusCode)

	resp = s.makeRequest(http.MethodPost, approvePath, map[string]interface{}{"password": "should-not-be-logged"}, dentistToken)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Message)
	resp.Into(t, &b)
	assert.Equal(t, model.BookingStatusApproved, b.Status)

	// Deciding again is an invalid state transition.
	resp = s.makeRequest(http.MethodPost, approvePath, nil, dentistToken)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_STATE", resp.Code)

	resp = s.makeRequest(http.MethodPost, "/api/bookings/99999/approve", nil, dentistToken)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.makeRequest(http.MethodPost, "/api/bookings/abc/approve", nil, dentistToken)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The slot is gone from the public listing.
	resp = s.makeRequest(http.MethodGet, fmt.Sprintf("/api/appointments/%d", practiceID), nil, "")
	resp.Into(t, &slots)
	assert.Empty(t, slots)

	resp = s.makeRequest(http.MethodGet, fmt.Sprintf("/api/practice/%d/approved-bookings", practiceID), nil, dentistToken)
	var approved []model.BookingDetail
	resp.Into(t, &approved)
	require.Len(t, approved, 1)
	assert.Equal(t, b.ID, approved[0].ID)

	// The approval was audited with the body sanitized.
	require.NoError(t, s.writer.Close())
	entries, err := s.store.Audit().List(context.Background(), model.AuditFilter{ResourceType: model.AuditResourceBooking, Limit: 100})
	require.NoError(t, err)

	var approvals, clinical int
	for _, e := range entries {
		switch e.Action {
		case model.AuditActionApprove:
			if e.StatusCode == http.StatusOK {
				approvals++
				require.NotNil(t, e.ResourceID)
				assert.Equal(t, fmt.Sprint(b.ID), *e.ResourceID)
				assert.NotContains(t, string(e.AdditionalData), "should-not-be-logged")
			}
		case model.AuditActionClinicalAccess:
			clinical++
		}
	}
	assert.Equal(t, 1, approvals)
	assert.NotZero(t, clinical)
}

func TestLoginFailuresAreGeneric(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t, "someone@example.com", model.UserTypePatient)

	wrongPassword := s.makeRequest(http.MethodPost, "/api/auth/login", map[string]interface{}{
		"email": "someone@example.com", "password": "nope", "userType": "patient",
	}, "")
	unknownUser := s.makeRequest(http.MethodPost, "/api/auth/login", map[string]interface{}{
		"email": "nobody@example.com", "password": "nope", "userType": "patient",
	}, "")
	wrongType := s.makeRequest(http.MethodPost, "/api/auth/login", map[string]interface{}{
		"email": "someone@example.com", "password": testPassword, "userType": "dentist",
	}, "")

	for _, resp := range []TestResponse{wrongPassword, unknownUser, wrongType} {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, wrongPassword.Message, resp.Message)
	}

	resp := s.makeRequest(http.MethodPost, "/api/auth/login", map[string]interface{}{
		"email": "not-an-email", "password": "x", "userType": "patient",
	}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogoutEndsSession(t *testing.T) {
	s := newTestServer(t)
	_, token := s.registerAndLogin(t, "leaver@example.com", model.UserTypePatient)

	assert.Equal(t, http.StatusOK, s.makeRequest(http.MethodGet, "/api/auth/me", nil, token).StatusCode)
	assert.Equal(t, http.StatusOK, s.makeRequest(http.MethodPost, "/api/auth/logout", nil, token).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, s.makeRequest(http.MethodGet, "/api/auth/me", nil, token).StatusCode)
}

func TestUserRoutesAreSelfOnly(t *testing.T) {
	s := newTestServer(t)
	aliceID, aliceToken := s.registerAndLogin(t, "alice@example.com", model.UserTypePatient)
	bobID, bobToken := s.registerAndLogin(t, "bob@example.com", model.UserTypePatient)

	resp := s.makeRequest(http.MethodGet, fmt.Sprintf("/api/users/%d/bookings", aliceID), nil, aliceToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []model.BookingDetail
	resp.Into(t, &list)
	assert.Empty(t, list)

	resp = s.makeRequest(http.MethodGet, fmt.Sprintf("/api/users/%d/bookings", aliceID), nil, bobToken)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.makeRequest(http.MethodGet, fmt.Sprintf("/api/users/%d/export", bobID), nil, bobToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var export model.UserExport
	resp.Into(t, &export)
	assert.Equal(t, "bob@example.com", export.User.Email)

	resp = s.makeRequest(http.MethodDelete, fmt.Sprintf("/api/users/%d", bobID), nil, bobToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	// Erasure ends every session.
	assert.Equal(t, http.StatusUnauthorized, s.makeRequest(http.MethodGet, "/api/auth/me", nil, bobToken).StatusCode)
}

func TestConcurrentApprovalsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	_, dentistToken := s.registerAndLogin(t, "dentist@example.com", model.UserTypeDentist)
	_, slotID := s.seedSlot(t, dentistToken)

	resp := s.makeRequest(http.MethodPost, "/api/bookings", bookingRequest(slotID), "",
		middleware.HeaderGDPRConsent, "true")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var b model.Booking
	resp.Into(t, &b)

	const n = 6
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = s.makeRequest(http.MethodPost, fmt.Sprintf("/api/bookings/%d/approve", b.ID), nil, dentistToken).StatusCode
		}(i)
	}
	wg.Wait()

	var ok, conflict int
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
			conflict++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflict)
}

func TestBookingsAreScopedToPracticeStaff(t *testing.T) {
	s := newTestServer(t)
	_, ownerToken := s.registerAndLogin(t, "owner@example.com", model.UserTypeDentist)
	outsiderID, outsiderToken := s.registerAndLogin(t, "outsider@example.com", model.UserTypeDentist)
	patientID, _ := s.registerAndLogin(t, "patient@example.com", model.UserTypePatient)
	practiceID, slotID := s.seedSlot(t, ownerToken)

	resp := s.makeRequest(http.MethodPost, "/api/bookings", bookingRequest(slotID), "",
		middleware.HeaderGDPRConsent, "true")
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Message)
	var b model.Booking
	resp.Into(t, &b)

	pendingPath := fmt.Sprintf("/api/practice/%d/pending-bookings", practiceID)
	approvePath := fmt.Sprintf("/api/bookings/%d/approve", b.ID)
	bookingPath := fmt.Sprintf("/api/bookings/%d", b.ID)

	// A dentist from elsewhere sees nothing and can change nothing.
	assert.Equal(t, http.StatusForbidden, s.makeRequest(http.MethodGet, pendingPath, nil, outsiderToken).StatusCode)
	assert.Equal(t, http.StatusNotFound, s.makeRequest(http.MethodPost, approvePath, nil, outsiderToken).StatusCode)
	assert.Equal(t, http.StatusNotFound, s.makeRequest(http.MethodGet, bookingPath, nil, outsiderToken).StatusCode)
	resp = s.makeRequest(http.MethodPost, fmt.Sprintf("/api/practice/%d/appointments", practiceID), map[string]interface{}{
		"dentistId": 1, "appointmentDate": "2030-03-15", "appointmentTime": "10:00", "duration": 30,
	}, outsiderToken)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	staffPath := fmt.Sprintf("/api/practices/%d/staff", practiceID)
	resp = s.makeRequest(http.MethodPost, staffPath, map[string]interface{}{"userId": outsiderID}, outsiderToken)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Patients cannot be made staff.
	resp = s.makeRequest(http.MethodPost, staffPath, map[string]interface{}{"userId": patientID}, ownerToken)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.makeRequest(http.MethodPost, staffPath, map[string]interface{}{"userId": outsiderID}, ownerToken)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Message)

	resp = s.makeRequest(http.MethodGet, pendingPath, nil, outsiderToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending []model.BookingDetail
	resp.Into(t, &pending)
	assert.Len(t, pending, 1)
	assert.Equal(t, http.StatusOK, s.makeRequest(http.MethodPost, approvePath, nil, outsiderToken).StatusCode)
}

func TestGuestBookingCannotUseRegisteredEmail(t *testing.T) {
	s := newTestServer(t)
	_, dentistToken := s.registerAndLogin(t, "dentist@example.com", model.UserTypeDentist)
	s.registerAndLogin(t, "walk.in@example.com", model.UserTypePatient)
	_, slotID := s.seedSlot(t, dentistToken)

	resp := s.makeRequest(http.MethodPost, "/api/bookings", bookingRequest(slotID), "",
		middleware.HeaderGDPRConsent, "true")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	req := bookingRequest(slotID)
	delete(req, "guest")
	req["userId"] = 1
	resp = s.makeRequest(http.MethodPost, "/api/bookings", req, "", middleware.HeaderGDPRConsent, "true")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.makeRequest(http.MethodGet, "/api/health/live", nil, "").StatusCode)
	assert.Equal(t, http.StatusOK, s.makeRequest(http.MethodGet, "/api/health/ready", nil, "").StatusCode)

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
