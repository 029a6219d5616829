package handlers

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestEmailVerification(t *testing.T) {
	store := newFakeStore()
	ada := addUser(t, store, "ada", "pw1234")
	mailer := &fakeMailer{}
	vars := map[string]string{"userId": ada.ID.String()}

	rec := serve(VerificationStatus(store), request(t, http.MethodGet, "/api/auth/verification-status/x", nil, nil, vars))
	expectStatus(t, rec, http.StatusOK)
	if decodeBody(t, rec)["emailVerified"] != false {
		t.Fatal("new user already verified")
	}

	rec = serve(RequestVerification(store, mailer, "http://client.test"), request(t, http.MethodPost, "/api/auth/request-verification", nil, ada, nil))
	expectStatus(t, rec, http.StatusOK)
	body := decodeBody(t, rec)
	token, _ := body["token"].(string)
	if len(token) != 64 {
		t.Fatalf("token %q", token)
	}
	if mailer.to != ada.Email || !strings.HasSuffix(mailer.link, token) || body["verificationUrl"] != mailer.link {
		t.Errorf("mail to %q link %q body %v", mailer.to, mailer.link, body)
	}

	rec = serve(VerifyEmailToken(store), request(t, http.MethodPost, "/api/auth/verify-email-token", map[string]string{"token": "bogus"}, nil, nil))
	expectError(t, rec, http.StatusBadRequest, "Invalid or expired verification token")

	rec = serve(VerifyEmailToken(store), request(t, http.MethodPost, "/api/auth/verify-email-token", map[string]string{"token": token}, nil, nil))
	expectStatus(t, rec, http.StatusOK)

	// Tokens are single use.
	rec = serve(VerifyEmailToken(store), request(t, http.MethodPost, "/api/auth/verify-email-token", map[string]string{"token": token}, nil, nil))
	expectStatus(t, rec, http.StatusBadRequest)

	rec = serve(RequestVerification(store, mailer, "http://client.test"), request(t, http.MethodPost, "/api/auth/request-verification", nil, ada, nil))
	expectError(t, rec, http.StatusBadRequest, "Email already verified")
}

func TestVerifyEmailLink(t *testing.T) {
	store := newFakeStore()
	ada := addUser(t, store, "ada", "pw1234")
	h := VerifyEmailLink(store, "http://client.test")

	rec := serve(h, request(t, http.MethodGet, "/api/auth/verify-email", nil, nil, nil))
	expectStatus(t, rec, http.StatusBadRequest)
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("content type %q", rec.Header().Get("Content-Type"))
	}

	expired := time.Now().Add(-time.Minute)
	store.SetVerificationToken(t.Context(), ada.ID, "old", expired)
	rec = serve(h, request(t, http.MethodGet, "/api/auth/verify-email?token=old", nil, nil, nil))
	expectStatus(t, rec, http.StatusBadRequest)

	store.SetVerificationToken(t.Context(), ada.ID, "fresh", time.Now().Add(time.Hour))
	rec = serve(h, request(t, http.MethodGet, "/api/auth/verify-email?token=fresh", nil, nil, nil))
	expectStatus(t, rec, http.StatusFound)
	if loc := rec.Header().Get("Location"); loc != "http://client.test/verification-success" {
		t.Errorf("redirect to %q", loc)
	}
	u, _ := store.GetUser(t.Context(), ada.ID)
	if !u.EmailVerified {
		t.Error("user not verified")
	}
}

func TestSyncVerification(t *testing.T) {
	store := newFakeStore()
	ada := addUser(t, store, "ada", "pw1234")

	rec := serve(SyncVerification(store, &fakeMailer{}), request(t, http.MethodPost, "/api/auth/sync-verification",
		map[string]bool{"emailVerified": true}, ada, nil))
	expectStatus(t, rec, http.StatusOK)
	if decodeBody(t, rec)["emailVerified"] != true {
		t.Error("flag not synced without mail delivery")
	}

	bob := addUser(t, store, "bob", "pw1234")
	rec = serve(SyncVerification(store, &fakeMailer{delivers: true}), request(t, http.MethodPost, "/api/auth/sync-verification",
		map[string]bool{"emailVerified": true}, bob, nil))
	expectStatus(t, rec, http.StatusOK)
	if decodeBody(t, rec)["emailVerified"] != false {
		t.Error("flag changed while real mail is configured")
	}
}
