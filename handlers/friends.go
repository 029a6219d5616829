package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"quiz-platform/database"
	"quiz-platform/models"

	"github.com/google/uuid"
)

const searchLimit = 20

type userMatch struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
}

func SearchUsers(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()
		if !matchesCaller(w, id, q.Get("userId")) {
			return
		}
		query := strings.TrimSpace(q.Get("query"))
		if utf8.RuneCountInString(query) < 2 {
			writeError(w, http.StatusBadRequest, "Search query must be at least 2 characters")
			return
		}

		found, err := users.SearchUsers(r.Context(), query, id.UserID, searchLimit)
		if err != nil {
			serverError(w, r, err)
			return
		}
		matches := make([]userMatch, 0, len(found))
		for _, u := range found {
			matches = append(matches, userMatch{UserID: u.ID, Username: u.Username, Email: u.Email, Name: u.Name})
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": matches})
	}
}

type FriendRequestBody struct {
	UserID   string `json:"userId"`
	FriendID string `json:"friendId"`
	Message  string `json:"message"`
}

func SendFriendRequest(users UserStore, friends FriendStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		var req FriendRequestBody
		if !decode(w, r, &req) {
			return
		}
		if !matchesCaller(w, id, req.UserID) {
			return
		}
		if req.FriendID == "" {
			writeError(w, http.StatusBadRequest, "Friend ID is required")
			return
		}
		friendID, err := uuid.Parse(req.FriendID)
		if err != nil {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		if friendID == id.UserID {
			writeError(w, http.StatusBadRequest, "Cannot send friend request to yourself")
			return
		}

		ctx := r.Context()
		if _, err := users.GetUser(ctx, friendID); err != nil {
			if isNotFound(err) {
				writeError(w, http.StatusNotFound, "User not found")
				return
			}
			serverError(w, r, err)
			return
		}

		f, err := friends.GetFriendship(ctx, id.UserID, friendID)
		if err != nil && !isNotFound(err) {
			serverError(w, r, err)
			return
		}
		if f != nil && f.Status == models.RequestAccepted {
			writeError(w, http.StatusBadRequest, "Already friends with this user")
			return
		}

		pending, err := friends.HasPendingRequest(ctx, id.UserID, friendID)
		if err != nil {
			serverError(w, r, err)
			return
		}
		if pending {
			writeError(w, http.StatusBadRequest, "Friend request already exists")
			return
		}

		now := time.Now().UTC()
		fr := &models.FriendRequest{
			ID:          uuid.New(),
			RequesterID: id.UserID,
			RecipientID: friendID,
			Status:      models.RequestPending,
			Message:     strings.TrimSpace(req.Message),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := friends.CreateFriendRequest(ctx, fr); err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Friend request sent", "requestId": fr.ID})
	}
}

func ListFriendRequests(friends FriendStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		if !matchesCaller(w, id, r.URL.Query().Get("userId")) {
			return
		}
		requests, err := friends.ListPendingRequests(r.Context(), id.UserID)
		if err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
	}
}

type RespondRequestBody struct {
	UserID    string `json:"userId"`
	RequestID string `json:"requestId"`
}

// loadIncomingRequest resolves a request the caller may answer.
func loadIncomingRequest(w http.ResponseWriter, r *http.Request, friends FriendStore, verb string) (*models.FriendRequest, bool) {
	id, ok := caller(w, r)
	if !ok {
		return nil, false
	}
	var body RespondRequestBody
	if !decode(w, r, &body) {
		return nil, false
	}
	if !matchesCaller(w, id, body.UserID) {
		return nil, false
	}
	if body.RequestID == "" {
		writeError(w, http.StatusBadRequest, "Request ID is required")
		return nil, false
	}
	requestID, err := uuid.Parse(body.RequestID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Friend request not found")
		return nil, false
	}

	req, err := friends.GetFriendRequest(r.Context(), requestID)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "Friend request not found")
			return nil, false
		}
		serverError(w, r, err)
		return nil, false
	}
	if req.RecipientID != id.UserID {
		writeError(w, http.StatusForbidden, "Not authorized to "+verb+" this request")
		return nil, false
	}
	if req.Status != models.RequestPending {
		writeError(w, http.StatusBadRequest, "Request is not pending")
		return nil, false
	}
	return req, true
}

func AcceptFriendRequest(users UserStore, friends FriendStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := loadIncomingRequest(w, r, friends, "accept")
		if !ok {
			return
		}

		if err := friends.AcceptFriendRequest(r.Context(), req, time.Now().UTC()); err != nil {
			if errors.Is(err, database.ErrConflict) {
				writeError(w, http.StatusBadRequest, "Request is not pending")
				return
			}
			serverError(w, r, err)
			return
		}

		requester, err := users.GetUser(r.Context(), req.RequesterID)
		if err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Friend request accepted",
			"friend": userMatch{
				UserID:   requester.ID,
				Username: requester.Username,
				Name:     requester.Name,
				Email:    requester.Email,
			},
		})
	}
}

func DeclineFriendRequest(friends FriendStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := loadIncomingRequest(w, r, friends, "decline")
		if !ok {
			return
		}

		if err := friends.DeclineFriendRequest(r.Context(), req, time.Now().UTC()); err != nil {
			if errors.Is(err, database.ErrConflict) {
				writeError(w, http.StatusBadRequest, "Request is not pending")
				return
			}
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Friend request declined"})
	}
}

func ListFriends(friends FriendStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		if !matchesCaller(w, id, r.URL.Query().Get("userId")) {
			return
		}
		list, err := friends.ListFriends(r.Context(), id.UserID)
		if err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"friends": list})
	}
}

func RemoveFriend(users UserStore, friends FriendStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		if !matchesCaller(w, id, r.URL.Query().Get("userId")) {
			return
		}
		friendID, ok := pathUUID(w, r, "friendId", "User not found")
		if !ok {
			return
		}
		if _, err := users.GetUser(r.Context(), friendID); err != nil {
			if isNotFound(err) {
				writeError(w, http.StatusNotFound, "User not found")
				return
			}
			serverError(w, r, err)
			return
		}

		if err := friends.RemoveFriend(r.Context(), id.UserID, friendID); err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Friend removed successfully"})
	}
}
