package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"quiz-platform/models"
	"quiz-platform/services"
)

type fakeTrivia struct {
	openTDB   services.OpenTDBParams
	triviaAPI services.TriviaAPIParams
	err       error
}

func (f *fakeTrivia) OpenTDB(_ context.Context, p services.OpenTDBParams) ([]models.Question, error) {
	f.openTDB = p
	if f.err != nil {
		return nil, f.err
	}
	return sampleQuestions(), nil
}

func (f *fakeTrivia) TriviaAPI(_ context.Context, p services.TriviaAPIParams) ([]models.Question, error) {
	f.triviaAPI = p
	if f.err != nil {
		return nil, f.err
	}
	return sampleQuestions()[:1], nil
}

func TestGetOpenTDB(t *testing.T) {
	trivia := &fakeTrivia{}
	rec := serve(GetOpenTDB(trivia), request(t, http.MethodGet, "/api/external/opentdb?amount=5&category=9&difficulty=easy&type=multiple", nil, nil, nil))
	expectStatus(t, rec, http.StatusOK)

	body := decodeBody(t, rec)
	if body["source"] != models.SourceOpenTDB || body["count"] != float64(2) {
		t.Errorf("body = %v", body)
	}
	want := services.OpenTDBParams{Amount: 5, Category: 9, Difficulty: "easy", Type: "multiple"}
	if trivia.openTDB != want {
		t.Errorf("params = %+v", trivia.openTDB)
	}

	rec = serve(GetOpenTDB(trivia), request(t, http.MethodGet, "/api/external/opentdb?amount=lots", nil, nil, nil))
	expectError(t, rec, http.StatusBadRequest, "amount must be a number")
}

func TestExternalQuestionCount(t *testing.T) {
	trivia := &fakeTrivia{}

	rec := serve(GetOpenTDB(trivia), request(t, http.MethodGet, "/api/external/opentdb?amount=0", nil, nil, nil))
	expectError(t, rec, http.StatusBadRequest, "amount must be between 1 and 50")
	rec = serve(GetTriviaAPI(trivia), request(t, http.MethodGet, "/api/external/triviaapi?limit=0", nil, nil, nil))
	expectError(t, rec, http.StatusBadRequest, "limit must be between 1 and 50")
	rec = serve(GetTriviaAPI(trivia), request(t, http.MethodGet, "/api/external/triviaapi?limit=51", nil, nil, nil))
	expectStatus(t, rec, http.StatusBadRequest)

	rec = serve(GetOpenTDB(trivia), request(t, http.MethodGet, "/api/external/opentdb", nil, nil, nil))
	expectStatus(t, rec, http.StatusOK)
	if trivia.openTDB.Amount != 10 {
		t.Errorf("default amount = %d", trivia.openTDB.Amount)
	}
	rec = serve(GetTriviaAPI(trivia), request(t, http.MethodGet, "/api/external/triviaapi", nil, nil, nil))
	expectStatus(t, rec, http.StatusOK)
	if trivia.triviaAPI.Limit != 10 {
		t.Errorf("default limit = %d", trivia.triviaAPI.Limit)
	}
}

func TestExternalErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: amount must be between 1 and 50", services.ErrInvalidParams), http.StatusBadRequest},
		{&services.UpstreamError{Source: "OpenTDB", Code: 2}, http.StatusBadGateway},
		{fmt.Errorf("dial tcp: connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := serve(GetTriviaAPI(&fakeTrivia{err: tt.err}), request(t, http.MethodGet, "/api/external/triviaapi", nil, nil, nil))
		expectStatus(t, rec, tt.status)
		if tt.status == http.StatusBadGateway {
			body := decodeBody(t, rec)
			if body["error"] != "The Trivia API error" || body["code"] != float64(2) {
				t.Errorf("body = %v", body)
			}
		}
	}
}

// The handler and the real client together, against a stubbed OpenTDB.
func TestGetOpenTDBUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("amount") == "3" {
			fmt.Fprint(w, `{"response_code":1,"results":[]}`)
			return
		}
		fmt.Fprint(w, `{"response_code":0,"results":[{"category":"Science","type":"boolean","difficulty":"easy",
			"question":"Water is H&#039;2&#039;O?","correct_answer":"True","incorrect_answers":["False"]}]}`)
	}))
	defer upstream.Close()

	client := services.NewTriviaClient(upstream.URL, upstream.URL, 0)
	h := GetOpenTDB(client)

	rec := serve(h, request(t, http.MethodGet, "/api/external/opentdb?amount=1", nil, nil, nil))
	expectStatus(t, rec, http.StatusOK)
	q := decodeBody(t, rec)["questions"].([]any)[0].(map[string]any)
	if q["text"] != "Water is H'2'O?" || q["type"] != models.TrueFalse || q["source"] != models.SourceOpenTDB {
		t.Errorf("question = %v", q)
	}

	rec = serve(h, request(t, http.MethodGet, "/api/external/opentdb?amount=3", nil, nil, nil))
	expectStatus(t, rec, http.StatusBadGateway)
	if body := decodeBody(t, rec); body["error"] != "OpenTDB error" || body["code"] != float64(1) {
		t.Errorf("body = %v", body)
	}
}
