// models/leaderboard.go

package models

import "github.com/google/uuid"

type LeaderboardEntry struct {
	Rank          int       `json:"rank"`
	UserID        uuid.UUID `json:"userId"`
	Username      string    `json:"username"`
	Name          string    `json:"name"`
	TotalScore    int       `json:"totalScore"`
	TotalPossible int       `json:"totalPossible"`
	Attempts      int       `json:"attempts"`
	Accuracy      int       `json:"accuracy"`
}

type LeaderboardStats struct {
	TotalUsers    int `json:"totalUsers"`
	TotalAttempts int `json:"totalAttempts"`
	TotalCorrect  int `json:"totalCorrect"`
}
