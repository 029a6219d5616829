package models

import (
	"math"
	"time"
)

// XP awarded per correct answer and for finishing a quiz.
const (
	XPPerCorrect   = 10
	XPPerCompleted = 20
	XPPerfectBonus = 50
)

type Achievement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Rarity      string `json:"rarity"`
	Unlocked    bool   `json:"unlocked"`
}

type Stats struct {
	TotalAttempts int           `json:"totalAttempts"`
	TotalCorrect  int           `json:"totalCorrect"`
	TotalAnswered int           `json:"totalAnswered"`
	BestPercent   int           `json:"bestPercent"`
	Accuracy      int           `json:"accuracy"`
	TotalXP       int           `json:"totalXP"`
	Level         int           `json:"level"`
	XP            int           `json:"xp"`
	XPToNext      int           `json:"xpToNext"`
	LastPlayed    *time.Time    `json:"lastPlayed,omitempty"`
	Achievements  []Achievement `json:"achievements"`
}

type achievementDef struct {
	Achievement
	unlocked func(s *Stats) bool
}

var achievementDefs = []achievementDef{
	{Achievement{ID: "first_quiz", Name: "Getting Started", Description: "Complete your first quiz", Rarity: "common"},
		func(s *Stats) bool { return s.TotalAttempts >= 1 }},
	{Achievement{ID: "perfect_score", Name: "Perfectionist", Description: "Get 100% on any quiz", Rarity: "rare"},
		func(s *Stats) bool { return s.BestPercent == 100 }},
	{Achievement{ID: "quiz_master", Name: "Quiz Master", Description: "Complete 10 quizzes", Rarity: "rare"},
		func(s *Stats) bool { return s.TotalAttempts >= 10 }},
	{Achievement{ID: "dedicated", Name: "Dedicated", Description: "Complete 50 quizzes", Rarity: "epic"},
		func(s *Stats) bool { return s.TotalAttempts >= 50 }},
	{Achievement{ID: "century", Name: "Century", Description: "Answer 100 questions correctly", Rarity: "epic"},
		func(s *Stats) bool { return s.TotalCorrect >= 100 }},
}

// XPForLevel is the XP needed to go from level to level+1. The epsilon
// keeps 1.2^n products such as 143.99999999999997 from flooring a point low.
func XPForLevel(level int) int {
	return int(math.Floor(100*math.Pow(1.2, float64(level-1)) + 1e-9))
}

// TotalXPForLevel is the cumulative XP at which level is reached.
func TotalXPForLevel(level int) int {
	total := 0
	for i := 1; i < level; i++ {
		total += XPForLevel(i)
	}
	return total
}

// LevelFor returns the level, progress into it and XP still needed.
func LevelFor(totalXP int) (level, xp, toNext int) {
	level = 1
	for totalXP >= TotalXPForLevel(level+1) {
		level++
	}
	xp = totalXP - TotalXPForLevel(level)
	return level, xp, XPForLevel(level) - xp
}

func AttemptXP(a *Attempt) int {
	xp := a.Score*XPPerCorrect + XPPerCompleted
	if a.MaxScore > 0 && a.Score == a.MaxScore {
		xp += XPPerfectBonus
	}
	return xp
}

func ComputeStats(attempts []Attempt) Stats {
	var s Stats
	for i := range attempts {
		a := &attempts[i]
		s.TotalAttempts++
		s.TotalCorrect += a.Score
		s.TotalAnswered += a.MaxScore
		if p := a.Percent(); p > s.BestPercent {
			s.BestPercent = p
		}
		s.TotalXP += AttemptXP(a)
		if s.LastPlayed == nil || a.FinishedAt.After(*s.LastPlayed) {
			t := a.FinishedAt
			s.LastPlayed = &t
		}
	}
	if s.TotalAnswered > 0 {
		s.Accuracy = s.TotalCorrect * 100 / s.TotalAnswered
	}
	s.Level, s.XP, s.XPToNext = LevelFor(s.TotalXP)

	s.Achievements = make([]Achievement, 0, len(achievementDefs))
	for _, d := range achievementDefs {
		a := d.Achievement
		a.Unlocked = d.unlocked(&s)
		s.Achievements = append(s.Achievements, a)
	}
	return s
}
