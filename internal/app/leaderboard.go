package app

import (
	"sort"
	"time"

	"smong-quiz-service/internal/domain"
)

type userStanding struct {
	userID    string
	anonymous bool
	best      int
	attempts  int
	last      time.Time
}

// BuildLeaderboard groups completed sessions by user and ranks them.
// Records that violate session invariants are skipped.
func BuildLeaderboard(bank *domain.QuestionBank, sessions []domain.QuizSession) []domain.LeaderboardEntry {
	standings := make(map[string]*userStanding)
	for _, session := range sessions {
		if !countable(bank, session) {
			continue
		}
		st, ok := standings[session.UserID]
		if !ok {
			st = &userStanding{userID: session.UserID, anonymous: session.Anonymous, best: session.Score}
			standings[session.UserID] = st
		}
		st.attempts++
		if session.Score > st.best {
			st.best = session.Score
		}
		if session.CompletedAt.After(st.last) {
			st.last = *session.CompletedAt
		}
	}

	entries := make([]domain.LeaderboardEntry, 0, len(standings))
	for _, st := range standings {
		name := st.userID
		if st.anonymous {
			name = domain.AnonymousDisplayName
		}
		entries = append(entries, domain.LeaderboardEntry{
			UserID:          st.userID,
			DisplayName:     name,
			Anonymous:       st.anonymous,
			BestScore:       st.best,
			Percentage:      ScorePercentage(st.best, bank.MaxScore()),
			Attempts:        st.attempts,
			LastCompletedAt: st.last,
		})
	}

	// Score desc, then whoever completed earlier, then user id for a total order.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].BestScore != entries[j].BestScore {
			return entries[i].BestScore > entries[j].BestScore
		}
		if !entries[i].LastCompletedAt.Equal(entries[j].LastCompletedAt) {
			return entries[i].LastCompletedAt.Before(entries[j].LastCompletedAt)
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func countable(bank *domain.QuestionBank, s domain.QuizSession) bool {
	switch {
	case !s.Completed, s.CompletedAt == nil, s.UserID == "":
		return false
	case s.QuizType != bank.QuizType():
		return false
	case s.CurrentQuestion != bank.Len(), len(s.Answers) != s.CurrentQuestion:
		return false
	case s.AnswerSum() != s.Score:
		return false
	}
	return true
}
