package app

import (
	"net/url"

	"smong-quiz-service/internal/domain"
)

// Recommend derives post-quiz guidance from a score band and missed questions.
func Recommend(percentage int, answers []domain.Answer) []domain.Recommendation {
	recs := make([]domain.Recommendation, 0, 3)
	if percentage < domain.FundamentalsThresholdPercent {
		recs = append(recs, domain.Recommendation{
			Type:        domain.RecommendationStudy,
			Title:       "Review Disaster Preparedness Basics",
			Description: "Focus on fundamental disaster preparedness concepts",
		})
	}
	if percentage >= domain.CertificateThresholdPercent {
		recs = append(recs, domain.Recommendation{
			Type:        domain.RecommendationAdvanced,
			Title:       "Advanced Scenarios",
			Description: "Try more complex disaster response scenarios",
		})
	}

	var missed []string
	for _, a := range answers {
		if !a.Correct {
			missed = append(missed, a.QuestionID)
		}
	}
	if len(missed) > 0 {
		recs = append(recs, domain.Recommendation{
			Type:        domain.RecommendationTargeted,
			Title:       "Focus Areas",
			Description: "Review topics where you need improvement",
			Topics:      missed,
		})
	}
	return recs
}

func summarizePerformance(sessions []domain.QuizSession) *domain.UserPerformance {
	perf := &domain.UserPerformance{}
	total := 0
	for _, s := range sessions {
		if !s.Completed {
			continue
		}
		total += s.Score
		perf.QuizCount++
	}
	if perf.QuizCount > 0 {
		perf.AverageScore = float64(total) / float64(perf.QuizCount)
	}
	return perf
}

func contentRecommendations(bank *domain.QuestionBank, perf *domain.UserPerformance, storyType, location string) []domain.Recommendation {
	stories := url.Values{}
	stories.Set("type", storyType)
	stories.Set("location", location)

	recs := []domain.Recommendation{
		{
			Type:          domain.RecommendationQuiz,
			Title:         "Disaster Preparedness Quiz",
			Description:   "Test your knowledge about disaster preparedness and response",
			Difficulty:    "beginner",
			EstimatedTime: "10 minutes",
			ActionURL:     "/api/interactive/quiz/start",
		},
		{
			Type:        domain.RecommendationStory,
			Title:       "Related Stories",
			Description: "Explore stories similar to your interests",
			ActionURL:   "/api/stories?" + stories.Encode(),
		},
		{
			Type:          domain.RecommendationEducational,
			Title:         "Smong: Traditional Tsunami Warning",
			Description:   "Learn about Aceh's traditional early warning system",
			Difficulty:    "beginner",
			EstimatedTime: "5 minutes",
		},
	}

	// Advanced content once the average beats two thirds of the attainable score.
	if perf != nil && perf.QuizCount > 0 && 3*perf.AverageScore > 2*float64(bank.MaxScore()) {
		recs = append(recs, domain.Recommendation{
			Type:          domain.RecommendationAdvancedQuiz,
			Title:         "Advanced Disaster Response Scenarios",
			Description:   "Challenge yourself with complex disaster response situations",
			Difficulty:    "advanced",
			EstimatedTime: "15 minutes",
		})
	}
	return recs
}
