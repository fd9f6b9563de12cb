package delta

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ternarybob/tenor/internal/common"
	"github.com/ternarybob/tenor/internal/models"
)

// significantChange is the overall delta above which a change is reported as significant
const significantChange = 0.15

// Thresholds decide when a delta alerts a user
type Thresholds struct {
	SentimentChange float64
	RiskIncrease    float64
	ThemeChanges    int
	MinSignificance models.ShiftSignificance
}

// DefaultThresholds returns the standard alert thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		SentimentChange: 0.2,
		RiskIncrease:    0.15,
		ThemeChanges:    5,
		MinSignificance: models.SignificanceMajor,
	}
}

// ThresholdsFrom reads thresholds from config, keeping defaults for unset values
func ThresholdsFrom(config common.AlertsConfig) Thresholds {
	t := DefaultThresholds()
	if config.SentimentChange > 0 {
		t.SentimentChange = config.SentimentChange
	}
	if config.RiskIncrease > 0 {
		t.RiskIncrease = config.RiskIncrease
	}
	if config.ThemeChanges > 0 {
		t.ThemeChanges = config.ThemeChanges
	}
	if sig, err := models.ParseShiftSignificance(config.MinSignificance); err == nil {
		t.MinSignificance = sig
	}
	return t
}

// ShouldTriggerAlert reports whether any threshold is reached
func ShouldTriggerAlert(d *models.NarrativeDelta, t Thresholds) bool {
	switch {
	case math.Abs(d.OverallSentimentDelta) >= t.SentimentChange:
		return true
	case d.RiskDelta >= t.RiskIncrease:
		return true
	case d.TotalThemeChanges() >= t.ThemeChanges:
		return true
	}
	return d.ShiftSignificance.Rank() >= t.MinSignificance.Rank()
}

// AlertMessages describes the notable parts of a delta
func AlertMessages(d *models.NarrativeDelta) []string {
	messages := []string{}
	if math.Abs(d.OverallSentimentDelta) >= significantChange {
		direction := "increased"
		if d.OverallSentimentDelta < 0 {
			direction = "decreased"
		}
		messages = append(messages, fmt.Sprintf("Overall sentiment %s by %.1f%%", direction, math.Abs(d.OverallSentimentDelta)*100))
	}
	if d.RiskDelta >= 0.1 {
		messages = append(messages, fmt.Sprintf("Risk perception increased by %.2f%%", percent(d.RiskDelta)))
	}
	if n := d.TotalThemeChanges(); n >= 3 {
		messages = append(messages, fmt.Sprintf("%d theme changes detected", n))
	}
	if d.ShiftSignificance.Rank() >= models.SignificanceMajor.Rank() {
		messages = append(messages, fmt.Sprintf("%s narrative shift identified", d.ShiftSignificance))
	}
	return messages
}

// Change is one dimension of a summary
type Change struct {
	Delta      float64 `json:"delta"`
	Percentage float64 `json:"percentage"`
}

// Summary is the readable breakdown of a delta
type Summary struct {
	Overall struct {
		Change
		Direction string `json:"direction"` // positive, negative or neutral
		Magnitude string `json:"magnitude"` // significant or minor
	} `json:"overall_change"`
	Optimism      Change                   `json:"optimism"`
	Risk          Change                   `json:"risk"`
	Uncertainty   Change                   `json:"uncertainty"`
	ThemesAdded   int                      `json:"themes_added"`
	ThemesRemoved int                      `json:"themes_removed"`
	ThemesEvolved int                      `json:"themes_evolved"`
	TotalChanges  int                      `json:"total_theme_changes"`
	Significance  models.ShiftSignificance `json:"significance"`
	Calculated    models.ShiftSignificance `json:"calculated_significance"`
}

// Summarize builds the summary of a delta
func Summarize(d *models.NarrativeDelta) Summary {
	var s Summary
	s.Overall.Change = change(d.OverallSentimentDelta)
	switch {
	case d.OverallSentimentDelta > 0:
		s.Overall.Direction = "positive"
	case d.OverallSentimentDelta < 0:
		s.Overall.Direction = "negative"
	default:
		s.Overall.Direction = "neutral"
	}
	s.Overall.Magnitude = "minor"
	if math.Abs(d.OverallSentimentDelta) >= significantChange {
		s.Overall.Magnitude = "significant"
	}

	s.Optimism = change(d.OptimismDelta)
	s.Risk = change(d.RiskDelta)
	s.Uncertainty = change(d.UncertaintyDelta)
	s.ThemesAdded = len(d.ThemesAdded)
	s.ThemesRemoved = len(d.ThemesRemoved)
	s.ThemesEvolved = len(d.ThemesEvolved)
	s.TotalChanges = d.TotalThemeChanges()
	s.Significance = d.ShiftSignificance
	s.Calculated = Significance(d.OverallSentimentDelta, d.TotalThemeChanges())
	return s
}

func change(delta float64) Change {
	return Change{Delta: delta, Percentage: percent(delta)}
}

func percent(v float64) float64 {
	return math.Round(v*100*100) / 100
}

// SentimentShiftAlert returns an alert when the overall change, as a
// percentage, reaches thresholdPct. It returns nil otherwise.
func SentimentShiftAlert(d *models.NarrativeDelta, userID string, thresholdPct float64) *models.Alert {
	actual := math.Abs(d.OverallSentimentDelta) * 100
	if actual < thresholdPct {
		return nil
	}

	direction := "increase"
	if d.OverallSentimentDelta < 0 {
		direction = "decrease"
	}
	return &models.Alert{
		ID:           "alt_" + uuid.New().String(),
		UserID:       userID,
		CompanyID:    d.CompanyID,
		DeltaID:      d.ID,
		AlertType:    "sentiment_shift",
		Threshold:    thresholdPct,
		ActualChange: actual,
		Direction:    direction,
		Message:      fmt.Sprintf("Sentiment %sd by %.1f%% (threshold %.1f%%)", direction, actual, thresholdPct),
		CreatedAt:    time.Now(),
	}
}
