package sentiment

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ternarybob/tenor/internal/models"
)

// responseSchema is the JSON object the model must return.
// Pointers distinguish a missing key from a zero value.
type responseSchema struct {
	OptimismScore         *float64               `json:"optimism_score" validate:"required,gte=0,lte=1"`
	OptimismConfidence    *float64               `json:"optimism_confidence" validate:"required,gte=0,lte=1"`
	RiskScore             *float64               `json:"risk_score" validate:"required,gte=0,lte=1"`
	RiskConfidence        *float64               `json:"risk_confidence" validate:"required,gte=0,lte=1"`
	UncertaintyScore      *float64               `json:"uncertainty_score" validate:"required,gte=0,lte=1"`
	UncertaintyConfidence *float64               `json:"uncertainty_confidence" validate:"required,gte=0,lte=1"`
	KeyThemes             []string               `json:"key_themes" validate:"required,dive,required"`
	RiskIndicators        []string               `json:"risk_indicators" validate:"required"`
	NarrativeSections     map[string]interface{} `json:"narrative_sections" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json names so errors read like the contract
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// extractJSONObject returns the first balanced {...} span in text.
// Braces inside JSON strings (including escaped quotes) are ignored.
func extractJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", errors.New("no JSON object found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", errors.New("unbalanced JSON object in response")
}

// parseResponse turns raw model output into a validated result. It never
// repairs or clamps values: any contract violation is returned as an error.
func parseResponse(text string) (*models.SentimentResult, error) {
	raw, err := extractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var resp responseSchema
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("field %s has wrong type: got %s, want %s", typeErr.Field, typeErr.Value, typeErr.Type)
		}
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}

	if err := validate.Struct(&resp); err != nil {
		return nil, describeValidation(err)
	}
	for i, theme := range resp.KeyThemes {
		if strings.TrimSpace(theme) == "" {
			return nil, fmt.Errorf("key_themes[%d] is empty", i)
		}
	}

	return &models.SentimentResult{
		SentimentScores: models.SentimentScores{
			OptimismScore:         *resp.OptimismScore,
			OptimismConfidence:    *resp.OptimismConfidence,
			RiskScore:             *resp.RiskScore,
			RiskConfidence:        *resp.RiskConfidence,
			UncertaintyScore:      *resp.UncertaintyScore,
			UncertaintyConfidence: *resp.UncertaintyConfidence,
		},
		KeyThemes:         resp.KeyThemes,
		RiskIndicators:    resp.RiskIndicators,
		NarrativeSections: flattenSections(resp.NarrativeSections),
	}, nil
}

// describeValidation converts validator errors into one readable cause
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	causes := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch {
		case fe.Tag() == "required" && strings.HasPrefix(fe.Field(), "key_themes["):
			causes = append(causes, fmt.Sprintf("%s is empty", fe.Field()))
		case fe.Tag() == "required":
			causes = append(causes, fmt.Sprintf("missing required field %s", fe.Field()))
		case fe.Tag() == "gte" || fe.Tag() == "lte":
			causes = append(causes, fmt.Sprintf("%s=%v is outside [0.0, 1.0]", fe.Field(), fe.Value()))
		default:
			causes = append(causes, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(causes, "; "))
}

// flattenSections keeps string values and renders anything else as JSON
func flattenSections(in map[string]interface{}) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		default:
			data, err := json.Marshal(val)
			if err != nil {
				out[k] = fmt.Sprint(val)
				continue
			}
			out[k] = string(data)
		}
	}
	return out
}
