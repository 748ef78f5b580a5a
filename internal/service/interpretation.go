package service

import (
	"github.com/lars-symptom-tracker/internal/domain"
)

// Interpretation is the patient-facing reading of a score result.
type Interpretation struct {
	Severity               domain.Severity `json:"severity"`
	SeverityLabel          string          `json:"severity_label"`
	Summary                string          `json:"summary"`
	Pattern                domain.Pattern  `json:"pattern"`
	PatternDescription     string          `json:"pattern_description"`
	SelfManagement         []string        `json:"self_management"`
	DietaryGuidance        []string        `json:"dietary_guidance"`
	RequiresClinicalReview bool            `json:"requires_clinical_review"`
}

var severitySummaries = map[domain.Severity]string{
	domain.NO_LARS: "Your answers do not indicate Low Anterior Resection Syndrome. " +
		"Some change in bowel habit after surgery is common; keep recording so changes are noticed early.",
	domain.MINOR_LARS: "Your answers indicate minor LARS. Symptoms are present and may affect daily life; " +
		"many people improve with diet and routine adjustments over the first months.",
	domain.MAJOR_LARS: "Your answers indicate major LARS. Symptoms are likely to have a significant impact " +
		"on daily life. Please discuss these results with your surgical team or specialist nurse.",
}

var patternDescriptions = map[domain.Pattern]string{
	domain.FREQUENCY_DOMINANT: "Most of your score comes from how often you open your bowels " +
		"and repeated visits within an hour (frequency and clustering).",
	domain.INCONTINENCE_DOMINANT: "Most of your score comes from difficulty controlling wind or liquid stool " +
		"and from urgency.",
}

var selfManagement = map[domain.Pattern][]string{
	domain.FREQUENCY_DOMINANT: {
		"Keep a regular toilet routine, for example after breakfast.",
		"Allow enough time to empty fully before leaving the toilet.",
		"Track which days cluster and note meals or activities beforehand.",
	},
	domain.INCONTINENCE_DOMINANT: {
		"Practise pelvic floor exercises daily; ask for a referral to a pelvic floor physiotherapist.",
		"Know where toilets are when going out and carry a change kit.",
		"Use barrier cream to protect the skin around the anus.",
	},
}

var majorSelfManagement = []string{
	"Ask your team about treatments such as loperamide, bulking agents or transanal irrigation.",
}

var dietaryGuidance = map[domain.Pattern][]string{
	domain.FREQUENCY_DOMINANT: {
		"Eat smaller meals more often rather than large meals.",
		"Try soluble fibre (oats, bananas, psyllium) to firm up stools.",
		"Limit caffeine, alcohol and artificial sweeteners, which can speed up the bowel.",
	},
	domain.INCONTINENCE_DOMINANT: {
		"Reduce gas-forming foods such as beans, onions, cabbage and fizzy drinks.",
		"Avoid spicy and very fatty foods if they make stools looser.",
		"Drink enough fluid through the day, sipping rather than large amounts at once.",
	},
}

// Interpret returns the reading for a score result. Unknown severities or
// patterns yield empty text rather than an error.
func Interpret(result *domain.ScoreResult) Interpretation {
	interp := Interpretation{
		Severity:               result.Severity,
		SeverityLabel:          result.Severity.Label(),
		Summary:                severitySummaries[result.Severity],
		Pattern:                result.Pattern,
		PatternDescription:     patternDescriptions[result.Pattern],
		RequiresClinicalReview: result.Severity == domain.MAJOR_LARS,
	}

	if result.Severity == domain.NO_LARS {
		interp.SelfManagement = []string{"No specific measures needed. Continue recording your symptoms."}
		interp.DietaryGuidance = []string{"Keep a balanced diet with regular meals."}
		return interp
	}

	interp.SelfManagement = append(interp.SelfManagement, selfManagement[result.Pattern]...)
	if interp.RequiresClinicalReview {
		interp.SelfManagement = append(interp.SelfManagement, majorSelfManagement...)
	}
	interp.DietaryGuidance = append(interp.DietaryGuidance, dietaryGuidance[result.Pattern]...)

	return interp
}
