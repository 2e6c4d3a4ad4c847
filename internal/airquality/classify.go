package airquality

// AqiInfo describes the health category of an AQI score.
type AqiInfo struct {
	Category     string `json:"category"`
	Level        int    `json:"level"`
	Color        string `json:"color"`
	Emoji        string `json:"emoji"`
	Description  string `json:"description"`
	HealthAdvice string `json:"health_advice"`
}

type bucket struct {
	upper float64 // inclusive
	info  AqiInfo
}

var buckets = []bucket{
	{50, AqiInfo{
		Category:     "Good",
		Level:        1,
		Color:        "#10b981",
		Emoji:        "😊",
		Description:  "Air quality is satisfactory, and air pollution poses little or no risk.",
		HealthAdvice: "Enjoy outdoor activities!",
	}},
	{100, AqiInfo{
		Category:     "Moderate",
		Level:        2,
		Color:        "#fbbf24",
		Emoji:        "😐",
		Description:  "Air quality is acceptable. However, there may be a risk for some people.",
		HealthAdvice: "Sensitive individuals should consider limiting prolonged outdoor exertion.",
	}},
	{150, AqiInfo{
		Category:     "Unhealthy for Sensitive Groups",
		Level:        3,
		Color:        "#fb923c",
		Emoji:        "😷",
		Description:  "Members of sensitive groups may experience health effects.",
		HealthAdvice: "Children, elderly, and people with respiratory issues should limit outdoor activities.",
	}},
	{200, AqiInfo{
		Category:     "Unhealthy",
		Level:        4,
		Color:        "#ef4444",
		Emoji:        "😨",
		Description:  "Everyone may begin to experience health effects.",
		HealthAdvice: "Avoid prolonged outdoor exertion. Wear a mask if going outside.",
	}},
	{300, AqiInfo{
		Category:     "Very Unhealthy",
		Level:        5,
		Color:        "#a855f7",
		Emoji:        "😱",
		Description:  "Health alert: everyone may experience serious health effects.",
		HealthAdvice: "Avoid all outdoor activities. Keep windows closed. Use air purifiers.",
	}},
}

var hazardous = AqiInfo{
	Category:     "Hazardous",
	Level:        6,
	Color:        "#7c2d12",
	Emoji:        "☠️",
	Description:  "Health warning of emergency conditions. The entire population is affected.",
	HealthAdvice: "Stay indoors. Seal windows and doors. Evacuate if advised.",
}

// Classify maps an AQI score to its category. Scores above 300, including
// out-of-range ones, are Hazardous; scores below 0 fall into Good.
func Classify(score float64) AqiInfo {
	for _, b := range buckets {
		if score <= b.upper {
			return b.info
		}
	}
	return hazardous
}
