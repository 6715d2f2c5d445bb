package models

// Need is one distinct need extracted from a story.
type Need struct {
	Slug  string `json:"slug" validate:"required,max=60"`
	Query string `json:"query" validate:"required"`
}

// NeedsResult is the output of need extraction.
type NeedsResult struct {
	Needs      []Need  `json:"needs" validate:"max=5,dive"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}
