package translation

import "context"

// FailedPlaceholder replaces the translation when the backend fails
const FailedPlaceholder = "[translation failed]"

// Outcome is the result of one translation. When Failed is set, Text holds
// FailedPlaceholder and Err describes the cause.
type Outcome struct {
	Text   string
	Failed bool
	Err    error
}

// Failure builds a failed outcome for err
func Failure(err error) Outcome {
	return Outcome{Text: FailedPlaceholder, Failed: true, Err: err}
}

// Translator translates text into a target language.
// Implementations report every failure through the returned Outcome.
type Translator interface {
	Translate(ctx context.Context, text string, target Language) Outcome
}
