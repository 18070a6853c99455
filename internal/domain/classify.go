package domain

// ThemeWeights maps a GKG theme code to a positive weight. Weight tables are
// configuration, not code; see config.DefaultProgressWeights and
// config.DefaultNoiseWeights for the shipped vocabularies.
type ThemeWeights map[string]float64

// Classifier scores an event's themes against the progress and noise
// vocabularies. It is deterministic and holds no mutable state.
type Classifier struct {
	progress ThemeWeights
	noise    ThemeWeights
}

// NewClassifier creates a Classifier over copies of the given weight tables,
// so callers cannot mutate them after injection.
func NewClassifier(progress, noise ThemeWeights) *Classifier {
	return &Classifier{
		progress: copyWeights(progress),
		noise:    copyWeights(noise),
	}
}

// Classify annotates the event with its progress and noise scores and the
// resulting category. An exact tie, including 0 == 0, is neutral.
func (c *Classifier) Classify(e Event) Event {
	var pScore, nScore float64
	for _, theme := range e.Themes {
		pScore += c.progress[theme]
		nScore += c.noise[theme]
	}

	e.PWeight = pScore
	e.NWeight = nScore
	switch {
	case pScore > nScore:
		e.Category = CategoryProgress
	case nScore > pScore:
		e.Category = CategoryNoise
	default:
		e.Category = CategoryNeutral
	}
	return e
}

func copyWeights(w ThemeWeights) ThemeWeights {
	out := make(ThemeWeights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
