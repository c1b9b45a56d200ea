package calibration

// Step is one guided recording in the calibration session.
type Step int

const (
	StepSilence Step = iota
	StepVowelDark
	StepVowelBright
	StepFricativeSoft
	StepFricativeSharp
	StepImpulse
)

// Steps is the canonical session order.
var Steps = []Step{
	StepSilence,
	StepVowelDark,
	StepVowelBright,
	StepFricativeSoft,
	StepFricativeSharp,
	StepImpulse,
}

func (s Step) String() string {
	switch s {
	case StepSilence:
		return "SILENCE"
	case StepVowelDark:
		return "OOO"
	case StepVowelBright:
		return "EEE"
	case StepFricativeSoft:
		return "SHHH"
	case StepFricativeSharp:
		return "SSSS"
	case StepImpulse:
		return "CLAP"
	}

	return "UNKNOWN"
}

// Prompt is the instruction shown to the user while the step records.
func (s Step) Prompt() string {
	switch s {
	case StepSilence:
		return "Stay quiet (background noise level)"
	case StepVowelDark:
		return "Say 'OOO' (dark vowel)"
	case StepVowelBright:
		return "Say 'EEE' (bright vowel)"
	case StepFricativeSoft:
		return "Say 'SHHH' (brake)"
	case StepFricativeSharp:
		return "Say 'SSSS' (accelerate)"
	case StepImpulse:
		return "Clap loudly once (trigger)"
	}

	return ""
}

func (s Step) isVowel() bool {
	return s == StepVowelDark || s == StepVowelBright
}

// State is the engine's position in the session.
type State int

const (
	AwaitingStepStart State = iota
	Recording
	StepComplete
	Finished
	Aborted
)

func (s State) String() string {
	switch s {
	case AwaitingStepStart:
		return "awaiting-step-start"
	case Recording:
		return "recording"
	case StepComplete:
		return "step-complete"
	case Finished:
		return "finished"
	case Aborted:
		return "aborted"
	}

	return "unknown"
}
