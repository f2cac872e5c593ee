package ai

// Difficulty selects one of the built-in weight presets.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyHard   Difficulty = "hard"
)

// Weights tunes the decision heuristics. All comparisons against weights are
// pure arithmetic, so a given weight set always yields the same decision for
// the same snapshot.
type Weights struct {
	// MaxInterceptCost is the highest deployment cost the AI will throw in
	// front of an incoming attack. Below zero disables interception entirely.
	MaxInterceptCost int `mapstructure:"max_intercept_cost"`
	// EnergyReserve is held back during deployment so the action phase still
	// has energy for cards and abilities.
	EnergyReserve int `mapstructure:"energy_reserve"`
	// SectionAggression biases target selection: below 2 the AI clears enemy
	// drones before spending attacks on sections, at 2 and above it sends
	// open-lane attackers at ship sections first.
	SectionAggression int `mapstructure:"section_aggression"`
	// UseSectionAbilities enables the once-per-round ship abilities.
	UseSectionAbilities bool `mapstructure:"use_section_abilities"`
}

// WeightsFor returns the preset for a difficulty, defaulting to normal.
func WeightsFor(d Difficulty) Weights {
	switch d {
	case DifficultyEasy:
		return Weights{MaxInterceptCost: 1, EnergyReserve: 0, SectionAggression: 0, UseSectionAbilities: false}
	case DifficultyHard:
		return Weights{MaxInterceptCost: 4, EnergyReserve: 2, SectionAggression: 2, UseSectionAbilities: true}
	default:
		return Weights{MaxInterceptCost: 2, EnergyReserve: 1, SectionAggression: 1, UseSectionAbilities: true}
	}
}
