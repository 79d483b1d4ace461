package domain

// StageDefinition is one step of the guided framework.
type StageDefinition struct {
	Key         string   `yaml:"key" json:"key"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Icon        string   `yaml:"icon" json:"icon"`
	Keywords    []string `yaml:"keywords" json:"keywords"`
}

// StageKeys returns the keys of stages in configured order.
func StageKeys(stages []StageDefinition) []string {
	keys := make([]string, 0, len(stages))
	for _, s := range stages {
		keys = append(keys, s.Key)
	}
	return keys
}
